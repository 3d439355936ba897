package flow

import (
	"context"
	"fmt"

	"imaigine-lab/internal/domain"
	"imaigine-lab/internal/jobs"
	"imaigine-lab/internal/pricing"
	"imaigine-lab/internal/tracker"
)

// ExampleRequest asks for a preview image from a finished training job.
type ExampleRequest struct {
	// Prompt defaults to a portrait of the handle's trigger word.
	Prompt    string
	ImageSize pricing.ImageSize
}

// ExampleImage renders one image with the weights of a finished training
// job, for use as mint.Metadata.ExampleImages. The generation is not
// charged. Its handle is persisted and tracked like any other job, and
// the call blocks until it finishes or ctx is done. The returned URL is
// the blob store copy when Options.Images is set.
func (s *Service) ExampleImage(ctx context.Context, h domain.JobHandle, t *tracker.Tracker, req ExampleRequest) (string, error) {
	if h.Kind != domain.JobKindTraining {
		return "", fmt.Errorf("%w: job %s is not a training job", domain.ErrInvalidInput, h.ID)
	}
	if t == nil {
		return "", fmt.Errorf("%w: nil tracker", domain.ErrInvalidInput)
	}
	job := t.Snapshot()
	if job.ID != h.ID {
		return "", fmt.Errorf("%w: tracker follows %s, not %s", domain.ErrInvalidInput, job.ID, h.ID)
	}
	if job.Status != domain.JobStatusDone {
		return "", fmt.Errorf("%w: job %s is %s", domain.ErrJobNotReady, job.ID, job.Status)
	}

	result, err := s.fetchResult(ctx, h)
	if err != nil {
		return "", err
	}
	weights := result.(domain.TrainingResult).WeightsFile.URL
	if weights == "" {
		return "", fmt.Errorf("%w: job %s has no weights file", domain.ErrInvalidInput, h.ID)
	}

	prompt := req.Prompt
	if prompt == "" {
		if h.TriggerWord == "" {
			return "", fmt.Errorf("%w: no prompt and no trigger word", domain.ErrInvalidInput)
		}
		prompt = "a portrait of " + h.TriggerWord
	}
	if req.ImageSize == "" {
		req.ImageSize = pricing.SizeSquareHD
	}

	params := jobs.GenerationParams{
		Prompt:    prompt,
		LoraURL:   weights,
		ImageSize: req.ImageSize,
		Scale:     1,
	}
	eh, err := s.opts.Submitter.Submit(ctx, jobs.Payload{Owner: h.Owner}, params)
	s.opts.Metrics.RecordSubmit(domain.JobKindGeneration, err)
	if err != nil {
		return "", fmt.Errorf("submit example image: %w", err)
	}
	s.persist(ctx, eh)
	s.log.Info(ctx, "example image submitted", "flow", FlowExample, "job_id", h.ID, "example_job_id", eh.ID)

	et, err := s.Track(ctx, eh)
	if err != nil {
		return "", err
	}
	final, err := et.Wait(ctx)
	if err != nil {
		et.Detach()
		return "", fmt.Errorf("example image %s: %w", eh.ID, err)
	}
	if final.Status != domain.JobStatusDone {
		return "", fmt.Errorf("example image %s ended %s: %w", eh.ID, final.Status, domain.ErrJobFailed)
	}

	out, err := s.fetchResult(ctx, eh)
	if err != nil {
		return "", err
	}
	images := out.(domain.GenerationResult).Images
	if len(images) == 0 || images[0].URL == "" {
		return "", fmt.Errorf("%w: example image %s has no image", domain.ErrInvalidInput, eh.ID)
	}

	url := images[0].URL
	if s.opts.Images != nil {
		stored, err := s.opts.Images.Persist(ctx, url, images[0].ContentType)
		if err != nil {
			return "", fmt.Errorf("persist example image: %w", err)
		}
		url = stored
	}
	return url, nil
}
