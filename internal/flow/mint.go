package flow

import (
	"context"
	"errors"
	"fmt"

	"imaigine-lab/internal/domain"
	"imaigine-lab/internal/mint"
	"imaigine-lab/internal/storage"
	"imaigine-lab/internal/sui"
	"imaigine-lab/internal/tracker"
)

// Mint fetches the result of a finished job and mints it once.
//
// A job is claimed in memory for the duration of the call and recorded
// through JobHandleStore.MarkMinted after execution. A second call for the
// same job fails with domain.ErrAlreadyMinted. Failures before execution
// release the claim so the caller may try again.
func (s *Service) Mint(ctx context.Context, h domain.JobHandle, t *tracker.Tracker, extra mint.Metadata) (*sui.ExecuteResult, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil tracker", domain.ErrInvalidInput)
	}
	job := t.Snapshot()
	if job.ID != h.ID {
		return nil, fmt.Errorf("%w: tracker follows %s, not %s", domain.ErrInvalidInput, job.ID, h.ID)
	}
	if job.Status != domain.JobStatusDone {
		return nil, fmt.Errorf("%w: job %s is %s", domain.ErrJobNotReady, job.ID, job.Status)
	}
	if s.opts.Wallet == nil {
		return nil, ErrNoWallet
	}

	if err := s.claim(ctx, h.ID); err != nil {
		return nil, err
	}
	res, err := s.mint(ctx, h, job, extra)
	if err != nil && !errors.Is(err, domain.ErrAlreadyMinted) {
		s.release(h.ID)
	}
	return res, err
}

func (s *Service) mint(ctx context.Context, h domain.JobHandle, job domain.Job, extra mint.Metadata) (*sui.ExecuteResult, error) {
	result, err := s.fetchResult(ctx, h)
	if err != nil {
		return nil, err
	}

	switch h.Kind {
	case domain.JobKindTraining:
		if extra.TriggerWord == "" {
			extra.TriggerWord = h.TriggerWord
		}
	case domain.JobKindGeneration:
		if extra.Prompt == "" {
			extra.Prompt = h.Prompt
		}
		if extra.ModelID == "" {
			extra.ModelID = h.ModelID
		}
	}

	tx, err := s.opts.Minter.BuildMintTx(ctx, job, result, extra)
	if err != nil {
		return nil, err
	}

	res, err := s.execute(ctx, FlowMint, tx)
	s.opts.Metrics.RecordMint(h.Kind, err == nil)
	if err != nil {
		return nil, err
	}

	if s.opts.Handles != nil {
		err := s.opts.Handles.MarkMinted(ctx, h.ID, res.Digest, s.opts.Clock().UnixMilli())
		switch {
		case errors.Is(err, storage.ErrAlreadyMinted):
			s.log.Error(ctx, "job minted twice", "job_id", h.ID, "digest", res.Digest)
			return res, fmt.Errorf("%w: job %s", domain.ErrAlreadyMinted, h.ID)
		case err != nil:
			s.log.Error(ctx, "record mint failed", "job_id", h.ID, "digest", res.Digest, "error", err)
		}
	}
	return res, nil
}

// claim reserves jobID for one mint. It also refuses jobs whose stored
// handle already carries a mint digest.
func (s *Service) claim(ctx context.Context, jobID string) error {
	s.mu.Lock()
	if s.minting[jobID] {
		s.mu.Unlock()
		return fmt.Errorf("%w: job %s", domain.ErrAlreadyMinted, jobID)
	}
	s.minting[jobID] = true
	s.mu.Unlock()

	if s.opts.Handles == nil {
		return nil
	}
	stored, err := s.opts.Handles.GetByID(ctx, jobID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil
	case err != nil:
		s.release(jobID)
		return fmt.Errorf("load job handle: %w", err)
	case stored.MintDigest != nil:
		return fmt.Errorf("%w: job %s in %s", domain.ErrAlreadyMinted, jobID, *stored.MintDigest)
	}
	return nil
}

func (s *Service) release(jobID string) {
	s.mu.Lock()
	delete(s.minting, jobID)
	s.mu.Unlock()
}

// fetchResult reads the job output. Re-fetching is idempotent.
func (s *Service) fetchResult(ctx context.Context, h domain.JobHandle) (domain.JobResult, error) {
	switch h.Kind {
	case domain.JobKindTraining:
		var r domain.TrainingResult
		if err := s.opts.Results.Result(ctx, h.App, h.ID, &r); err != nil {
			return nil, fmt.Errorf("fetch training result: %w", err)
		}
		return r, nil
	case domain.JobKindGeneration:
		var r domain.GenerationResult
		if err := s.opts.Results.Result(ctx, h.App, h.ID, &r); err != nil {
			return nil, fmt.Errorf("fetch generation result: %w", err)
		}
		return r, nil
	}
	return nil, fmt.Errorf("%w: job kind %q", domain.ErrInvalidInput, h.Kind)
}
