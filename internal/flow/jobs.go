package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"imaigine-lab/internal/domain"
	"imaigine-lab/internal/jobs"
	"imaigine-lab/internal/pricing"
	"imaigine-lab/internal/ptb"
	"imaigine-lab/internal/storage"
	"imaigine-lab/internal/tracker"
)

// FineTuneRequest asks for a new model trained on Images.
type FineTuneRequest struct {
	Payer     string
	Images    []jobs.File
	ModelType domain.ModelType
}

// FineTune charges the flat fine-tune price to the vault, uploads the
// training images and submits the job.
//
// Order: bundle, quote, fee, payment, submit, persist. Input errors fail
// before anything is charged.
func (s *Service) FineTune(ctx context.Context, req FineTuneRequest) (domain.JobHandle, error) {
	payer, err := normalAddress("payer", req.Payer)
	if err != nil {
		return domain.JobHandle{}, err
	}
	if !req.ModelType.IsValid() {
		return domain.JobHandle{}, fmt.Errorf("%w: model type %q", domain.ErrInvalidInput, req.ModelType)
	}
	bundle, err := jobs.BundleImages(req.Images)
	if err != nil {
		return domain.JobHandle{}, err
	}

	receipt, err := s.pay(ctx, FlowFineTune, payer, "", func(rate decimal.Decimal) (domain.FeeBreakdown, error) {
		return s.opts.Calculator.FineTune(s.opts.Prices, rate)
	})
	if err != nil {
		return domain.JobHandle{}, err
	}

	params := jobs.NewTrainingParams(req.ModelType)
	h, err := s.opts.Submitter.Submit(ctx, jobs.Payload{Owner: payer, Data: bundle}, params)
	s.opts.Metrics.RecordSubmit(domain.JobKindTraining, err)
	if err != nil {
		s.log.Error(ctx, "submit after payment failed",
			"flow", FlowFineTune,
			"payment_digest", receipt.Digest,
			"error", err,
		)
		return domain.JobHandle{}, fmt.Errorf("submit fine-tune (payment %s): %w", receipt.Digest, err)
	}

	s.persist(ctx, h)
	return h, nil
}

// GenerateRequest asks for one image from an existing model.
type GenerateRequest struct {
	Payer     string
	ModelID   string
	Prompt    string
	ImageSize pricing.ImageSize
}

// Generate charges per megapixel, paying the model owner their share,
// and submits the generation job with the model's weights.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (domain.JobHandle, error) {
	payer, err := normalAddress("payer", req.Payer)
	if err != nil {
		return domain.JobHandle{}, err
	}
	if _, err := normalAddress("model id", req.ModelID); err != nil {
		return domain.JobHandle{}, err
	}
	if req.Prompt == "" {
		return domain.JobHandle{}, fmt.Errorf("%w: empty prompt", domain.ErrInvalidInput)
	}
	if req.ImageSize == "" {
		req.ImageSize = pricing.SizeSquare
	}
	if _, _, ok := req.ImageSize.Resolution(); !ok {
		return domain.JobHandle{}, fmt.Errorf("%w: unknown image size %q", domain.ErrInvalidInput, req.ImageSize)
	}

	model, err := s.opts.Assets.GetAsset(ctx, req.ModelID)
	if err != nil {
		return domain.JobHandle{}, fmt.Errorf("load model: %w", err)
	}
	if model.Kind != domain.AssetKindModel {
		return domain.JobHandle{}, fmt.Errorf("%w: %s is not a model", domain.ErrInvalidInput, req.ModelID)
	}

	beneficiary := model.Owner
	if sameAddress(beneficiary, s.opts.Vault) {
		beneficiary = ""
	}
	receipt, err := s.pay(ctx, FlowGenerate, payer, beneficiary, func(rate decimal.Decimal) (domain.FeeBreakdown, error) {
		return s.opts.Calculator.Generate(s.opts.Prices, req.ImageSize, rate)
	})
	if err != nil {
		return domain.JobHandle{}, err
	}

	params := jobs.GenerationParams{
		Prompt:    req.Prompt,
		LoraURL:   model.PayloadRef,
		ImageSize: req.ImageSize,
		Scale:     1,
		ModelID:   model.ID,
	}
	h, err := s.opts.Submitter.Submit(ctx, jobs.Payload{Owner: payer}, params)
	s.opts.Metrics.RecordSubmit(domain.JobKindGeneration, err)
	if err != nil {
		s.log.Error(ctx, "submit after payment failed",
			"flow", FlowGenerate,
			"payment_digest", receipt.Digest,
			"error", err,
		)
		return domain.JobHandle{}, fmt.Errorf("submit generation (payment %s): %w", receipt.Digest, err)
	}

	s.persist(ctx, h)
	return h, nil
}

// Track starts a tracker for h, resuming from its persisted state and
// event sequence. Transitions are persisted and counted.
func (s *Service) Track(ctx context.Context, h domain.JobHandle) (*tracker.Tracker, error) {
	if h.ID == "" || !h.Kind.IsValid() {
		return nil, fmt.Errorf("%w: job handle", domain.ErrInvalidInput)
	}
	if s.opts.Sources == nil {
		return nil, errors.New("track: no status source configured")
	}

	var firstSeq int64
	if s.opts.Events != nil {
		events, err := s.opts.Events.GetByJobID(ctx, h.ID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("load job events: %w", err)
		}
		if n := len(events); n > 0 {
			firstSeq = events[n-1].Seq + 1
		}
	}

	initial := domain.Job{ID: h.ID, Kind: h.Kind, Status: h.Status, Progress: h.Progress}
	if !initial.Status.IsValid() {
		initial.Status = domain.JobStatusQueued
	}

	t := tracker.New(h.ID, h.Kind, s.opts.Sources(h.App), tracker.Options{
		Initial:  &initial,
		FirstSeq: firstSeq,
		Handles:  s.opts.Handles,
		Events:   s.opts.Events,
		OnChange: func(_, next domain.Job) {
			s.opts.Metrics.RecordTransition(next.Kind, next.Status)
		},
		Logger: s.opts.Logger,
		Clock:  s.opts.Clock,
	})

	stop := s.opts.Metrics.TrackStarted(h.Kind)
	if err := t.Start(ctx); err != nil {
		stop(initial.Status)
		return nil, err
	}
	go func() {
		<-t.Done()
		stop(t.Snapshot().Status)
	}()
	return t, nil
}

func sameAddress(a, b string) bool {
	x, err := ptb.ParseAddress(a)
	if err != nil {
		return false
	}
	y, err := ptb.ParseAddress(b)
	return err == nil && x == y
}
