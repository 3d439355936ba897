package jobs

import (
	"context"
	"fmt"
	"time"

	"imaigine-lab/internal/blobstore"
	"imaigine-lab/internal/domain"
	"imaigine-lab/internal/logging"
)

// PayloadContentType is the content type of bundled training payloads.
const PayloadContentType = "application/zip"

// Enqueuer enqueues a request on the remote queue.
type Enqueuer interface {
	Submit(ctx context.Context, app string, input any) (SubmitResponse, error)
}

// Payload is the input of a submission.
type Payload struct {
	Owner string // paying wallet
	Data  []byte // bundled blob, required for training only
}

// Submitter uploads job payloads and enqueues remote jobs.
type Submitter struct {
	queue Enqueuer
	store blobstore.Store
	log   logging.Logger
	now   func() time.Time
}

// NewSubmitter creates a Submitter. store may be nil when only generation
// jobs are submitted.
func NewSubmitter(queue Enqueuer, store blobstore.Store, log logging.Logger) *Submitter {
	if log == nil {
		log = logging.Default()
	}
	return &Submitter{queue: queue, store: store, log: log, now: time.Now}
}

// Submit uploads the payload when params needs one, enqueues the job and
// returns its handle without waiting for completion.
func (s *Submitter) Submit(ctx context.Context, payload Payload, params Params) (domain.JobHandle, error) {
	if params == nil {
		return domain.JobHandle{}, fmt.Errorf("submit: nil params: %w", domain.ErrInvalidInput)
	}
	if payload.Owner == "" {
		return domain.JobHandle{}, fmt.Errorf("submit: missing owner: %w", domain.ErrInvalidInput)
	}

	var payloadURL string
	if params.Kind() == domain.JobKindTraining {
		if len(payload.Data) == 0 {
			return domain.JobHandle{}, fmt.Errorf("submit: empty payload: %w", domain.ErrInvalidInput)
		}
		if s.store == nil {
			return domain.JobHandle{}, fmt.Errorf("submit: no blob store configured")
		}
		url, err := s.store.Upload(ctx, payload.Data, PayloadContentType)
		if err != nil {
			return domain.JobHandle{}, fmt.Errorf("upload payload: %w", err)
		}
		payloadURL = url
	}

	input, err := params.Input(payloadURL)
	if err != nil {
		return domain.JobHandle{}, err
	}

	resp, err := s.queue.Submit(ctx, params.App(), input)
	if err != nil {
		if payloadURL != "" {
			s.log.Warn(ctx, "enqueue failed, payload orphaned",
				"app", params.App(),
				"payload_url", payloadURL,
				"error", err,
			)
		}
		return domain.JobHandle{}, fmt.Errorf("enqueue: %w", err)
	}

	now := s.now().UnixMilli()
	h := domain.JobHandle{
		ID:        resp.RequestID,
		Kind:      params.Kind(),
		Owner:     payload.Owner,
		App:       params.App(),
		Status:    domain.JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	switch p := params.(type) {
	case TrainingParams:
		mt := p.ModelType
		h.ModelType = &mt
		h.TriggerWord = p.TriggerWord
	case GenerationParams:
		h.ModelID = p.ModelID
		h.Prompt = p.Prompt
	}

	s.log.Info(ctx, "job submitted",
		"job_id", h.ID,
		"kind", h.Kind,
		"owner", h.Owner,
	)
	return h, nil
}
