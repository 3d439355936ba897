// Package mint builds the on-chain create call for a finished job.
package mint

import (
	"context"
	"fmt"

	"imaigine-lab/internal/blobstore"
	"imaigine-lab/internal/contracts"
	"imaigine-lab/internal/domain"
	"imaigine-lab/internal/logging"
	"imaigine-lab/internal/ptb"
)

// Metadata carries caller-supplied fields of the minted record.
type Metadata struct {
	// ExampleImages are shown with a model record. Training only.
	ExampleImages []string
	// TriggerWord is used when the result has no config file.
	TriggerWord string

	// Prompt and ModelID describe a generated image.
	Prompt  string
	ModelID string
}

// Options configures a Builder.
type Options struct {
	Fetcher MetadataFetcher
	// Store enables persisting generated images before minting.
	Store  blobstore.Store
	Logger logging.Logger
}

// Builder builds mint transactions.
type Builder struct {
	pkg       contracts.Package
	fetcher   MetadataFetcher
	persister *ImagePersister
	log       logging.Logger
}

// NewBuilder creates a Builder for the deployment pkg.
func NewBuilder(pkg contracts.Package, opts Options) *Builder {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Fetcher == nil {
		opts.Fetcher = NewHTTPMetadataFetcher(nil, 0, opts.Logger)
	}
	b := &Builder{pkg: pkg, fetcher: opts.Fetcher, log: opts.Logger}
	if opts.Store != nil {
		b.persister = NewImagePersister(opts.Store, nil)
	}
	return b
}

// BuildMintTx builds the create call for result. It fails with
// domain.ErrJobNotReady unless job is DONE, and builds nothing in that case.
func (b *Builder) BuildMintTx(ctx context.Context, job domain.Job, result domain.JobResult, extra Metadata) (*ptb.Transaction, error) {
	if job.Status != domain.JobStatusDone {
		return nil, fmt.Errorf("mint job %s in status %s: %w", job.ID, job.Status, domain.ErrJobNotReady)
	}
	if result == nil {
		return nil, fmt.Errorf("mint job %s: nil result: %w", job.ID, domain.ErrInvalidInput)
	}
	if result.Kind() != job.Kind {
		return nil, fmt.Errorf("mint job %s: %s result for %s job: %w", job.ID, result.Kind(), job.Kind, domain.ErrInvalidInput)
	}

	switch r := result.(type) {
	case domain.TrainingResult:
		return b.buildModel(ctx, job, r, extra)
	case *domain.TrainingResult:
		return b.buildModel(ctx, job, *r, extra)
	case domain.GenerationResult:
		return b.buildImage(ctx, job, r, extra)
	case *domain.GenerationResult:
		return b.buildImage(ctx, job, *r, extra)
	default:
		return nil, fmt.Errorf("mint job %s: unsupported result %T: %w", job.ID, result, domain.ErrInvalidInput)
	}
}

func (b *Builder) buildModel(ctx context.Context, job domain.Job, r domain.TrainingResult, extra Metadata) (*ptb.Transaction, error) {
	if r.WeightsFile.URL == "" {
		return nil, fmt.Errorf("mint job %s: result has no weights file: %w", job.ID, domain.ErrInvalidInput)
	}

	trigger := extra.TriggerWord
	if r.ConfigFile.URL != "" {
		word, err := b.fetcher.FetchTriggerWord(ctx, r.ConfigFile.URL)
		if err != nil {
			return nil, err
		}
		trigger = word
	}
	if trigger == "" {
		return nil, fmt.Errorf("mint job %s: no trigger word: %w", job.ID, domain.ErrMetadataFetch)
	}

	tb := ptb.NewBuilder()
	b.pkg.CreateModel(tb, r.WeightsFile.URL, trigger, extra.ExampleImages)
	tx, err := tb.Build()
	if err != nil {
		return nil, fmt.Errorf("build model mint: %w", err)
	}

	b.log.Info(ctx, "model mint built", "job_id", job.ID, "trigger_word", trigger)
	return tx, nil
}

func (b *Builder) buildImage(ctx context.Context, job domain.Job, r domain.GenerationResult, extra Metadata) (*ptb.Transaction, error) {
	if len(r.Images) == 0 || r.Images[0].URL == "" {
		return nil, fmt.Errorf("mint job %s: result has no image: %w", job.ID, domain.ErrInvalidInput)
	}
	if extra.Prompt == "" {
		return nil, fmt.Errorf("mint job %s: empty prompt: %w", job.ID, domain.ErrInvalidInput)
	}
	if _, err := ptb.ParseAddress(extra.ModelID); err != nil {
		return nil, fmt.Errorf("mint job %s: model id: %w", job.ID, err)
	}

	url := r.Images[0].URL
	if b.persister != nil {
		stored, err := b.persister.Persist(ctx, url, r.Images[0].ContentType)
		if err != nil {
			return nil, fmt.Errorf("mint job %s: persist image: %w", job.ID, err)
		}
		url = stored
	}

	tb := ptb.NewBuilder()
	b.pkg.CreateImage(tb, extra.Prompt, url, extra.ModelID)
	tx, err := tb.Build()
	if err != nil {
		return nil, fmt.Errorf("build image mint: %w", err)
	}

	b.log.Info(ctx, "image mint built", "job_id", job.ID, "url", url)
	return tx, nil
}
