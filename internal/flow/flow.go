// Package flow wires the payment, job, mint and kiosk components into the
// user flows.
package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"imaigine-lab/internal/domain"
	"imaigine-lab/internal/jobs"
	"imaigine-lab/internal/logging"
	"imaigine-lab/internal/mint"
	"imaigine-lab/internal/observability"
	"imaigine-lab/internal/oracle"
	"imaigine-lab/internal/payment"
	"imaigine-lab/internal/pricing"
	"imaigine-lab/internal/ptb"
	"imaigine-lab/internal/storage"
	"imaigine-lab/internal/sui"
	"imaigine-lab/internal/tracker"
)

// Flow names used in metrics and logs.
const (
	FlowFineTune = "fine_tune"
	FlowGenerate = "generate"
	FlowMint     = "mint"
	FlowPublish  = "publish"
	FlowBuy      = "buy"
	FlowExample  = "example_image"
)

// Wallet signs and executes a transaction exactly once.
type Wallet interface {
	SignAndExecute(ctx context.Context, tx *ptb.Transaction) (*sui.ExecuteResult, error)
}

// JobSubmitter enqueues remote jobs. Implemented by jobs.Submitter.
type JobSubmitter interface {
	Submit(ctx context.Context, payload jobs.Payload, params jobs.Params) (domain.JobHandle, error)
}

// ResultFetcher reads the output of a finished job. Implemented by jobs.Client.
type ResultFetcher interface {
	Result(ctx context.Context, app, id string, out any) error
}

// AssetReader reads on-chain records. Implemented by assets.Client.
type AssetReader interface {
	GetAsset(ctx context.Context, id string) (*domain.Asset, error)
}

// MintBuilder builds mint transactions. Implemented by mint.Builder.
type MintBuilder interface {
	BuildMintTx(ctx context.Context, job domain.Job, result domain.JobResult, extra mint.Metadata) (*ptb.Transaction, error)
}

// MarketBuilder builds kiosk transactions. Implemented by market.Builder.
type MarketBuilder interface {
	BuildPublishTx(owner, modelID string, price uint64, kc *domain.KioskCap) (*ptb.Transaction, error)
	BuildBuyTx(buyer string, listing *domain.Listing, modelID string) (*ptb.Transaction, error)
}

// KioskReader reads kiosk state. Implemented by assets.Client.
type KioskReader interface {
	OwnedKioskCaps(ctx context.Context, owner string) ([]domain.KioskCap, error)
	GetListing(ctx context.Context, modelID string) (*domain.Listing, error)
}

// ImageStore copies an image to durable storage. Implemented by
// mint.ImagePersister.
type ImageStore interface {
	Persist(ctx context.Context, url, contentType string) (string, error)
}

// SourceFactory returns the status feed for jobs of app.
type SourceFactory func(app string) tracker.Source

// ErrNoWallet is returned by the paying flows when no Wallet is configured.
var ErrNoWallet = errors.New("no wallet configured")

// Options configures a Service. Wallet, Oracle, Submitter and Vault are required
// for the paying flows; Market and Kiosks for Publish and Buy. Images is
// optional.
type Options struct {
	Wallet     Wallet
	Oracle     oracle.RateSource
	Calculator *pricing.Calculator
	Prices     pricing.Prices
	Vault      string

	Submitter JobSubmitter
	Results   ResultFetcher
	Sources   SourceFactory
	Assets    AssetReader
	Minter    MintBuilder
	Market    MarketBuilder
	Kiosks    KioskReader
	Images    ImageStore

	Handles storage.JobHandleStore
	Events  storage.JobEventStore

	Metrics *observability.Metrics
	Logger  logging.Logger
	Clock   func() time.Time
}

// Service runs the flows. Each call derives its own quote, fee and
// transaction; nothing is shared between two intents.
type Service struct {
	opts Options
	log  logging.Logger

	mu      sync.Mutex
	minting map[string]bool // job id -> claimed by a mint in this process
}

// New creates a Service.
func New(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Calculator == nil {
		opts.Calculator = pricing.NewCalculator(pricing.DefaultSurcharge)
	}
	if opts.Prices.FeePercent.IsZero() && opts.Prices.FineTuneUSD.IsZero() {
		opts.Prices = pricing.DefaultPrices()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetrics("", prometheus.NewRegistry())
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Service{
		opts:    opts,
		log:     opts.Logger.With("component", "flow"),
		minting: make(map[string]bool),
	}
}

// execute submits tx once. Any wallet error or a non-success effect
// status becomes domain.ErrTransactionRejected.
func (s *Service) execute(ctx context.Context, purpose string, tx *ptb.Transaction) (*sui.ExecuteResult, error) {
	res, err := s.opts.Wallet.SignAndExecute(ctx, tx)
	switch {
	case err != nil:
		err = fmt.Errorf("%w: %s: %v", domain.ErrTransactionRejected, purpose, err)
	case res == nil:
		err = fmt.Errorf("%w: %s: empty result", domain.ErrTransactionRejected, purpose)
	case !res.Succeeded():
		err = fmt.Errorf("%w: %s: %s %s", domain.ErrTransactionRejected, purpose, res.Status, res.Error)
	}
	s.opts.Metrics.RecordTx(purpose, err)
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "transaction executed", "purpose", purpose, "digest", res.Digest)
	return res, nil
}

// pay quotes, prices and settles one payment. fee computes the breakdown
// from the fresh rate.
func (s *Service) pay(ctx context.Context, flow, payer, beneficiary string, fee func(rate decimal.Decimal) (domain.FeeBreakdown, error)) (*sui.ExecuteResult, error) {
	if s.opts.Wallet == nil {
		return nil, ErrNoWallet
	}
	quote, err := s.opts.Oracle.FetchQuote(ctx)
	if err != nil {
		return nil, err
	}
	breakdown, err := fee(quote.Rate)
	if err != nil {
		return nil, err
	}
	intent := domain.NewPaymentIntent(payer, breakdown, s.opts.Vault, beneficiary)
	tx, err := payment.BuildPaymentTx(intent)
	if err != nil {
		return nil, err
	}
	s.opts.Metrics.RecordPayment(flow, breakdown, intent.HasBeneficiary())
	s.log.Info(ctx, "payment built",
		"flow", flow,
		"payer", payer,
		"total_mist", breakdown.TotalAmount,
		"fee_mist", breakdown.FeeAmount,
	)
	return s.execute(ctx, "payment_"+flow, tx)
}

// persist stores a fresh handle. A failure is logged and the handle is
// still returned: the job is paid for and running.
func (s *Service) persist(ctx context.Context, h domain.JobHandle) {
	if s.opts.Handles == nil {
		return
	}
	if err := s.opts.Handles.Insert(ctx, &h); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		s.log.Error(ctx, "persist job handle failed", "job_id", h.ID, "error", err)
	}
}

// normalAddress returns addr in its full 0x-prefixed form. Handles are
// keyed by it.
func normalAddress(field, addr string) (string, error) {
	out, err := ptb.NormalizeAddress(addr)
	if err != nil {
		return "", fmt.Errorf("%s: %w", field, err)
	}
	return out, nil
}
