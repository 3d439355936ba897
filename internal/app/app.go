// Package app assembles the service components from a Config.
// Both commands share it: jobwatch for tracking and the status API,
// imaigine for the paying flows and marketplace calls.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"imaigine-lab/internal/assets"
	"imaigine-lab/internal/blobstore"
	"imaigine-lab/internal/config"
	"imaigine-lab/internal/flow"
	"imaigine-lab/internal/jobs"
	"imaigine-lab/internal/logging"
	"imaigine-lab/internal/market"
	"imaigine-lab/internal/mint"
	"imaigine-lab/internal/observability"
	"imaigine-lab/internal/oracle"
	"imaigine-lab/internal/pricing"
	"imaigine-lab/internal/sui"
	"imaigine-lab/internal/tracker"
)

// App holds the assembled components.
type App struct {
	Config   config.Config
	Log      logging.Logger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	Sui    *sui.HTTPClient
	Jobs   *jobs.Client
	Blobs  blobstore.Store
	Stores Stores

	// Wallet is nil when no private key is configured.
	Wallet *sui.LocalWallet

	Assets *assets.Client
	Market *market.Builder
	Flow   *flow.Service

	closers []func()
}

// New builds every component. Only the external storage backend opens
// connections here; the HTTP clients connect lazily.
func New(ctx context.Context, cfg config.Config, log logging.Logger) (*App, error) {
	if log == nil {
		log = logging.Default()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &App{
		Config:   cfg,
		Log:      log,
		Registry: reg,
		Metrics:  observability.NewMetrics("", reg),
	}

	a.Sui = sui.NewHTTPClient(cfg.Sui.RPCURL,
		sui.WithTimeout(cfg.Sui.Timeout),
		sui.WithMaxRetries(cfg.Sui.MaxRetries),
		sui.WithObserver(a.Metrics.ObserveRPC),
	)
	a.Jobs = jobs.NewClient(cfg.Fal.Key,
		jobs.WithBaseURL(cfg.Fal.BaseURL),
		jobs.WithTimeout(cfg.Fal.Timeout),
	)

	blobs, err := NewBlobStore(ctx, cfg.Blobs)
	if err != nil {
		return nil, err
	}
	a.Blobs = blobs

	stores, closeStores, err := OpenStores(ctx, cfg.Storage, a.Metrics)
	if err != nil {
		return nil, err
	}
	a.Stores = stores
	a.closers = append(a.closers, closeStores)

	if cfg.Wallet.PrivateKey != "" {
		key, err := sui.ParsePrivateKey(cfg.Wallet.PrivateKey)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("wallet key: %w", err)
		}
		a.Wallet = sui.NewLocalWallet(a.Sui, key, cfg.Sui.GasBudget)
	}

	prices, err := cfg.Prices()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Assets = assets.NewClient(a.Sui, cfg.Contracts, assets.Options{Logger: log})
	a.Market = market.NewBuilder(cfg.Contracts)

	mintOpts := mint.Options{
		Fetcher: mint.NewHTTPMetadataFetcher(nil, cfg.Mint.MetadataRetryDelay, log),
		Logger:  log,
	}
	if cfg.Mint.PersistImages {
		mintOpts.Store = blobs
	}

	opts := flow.Options{
		Oracle: oracle.NewHTTPClient(cfg.Oracle.Endpoint,
			oracle.WithTimeout(cfg.Oracle.Timeout),
			oracle.WithObserver(a.Metrics.ObserveOracle),
		),
		Prices:    prices,
		Vault:     cfg.Vault,
		Submitter: jobs.NewSubmitter(a.Jobs, blobs, log),
		Results:   a.Jobs,
		Sources:   Sources(a.Jobs, cfg.Fal, log),
		Assets:    a.Assets,
		Minter:    mint.NewBuilder(cfg.Contracts, mintOpts),
		Market:    a.Market,
		Kiosks:    a.Assets,
		Handles:   stores.Handles,
		Events:    stores.Events,
		Metrics:   a.Metrics,
		Logger:    log,
	}
	if cfg.Mint.PersistImages {
		opts.Images = mint.NewImagePersister(blobs, nil)
	}
	if cfg.Pricing.SurchargeMist > 0 {
		opts.Calculator = pricing.NewCalculator(cfg.Pricing.SurchargeMist)
	}
	// A nil *LocalWallet must stay a nil interface.
	if a.Wallet != nil {
		opts.Wallet = a.Wallet
	}
	a.Flow = flow.New(opts)

	return a, nil
}

// Close releases store connections.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// RequireWallet fails when no signing key is configured.
func (a *App) RequireWallet() (*sui.LocalWallet, error) {
	if a.Wallet == nil {
		return nil, fmt.Errorf("%w: set wallet.private_key or %sWALLET__PRIVATE_KEY", flow.ErrNoWallet, config.EnvPrefix)
	}
	return a.Wallet, nil
}

// Sources returns the status feed factory: a pushed stream when enabled,
// polling otherwise.
func Sources(client *jobs.Client, cfg config.FalConfig, log logging.Logger) flow.SourceFactory {
	return func(appID string) tracker.Source {
		if cfg.Stream {
			return tracker.NewStreamSource(client, appID)
		}
		return tracker.NewPollingSource(client, appID, tracker.PollingOptions{
			Interval:    cfg.PollInterval,
			MaxFailures: cfg.MaxFailures,
			Logger:      log,
		})
	}
}

// NewBlobStore selects the upload store.
func NewBlobStore(ctx context.Context, cfg config.BlobConfig) (blobstore.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return blobstore.NewMemoryStore(cfg.MemoryBaseURL), nil
	case config.BackendExternal:
		store, err := blobstore.NewS3Store(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, errors.New("unknown blob backend " + cfg.Backend)
}
