// Package config loads service configuration from defaults, an optional
// yaml file and IMAIGINE_ environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"

	"imaigine-lab/internal/blobstore"
	"imaigine-lab/internal/contracts"
	"imaigine-lab/internal/domain"
	"imaigine-lab/internal/jobs"
	"imaigine-lab/internal/oracle"
	"imaigine-lab/internal/pricing"
	"imaigine-lab/internal/ptb"
	"imaigine-lab/internal/sui"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates nesting levels: IMAIGINE_SUI__RPC_URL sets sui.rpc_url.
const EnvPrefix = "IMAIGINE_"

// Network names.
const (
	Testnet = "testnet"
	Mainnet = "mainnet"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendExternal = "external"
)

// Config is the full service configuration.
type Config struct {
	Network   string            `koanf:"network"`
	Sui       SuiConfig         `koanf:"sui"`
	Contracts contracts.Package `koanf:"contracts"`
	Vault     string            `koanf:"vault"`
	Wallet    WalletConfig      `koanf:"wallet"`
	Pricing   PricingConfig     `koanf:"pricing"`
	Oracle    OracleConfig      `koanf:"oracle"`
	Fal       FalConfig         `koanf:"fal"`
	Mint      MintConfig        `koanf:"mint"`
	Blobs     BlobConfig        `koanf:"blobs"`
	Storage   StorageConfig     `koanf:"storage"`
	Server    ServerConfig      `koanf:"server"`
	Log       LogConfig         `koanf:"log"`
}

// SuiConfig selects the fullnode endpoints.
type SuiConfig struct {
	RPCURL     string        `koanf:"rpc_url"`
	WSURL      string        `koanf:"ws_url"`
	Timeout    time.Duration `koanf:"timeout"`
	MaxRetries int           `koanf:"max_retries"`
	GasBudget  uint64        `koanf:"gas_budget"`
}

// WalletConfig holds the signing key of the local wallet. Without a key
// the paying flows are unavailable.
type WalletConfig struct {
	// PrivateKey is a hex seed or a base64 keystore entry.
	PrivateKey string `koanf:"private_key"`
}

// PricingConfig holds prices as decimal strings.
type PricingConfig struct {
	FineTuneUSD          string `koanf:"fine_tune_usd"`
	GeneratePerMegapixel string `koanf:"generate_per_megapixel"`
	FeePercent           string `koanf:"fee_percent"`
	SurchargeMist        uint64 `koanf:"surcharge_mist"`
}

// OracleConfig configures the rate feed.
type OracleConfig struct {
	Endpoint string        `koanf:"endpoint"`
	Timeout  time.Duration `koanf:"timeout"`
}

// FalConfig configures the job queue.
type FalConfig struct {
	BaseURL      string        `koanf:"base_url"`
	Key          string        `koanf:"key"`
	Timeout      time.Duration `koanf:"timeout"`
	PollInterval time.Duration `koanf:"poll_interval"`
	MaxFailures  int           `koanf:"max_failures"`
	Stream       bool          `koanf:"stream"`
}

// MintConfig configures the mint builder.
type MintConfig struct {
	MetadataRetryDelay time.Duration `koanf:"metadata_retry_delay"`
	PersistImages      bool          `koanf:"persist_images"`
}

// BlobConfig selects the object store for uploads.
type BlobConfig struct {
	Backend       string             `koanf:"backend"`
	MemoryBaseURL string             `koanf:"memory_base_url"`
	S3            blobstore.S3Config `koanf:"s3"`
}

// StorageConfig selects where job handles and events are kept.
type StorageConfig struct {
	Backend       string `koanf:"backend"`
	PostgresDSN   string `koanf:"postgres_dsn"`
	ClickhouseDSN string `koanf:"clickhouse_dsn"`
	MaxConns      int32  `koanf:"max_conns"`
}

// ServerConfig configures the status API.
type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `koanf:"level"`
}

type endpoints struct {
	rpc string
	ws  string
}

var networks = map[string]endpoints{
	Testnet: {rpc: "https://fullnode.testnet.sui.io:443", ws: "wss://fullnode.testnet.sui.io:443"},
	Mainnet: {rpc: "https://fullnode.mainnet.sui.io:443", ws: "wss://fullnode.mainnet.sui.io:443"},
}

// Default returns the testnet configuration with in-memory storage.
func Default() Config {
	prices := pricing.DefaultPrices()
	return Config{
		Network: Testnet,
		Sui: SuiConfig{
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			GasBudget:  50_000_000,
		},
		Contracts: contracts.Testnet(),
		Vault:     "0x4d32276f27600b6118ba65274ceeac0faf95d12c791bce334ab5782dc6701d39",
		Pricing: PricingConfig{
			FineTuneUSD:          prices.FineTuneUSD.String(),
			GeneratePerMegapixel: prices.GeneratePerMegapixel.String(),
			FeePercent:           prices.FeePercent.String(),
			SurchargeMist:        pricing.DefaultSurcharge,
		},
		Oracle: OracleConfig{
			Endpoint: oracle.DefaultEndpoint,
			Timeout:  oracle.DefaultTimeout,
		},
		Fal: FalConfig{
			BaseURL:      jobs.DefaultBaseURL,
			Timeout:      jobs.DefaultTimeout,
			PollInterval: 2 * time.Second,
			MaxFailures:  3,
			Stream:       true,
		},
		Mint: MintConfig{
			MetadataRetryDelay: time.Second,
			PersistImages:      true,
		},
		Blobs: BlobConfig{
			Backend:       BackendMemory,
			MemoryBaseURL: "http://localhost:8080/blobs",
		},
		Storage: StorageConfig{
			Backend:  BackendMemory,
			MaxConns: 10,
		},
		Server: ServerConfig{Addr: ":8080"},
		Log:    LogConfig{Level: "info"},
	}
}

// Load reads defaults, then path if non-empty, then the environment.
// Network presets fill endpoints left empty.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyNetwork()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

func (c *Config) applyNetwork() {
	c.Network = strings.ToLower(c.Network)
	preset, ok := networks[c.Network]
	if !ok {
		return
	}
	if c.Sui.RPCURL == "" {
		c.Sui.RPCURL = preset.rpc
	}
	if c.Sui.WSURL == "" {
		c.Sui.WSURL = preset.ws
	}
}

// Validate reports every problem found, joined.
func (c Config) Validate() error {
	var errs []error
	if _, ok := networks[c.Network]; !ok {
		errs = append(errs, fmt.Errorf("network %q: want %s or %s", c.Network, Testnet, Mainnet))
	}
	if c.Sui.RPCURL == "" {
		errs = append(errs, errors.New("sui.rpc_url is required"))
	}
	if err := c.Contracts.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := ptb.ParseAddress(c.Vault); err != nil {
		errs = append(errs, fmt.Errorf("vault: %w", err))
	}
	if c.Wallet.PrivateKey != "" {
		if _, err := sui.ParsePrivateKey(c.Wallet.PrivateKey); err != nil {
			errs = append(errs, fmt.Errorf("wallet.private_key: %w", err))
		}
	}
	if _, err := c.Prices(); err != nil {
		errs = append(errs, err)
	}
	if c.Fal.BaseURL == "" {
		errs = append(errs, errors.New("fal.base_url is required"))
	}
	if c.Fal.PollInterval <= 0 {
		errs = append(errs, errors.New("fal.poll_interval must be positive"))
	}

	switch c.Blobs.Backend {
	case BackendMemory:
	case BackendExternal:
		if c.Blobs.S3.Bucket == "" {
			errs = append(errs, errors.New("blobs.s3.bucket is required for the external backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("blobs.backend %q: want %s or %s", c.Blobs.Backend, BackendMemory, BackendExternal))
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendExternal:
		if c.Storage.PostgresDSN == "" || c.Storage.ClickhouseDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn and storage.clickhouse_dsn are required for the external backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q: want %s or %s", c.Storage.Backend, BackendMemory, BackendExternal))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", domain.ErrInvalidInput, errors.Join(errs...))
}

// Prices parses the decimal price strings.
func (c Config) Prices() (pricing.Prices, error) {
	var p pricing.Prices
	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"pricing.fine_tune_usd", c.Pricing.FineTuneUSD, &p.FineTuneUSD},
		{"pricing.generate_per_megapixel", c.Pricing.GeneratePerMegapixel, &p.GeneratePerMegapixel},
		{"pricing.fee_percent", c.Pricing.FeePercent, &p.FeePercent},
	} {
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return pricing.Prices{}, fmt.Errorf("%s: %w", f.name, err)
		}
		if v.IsNegative() {
			return pricing.Prices{}, fmt.Errorf("%s: negative", f.name)
		}
		*f.dst = v
	}
	if p.FeePercent.GreaterThan(decimal.NewFromInt(100)) {
		return pricing.Prices{}, errors.New("pricing.fee_percent above 100")
	}
	return p, nil
}
