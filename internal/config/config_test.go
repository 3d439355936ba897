package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imaigine-lab/internal/contracts"
	"imaigine-lab/internal/domain"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, Testnet, cfg.Network)
	assert.Equal(t, "https://fullnode.testnet.sui.io:443", cfg.Sui.RPCURL)
	assert.Equal(t, "wss://fullnode.testnet.sui.io:443", cfg.Sui.WSURL)
	assert.Equal(t, contracts.Testnet(), cfg.Contracts)
	assert.Equal(t, 2*time.Second, cfg.Fal.PollInterval)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)

	prices, err := cfg.Prices()
	require.NoError(t, err)
	assert.True(t, prices.FineTuneUSD.Equal(decimal.NewFromInt(5)))
	assert.True(t, prices.FeePercent.Equal(decimal.NewFromInt(5)))
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
network: mainnet
fal:
  key: from-file
  poll_interval: 5s
pricing:
  fee_percent: "7.5"
storage:
  backend: external
  postgres_dsn: postgres://file
  clickhouse_dsn: clickhouse://file
`)
	t.Setenv("IMAIGINE_FAL__KEY", "from-env")
	t.Setenv("IMAIGINE_STORAGE__POSTGRES_DSN", "postgres://env")
	t.Setenv("IMAIGINE_FAL__MAX_FAILURES", "9")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, Mainnet, cfg.Network)
	assert.Equal(t, "https://fullnode.mainnet.sui.io:443", cfg.Sui.RPCURL)
	assert.Equal(t, "from-env", cfg.Fal.Key)
	assert.Equal(t, 5*time.Second, cfg.Fal.PollInterval)
	assert.Equal(t, 9, cfg.Fal.MaxFailures)
	assert.Equal(t, "postgres://env", cfg.Storage.PostgresDSN)
	assert.Equal(t, "clickhouse://file", cfg.Storage.ClickhouseDSN)

	prices, err := cfg.Prices()
	require.NoError(t, err)
	assert.Equal(t, "7.5", prices.FeePercent.String())
}

func TestLoad_ExplicitEndpointWins(t *testing.T) {
	t.Setenv("IMAIGINE_SUI__RPC_URL", "http://localhost:9000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000", cfg.Sui.RPCURL)
	assert.Equal(t, "wss://fullnode.testnet.sui.io:443", cfg.Sui.WSURL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown network", func(c *Config) { c.Network = "devnet" }},
		{"bad vault", func(c *Config) { c.Vault = "vault" }},
		{"bad price", func(c *Config) { c.Pricing.FineTuneUSD = "five" }},
		{"negative price", func(c *Config) { c.Pricing.GeneratePerMegapixel = "-1" }},
		{"fee above 100", func(c *Config) { c.Pricing.FeePercent = "101" }},
		{"bad package", func(c *Config) { c.Contracts.Platform = "" }},
		{"zero poll", func(c *Config) { c.Fal.PollInterval = 0 }},
		{"external storage without dsn", func(c *Config) { c.Storage.Backend = BackendExternal }},
		{"external blobs without bucket", func(c *Config) { c.Blobs.Backend = BackendExternal }},
		{"unknown blob backend", func(c *Config) { c.Blobs.Backend = "disk" }},
		{"bad wallet key", func(c *Config) { c.Wallet.PrivateKey = "not-a-key" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.applyNetwork()
			require.NoError(t, cfg.Validate())

			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), domain.ErrInvalidInput)
		})
	}
}

func TestLoad_WalletKeyFromEnv(t *testing.T) {
	t.Setenv("IMAIGINE_WALLET__PRIVATE_KEY", strings.Repeat("11", 32))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Len(t, cfg.Wallet.PrivateKey, 64)
}

func TestValidate_JoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.Network = "devnet"
	cfg.Vault = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network")
	assert.Contains(t, err.Error(), "vault")
}
