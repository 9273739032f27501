package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, defaultRPCAddress, cfg.RPCAddress)
	require.Equal(t, defaultBackend, cfg.StorageBackend)
	require.Equal(t, defaultFeeRate, cfg.FlashLoanFeeRate)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config file should be written")

	// A second load reads the file it just wrote.
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.RPCAddress, reloaded.RPCAddress)
}

func TestLoadParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
RPCAddress = "0.0.0.0:9000"
StorageBackend = "memory"
Owner = "0x1000000000000000000000000000000000000001"
FlashLoanFeeRate = "5000000000000000"

[[AllowedTokens]]
Symbol = "NHB"
Price = "1000000000000000000"

[[AllowedTokens.Balances]]
Address = "0x2000000000000000000000000000000000000002"
Amount = "1000000000000000000000"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.RPCAddress)
	require.Equal(t, "memory", cfg.StorageBackend)

	rate, err := cfg.FeeRate()
	require.NoError(t, err)
	require.Zero(t, rate.Cmp(big.NewInt(5e15)))

	require.Len(t, cfg.AllowedTokens, 1)
	price, err := cfg.AllowedTokens[0].PriceWei()
	require.NoError(t, err)
	require.Zero(t, price.Cmp(big.NewInt(1e18)))

	require.Len(t, cfg.AllowedTokens[0].Balances, 1)
	bal := cfg.AllowedTokens[0].Balances[0]
	require.Equal(t, "0x2000000000000000000000000000000000000002", bal.AddressParsed().Hex())
	amount, err := bal.AmountWei()
	require.NoError(t, err)
	want, _ := new(big.Int).SetString("1000000000000000000000", 10)
	require.Zero(t, amount.Cmp(want))

	owner := cfg.OwnerAddress()
	require.Equal(t, "0x1000000000000000000000000000000000000001", owner.Hex())
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	cfg := base()
	cfg.StorageBackend = "postgres"
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Owner = "not-an-address"
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.FlashLoanFeeRate = "2000000000000000000"
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.FlashLoanFeeRate = "-5"
	require.Error(t, cfg.Validate())

	owned := func() *Config {
		cfg := base()
		cfg.Owner = "0x1000000000000000000000000000000000000001"
		return cfg
	}

	// Allowed tokens require an owner to admit them at startup.
	cfg = base()
	cfg.AllowedTokens = []TokenConfig{{Symbol: "NHB", Price: "1000000000000000000"}}
	require.Error(t, cfg.Validate())

	cfg = owned()
	cfg.AllowedTokens = []TokenConfig{{Symbol: "", Price: "1"}}
	require.Error(t, cfg.Validate())

	cfg = owned()
	cfg.AllowedTokens = []TokenConfig{{Symbol: "NHB", Price: "zero"}}
	require.Error(t, cfg.Validate())

	cfg = owned()
	cfg.AllowedTokens = []TokenConfig{{
		Symbol:   "NHB",
		Price:    "1000000000000000000",
		Balances: []BalanceConfig{{Address: "not-hex", Amount: "1"}},
	}}
	require.Error(t, cfg.Validate())

	cfg = owned()
	cfg.AllowedTokens = []TokenConfig{{
		Symbol:   "NHB",
		Price:    "1000000000000000000",
		Balances: []BalanceConfig{{Address: "0x2000000000000000000000000000000000000002", Amount: "0"}},
	}}
	require.Error(t, cfg.Validate())

	cfg = owned()
	cfg.AllowedTokens = []TokenConfig{{
		Symbol:   "NHB",
		Price:    "1000000000000000000",
		Balances: []BalanceConfig{{Address: "0x2000000000000000000000000000000000000002", Amount: "1000"}},
	}}
	require.NoError(t, cfg.Validate())
}

func TestOwnerAddressZeroWhenUnset(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	require.Equal(t, "0x0000000000000000000000000000000000000000", cfg.OwnerAddress().Hex())
}
