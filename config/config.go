package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// TokenConfig declares an asset to allow-list at startup together with its
// posted oracle price (1e18-scaled reference units) and the genesis balances
// credited on the token ledger the first time the asset is listed.
type TokenConfig struct {
	Symbol   string          `toml:"Symbol"`
	Price    string          `toml:"Price"`
	Balances []BalanceConfig `toml:"Balances"`
}

// BalanceConfig funds one address with an initial token balance. Without at
// least one funded depositor the vault has no liquidity path: the token
// ledger stands in for the external asset ledger and nothing else mints.
type BalanceConfig struct {
	Address string `toml:"Address"`
	Amount  string `toml:"Amount"`
}

type Config struct {
	RPCAddress       string        `toml:"RPCAddress"`
	DataDir          string        `toml:"DataDir"`
	StorageBackend   string        `toml:"StorageBackend"`
	Owner            string        `toml:"Owner"`
	FlashLoanFeeRate string        `toml:"FlashLoanFeeRate"`
	LogFile          string        `toml:"LogFile"`
	AllowedTokens    []TokenConfig `toml:"AllowedTokens"`
}

const (
	defaultRPCAddress = "127.0.0.1:8645"
	defaultDataDir    = "./flashvault-data"
	defaultBackend    = "leveldb"
	// 0.3% of a 1e18-scaled reference valuation.
	defaultFeeRate = "3000000000000000"
)

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = defaultRPCAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = defaultDataDir
	}
	if strings.TrimSpace(cfg.StorageBackend) == "" {
		cfg.StorageBackend = defaultBackend
	}
	if strings.TrimSpace(cfg.FlashLoanFeeRate) == "" {
		cfg.FlashLoanFeeRate = defaultFeeRate
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects malformed addresses, unknown backends and out-of-range fee
// rates before the daemon wires anything up.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.StorageBackend)) {
	case "leveldb", "bolt", "memory":
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.StorageBackend)
	}
	if strings.TrimSpace(c.Owner) != "" && !common.IsHexAddress(c.Owner) {
		return fmt.Errorf("config: owner %q is not a hex address", c.Owner)
	}
	rate, err := c.FeeRate()
	if err != nil {
		return err
	}
	limit, _ := new(big.Int).SetString("1000000000000000000", 10)
	if rate.Cmp(limit) > 0 {
		return fmt.Errorf("config: flash loan fee rate %s exceeds precision", rate)
	}
	if len(c.AllowedTokens) > 0 && strings.TrimSpace(c.Owner) == "" {
		return fmt.Errorf("config: owner address required when allowed tokens are configured")
	}
	for _, tok := range c.AllowedTokens {
		if strings.TrimSpace(tok.Symbol) == "" {
			return fmt.Errorf("config: allowed token with empty symbol")
		}
		if _, err := tok.PriceWei(); err != nil {
			return err
		}
		for _, bal := range tok.Balances {
			if !common.IsHexAddress(bal.Address) {
				return fmt.Errorf("config: balance address %q for token %s is not a hex address", bal.Address, tok.Symbol)
			}
			if _, err := bal.AmountWei(); err != nil {
				return err
			}
		}
	}
	return nil
}

// OwnerAddress parses the configured owner. A zero address means ownership
// was not configured.
func (c *Config) OwnerAddress() common.Address {
	if !common.IsHexAddress(c.Owner) {
		return common.Address{}
	}
	return common.HexToAddress(c.Owner)
}

// FeeRate parses the configured flash-loan fee rate in wei.
func (c *Config) FeeRate() (*big.Int, error) {
	raw := strings.TrimSpace(c.FlashLoanFeeRate)
	rate, ok := new(big.Int).SetString(raw, 10)
	if !ok || rate.Sign() < 0 {
		return nil, fmt.Errorf("config: invalid flash loan fee rate %q", c.FlashLoanFeeRate)
	}
	return rate, nil
}

// PriceWei parses the token's posted oracle price in wei.
func (t TokenConfig) PriceWei() (*big.Int, error) {
	price, ok := new(big.Int).SetString(strings.TrimSpace(t.Price), 10)
	if !ok || price.Sign() <= 0 {
		return nil, fmt.Errorf("config: invalid price %q for token %s", t.Price, t.Symbol)
	}
	return price, nil
}

// AddressParsed returns the funded address.
func (b BalanceConfig) AddressParsed() common.Address {
	return common.HexToAddress(b.Address)
}

// AmountWei parses the genesis balance in wei.
func (b BalanceConfig) AmountWei() (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(b.Amount), 10)
	if !ok || amount.Sign() <= 0 {
		return nil, fmt.Errorf("config: invalid balance %q for address %s", b.Amount, b.Address)
	}
	return amount, nil
}
