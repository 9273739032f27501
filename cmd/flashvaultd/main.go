package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"flashvault/config"
	"flashvault/native/flashloan"
	"flashvault/native/token"
	"flashvault/observability/logging"
	"flashvault/rpc"
	"flashvault/state"
	"flashvault/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup("flashvaultd", cfg.LogFile)

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Error("failed to open database", "backend", cfg.StorageBackend, "err", err)
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)
	store := flashloan.NewStore(manager)

	oracle := flashloan.NewManualOracle()
	feeRate, err := cfg.FeeRate()
	if err != nil {
		logger.Error("invalid fee rate", "err", err)
		os.Exit(1)
	}
	fees, err := flashloan.NewFeeCalculator(oracle, feeRate)
	if err != nil {
		logger.Error("failed to construct fee calculator", "err", err)
		os.Exit(1)
	}

	owner := cfg.OwnerAddress()
	engine := flashloan.NewEngine(owner, fees)
	engine.SetState(store)

	hub := rpc.NewEventHub(logger)
	engine.SetEmitter(hub)

	if err := seedAllowedTokens(cfg, engine, oracle, store.Tokens()); err != nil {
		logger.Error("failed to seed allowed tokens", "err", err)
		os.Exit(1)
	}

	server := rpc.NewServer(engine, hub, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.RPCAddress)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		logger.Error("rpc server stopped", "err", err)
		os.Exit(1)
	}
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StorageBackend)) {
	case "leveldb":
		return storage.NewLevelDB(filepath.Join(cfg.DataDir, "vaults"))
	case "bolt":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		return storage.NewBoltDB(filepath.Join(cfg.DataDir, "vaults.db"))
	case "memory":
		return storage.NewMemDB(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// seedAllowedTokens posts configured oracle prices and admits each configured
// asset. Genesis balances are minted only when the asset is listed for the
// first time, so a restart does not credit depositors twice; assets already
// present from a previous run are otherwise left untouched.
func seedAllowedTokens(cfg *config.Config, engine *flashloan.Engine, oracle *flashloan.ManualOracle, tokens *token.Ledger) error {
	owner := engine.Owner()
	for _, tok := range cfg.AllowedTokens {
		price, err := tok.PriceWei()
		if err != nil {
			return err
		}
		oracle.SetPrice(tok.Symbol, price)

		allowed, err := engine.IsAllowedToken(tok.Symbol)
		if err != nil {
			return err
		}
		if allowed {
			continue
		}
		if _, err := engine.SetAllowedToken(owner, tok.Symbol, true); err != nil &&
			!errors.Is(err, flashloan.ErrAlreadyAllowed) {
			return err
		}
		for _, bal := range tok.Balances {
			amount, err := bal.AmountWei()
			if err != nil {
				return err
			}
			if err := tokens.Mint(tok.Symbol, bal.AddressParsed(), amount); err != nil {
				return err
			}
		}
	}
	return nil
}
