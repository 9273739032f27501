package flashloan

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"flashvault/native/token"
	statepkg "flashvault/state"
)

// Store is the production engineState: vault and share records live in the
// journaled state manager, custody balances in the token ledger built on the
// same manager so one snapshot covers both.
type Store struct {
	state  *statepkg.Manager
	tokens *token.Ledger
}

// NewStore constructs a store bound to the given state manager.
func NewStore(manager *statepkg.Manager) *Store {
	return &Store{state: manager, tokens: token.NewLedger(manager)}
}

// Tokens exposes the underlying token ledger, primarily so the daemon can
// seed balances at genesis.
func (s *Store) Tokens() *token.Ledger {
	if s == nil {
		return nil
	}
	return s.tokens
}

type storedVault struct {
	Asset        string
	Address      common.Address
	TotalShares  *big.Int
	ExchangeRate *big.Int
}

func (s *Store) GetVault(asset string) (*Vault, error) {
	if s == nil || s.state == nil {
		return nil, errors.New("flashloan store: not initialised")
	}
	var stored storedVault
	ok, err := s.state.KVGet(vaultKey(asset), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	vault := &Vault{Asset: stored.Asset, Address: stored.Address}
	if stored.TotalShares != nil {
		vault.TotalShares = new(big.Int).Set(stored.TotalShares)
	}
	if stored.ExchangeRate != nil {
		vault.ExchangeRate = new(big.Int).Set(stored.ExchangeRate)
	}
	vault.normalise()
	return vault, nil
}

func (s *Store) PutVault(asset string, vault *Vault) error {
	if s == nil || s.state == nil {
		return errors.New("flashloan store: not initialised")
	}
	if vault == nil {
		return errors.New("flashloan store: vault must not be nil")
	}
	stored := storedVault{
		Asset:        vault.Asset,
		Address:      vault.Address,
		TotalShares:  vault.TotalShares,
		ExchangeRate: vault.ExchangeRate,
	}
	if stored.TotalShares == nil {
		stored.TotalShares = big.NewInt(0)
	}
	if stored.ExchangeRate == nil {
		stored.ExchangeRate = new(big.Int).Set(ratePrecision)
	}
	return s.state.KVPut(vaultKey(asset), stored)
}

func (s *Store) DeleteVault(asset string) error {
	if s == nil || s.state == nil {
		return errors.New("flashloan store: not initialised")
	}
	return s.state.KVDelete(vaultKey(asset))
}

type storedShares struct {
	Amount *big.Int
}

func (s *Store) GetShares(asset string, holder common.Address) (*big.Int, error) {
	if s == nil || s.state == nil {
		return nil, errors.New("flashloan store: not initialised")
	}
	var stored storedShares
	ok, err := s.state.KVGet(shareKey(asset, holder), &stored)
	if err != nil {
		return nil, err
	}
	if !ok || stored.Amount == nil {
		return nil, nil
	}
	return new(big.Int).Set(stored.Amount), nil
}

func (s *Store) PutShares(asset string, holder common.Address, amount *big.Int) error {
	if s == nil || s.state == nil {
		return errors.New("flashloan store: not initialised")
	}
	if amount == nil || amount.Sign() < 0 {
		return errors.New("flashloan store: share amount must be non-negative")
	}
	return s.state.KVPut(shareKey(asset, holder), storedShares{Amount: amount})
}

func (s *Store) BalanceOf(asset string, addr common.Address) (*big.Int, error) {
	return s.tokens.BalanceOf(asset, addr)
}

func (s *Store) Transfer(asset string, from, to common.Address, amount *big.Int) error {
	return s.tokens.Transfer(asset, from, to, amount)
}

func (s *Store) Snapshot() int { return s.state.Snapshot() }

func (s *Store) RevertToSnapshot(id int) error { return s.state.RevertToSnapshot(id) }

func (s *Store) DiscardSnapshot(id int) { s.state.DiscardSnapshot(id) }
