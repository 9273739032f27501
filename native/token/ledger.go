package token

import (
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidAmount       = errors.New("token ledger: amount must be positive")
	ErrInsufficientBalance = errors.New("token ledger: insufficient balance")
	ErrSymbolRequired      = errors.New("token ledger: symbol required")
)

// Storage abstracts the subset of state manager functionality required by the
// token ledger.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var balancePrefix = []byte("token/balance/")

type storedBalance struct {
	Amount *big.Int
}

// Ledger maintains fungible token balances per (symbol, address) pair. It
// stands in for the external asset ledger the vaults custody deposits on:
// vault balances are always read back from here rather than cached.
type Ledger struct {
	store Storage
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store Storage) *Ledger {
	return &Ledger{store: store}
}

// BalanceOf returns the current balance held by addr for the given symbol.
func (l *Ledger) BalanceOf(symbol string, addr common.Address) (*big.Int, error) {
	if l == nil || l.store == nil {
		return nil, errors.New("token ledger: not initialised")
	}
	symbol = normalise(symbol)
	if symbol == "" {
		return nil, ErrSymbolRequired
	}
	var stored storedBalance
	ok, err := l.store.KVGet(balanceKey(symbol, addr), &stored)
	if err != nil {
		return nil, err
	}
	if !ok || stored.Amount == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(stored.Amount), nil
}

// Transfer moves amount of the given symbol from one address to another.
func (l *Ledger) Transfer(symbol string, from, to common.Address, amount *big.Int) error {
	if l == nil || l.store == nil {
		return errors.New("token ledger: not initialised")
	}
	symbol = normalise(symbol)
	if symbol == "" {
		return ErrSymbolRequired
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	fromBalance, err := l.BalanceOf(symbol, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBalance, err := l.BalanceOf(symbol, to)
	if err != nil {
		return err
	}
	fromBalance = new(big.Int).Sub(fromBalance, amount)
	toBalance = new(big.Int).Add(toBalance, amount)
	if err := l.store.KVPut(balanceKey(symbol, from), storedBalance{Amount: fromBalance}); err != nil {
		return err
	}
	return l.store.KVPut(balanceKey(symbol, to), storedBalance{Amount: toBalance})
}

// Mint credits amount of the given symbol to the recipient. Callers gate
// access; the ledger itself enforces no mint authority.
func (l *Ledger) Mint(symbol string, to common.Address, amount *big.Int) error {
	if l == nil || l.store == nil {
		return errors.New("token ledger: not initialised")
	}
	symbol = normalise(symbol)
	if symbol == "" {
		return ErrSymbolRequired
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := l.BalanceOf(symbol, to)
	if err != nil {
		return err
	}
	balance = new(big.Int).Add(balance, amount)
	return l.store.KVPut(balanceKey(symbol, to), storedBalance{Amount: balance})
}

func balanceKey(symbol string, addr common.Address) []byte {
	buf := make([]byte, 0, len(balancePrefix)+len(symbol)+1+common.AddressLength)
	buf = append(buf, balancePrefix...)
	buf = append(buf, symbol...)
	buf = append(buf, ':')
	buf = append(buf, addr.Bytes()...)
	return buf
}

func normalise(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
