package flashloan

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Vault captures the custody and share accounting state for a single
// allow-listed asset. Amounts are wei-denominated big integers; the exchange
// rate is 1e18 scaled and only ever increases over the vault's lifetime.
type Vault struct {
	// Asset is the symbol of the underlying token the vault custodies.
	Asset string
	// Address is the deterministic custody account the vault holds its
	// underlying liquidity on within the token ledger.
	Address common.Address
	// TotalShares is the sum of all outstanding share holdings against this
	// vault.
	TotalShares *big.Int
	// ExchangeRate converts shares to underlying units. Fees accrue to
	// holders by ratcheting this value upward; it never decreases.
	ExchangeRate *big.Int
}

// Clone returns a deep copy so callers cannot mutate shared vault state.
func (v *Vault) Clone() *Vault {
	if v == nil {
		return nil
	}
	clone := &Vault{Asset: v.Asset, Address: v.Address}
	if v.TotalShares != nil {
		clone.TotalShares = new(big.Int).Set(v.TotalShares)
	}
	if v.ExchangeRate != nil {
		clone.ExchangeRate = new(big.Int).Set(v.ExchangeRate)
	}
	return clone
}

func (v *Vault) normalise() {
	if v.TotalShares == nil {
		v.TotalShares = big.NewInt(0)
	}
	if v.ExchangeRate == nil || v.ExchangeRate.Sign() == 0 {
		v.ExchangeRate = new(big.Int).Set(ratePrecision)
	}
}

// VaultAddress derives the custody address for an asset's vault. The
// derivation is deterministic so the address survives restarts without being
// stored anywhere else.
func VaultAddress(asset string) common.Address {
	normalised := NormaliseAsset(asset)
	digest := ethcrypto.Keccak256([]byte("flashvault/vault/" + normalised))
	return common.BytesToAddress(digest[12:])
}

// NormaliseAsset canonicalises an asset symbol for use as a registry key.
func NormaliseAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

// BorrowerCallback is implemented by flash-loan recipients. ExecuteOperation
// runs synchronously inside FlashBorrow after the borrowed funds have been
// credited to Address; any returned error aborts the whole loan.
//
// The callback runs while the engine's operation lock is held. It may call
// Repay and the read accessors, and mutating calls for the borrowed asset
// are rejected with ErrAssetBusy, but it must not call Deposit, Redeem or
// FlashBorrow for any other asset either: those block on the same lock and
// the call would never return.
type BorrowerCallback interface {
	// Address is the token-ledger account the borrowed funds are paid to and
	// repayment is expected from.
	Address() common.Address
	// ExecuteOperation receives the borrowed amount plus the fee owed and the
	// opaque params supplied by the initiator. The vault must hold its
	// starting balance plus fee by the time this returns.
	ExecuteOperation(asset string, amount, fee *big.Int, initiator common.Address, params []byte) error
}

// PriceOracle quotes asset prices in the reference unit, 1e18 scaled. It is
// queried exactly once per fee calculation.
type PriceOracle interface {
	PriceOf(asset string) (*big.Int, error)
}
