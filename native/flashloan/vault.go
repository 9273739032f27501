package flashloan

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// mintShares converts the deposit into shares at the vault's current exchange
// rate, moves the underlying into custody and updates the share ledger.
func (e *Engine) mintShares(vault *Vault, depositor common.Address, amount *big.Int) (*big.Int, error) {
	shares := sharesForDeposit(amount, vault.ExchangeRate)
	if err := e.state.Transfer(vault.Asset, depositor, vault.Address, amount); err != nil {
		return nil, err
	}
	holding, err := e.state.GetShares(vault.Asset, depositor)
	if err != nil {
		return nil, err
	}
	if holding == nil {
		holding = big.NewInt(0)
	}
	holding = new(big.Int).Add(holding, shares)
	if err := e.state.PutShares(vault.Asset, depositor, holding); err != nil {
		return nil, err
	}
	vault.TotalShares = new(big.Int).Add(vault.TotalShares, shares)
	if err := e.state.PutVault(vault.Asset, vault); err != nil {
		return nil, err
	}
	return new(big.Int).Set(shares), nil
}

// burnShares resolves the requested share amount (MaxRedeem means the whole
// holding), burns it and transfers the corresponding underlying out of
// custody. Returns the burned share amount and the underlying paid out.
func (e *Engine) burnShares(vault *Vault, holder common.Address, shareAmount *big.Int) (*big.Int, *big.Int, error) {
	holding, err := e.state.GetShares(vault.Asset, holder)
	if err != nil {
		return nil, nil, err
	}
	if holding == nil {
		holding = big.NewInt(0)
	}
	if shareAmount != nil && shareAmount.Cmp(MaxRedeem) == 0 {
		shareAmount = holding
	}
	if shareAmount == nil || shareAmount.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	if holding.Cmp(shareAmount) < 0 {
		return nil, nil, ErrInsufficientShares
	}

	underlying := underlyingForShares(shareAmount, vault.ExchangeRate)
	if err := e.state.Transfer(vault.Asset, vault.Address, holder, underlying); err != nil {
		return nil, nil, err
	}

	holding = new(big.Int).Sub(holding, shareAmount)
	if err := e.state.PutShares(vault.Asset, holder, holding); err != nil {
		return nil, nil, err
	}
	vault.TotalShares = new(big.Int).Sub(vault.TotalShares, shareAmount)
	if err := e.state.PutVault(vault.Asset, vault); err != nil {
		return nil, nil, err
	}
	return new(big.Int).Set(shareAmount), underlying, nil
}

// payOut moves amount of underlying out of the vault's custody without any
// invariant checks; the borrow sequence is responsible for verifying the
// balance before and after.
func (e *Engine) payOut(vault *Vault, to common.Address, amount *big.Int) error {
	return e.state.Transfer(vault.Asset, vault.Address, to, amount)
}

// vaultBalance reads the vault's custody balance live from the token ledger.
// It is never cached: external transfers must be visible immediately.
func (e *Engine) vaultBalance(vault *Vault) (*big.Int, error) {
	return e.state.BalanceOf(vault.Asset, vault.Address)
}

// VaultBalance returns the underlying currently held in the asset's vault
// custody.
func (e *Engine) VaultBalance(asset string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	vault, err := e.allowedVault(NormaliseAsset(asset))
	if err != nil {
		return nil, err
	}
	return e.vaultBalance(vault)
}

// ShareBalance returns the holder's share balance for an asset. The record
// survives de-listing, so orphaned holders can still be inspected.
func (e *Engine) ShareBalance(asset string, holder common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	holding, err := e.state.GetShares(NormaliseAsset(asset), holder)
	if err != nil {
		return nil, err
	}
	if holding == nil {
		return big.NewInt(0), nil
	}
	return holding, nil
}
