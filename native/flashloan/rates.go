package flashloan

import "math/big"

// Rate returns the current share-to-underlying exchange rate for the asset.
func (e *Engine) Rate(asset string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	vault, err := e.state.GetVault(NormaliseAsset(asset))
	if err != nil {
		return nil, err
	}
	if vault == nil {
		return nil, ErrUnknownAsset
	}
	vault.normalise()
	return new(big.Int).Set(vault.ExchangeRate), nil
}

// applyLoanFee ratchets the vault's exchange rate so the fee accrues to every
// share holder proportionally, with no per-holder disbursement. The update
// must strictly increase the rate; a zero share supply cannot absorb a fee
// and is rejected before the division.
func (e *Engine) applyLoanFee(vault *Vault, fee *big.Int) error {
	if vault.TotalShares == nil || vault.TotalShares.Sign() == 0 {
		return ErrRateMustIncrease
	}
	oldRate := new(big.Int).Set(vault.ExchangeRate)
	newRate := rateAfterFee(oldRate, vault.TotalShares, fee)
	if newRate.Cmp(oldRate) <= 0 {
		return ErrRateMustIncrease
	}
	vault.ExchangeRate = newRate
	if err := e.state.PutVault(vault.Asset, vault); err != nil {
		return err
	}
	e.emitter.Emit(RateUpdated{Asset: vault.Asset, OldRate: oldRate, NewRate: new(big.Int).Set(newRate)})
	return nil
}
