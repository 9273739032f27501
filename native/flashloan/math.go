package flashloan

import "math/big"

var (
	// ratePrecision is the fixed-point scale shared by exchange rates and
	// oracle prices (1e18).
	ratePrecision = mustBigInt("1000000000000000000")

	// feePrecision is the scale constant for the flash-loan fee rate. It is
	// fixed at initialisation and never changes afterwards.
	feePrecision = mustBigInt("1000000000000000000")

	// MaxRedeem is the sentinel share amount that resolves to the holder's
	// entire share balance when passed to Redeem.
	MaxRedeem = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// sharesForDeposit converts an underlying amount into vault shares at the
// given exchange rate. The division truncates.
func sharesForDeposit(amount, rate *big.Int) *big.Int {
	if amount == nil || amount.Sign() <= 0 || rate == nil || rate.Sign() == 0 {
		return big.NewInt(0)
	}
	scaled := new(big.Int).Mul(amount, ratePrecision)
	return scaled.Quo(scaled, rate)
}

// underlyingForShares converts vault shares back into underlying units at the
// given exchange rate. The division truncates.
func underlyingForShares(shares, rate *big.Int) *big.Int {
	if shares == nil || shares.Sign() <= 0 || rate == nil {
		return big.NewInt(0)
	}
	scaled := new(big.Int).Mul(shares, rate)
	return scaled.Quo(scaled, ratePrecision)
}

// rateAfterFee computes the exchange rate after a fee accrues to the vault:
// newRate = oldRate * (totalShares + fee) / totalShares. Callers must reject
// a zero share supply before calling; the quotient truncates.
func rateAfterFee(oldRate, totalShares, fee *big.Int) *big.Int {
	numerator := new(big.Int).Add(totalShares, fee)
	numerator.Mul(numerator, oldRate)
	return numerator.Quo(numerator, totalShares)
}

// scaledValue applies a 1e18-scaled factor to an amount, truncating. Both the
// oracle valuation and the fee rate application use this shape; the two
// divisions are kept separate deliberately so fee amounts stay reproducible.
func scaledValue(amount, factor *big.Int) *big.Int {
	if amount == nil || factor == nil {
		return big.NewInt(0)
	}
	scaled := new(big.Int).Mul(amount, factor)
	return scaled.Quo(scaled, feePrecision)
}
