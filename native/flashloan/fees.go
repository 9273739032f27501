package flashloan

import (
	"errors"
	"math/big"
	"sync"
)

// FeeCalculator prices flash loans. The borrowed amount is first valued in
// the reference unit via the oracle quote, then the configured fee rate is
// applied. Both divisions truncate and happen in that order; the double
// division keeps fee amounts reproducible against the reference accounting.
type FeeCalculator struct {
	mu     sync.RWMutex
	oracle PriceOracle
	rate   *big.Int
}

// NewFeeCalculator constructs a calculator with the given oracle and initial
// fee rate. The rate is bounded by the fee precision constant.
func NewFeeCalculator(oracle PriceOracle, rate *big.Int) (*FeeCalculator, error) {
	if oracle == nil {
		return nil, errors.New("flashloan engine: price oracle required")
	}
	if rate == nil || rate.Sign() < 0 || rate.Cmp(feePrecision) > 0 {
		return nil, ErrInvalidFeeRate
	}
	return &FeeCalculator{oracle: oracle, rate: new(big.Int).Set(rate)}, nil
}

// CalculateFee returns the fee owed for borrowing amount of asset. The result
// is monotonic non-decreasing in amount for a fixed price and rate.
func (c *FeeCalculator) CalculateFee(asset string, amount *big.Int) (*big.Int, error) {
	if c == nil {
		return nil, errors.New("flashloan engine: fee calculator not configured")
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	price, err := c.oracle.PriceOf(NormaliseAsset(asset))
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	rate := new(big.Int).Set(c.rate)
	c.mu.RUnlock()

	valueInReferenceUnit := scaledValue(amount, price)
	return scaledValue(valueInReferenceUnit, rate), nil
}

// SetRate replaces the fee rate. Rates above the precision constant are
// rejected; zero disables fees without disabling loans.
func (c *FeeCalculator) SetRate(rate *big.Int) error {
	if c == nil {
		return errors.New("flashloan engine: fee calculator not configured")
	}
	if rate == nil || rate.Sign() < 0 || rate.Cmp(feePrecision) > 0 {
		return ErrInvalidFeeRate
	}
	c.mu.Lock()
	c.rate = new(big.Int).Set(rate)
	c.mu.Unlock()
	return nil
}

// Rate returns the current fee rate.
func (c *FeeCalculator) Rate() *big.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return new(big.Int).Set(c.rate)
}

// Precision returns the fixed fee precision constant.
func (c *FeeCalculator) Precision() *big.Int {
	return new(big.Int).Set(feePrecision)
}
