package flashloan

import (
	"fmt"
	"math/big"
	"sync"
)

// ManualOracle is a PriceOracle fed by posted quotes. The daemon seeds it
// from configuration and the administrative surface may refresh quotes at
// runtime; tests use it as a deterministic price source.
type ManualOracle struct {
	mu     sync.RWMutex
	prices map[string]*big.Int
}

// NewManualOracle constructs an empty oracle.
func NewManualOracle() *ManualOracle {
	return &ManualOracle{prices: make(map[string]*big.Int)}
}

// SetPrice posts a 1e18-scaled reference-unit price for an asset. A nil or
// negative price removes the quote.
func (o *ManualOracle) SetPrice(asset string, price *big.Int) {
	if o == nil {
		return
	}
	asset = NormaliseAsset(asset)
	o.mu.Lock()
	defer o.mu.Unlock()
	if price == nil || price.Sign() < 0 {
		delete(o.prices, asset)
		return
	}
	o.prices[asset] = new(big.Int).Set(price)
}

// PriceOf implements the PriceOracle interface.
func (o *ManualOracle) PriceOf(asset string) (*big.Int, error) {
	if o == nil {
		return nil, fmt.Errorf("oracle: not initialised")
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	price, ok := o.prices[NormaliseAsset(asset)]
	if !ok {
		return nil, fmt.Errorf("oracle: no quote for asset %q", NormaliseAsset(asset))
	}
	return new(big.Int).Set(price), nil
}
