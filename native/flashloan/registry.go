package flashloan

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SetAllowedToken admits an asset into the system or removes it. Enabling
// creates and registers a fresh vault; disabling deletes the registry entry
// and returns the prior vault handle. Outstanding shares are deliberately not
// burned or migrated on removal: holders keep their share records but lose
// the redemption path until the asset is listed again. Owner only.
func (e *Engine) SetAllowedToken(caller common.Address, asset string, allowed bool) (*Vault, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if !e.isOwner(caller) {
		return nil, ErrUnauthorized
	}
	asset = NormaliseAsset(asset)
	if asset == "" {
		return nil, ErrUnknownAsset
	}
	e.opMu.Lock()
	defer e.opMu.Unlock()

	existing, err := e.state.GetVault(asset)
	if err != nil {
		return nil, err
	}

	if allowed {
		if existing != nil {
			return nil, ErrAlreadyAllowed
		}
		vault := &Vault{
			Asset:        asset,
			Address:      VaultAddress(asset),
			TotalShares:  big.NewInt(0),
			ExchangeRate: new(big.Int).Set(ratePrecision),
		}
		if err := e.state.PutVault(asset, vault); err != nil {
			return nil, err
		}
		e.emitter.Emit(AllowListUpdated{Asset: asset, Allowed: true, Actor: caller})
		return vault.Clone(), nil
	}

	if existing == nil {
		return nil, ErrUnknownAsset
	}
	if err := e.state.DeleteVault(asset); err != nil {
		return nil, err
	}
	e.emitter.Emit(AllowListUpdated{Asset: asset, Allowed: false, Actor: caller})
	existing.normalise()
	return existing, nil
}

// IsAllowedToken reports whether the asset is currently allow-listed.
// Registry membership is the allow-list predicate: a vault record exists if
// and only if the asset is admitted.
func (e *Engine) IsAllowedToken(asset string) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	vault, err := e.state.GetVault(NormaliseAsset(asset))
	if err != nil {
		return false, err
	}
	return vault != nil, nil
}

// VaultFor returns the vault registered for the asset.
func (e *Engine) VaultFor(asset string) (*Vault, error) {
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
	return vault, nil
}
