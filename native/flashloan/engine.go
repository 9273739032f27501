package flashloan

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"flashvault/core/events"
	nativecommon "flashvault/native/common"
)

const moduleName = "flashloan"

// engineState abstracts the persistence layer the engine mutates. Writes are
// journaled by the implementation: Snapshot marks a point the engine can
// revert every subsequent write to, which is how a failed borrow sequence
// unwinds as a single unit.
type engineState interface {
	GetVault(asset string) (*Vault, error)
	PutVault(asset string, vault *Vault) error
	DeleteVault(asset string) error
	GetShares(asset string, holder common.Address) (*big.Int, error)
	PutShares(asset string, holder common.Address, amount *big.Int) error
	BalanceOf(asset string, addr common.Address) (*big.Int, error)
	Transfer(asset string, from, to common.Address, amount *big.Int) error
	Snapshot() int
	RevertToSnapshot(id int) error
	DiscardSnapshot(id int)
}

// Engine orchestrates deposits, redemptions and flash borrows across the
// per-asset vaults. All mutating operations serialize behind a single
// operation lock; the per-asset loan flag is the reentrancy guard for the
// callback window, during which the lock stays held by the borrow.
type Engine struct {
	state   engineState
	fees    *FeeCalculator
	owner   common.Address
	emitter events.Emitter
	pauses  nativecommon.PauseView

	// opMu serializes mutating operations, including the whole borrow
	// sequence. Repay deliberately does not take it: it only runs inside a
	// borrower callback, under the exclusion the enclosing borrow holds.
	opMu sync.Mutex

	loanMu sync.Mutex
	loans  map[string]bool
}

// NewEngine constructs an engine owned by the given administrative address.
func NewEngine(owner common.Address, fees *FeeCalculator) *Engine {
	return &Engine{
		owner:   owner,
		fees:    fees,
		emitter: events.NoopEmitter{},
		loans:   make(map[string]bool),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter wires the engine to an event sink. A nil emitter restores the
// discarding default.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// Owner returns the administrative address allowed to mutate the registry and
// fee parameters.
func (e *Engine) Owner() common.Address {
	if e == nil {
		return common.Address{}
	}
	return e.owner
}

// isOwner refuses the zero address outright: an engine constructed without an
// owner has no administrative surface rather than an open one.
func (e *Engine) isOwner(caller common.Address) bool {
	return caller != (common.Address{}) && caller == e.owner
}

// Deposit moves amount of the underlying asset from the depositor into the
// vault's custody and mints shares at the current exchange rate. The minted
// share amount is returned.
func (e *Engine) Deposit(depositor common.Address, asset string, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	asset = NormaliseAsset(asset)
	if e.IsCurrentlyFlashLoaning(asset) {
		return nil, ErrAssetBusy
	}
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	vault, err := e.allowedVault(asset)
	if err != nil {
		return nil, err
	}

	snapshot := e.state.Snapshot()
	shares, err := e.mintShares(vault, depositor, amount)
	if err != nil {
		e.state.RevertToSnapshot(snapshot)
		return nil, err
	}
	e.state.DiscardSnapshot(snapshot)

	e.emitter.Emit(DepositMade{Asset: asset, Depositor: depositor, Amount: new(big.Int).Set(amount), Shares: shares})
	return shares, nil
}

// Redeem burns the holder's shares and pays out the corresponding underlying
// at the current exchange rate. Passing MaxRedeem burns the holder's entire
// share balance. The redeemed underlying amount is returned.
func (e *Engine) Redeem(holder common.Address, asset string, shareAmount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	asset = NormaliseAsset(asset)
	if e.IsCurrentlyFlashLoaning(asset) {
		return nil, ErrAssetBusy
	}
	e.opMu.Lock()
	defer e.opMu.Unlock()

	vault, err := e.allowedVault(asset)
	if err != nil {
		return nil, err
	}

	snapshot := e.state.Snapshot()
	burned, underlying, err := e.burnShares(vault, holder, shareAmount)
	if err != nil {
		e.state.RevertToSnapshot(snapshot)
		return nil, err
	}
	e.state.DiscardSnapshot(snapshot)

	e.emitter.Emit(SharesRedeemed{Asset: asset, Holder: holder, Shares: burned, Underlying: underlying})
	return underlying, nil
}

// FlashBorrow lends amount of the asset's custody to the receiver for the
// duration of the call. The fee accrues to the vault's exchange rate before
// funds leave custody; the receiver's callback runs synchronously and must
// leave the vault holding its starting balance plus the fee. Any failure at
// any step unwinds every state effect as if the call never happened. The fee
// charged is returned on success.
func (e *Engine) FlashBorrow(initiator common.Address, receiver BorrowerCallback, asset string, amount *big.Int, params []byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	asset = NormaliseAsset(asset)
	if receiver == nil || receiver.Address() == (common.Address{}) {
		return nil, ErrNotCallable
	}
	if e.IsCurrentlyFlashLoaning(asset) {
		return nil, ErrAssetBusy
	}
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	vault, err := e.allowedVault(asset)
	if err != nil {
		return nil, err
	}
	startingBalance, err := e.vaultBalance(vault)
	if err != nil {
		return nil, err
	}
	if startingBalance.Cmp(amount) < 0 {
		return nil, ErrInsufficientLiquidity
	}
	fee, err := e.fees.CalculateFee(asset, amount)
	if err != nil {
		return nil, err
	}

	snapshot := e.state.Snapshot()
	fail := func(cause error) (*big.Int, error) {
		e.clearLoan(asset)
		if revertErr := e.state.RevertToSnapshot(snapshot); revertErr != nil {
			return nil, fmt.Errorf("%w (revert failed: %v)", cause, revertErr)
		}
		return nil, cause
	}

	// The fee commits to the exchange rate before custody moves. A later
	// failure discards it together with everything else via the snapshot.
	if err := e.applyLoanFee(vault, fee); err != nil {
		return fail(err)
	}
	if err := e.setLoanActive(asset); err != nil {
		return fail(err)
	}

	loanID := uuid.NewString()
	e.emitter.Emit(LoanInitiated{
		LoanID:    loanID,
		Asset:     asset,
		Initiator: initiator,
		Receiver:  receiver.Address(),
		Amount:    new(big.Int).Set(amount),
		Fee:       new(big.Int).Set(fee),
	})

	if err := e.payOut(vault, receiver.Address(), amount); err != nil {
		return fail(err)
	}
	if err := receiver.ExecuteOperation(asset, amount, new(big.Int).Set(fee), initiator, params); err != nil {
		return fail(fmt.Errorf("flashloan engine: borrower callback: %w", err))
	}

	// Re-read custody from the token ledger; cached balances could miss
	// direct transfers the callback made.
	endingBalance, err := e.vaultBalance(vault)
	if err != nil {
		return fail(err)
	}
	required := new(big.Int).Add(startingBalance, fee)
	if endingBalance.Cmp(required) < 0 {
		return fail(&RepaymentShortfallError{Expected: required, Actual: endingBalance})
	}

	e.clearLoan(asset)
	e.state.DiscardSnapshot(snapshot)

	e.emitter.Emit(LoanExecuted{
		LoanID:   loanID,
		Asset:    asset,
		Receiver: receiver.Address(),
		Amount:   new(big.Int).Set(amount),
		Fee:      new(big.Int).Set(fee),
	})
	return fee, nil
}

// Repay moves amount from the caller back into the asset's vault custody. It
// is the convenience path a borrower callback may use instead of a direct
// token transfer and is valid only while that asset's flash loan is in
// flight. It does not settle the loan; only the balance check at the end of
// FlashBorrow does.
func (e *Engine) Repay(from common.Address, asset string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	asset = NormaliseAsset(asset)
	if !e.IsCurrentlyFlashLoaning(asset) {
		return ErrNotCurrentlyLoaning
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	vault, err := e.allowedVault(asset)
	if err != nil {
		return err
	}
	return e.state.Transfer(vault.Asset, from, vault.Address, amount)
}

// CalculatedFee quotes the fee a borrow of amount would incur right now.
func (e *Engine) CalculatedFee(asset string, amount *big.Int) (*big.Int, error) {
	if e == nil || e.fees == nil {
		return nil, errNilState
	}
	return e.fees.CalculateFee(NormaliseAsset(asset), amount)
}

// FeeRate returns the current flash-loan fee rate.
func (e *Engine) FeeRate() *big.Int {
	return e.fees.Rate()
}

// FeePrecision returns the fixed-point scale shared by the fee rate and
// oracle prices.
func (e *Engine) FeePrecision() *big.Int {
	return e.fees.Precision()
}

// SetFeeRate replaces the flash-loan fee rate. Owner only.
func (e *Engine) SetFeeRate(caller common.Address, rate *big.Int) error {
	if e == nil || e.fees == nil {
		return errNilState
	}
	if !e.isOwner(caller) {
		return ErrUnauthorized
	}
	oldRate := e.fees.Rate()
	if err := e.fees.SetRate(rate); err != nil {
		return err
	}
	e.emitter.Emit(FeeRateUpdated{OldRate: oldRate, NewRate: new(big.Int).Set(rate), Actor: caller})
	return nil
}

// IsCurrentlyFlashLoaning reports whether the asset has a borrow in flight.
func (e *Engine) IsCurrentlyFlashLoaning(asset string) bool {
	if e == nil {
		return false
	}
	e.loanMu.Lock()
	defer e.loanMu.Unlock()
	return e.loans[NormaliseAsset(asset)]
}

func (e *Engine) setLoanActive(asset string) error {
	e.loanMu.Lock()
	defer e.loanMu.Unlock()
	if e.loans[asset] {
		return ErrAssetBusy
	}
	e.loans[asset] = true
	return nil
}

func (e *Engine) clearLoan(asset string) {
	e.loanMu.Lock()
	defer e.loanMu.Unlock()
	delete(e.loans, asset)
}

func (e *Engine) allowedVault(asset string) (*Vault, error) {
	vault, err := e.state.GetVault(asset)
	if err != nil {
		return nil, err
	}
	if vault == nil {
		return nil, ErrNotAllowed
	}
	vault.normalise()
	return vault, nil
}
