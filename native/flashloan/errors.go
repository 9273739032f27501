package flashloan

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// Precondition failures, rejected before any state change.
	ErrInvalidAmount  = errors.New("flashloan engine: amount must be positive")
	ErrUnknownAsset   = errors.New("flashloan engine: unknown asset")
	ErrNotAllowed     = errors.New("flashloan engine: token not allowed")
	ErrAlreadyAllowed = errors.New("flashloan engine: token already allowed")
	ErrInvalidFeeRate = errors.New("flashloan engine: fee rate exceeds precision")
	ErrNotCallable    = errors.New("flashloan engine: borrower is not callable")

	// Invariant violations, fatal for the call.
	ErrRateMustIncrease = errors.New("flashloan engine: exchange rate must increase")

	// Liquidity failures.
	ErrInsufficientLiquidity = errors.New("flashloan engine: insufficient liquidity")
	ErrInsufficientShares    = errors.New("flashloan engine: insufficient share balance")
	ErrRepaymentShortfall    = errors.New("flashloan engine: repayment shortfall")

	// Authorization.
	ErrUnauthorized = errors.New("flashloan engine: caller is not the owner")

	// Loan-state guard.
	ErrAssetBusy           = errors.New("flashloan engine: asset has a flash loan in flight")
	ErrNotCurrentlyLoaning = errors.New("flashloan engine: no flash loan in flight for asset")

	errNilState = errors.New("flashloan engine: state not configured")
)

// RepaymentShortfallError reports how much the vault was still owed when a
// flash borrow's post-callback balance check failed. It unwraps to
// ErrRepaymentShortfall for errors.Is matching.
type RepaymentShortfallError struct {
	Expected *big.Int
	Actual   *big.Int
}

func (e *RepaymentShortfallError) Error() string {
	return fmt.Sprintf("flashloan engine: repayment shortfall: expected ending balance >= %s, got %s", e.Expected, e.Actual)
}

func (e *RepaymentShortfallError) Unwrap() error { return ErrRepaymentShortfall }
