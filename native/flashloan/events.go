package flashloan

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"flashvault/core/types"
)

const (
	// TypeDeposit is emitted when a liquidity provider mints vault shares.
	TypeDeposit = "flashloan.deposit"
	// TypeRedeem is emitted when vault shares are burned for underlying.
	TypeRedeem = "flashloan.redeem"
	// TypeRateUpdated is emitted whenever a vault's exchange rate ratchets up.
	TypeRateUpdated = "flashloan.rate_updated"
	// TypeAllowListUpdated is emitted when an asset is allow-listed or removed.
	TypeAllowListUpdated = "flashloan.allowlist_updated"
	// TypeFeeRateUpdated is emitted when the owner changes the flash-loan fee rate.
	TypeFeeRateUpdated = "flashloan.fee_updated"
	// TypeLoanInitiated is emitted once the fee has accrued and before funds
	// leave custody.
	TypeLoanInitiated = "flashloan.initiated"
	// TypeLoanExecuted is emitted after the repayment invariant has been
	// verified and the loan settled.
	TypeLoanExecuted = "flashloan.executed"
)

type DepositMade struct {
	Asset     string
	Depositor common.Address
	Amount    *big.Int
	Shares    *big.Int
}

func (DepositMade) EventType() string { return TypeDeposit }

func (e DepositMade) Event() *types.Event {
	return &types.Event{
		Type: TypeDeposit,
		Attributes: map[string]string{
			"asset":     e.Asset,
			"depositor": e.Depositor.Hex(),
			"amount":    bigString(e.Amount),
			"shares":    bigString(e.Shares),
		},
	}
}

type SharesRedeemed struct {
	Asset      string
	Holder     common.Address
	Shares     *big.Int
	Underlying *big.Int
}

func (SharesRedeemed) EventType() string { return TypeRedeem }

func (e SharesRedeemed) Event() *types.Event {
	return &types.Event{
		Type: TypeRedeem,
		Attributes: map[string]string{
			"asset":      e.Asset,
			"holder":     e.Holder.Hex(),
			"shares":     bigString(e.Shares),
			"underlying": bigString(e.Underlying),
		},
	}
}

type RateUpdated struct {
	Asset   string
	OldRate *big.Int
	NewRate *big.Int
}

func (RateUpdated) EventType() string { return TypeRateUpdated }

func (e RateUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeRateUpdated,
		Attributes: map[string]string{
			"asset":   e.Asset,
			"oldRate": bigString(e.OldRate),
			"newRate": bigString(e.NewRate),
		},
	}
}

type AllowListUpdated struct {
	Asset   string
	Allowed bool
	Actor   common.Address
}

func (AllowListUpdated) EventType() string { return TypeAllowListUpdated }

func (e AllowListUpdated) Event() *types.Event {
	allowed := "false"
	if e.Allowed {
		allowed = "true"
	}
	return &types.Event{
		Type: TypeAllowListUpdated,
		Attributes: map[string]string{
			"asset":   e.Asset,
			"allowed": allowed,
			"actor":   e.Actor.Hex(),
		},
	}
}

type FeeRateUpdated struct {
	OldRate *big.Int
	NewRate *big.Int
	Actor   common.Address
}

func (FeeRateUpdated) EventType() string { return TypeFeeRateUpdated }

func (e FeeRateUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeFeeRateUpdated,
		Attributes: map[string]string{
			"oldRate": bigString(e.OldRate),
			"newRate": bigString(e.NewRate),
			"actor":   e.Actor.Hex(),
		},
	}
}

type LoanInitiated struct {
	LoanID    string
	Asset     string
	Initiator common.Address
	Receiver  common.Address
	Amount    *big.Int
	Fee       *big.Int
}

func (LoanInitiated) EventType() string { return TypeLoanInitiated }

func (e LoanInitiated) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanInitiated,
		Attributes: map[string]string{
			"loanId":    e.LoanID,
			"asset":     e.Asset,
			"initiator": e.Initiator.Hex(),
			"receiver":  e.Receiver.Hex(),
			"amount":    bigString(e.Amount),
			"fee":       bigString(e.Fee),
		},
	}
}

type LoanExecuted struct {
	LoanID   string
	Asset    string
	Receiver common.Address
	Amount   *big.Int
	Fee      *big.Int
}

func (LoanExecuted) EventType() string { return TypeLoanExecuted }

func (e LoanExecuted) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanExecuted,
		Attributes: map[string]string{
			"loanId":   e.LoanID,
			"asset":    e.Asset,
			"receiver": e.Receiver.Hex(),
			"amount":   bigString(e.Amount),
			"fee":      bigString(e.Fee),
		},
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
