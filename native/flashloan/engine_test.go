package flashloan

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "flashvault/native/common"
)

type mockState struct {
	vaults   map[string]*Vault
	shares   map[string]*big.Int
	balances map[string]*big.Int

	snapshots []mockSnapshot
}

type mockSnapshot struct {
	vaults   map[string]*Vault
	shares   map[string]*big.Int
	balances map[string]*big.Int
}

func newMockState() *mockState {
	return &mockState{
		vaults:   make(map[string]*Vault),
		shares:   make(map[string]*big.Int),
		balances: make(map[string]*big.Int),
	}
}

func shareMapKey(asset string, holder common.Address) string {
	return asset + "|" + holder.Hex()
}

func (m *mockState) GetVault(asset string) (*Vault, error) {
	vault, ok := m.vaults[asset]
	if !ok {
		return nil, nil
	}
	return vault.Clone(), nil
}

func (m *mockState) PutVault(asset string, vault *Vault) error {
	m.vaults[asset] = vault.Clone()
	return nil
}

func (m *mockState) DeleteVault(asset string) error {
	delete(m.vaults, asset)
	return nil
}

func (m *mockState) GetShares(asset string, holder common.Address) (*big.Int, error) {
	amount, ok := m.shares[shareMapKey(asset, holder)]
	if !ok {
		return nil, nil
	}
	return new(big.Int).Set(amount), nil
}

func (m *mockState) PutShares(asset string, holder common.Address, amount *big.Int) error {
	m.shares[shareMapKey(asset, holder)] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) BalanceOf(asset string, addr common.Address) (*big.Int, error) {
	balance, ok := m.balances[shareMapKey(asset, addr)]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(balance), nil
}

func (m *mockState) Transfer(asset string, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errors.New("mock state: amount must be positive")
	}
	fromBalance, _ := m.BalanceOf(asset, from)
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("mock state: insufficient balance for %s", from.Hex())
	}
	toBalance, _ := m.BalanceOf(asset, to)
	m.balances[shareMapKey(asset, from)] = fromBalance.Sub(fromBalance, amount)
	m.balances[shareMapKey(asset, to)] = toBalance.Add(toBalance, amount)
	return nil
}

func (m *mockState) mint(asset string, addr common.Address, amount *big.Int) {
	balance, _ := m.BalanceOf(asset, addr)
	m.balances[shareMapKey(asset, addr)] = balance.Add(balance, amount)
}

func (m *mockState) copyMaps() mockSnapshot {
	snap := mockSnapshot{
		vaults:   make(map[string]*Vault, len(m.vaults)),
		shares:   make(map[string]*big.Int, len(m.shares)),
		balances: make(map[string]*big.Int, len(m.balances)),
	}
	for k, v := range m.vaults {
		snap.vaults[k] = v.Clone()
	}
	for k, v := range m.shares {
		snap.shares[k] = new(big.Int).Set(v)
	}
	for k, v := range m.balances {
		snap.balances[k] = new(big.Int).Set(v)
	}
	return snap
}

func (m *mockState) Snapshot() int {
	id := len(m.snapshots)
	m.snapshots = append(m.snapshots, m.copyMaps())
	return id
}

func (m *mockState) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(m.snapshots) {
		return fmt.Errorf("mock state: invalid snapshot %d", id)
	}
	snap := m.snapshots[id]
	m.vaults = snap.vaults
	m.shares = snap.shares
	m.balances = snap.balances
	m.snapshots = m.snapshots[:id]
	return nil
}

func (m *mockState) DiscardSnapshot(id int) {
	if id < 0 || id > len(m.snapshots) {
		return
	}
	m.snapshots = m.snapshots[:id]
}

type funcBorrower struct {
	addr common.Address
	fn   func(asset string, amount, fee *big.Int, initiator common.Address, params []byte) error
}

func (b funcBorrower) Address() common.Address { return b.addr }

func (b funcBorrower) ExecuteOperation(asset string, amount, fee *big.Int, initiator common.Address, params []byte) error {
	if b.fn == nil {
		return nil
	}
	return b.fn(asset, amount, fee, initiator, params)
}

var (
	ownerAddr     = common.HexToAddress("0x1000000000000000000000000000000000000001")
	depositorAddr = common.HexToAddress("0x2000000000000000000000000000000000000002")
	borrowerAddr  = common.HexToAddress("0x3000000000000000000000000000000000000003")
)

func unit(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func newTestEngine(t *testing.T, feeRate *big.Int) (*Engine, *mockState, *ManualOracle) {
	t.Helper()
	oracle := NewManualOracle()
	oracle.SetPrice("NHB", unit(1))
	fees, err := NewFeeCalculator(oracle, feeRate)
	if err != nil {
		t.Fatalf("new fee calculator: %v", err)
	}
	engine := NewEngine(ownerAddr, fees)
	state := newMockState()
	engine.SetState(state)
	if _, err := engine.SetAllowedToken(ownerAddr, "NHB", true); err != nil {
		t.Fatalf("allow token: %v", err)
	}
	return engine, state, oracle
}

// feeRate003 is a 0.3% fee at 1e18 precision.
func feeRate003() *big.Int { return big.NewInt(3e15) }

func TestDepositMintsSharesAtInitialRate(t *testing.T) {
	engine, state, _ := newTestEngine(t, feeRate003())
	state.mint("NHB", depositorAddr, unit(1000))

	shares, err := engine.Deposit(depositorAddr, "nhb", unit(1000))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if shares.Cmp(unit(1000)) != 0 {
		t.Fatalf("expected 1000e18 shares, got %s", shares)
	}

	vault, err := engine.VaultFor("NHB")
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	if vault.TotalShares.Cmp(unit(1000)) != 0 {
		t.Fatalf("expected total shares 1000e18, got %s", vault.TotalShares)
	}
	custody, err := engine.VaultBalance("NHB")
	if err != nil {
		t.Fatalf("vault balance: %v", err)
	}
	if custody.Cmp(unit(1000)) != 0 {
		t.Fatalf("expected custody 1000e18, got %s", custody)
	}
	remaining, _ := state.BalanceOf("NHB", depositorAddr)
	if remaining.Sign() != 0 {
		t.Fatalf("expected depositor drained, got %s", remaining)
	}
}

func TestDepositRequiresAllowedToken(t *testing.T) {
	engine, state, _ := newTestEngine(t, feeRate003())
	state.mint("ZNHB", depositorAddr, unit(10))
	if _, err := engine.Deposit(depositorAddr, "ZNHB", unit(10)); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed, got %v", err)
	}
}

func TestDepositRejectsNonPositiveAmount(t *testing.T) {
	engine, _, _ := newTestEngine(t, feeRate003())
	if _, err := engine.Deposit(depositorAddr, "NHB", big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero, got %v", err)
	}
	if _, err := engine.Deposit(depositorAddr, "NHB", nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for nil, got %v", err)
	}
}

func TestFlashBorrowAccruesFeeBeforeFundsLeave(t *testing.T) {
	engine, state, _ := newTestEngine(t, feeRate003())
	state.mint("NHB", depositorAddr, unit(1000))
	if _, err := engine.Deposit(depositorAddr, "NHB", unit(1000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// The borrower only holds the fee; the principal comes from the vault.
	expectedFee := new(big.Int).Mul(big.NewInt(3), big.NewInt(1e17)) // 0.3 units
	state.mint("NHB", borrowerAddr, expectedFee)

	var rateInsideCallback *big.Int
	borrower := funcBorrower{
		addr: borrowerAddr,
		fn: func(asset string, amount, fee *big.Int, initiator common.Address, params []byte) error {
			rate, err := engine.Rate(asset)
			if err != nil {
				return err
			}
			rateInsideCallback = rate
			repay := new(big.Int).Add(amount, fee)
			return engine.Repay(borrowerAddr, asset, repay)
		},
	}

	fee, err := engine.FlashBorrow(borrowerAddr, borrower, "NHB", unit(100), nil)
	if err != nil {
		t.Fatalf("flash borrow: %v", err)
	}
	if fee.Cmp(expectedFee) != 0 {
		t.Fatalf("expected fee %s, got %s", expectedFee, fee)
	}

	// 1e18 * (1000.3 / 1000) = 1.0003e18, already visible during the callback.
	expectedRate := big.NewInt(1000300000000000000)
	if rateInsideCallback == nil || rateInsideCallback.Cmp(expectedRate) != 0 {
		t.Fatalf("expected rate %s inside callback, got %s", expectedRate, rateInsideCallback)
	}
	rate, err := engine.Rate("NHB")
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if rate.Cmp(expectedRate) != 0 {
		t.Fatalf("expected rate %s after settlement, got %s", expectedRate, rate)
	}

	custody, _ := engine.VaultBalance("NHB")
	expectedCustody := new(big.Int).Add(unit(1000), expectedFee)
	if custody.Cmp(expectedCustody) != 0 {
		t.Fatalf("expected custody %s, got %s", expectedCustody, custody)
	}
	if engine.IsCurrentlyFlashLoaning("NHB") {
		t.Fatalf("loan flag should be cleared after settlement")
	}

	// The accrued fee flows to share holders through redemption.
	underlying, err := engine.Redeem(depositorAddr, "NHB", MaxRedeem)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if underlying.Cmp(expectedCustody) != 0 {
		t.Fatalf("expected redemption %s, got %s", expectedCustody, underlying)
	}
}

func TestFlashBorrowShortfallRevertsEverything(t *testing.T) {
	engine, state, _ := newTestEngine(t, feeRate003())
	state.mint("NHB", depositorAddr, unit(1000))
	if _, err := engine.Deposit(depositorAddr, "NHB", unit(1000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	borrower := funcBorrower{addr: borrowerAddr} // keeps the funds

	_, err := engine.FlashBorrow(borrowerAddr, borrower, "NHB", unit(100), nil)
	if !errors.Is(err, ErrRepaymentShortfall) {
		t.Fatalf("expected repayment shortfall, got %v", err)
	}
	var shortfall *RepaymentShortfallError
	if !errors.As(err, &shortfall) {
		t.Fatalf("expected RepaymentShortfallError, got %T", err)
	}

	// Everything unwinds: rate, custody, borrower balance, loan flag.
	rate, _ := engine.Rate("NHB")
	if rate.Cmp(unit(1)) != 0 {
		t.Fatalf("expected rate restored to 1e18, got %s", rate)
	}
	custody, _ := engine.VaultBalance("NHB")
	if custody.Cmp(unit(1000)) != 0 {
		t.Fatalf("expected custody restored to 1000e18, got %s", custody)
	}
	taken, _ := state.BalanceOf("NHB", borrowerAddr)
	if taken.Sign() != 0 {
		t.Fatalf("expected borrower balance reverted, got %s", taken)
	}
	if engine.IsCurrentlyFlashLoaning("NHB") {
		t.Fatalf("loan flag should be cleared after revert")
	}
}

func TestFlashBorrowCallbackErrorRevertsEverything(t *testing.T) {
	engine, state, _ := newTestEngine(t, feeRate003())
	state.mint("NHB", depositorAddr, unit(1000))
	if _, err := engine.Deposit(depositorAddr, "NHB", unit(1000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	cause := errors.New("strategy failed")
	borrower := funcBorrower{
		addr: borrowerAddr,
		fn: func(string, *big.Int, *big.Int, common.Address, []byte) error {
			return cause
		},
	}
	_, err := engine.FlashBorrow(borrowerAddr, borrower, "NHB", unit(100), nil)
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped callback error, got %v", err)
	}
	rate, _ := engine.Rate("NHB")
	if rate.Cmp(unit(1)) != 0 {
		t.Fatalf("expected rate restored, got %s", rate)
	}
}

func TestFlashBorrowRejectsReentrancy(t *testing.T) {
	engine, state, _ := newTestEngine(t, feeRate003())
	state.mint("NHB", depositorAddr, unit(1000))
	if _, err := engine.Deposit(depositorAddr, "NHB", unit(1000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	fee := big.NewInt(3e17)
	state.mint("NHB", borrowerAddr, fee)

	var depositErr, redeemErr, borrowErr error
	borrower := funcBorrower{
		addr: borrowerAddr,
		fn: func(asset string, amount, fee *big.Int, initiator common.Address, params []byte) error {
			_, depositErr = engine.Deposit(borrowerAddr, asset, big.NewInt(1))
			_, redeemErr = engine.Redeem(depositorAddr, asset, MaxRedeem)
			_, borrowErr = engine.FlashBorrow(borrowerAddr, funcBorrower{addr: borrowerAddr}, asset, big.NewInt(1), nil)
			return engine.Repay(borrowerAddr, asset, new(big.Int).Add(amount, fee))
		},
	}

	if _, err := engine.FlashBorrow(borrowerAddr, borrower, "NHB", unit(100), nil); err != nil {
		t.Fatalf("flash borrow: %v", err)
	}
	if !errors.Is(depositErr, ErrAssetBusy) {
		t.Fatalf("expected deposit rejected mid-loan, got %v", depositErr)
	}
	if !errors.Is(redeemErr, ErrAssetBusy) {
		t.Fatalf("expected redeem rejected mid-loan, got %v", redeemErr)
	}
	if !errors.Is(borrowErr, ErrAssetBusy) {
		t.Fatalf("expected nested borrow rejected, got %v", borrowErr)
	}
}

func TestFlashBorrowZeroFeeRejected(t *testing.T) {
	engine, state, _ := newTestEngine(t, big.NewInt(0))
	state.mint("NHB", depositorAddr, unit(1000))
	if _, err := engine.Deposit(depositorAddr, "NHB", unit(1000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	borrower := funcBorrower{addr: borrowerAddr}
	if _, err := engine.FlashBorrow(borrowerAddr, borrower, "NHB", unit(100), nil); !errors.Is(err, ErrRateMustIncrease) {
		t.Fatalf("expected ErrRateMustIncrease for zero fee, got %v", err)
	}
}

func TestFlashBorrowInsufficientLiquidity(t *testing.T) {
	engine, state, _ := newTestEngine(t, feeRate003())
	state.mint("NHB", depositorAddr, unit(10))
	if _, err := engine.Deposit(depositorAddr, "NHB", unit(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	borrower := funcBorrower{addr: borrowerAddr}
	if _, err := engine.FlashBorrow(borrowerAddr, borrower, "NHB", unit(11), nil); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
}

func TestFlashBorrowRequiresCallableReceiver(t *testing.T) {
	engine, _, _ := newTestEngine(t, feeRate003())
	if _, err := engine.FlashBorrow(borrowerAddr, nil, "NHB", unit(1), nil); !errors.Is(err, ErrNotCallable) {
		t.Fatalf("expected ErrNotCallable for nil receiver, got %v", err)
	}
	zero := funcBorrower{}
	if _, err := engine.FlashBorrow(borrowerAddr, zero, "NHB", unit(1), nil); !errors.Is(err, ErrNotCallable) {
		t.Fatalf("expected ErrNotCallable for zero address, got %v", err)
	}
}

func TestRedeemMaxSentinelBurnsWholeHolding(t *testing.T) {
	engine, state, _ := newTestEngine(t, feeRate003())

	// Vault at an advanced rate of 1.1e18: 500 shares redeem to 550 units.
	vault, _ := state.GetVault("NHB")
	vault.ExchangeRate = big.NewInt(1100000000000000000)
	vault.TotalShares = unit(500)
	if err := state.PutVault("NHB", vault); err != nil {
		t.Fatalf("put vault: %v", err)
	}
	if err := state.PutShares("NHB", depositorAddr, unit(500)); err != nil {
		t.Fatalf("put shares: %v", err)
	}
	state.mint("NHB", vault.Address, unit(550))

	underlying, err := engine.Redeem(depositorAddr, "NHB", MaxRedeem)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if underlying.Cmp(unit(550)) != 0 {
		t.Fatalf("expected 550e18 underlying, got %s", underlying)
	}
	remaining, err := engine.ShareBalance("NHB", depositorAddr)
	if err != nil {
		t.Fatalf("share balance: %v", err)
	}
	if remaining.Sign() != 0 {
		t.Fatalf("expected zero shares after max redeem, got %s", remaining)
	}
}

func TestRedeemInsufficientShares(t *testing.T) {
	engine, state, _ := newTestEngine(t, feeRate003())
	state.mint("NHB", depositorAddr, unit(10))
	if _, err := engine.Deposit(depositorAddr, "NHB", unit(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := engine.Redeem(depositorAddr, "NHB", unit(11)); !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}
}

func TestRedeemMaxSentinelWithoutHoldingFails(t *testing.T) {
	engine, _, _ := newTestEngine(t, feeRate003())
	if _, err := engine.Redeem(depositorAddr, "NHB", MaxRedeem); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for empty holding, got %v", err)
	}
}

func TestRepayOutsideLoanWindow(t *testing.T) {
	engine, state, _ := newTestEngine(t, feeRate003())
	state.mint("NHB", borrowerAddr, unit(1))
	if err := engine.Repay(borrowerAddr, "NHB", unit(1)); !errors.Is(err, ErrNotCurrentlyLoaning) {
		t.Fatalf("expected ErrNotCurrentlyLoaning, got %v", err)
	}
}

func TestSetFeeRateOwnerOnly(t *testing.T) {
	engine, _, _ := newTestEngine(t, feeRate003())
	if err := engine.SetFeeRate(depositorAddr, big.NewInt(1e15)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := engine.SetFeeRate(ownerAddr, big.NewInt(1e15)); err != nil {
		t.Fatalf("set fee rate: %v", err)
	}
	if engine.FeeRate().Cmp(big.NewInt(1e15)) != 0 {
		t.Fatalf("expected rate 1e15, got %s", engine.FeeRate())
	}
	over := new(big.Int).Add(engine.FeePrecision(), big.NewInt(1))
	if err := engine.SetFeeRate(ownerAddr, over); !errors.Is(err, ErrInvalidFeeRate) {
		t.Fatalf("expected ErrInvalidFeeRate, got %v", err)
	}
}

func TestZeroAddressNeverPassesOwnerCheck(t *testing.T) {
	oracle := NewManualOracle()
	fees, err := NewFeeCalculator(oracle, feeRate003())
	if err != nil {
		t.Fatalf("new fee calculator: %v", err)
	}
	// An engine constructed without an owner must have no admin surface at
	// all, not one open to the zero address.
	engine := NewEngine(common.Address{}, fees)
	engine.SetState(newMockState())

	if err := engine.SetFeeRate(common.Address{}, big.NewInt(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for zero caller, got %v", err)
	}
	if _, err := engine.SetAllowedToken(common.Address{}, "NHB", true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for zero caller, got %v", err)
	}
}

type pausedView struct{ paused bool }

func (p pausedView) IsPaused(string) bool { return p.paused }

func TestPausedModuleRejectsOperations(t *testing.T) {
	engine, state, _ := newTestEngine(t, feeRate003())
	state.mint("NHB", depositorAddr, unit(10))
	engine.SetPauses(pausedView{paused: true})

	if _, err := engine.Deposit(depositorAddr, "NHB", unit(10)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if _, err := engine.FlashBorrow(borrowerAddr, funcBorrower{addr: borrowerAddr}, "NHB", unit(1), nil); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
}
