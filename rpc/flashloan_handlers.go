package rpc

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"flashvault/native/flashloan"
	"flashvault/observability"
)

type depositParams struct {
	Depositor string `json:"depositor"`
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
}

type redeemParams struct {
	Holder string `json:"holder"`
	Asset  string `json:"asset"`
	Shares string `json:"shares"`
}

type assetParams struct {
	Asset string `json:"asset"`
}

type feeQuoteParams struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type shareBalanceParams struct {
	Asset  string `json:"asset"`
	Holder string `json:"holder"`
}

type setAllowedTokenParams struct {
	Caller  string `json:"caller"`
	Asset   string `json:"asset"`
	Allowed bool   `json:"allowed"`
}

type setFeeRateParams struct {
	Caller string `json:"caller"`
	Rate   string `json:"rate"`
}

type vaultResult struct {
	Asset        string `json:"asset"`
	Address      string `json:"address"`
	TotalShares  string `json:"totalShares"`
	ExchangeRate string `json:"exchangeRate"`
	Balance      string `json:"balance"`
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return errors.New("expected a single params object")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAddress(raw string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func parseAmount(raw string) (*big.Int, bool) {
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok || amount.Sign() < 0 {
		return nil, false
	}
	return amount, true
}

// writeEngineError maps engine sentinels onto JSON-RPC error responses so
// clients can distinguish bad requests from internal failures.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, flashloan.ErrInvalidAmount),
		errors.Is(err, flashloan.ErrInvalidFeeRate),
		errors.Is(err, flashloan.ErrNotCallable):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
	case errors.Is(err, flashloan.ErrUnknownAsset),
		errors.Is(err, flashloan.ErrNotAllowed):
		writeError(w, http.StatusNotFound, id, codeServerError, err.Error(), nil)
	case errors.Is(err, flashloan.ErrUnauthorized):
		writeError(w, http.StatusForbidden, id, codeUnauthorized, err.Error(), nil)
	case errors.Is(err, flashloan.ErrAssetBusy):
		writeError(w, http.StatusConflict, id, codeServerError, err.Error(), nil)
	case errors.Is(err, flashloan.ErrAlreadyAllowed),
		errors.Is(err, flashloan.ErrInsufficientShares),
		errors.Is(err, flashloan.ErrInsufficientLiquidity):
		writeError(w, http.StatusConflict, id, codeServerError, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, err.Error(), nil)
	}
}

func (s *Server) handleDeposit(w http.ResponseWriter, req *RPCRequest) {
	started := time.Now()
	var params depositParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid deposit params", err.Error())
		return
	}
	depositor, ok := parseAddress(params.Depositor)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "depositor must be a hex address", nil)
		return
	}
	amount, ok := parseAmount(params.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "amount must be a non-negative decimal string", nil)
		return
	}
	shares, err := s.engine.Deposit(depositor, params.Asset, amount)
	observability.EngineMetrics().Observe("deposit", err, started)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"shares": shares.String()})
}

func (s *Server) handleRedeem(w http.ResponseWriter, req *RPCRequest) {
	started := time.Now()
	var params redeemParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid redeem params", err.Error())
		return
	}
	holder, ok := parseAddress(params.Holder)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "holder must be a hex address", nil)
		return
	}
	shares := flashloan.MaxRedeem
	if params.Shares != "" && params.Shares != "max" {
		parsed, ok := parseAmount(params.Shares)
		if !ok {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "shares must be a decimal string or \"max\"", nil)
			return
		}
		shares = parsed
	}
	underlying, err := s.engine.Redeem(holder, params.Asset, shares)
	observability.EngineMetrics().Observe("redeem", err, started)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"underlying": underlying.String()})
}

func (s *Server) handleGetVault(w http.ResponseWriter, req *RPCRequest) {
	var params assetParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	vault, err := s.engine.VaultFor(params.Asset)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	balance, err := s.engine.VaultBalance(params.Asset)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, vaultResult{
		Asset:        vault.Asset,
		Address:      vault.Address.Hex(),
		TotalShares:  vault.TotalShares.String(),
		ExchangeRate: vault.ExchangeRate.String(),
		Balance:      balance.String(),
	})
}

func (s *Server) handleGetShareBalance(w http.ResponseWriter, req *RPCRequest) {
	var params shareBalanceParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	holder, ok := parseAddress(params.Holder)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "holder must be a hex address", nil)
		return
	}
	shares, err := s.engine.ShareBalance(params.Asset, holder)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"shares": shares.String()})
}

func (s *Server) handleGetCalculatedFee(w http.ResponseWriter, req *RPCRequest) {
	var params feeQuoteParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	amount, ok := parseAmount(params.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "amount must be a non-negative decimal string", nil)
		return
	}
	fee, err := s.engine.CalculatedFee(params.Asset, amount)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"fee": fee.String()})
}

func (s *Server) handleGetFee(w http.ResponseWriter, req *RPCRequest) {
	writeResult(w, req.ID, map[string]string{
		"rate":      s.engine.FeeRate().String(),
		"precision": s.engine.FeePrecision().String(),
	})
}

func (s *Server) handleIsAllowedToken(w http.ResponseWriter, req *RPCRequest) {
	var params assetParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	allowed, err := s.engine.IsAllowedToken(params.Asset)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"allowed": allowed})
}

func (s *Server) handleIsCurrentlyFlashLoaning(w http.ResponseWriter, req *RPCRequest) {
	var params assetParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	writeResult(w, req.ID, map[string]bool{"loaning": s.engine.IsCurrentlyFlashLoaning(params.Asset)})
}

func (s *Server) handleSetAllowedToken(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.requireAuth(r) {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "missing or invalid auth token", nil)
		return
	}
	started := time.Now()
	var params setAllowedTokenParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	caller, ok := parseAddress(params.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "caller must be a hex address", nil)
		return
	}
	vault, err := s.engine.SetAllowedToken(caller, params.Asset, params.Allowed)
	observability.EngineMetrics().Observe("setAllowedToken", err, started)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	s.log.Info("allow-list updated", "asset", vault.Asset, "allowed", params.Allowed)
	writeResult(w, req.ID, map[string]interface{}{
		"asset":   vault.Asset,
		"address": vault.Address.Hex(),
		"allowed": params.Allowed,
	})
}

func (s *Server) handleSetFeeRate(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.requireAuth(r) {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "missing or invalid auth token", nil)
		return
	}
	started := time.Now()
	var params setFeeRateParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	caller, ok := parseAddress(params.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "caller must be a hex address", nil)
		return
	}
	rate, ok := parseAmount(params.Rate)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "rate must be a non-negative decimal string", nil)
		return
	}
	err := s.engine.SetFeeRate(caller, rate)
	observability.EngineMetrics().Observe("setFeeRate", err, started)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	s.log.Info("fee rate updated", "rate", rate.String())
	writeResult(w, req.ID, map[string]string{"rate": rate.String()})
}
