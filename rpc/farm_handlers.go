package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"yetifarm/crypto"
	"yetifarm/explorer"
	"yetifarm/native/bank"
	"yetifarm/native/farm"
)

type farmAmountParams struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

type farmCallerParams struct {
	Caller string `json:"caller"`
}

type farmNotifyParams struct {
	Amount   string `json:"amount"`
	Duration uint64 `json:"duration,omitempty"`
}

type farmAddressParams struct {
	Address string `json:"address"`
}

type farmDurationParams struct {
	Duration uint64 `json:"duration,omitempty"`
}

type farmPausedParams struct {
	Paused bool `json:"paused"`
}

type farmEventsParams struct {
	Type    string `json:"type,omitempty"`
	Address string `json:"address,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

type farmPositionResult struct {
	Address            string `json:"address"`
	Balance            string `json:"balance"`
	RewardPerTokenPaid string `json:"rewardPerTokenPaid"`
	RewardOwed         string `json:"rewardOwed"`
	Earned             string `json:"earned"`
}

type farmStatusResult struct {
	Now                      uint64 `json:"now"`
	Period                   string `json:"period"`
	RewardRate               string `json:"rewardRate"`
	PeriodFinish             uint64 `json:"periodFinish"`
	LastUpdateTime           uint64 `json:"lastUpdateTime"`
	LastTimeRewardApplicable uint64 `json:"lastTimeRewardApplicable"`
	RewardPerTokenStored     string `json:"rewardPerTokenStored"`
	RewardPerToken           string `json:"rewardPerToken"`
	TotalStaked              string `json:"totalStaked"`
}

type farmRewardResult struct {
	Paid string `json:"paid"`
}

type farmExitResult struct {
	Withdrawn string `json:"withdrawn"`
	Paid      string `json:"paid"`
}

type farmEventResult struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Address    string            `json:"address,omitempty"`
	Amount     string            `json:"amount,omitempty"`
	Label      string            `json:"label"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  string            `json:"createdAt"`
}

func parseAmount(amount string) (*big.Int, error) {
	value, err := parseQuantity(amount)
	if err != nil {
		return nil, err
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return value, nil
}

// parseQuantity accepts zero as well as positive decimal amounts.
func parseQuantity(amount string) (*big.Int, error) {
	trimmed := strings.TrimSpace(amount)
	if trimmed == "" {
		return nil, fmt.Errorf("amount is required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount")
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return value, nil
}

func parseAddress(field, value string) (crypto.Address, *RPCError) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return crypto.Address{}, &RPCError{Code: codeInvalidParams, Message: field + " is required"}
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return crypto.Address{}, &RPCError{Code: codeInvalidParams, Message: "invalid " + field, Data: err.Error()}
	}
	return addr, nil
}

func decodeParams(req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "exactly one parameter object expected"}
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: "invalid parameter object", Data: err.Error()}
	}
	return nil
}

func decodeOptionalParams(req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) == 0 {
		return nil
	}
	return decodeParams(req, out)
}

func invalidParams(err error) *RPCError {
	return &RPCError{Code: codeInvalidParams, Message: err.Error()}
}

// farmError maps engine and ledger failures onto JSON-RPC codes.
func farmError(err error) *RPCError {
	switch {
	case errors.Is(err, farm.ErrModulePaused), errors.Is(err, farm.ErrReentrant):
		return &RPCError{Code: codeModuleUnavailable, Message: err.Error()}
	case errors.Is(err, farm.ErrInsufficientBalance),
		errors.Is(err, farm.ErrInsufficientFunding),
		errors.Is(err, bank.ErrInsufficientBalance),
		errors.Is(err, bank.ErrInsufficientAllowance):
		return &RPCError{Code: codeInsufficientFunds, Message: err.Error()}
	case errors.Is(err, farm.ErrInvalidAccount),
		errors.Is(err, farm.ErrInvalidAmount),
		errors.Is(err, farm.ErrInvalidDuration),
		errors.Is(err, bank.ErrInvalidAmount),
		errors.Is(err, bank.ErrOverflow):
		return &RPCError{Code: codeInvalidParams, Message: err.Error()}
	default:
		return &RPCError{Code: codeServerError, Message: err.Error()}
	}
}

func (s *Server) handleFarmStake(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params farmAmountParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := s.requireAccount(r, "caller", caller); rpcErr != nil {
		return nil, rpcErr
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return nil, invalidParams(err)
	}
	if err := s.engine.Stake(caller, amount); err != nil {
		return nil, farmError(err)
	}
	return s.position(caller)
}

func (s *Server) handleFarmWithdraw(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params farmAmountParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := s.requireAccount(r, "caller", caller); rpcErr != nil {
		return nil, rpcErr
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return nil, invalidParams(err)
	}
	if err := s.engine.Withdraw(caller, amount); err != nil {
		return nil, farmError(err)
	}
	return s.position(caller)
}

func (s *Server) handleFarmGetReward(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params farmCallerParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := s.requireAccount(r, "caller", caller); rpcErr != nil {
		return nil, rpcErr
	}
	paid, err := s.engine.GetReward(caller)
	if err != nil {
		return nil, farmError(err)
	}
	return farmRewardResult{Paid: paid.String()}, nil
}

func (s *Server) handleFarmExit(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params farmCallerParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := s.requireAccount(r, "caller", caller); rpcErr != nil {
		return nil, rpcErr
	}
	withdrawn, paid, err := s.engine.Exit(caller)
	if err != nil {
		return nil, farmError(err)
	}
	return farmExitResult{Withdrawn: withdrawn.String(), Paid: paid.String()}, nil
}

func (s *Server) handleFarmNotify(req *RPCRequest) (interface{}, *RPCError) {
	var params farmNotifyParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	amount, err := parseQuantity(params.Amount)
	if err != nil {
		return nil, invalidParams(err)
	}
	duration := params.Duration
	if duration == 0 {
		duration = s.defaultDuration
	}
	if err := s.engine.NotifyRewardAmount(amount, duration); err != nil {
		return nil, farmError(err)
	}
	return s.status()
}

func (s *Server) handleFarmSetPaused(req *RPCRequest) (interface{}, *RPCError) {
	if s.pauses == nil {
		return nil, &RPCError{Code: codeModuleUnavailable, Message: "pausing not configured"}
	}
	var params farmPausedParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	s.pauses.SetPaused(farm.ModuleName, params.Paused)
	s.logger.Info("farm pause toggled", "paused", params.Paused)
	return map[string]bool{"paused": s.pauses.IsPaused(farm.ModuleName)}, nil
}

func (s *Server) handleFarmEarned(req *RPCRequest) (interface{}, *RPCError) {
	var params farmAddressParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddress("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	earned, err := s.engine.Earned(addr)
	if err != nil {
		return nil, farmError(err)
	}
	return map[string]string{"earned": earned.String()}, nil
}

func (s *Server) handleFarmBalanceOf(req *RPCRequest) (interface{}, *RPCError) {
	var params farmAddressParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddress("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	balance, err := s.engine.BalanceOf(addr)
	if err != nil {
		return nil, farmError(err)
	}
	total, err := s.engine.TotalSupply()
	if err != nil {
		return nil, farmError(err)
	}
	return map[string]string{"balance": balance.String(), "totalSupply": total.String()}, nil
}

func (s *Server) handleFarmRewardPerToken(req *RPCRequest) (interface{}, *RPCError) {
	if len(req.Params) > 0 {
		return nil, &RPCError{Code: codeInvalidParams, Message: "no parameters expected"}
	}
	rpt, err := s.engine.RewardPerToken()
	if err != nil {
		return nil, farmError(err)
	}
	applicable, err := s.engine.LastTimeRewardApplicable()
	if err != nil {
		return nil, farmError(err)
	}
	return map[string]interface{}{
		"rewardPerToken":           rpt.String(),
		"lastTimeRewardApplicable": applicable,
	}, nil
}

func (s *Server) handleFarmRewardForDuration(req *RPCRequest) (interface{}, *RPCError) {
	var params farmDurationParams
	if rpcErr := decodeOptionalParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	duration := params.Duration
	if duration == 0 {
		duration = s.defaultDuration
	}
	reward, err := s.engine.GetRewardForDuration(duration)
	if err != nil {
		return nil, farmError(err)
	}
	return map[string]interface{}{"duration": duration, "reward": reward.String()}, nil
}

func (s *Server) handleFarmPosition(req *RPCRequest) (interface{}, *RPCError) {
	var params farmAddressParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddress("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return s.position(addr)
}

func (s *Server) handleFarmStatus(req *RPCRequest) (interface{}, *RPCError) {
	if len(req.Params) > 0 {
		return nil, &RPCError{Code: codeInvalidParams, Message: "no parameters expected"}
	}
	return s.status()
}

func (s *Server) handleFarmEvents(ctx context.Context, req *RPCRequest) (interface{}, *RPCError) {
	if s.journal == nil {
		return nil, &RPCError{Code: codeModuleUnavailable, Message: "event journal not configured"}
	}
	var params farmEventsParams
	if rpcErr := decodeOptionalParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if params.Limit < 0 {
		return nil, &RPCError{Code: codeInvalidParams, Message: "limit must not be negative"}
	}
	filter := explorer.Filter{Type: strings.TrimSpace(params.Type), Limit: params.Limit}
	if strings.TrimSpace(params.Address) != "" {
		addr, rpcErr := parseAddress("address", params.Address)
		if rpcErr != nil {
			return nil, rpcErr
		}
		// Journal rows carry the account-prefixed encoding.
		filter.Address = crypto.NewAddress(crypto.AccountPrefix, addr.Bytes()).String()
	}
	records, err := s.journal.List(ctx, filter)
	if err != nil {
		return nil, &RPCError{Code: codeServerError, Message: "failed to list events", Data: err.Error()}
	}
	out := make([]farmEventResult, 0, len(records))
	for _, record := range records {
		out = append(out, farmEventResult{
			ID:         record.EventID.String(),
			Type:       record.Type,
			Address:    record.Address,
			Amount:     record.Amount,
			Label:      record.Label,
			Attributes: record.Attrs(),
			CreatedAt:  record.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out, nil
}

func (s *Server) position(addr crypto.Address) (interface{}, *RPCError) {
	pos, err := s.engine.Position(addr)
	if err != nil {
		return nil, farmError(err)
	}
	return farmPositionResult{
		Address:            pos.Address.String(),
		Balance:            pos.Balance.String(),
		RewardPerTokenPaid: pos.RewardPerTokenPaid.String(),
		RewardOwed:         pos.RewardOwed.String(),
		Earned:             pos.Earned.String(),
	}, nil
}

func (s *Server) status() (interface{}, *RPCError) {
	st, err := s.engine.Status()
	if err != nil {
		return nil, farmError(err)
	}
	return farmStatusResult{
		Now:                      st.Now,
		Period:                   st.Period.String(),
		RewardRate:               st.RewardRate.String(),
		PeriodFinish:             st.PeriodFinish,
		LastUpdateTime:           st.LastUpdateTime,
		LastTimeRewardApplicable: st.LastTimeRewardApplicable,
		RewardPerTokenStored:     st.RewardPerTokenStored.String(),
		RewardPerToken:           st.RewardPerToken.String(),
		TotalStaked:              st.TotalStaked.String(),
	}, nil
}
