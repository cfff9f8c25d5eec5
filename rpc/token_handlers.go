package rpc

import (
	"math/big"
	"net/http"
	"strings"

	"yetifarm/crypto"
	"yetifarm/native/bank"
)

// unlimitedAllowance is the approval value the ledger never decrements.
var unlimitedAllowance = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

type tokenBalanceParams struct {
	Asset   string `json:"asset"`
	Address string `json:"address"`
}

type tokenAllowanceParams struct {
	Asset string `json:"asset"`
	Owner string `json:"owner"`
}

type tokenApproveParams struct {
	Asset  string `json:"asset"`
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
}

type tokenMintParams struct {
	Asset  string `json:"asset"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type tokenBalanceResult struct {
	Asset   string `json:"asset"`
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type tokenAllowanceResult struct {
	Asset     string `json:"asset"`
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Allowance string `json:"allowance"`
}

func (s *Server) ledger(asset string) (*bank.Ledger, *RPCError) {
	symbol := strings.ToUpper(strings.TrimSpace(asset))
	if symbol == "" {
		return nil, &RPCError{Code: codeInvalidParams, Message: "asset is required"}
	}
	ledger, ok := s.ledgers[symbol]
	if !ok {
		return nil, &RPCError{Code: codeInvalidParams, Message: "unknown asset", Data: symbol}
	}
	return ledger, nil
}

func (s *Server) handleTokenBalance(req *RPCRequest) (interface{}, *RPCError) {
	var params tokenBalanceParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	ledger, rpcErr := s.ledger(params.Asset)
	if rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddress("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	balance, err := ledger.BalanceOf(addr)
	if err != nil {
		return nil, farmError(err)
	}
	return tokenBalanceResult{Asset: ledger.Symbol(), Address: addr.String(), Balance: balance.String()}, nil
}

func (s *Server) handleTokenAllowance(req *RPCRequest) (interface{}, *RPCError) {
	var params tokenAllowanceParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	ledger, rpcErr := s.ledger(params.Asset)
	if rpcErr != nil {
		return nil, rpcErr
	}
	owner, rpcErr := parseAddress("owner", params.Owner)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return s.allowance(ledger, owner)
}

// handleTokenApprove grants the farm an allowance over the owner's balance.
// "max" approves an allowance that is never drawn down.
func (s *Server) handleTokenApprove(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params tokenApproveParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	ledger, rpcErr := s.ledger(params.Asset)
	if rpcErr != nil {
		return nil, rpcErr
	}
	owner, rpcErr := parseAddress("owner", params.Owner)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := s.requireAccount(r, "owner", owner); rpcErr != nil {
		return nil, rpcErr
	}
	var amount *big.Int
	if strings.EqualFold(strings.TrimSpace(params.Amount), "max") {
		amount = new(big.Int).Set(unlimitedAllowance)
	} else {
		parsed, err := parseQuantity(params.Amount)
		if err != nil {
			return nil, invalidParams(err)
		}
		amount = parsed
	}
	if err := ledger.Approve(owner, s.engine.Module(), amount); err != nil {
		return nil, farmError(err)
	}
	return s.allowance(ledger, owner)
}

func (s *Server) handleTokenMint(req *RPCRequest) (interface{}, *RPCError) {
	var params tokenMintParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	ledger, rpcErr := s.ledger(params.Asset)
	if rpcErr != nil {
		return nil, rpcErr
	}
	to, rpcErr := parseAddress("to", params.To)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return nil, invalidParams(err)
	}
	if err := ledger.Mint(to, amount); err != nil {
		return nil, farmError(err)
	}
	balance, err := ledger.BalanceOf(to)
	if err != nil {
		return nil, farmError(err)
	}
	return tokenBalanceResult{Asset: ledger.Symbol(), Address: to.String(), Balance: balance.String()}, nil
}

func (s *Server) allowance(ledger *bank.Ledger, owner crypto.Address) (interface{}, *RPCError) {
	spender := s.engine.Module()
	value, err := ledger.Allowance(owner, spender)
	if err != nil {
		return nil, farmError(err)
	}
	return tokenAllowanceResult{
		Asset:     ledger.Symbol(),
		Owner:     owner.String(),
		Spender:   spender.String(),
		Allowance: value.String(),
	}, nil
}
