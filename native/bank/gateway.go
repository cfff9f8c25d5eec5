package bank

import (
	"math/big"

	"yetifarm/crypto"
)

// Gateway adapts a Ledger to the asset gateway contract the farm engine
// consumes. The module address is both the custody account and the spender
// that stakers approve.
type Gateway struct {
	ledger *Ledger
	module crypto.Address
}

// NewGateway binds the ledger to the module custody account.
func NewGateway(ledger *Ledger, module crypto.Address) *Gateway {
	return &Gateway{ledger: ledger, module: module}
}

// Ledger exposes the underlying ledger.
func (g *Gateway) Ledger() *Ledger { return g.ledger }

// Module returns the custody account.
func (g *Gateway) Module() crypto.Address { return g.module }

// TransferIn pulls amount from the account into custody using the allowance
// the account granted to the module.
func (g *Gateway) TransferIn(from crypto.Address, amount *big.Int) error {
	return g.ledger.TransferFrom(g.module, from, g.module, amount)
}

// TransferOut pushes amount from custody to the account.
func (g *Gateway) TransferOut(to crypto.Address, amount *big.Int) error {
	return g.ledger.Transfer(g.module, to, amount)
}

// BalanceOf reports the holder's balance on the ledger.
func (g *Gateway) BalanceOf(holder crypto.Address) (*big.Int, error) {
	return g.ledger.BalanceOf(holder)
}
