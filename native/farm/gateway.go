package farm

import (
	"fmt"
	"math/big"

	"yetifarm/crypto"
)

// AssetGateway moves one asset between accounts and the farm's custody.
// TransferIn pulls amount from an account into custody and TransferOut pushes
// amount from custody to an account. Either fails synchronously, leaving the
// asset untouched.
type AssetGateway interface {
	TransferIn(from crypto.Address, amount *big.Int) error
	TransferOut(to crypto.Address, amount *big.Int) error
	BalanceOf(holder crypto.Address) (*big.Int, error)
}

func transferError(err error) error {
	return fmt.Errorf("%w: %w", ErrAssetTransferFailed, err)
}
