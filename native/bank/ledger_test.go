package bank

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"yetifarm/crypto"
	"yetifarm/storage"
)

func newTestLedger(t *testing.T, symbol string) *Ledger {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	ledger, err := NewLedger(symbol, db)
	require.NoError(t, err)
	return ledger
}

func TestMintTransferAndSupply(t *testing.T) {
	ledger := newTestLedger(t, "lpt")
	require.Equal(t, "LPT", ledger.Symbol())

	alice := crypto.LabelAddress("alice")
	bob := crypto.LabelAddress("bob")

	require.NoError(t, ledger.Mint(alice, big.NewInt(1_000)))
	require.NoError(t, ledger.Transfer(alice, bob, big.NewInt(400)))

	bal, err := ledger.BalanceOf(alice)
	require.NoError(t, err)
	require.Equal(t, "600", bal.String())
	bal, err = ledger.BalanceOf(bob)
	require.NoError(t, err)
	require.Equal(t, "400", bal.String())

	supply, err := ledger.TotalSupply()
	require.NoError(t, err)
	require.Equal(t, "1000", supply.String())

	require.ErrorIs(t, ledger.Transfer(bob, alice, big.NewInt(401)), ErrInsufficientBalance)
	require.ErrorIs(t, ledger.Transfer(bob, alice, big.NewInt(-1)), ErrInvalidAmount)
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	ledger := newTestLedger(t, "LPT")
	owner := crypto.LabelAddress("owner")
	spender := crypto.ModuleAddress("farm")

	require.NoError(t, ledger.Mint(owner, big.NewInt(100)))
	require.ErrorIs(t, ledger.TransferFrom(spender, owner, spender, big.NewInt(1)), ErrInsufficientAllowance)

	require.NoError(t, ledger.Approve(owner, spender, big.NewInt(60)))
	require.NoError(t, ledger.TransferFrom(spender, owner, spender, big.NewInt(50)))

	allowance, err := ledger.Allowance(owner, spender)
	require.NoError(t, err)
	require.Equal(t, "10", allowance.String())

	require.ErrorIs(t, ledger.TransferFrom(spender, owner, spender, big.NewInt(20)), ErrInsufficientAllowance)

	bal, err := ledger.BalanceOf(spender)
	require.NoError(t, err)
	require.Equal(t, "50", bal.String())
}

func TestUnlimitedAllowanceIsNotDecremented(t *testing.T) {
	ledger := newTestLedger(t, "LPT")
	owner := crypto.LabelAddress("owner")
	spender := crypto.ModuleAddress("farm")
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	require.NoError(t, ledger.Mint(owner, big.NewInt(10)))
	require.NoError(t, ledger.Approve(owner, spender, max))
	require.NoError(t, ledger.TransferFrom(spender, owner, spender, big.NewInt(10)))

	allowance, err := ledger.Allowance(owner, spender)
	require.NoError(t, err)
	require.Zero(t, allowance.Cmp(max))
}

func TestMintOverflowRejected(t *testing.T) {
	ledger := newTestLedger(t, "YETI")
	holder := crypto.LabelAddress("holder")
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	require.NoError(t, ledger.Mint(holder, max))
	require.ErrorIs(t, ledger.Mint(holder, big.NewInt(1)), ErrOverflow)
	require.ErrorIs(t, ledger.Mint(holder, new(big.Int).Lsh(big.NewInt(1), 256)), ErrOverflow)
}

func TestGatewayMovesThroughCustody(t *testing.T) {
	ledger := newTestLedger(t, "LPT")
	module := crypto.ModuleAddress("farm")
	staker := crypto.LabelAddress("staker")
	gw := NewGateway(ledger, module)

	require.NoError(t, ledger.Mint(staker, big.NewInt(500)))
	require.NoError(t, ledger.Approve(staker, module, big.NewInt(500)))

	require.NoError(t, gw.TransferIn(staker, big.NewInt(300)))
	held, err := gw.BalanceOf(module)
	require.NoError(t, err)
	require.Equal(t, "300", held.String())

	require.NoError(t, gw.TransferOut(staker, big.NewInt(100)))
	bal, err := gw.BalanceOf(staker)
	require.NoError(t, err)
	require.Equal(t, "300", bal.String())

	require.ErrorIs(t, gw.TransferOut(staker, big.NewInt(201)), ErrInsufficientBalance)
}

func TestStagedMintsCommitTogether(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	ledger, err := NewLedger("LPT", db)
	require.NoError(t, err)
	alice := crypto.LabelAddress("alice")
	farm := crypto.ModuleAddress("farm")

	batch := db.NewBatch()
	stage := ledger.Stage(batch)
	require.NoError(t, stage.Mint(alice, big.NewInt(70)))
	require.NoError(t, stage.Mint(alice, big.NewInt(30)))
	require.NoError(t, stage.Approve(alice, farm, big.NewInt(40)))

	bal, err := ledger.BalanceOf(alice)
	require.NoError(t, err)
	require.Equal(t, "0", bal.String(), "staged writes must stay invisible until the batch is written")

	require.NoError(t, batch.Write())
	bal, err = ledger.BalanceOf(alice)
	require.NoError(t, err)
	require.Equal(t, "100", bal.String())
	supply, err := ledger.TotalSupply()
	require.NoError(t, err)
	require.Equal(t, "100", supply.String())
	allowance, err := ledger.Allowance(alice, farm)
	require.NoError(t, err)
	require.Equal(t, "40", allowance.String())
}

func TestStagedMintDetectsSupplyOverflow(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	ledger, err := NewLedger("LPT", db)
	require.NoError(t, err)
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	stage := ledger.Stage(db.NewBatch())
	require.NoError(t, stage.Mint(crypto.LabelAddress("alice"), max))
	require.ErrorIs(t, stage.Mint(crypto.LabelAddress("bob"), big.NewInt(1)), ErrOverflow)
}
