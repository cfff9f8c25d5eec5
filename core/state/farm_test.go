package state

import (
	"bytes"
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"yetifarm/crypto"
	"yetifarm/native/farm"
	"yetifarm/storage"
)

func testAddress(b byte) crypto.Address {
	return crypto.NewAddress(crypto.AccountPrefix, bytes.Repeat([]byte{b}, crypto.AddressLength))
}

func TestFarmAccumulatorDefaultsToZero(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	acc, err := mgr.FarmAccumulator()
	require.NoError(t, err)
	require.Zero(t, acc.TotalStaked.Sign())
	require.Zero(t, acc.RewardRate.Sign())
	require.Zero(t, acc.RewardPerTokenStored.Sign())
	require.Zero(t, acc.PeriodFinish)

	_, ok, err := mgr.FarmStake(testAddress(0x01))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCommitFarmRoundtrip(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	mgr := NewManager(db)

	acc := &farm.Accumulator{
		RewardRate:           big.NewInt(10),
		PeriodFinish:         1_700_000_100,
		LastUpdateTime:       1_700_000_050,
		RewardPerTokenStored: new(big.Int).Mul(big.NewInt(25), farm.Scale),
		TotalStaked:          big.NewInt(4),
	}
	entry := &farm.StakeEntry{
		Address:            testAddress(0x02),
		Balance:            big.NewInt(4),
		RewardPerTokenPaid: new(big.Int).Mul(big.NewInt(20), farm.Scale),
		RewardOwed:         big.NewInt(3),
	}
	require.NoError(t, mgr.CommitFarm(acc, entry))

	acc.TotalStaked.SetInt64(99)
	entry.Balance.SetInt64(99)

	loaded, err := mgr.FarmAccumulator()
	require.NoError(t, err)
	require.Equal(t, "4", loaded.TotalStaked.String())
	require.Equal(t, "10", loaded.RewardRate.String())
	require.Equal(t, uint64(1_700_000_100), loaded.PeriodFinish)
	require.Equal(t, uint64(1_700_000_050), loaded.LastUpdateTime)
	require.Zero(t, loaded.RewardPerTokenStored.Cmp(new(big.Int).Mul(big.NewInt(25), farm.Scale)))

	stored, ok, err := mgr.FarmStake(testAddress(0x02))
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, stored.Address.Equal(testAddress(0x02)))
	require.Equal(t, "4", stored.Balance.String())
	require.Equal(t, "3", stored.RewardOwed.String())

	require.NoError(t, mgr.CommitFarm(loaded, nil))
	stakes, err := mgr.FarmStakes()
	require.NoError(t, err)
	require.Len(t, stakes, 1)
}

func TestFarmStakesOrderedAndPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "farm")
	db, err := storage.NewLevelDB(path)
	require.NoError(t, err)
	mgr := NewManager(db)

	acc := &farm.Accumulator{RewardRate: big.NewInt(0), RewardPerTokenStored: big.NewInt(0), TotalStaked: big.NewInt(6)}
	for _, b := range []byte{0x03, 0x01, 0x02} {
		entry := &farm.StakeEntry{
			Address:            testAddress(b),
			Balance:            big.NewInt(int64(b)),
			RewardPerTokenPaid: big.NewInt(0),
			RewardOwed:         big.NewInt(0),
		}
		require.NoError(t, mgr.CommitFarm(acc, entry))
	}
	db.Close()

	db, err = storage.NewLevelDB(path)
	require.NoError(t, err)
	defer db.Close()
	stakes, err := NewManager(db).FarmStakes()
	require.NoError(t, err)
	require.Len(t, stakes, 3)
	for i, entry := range stakes {
		require.Equal(t, int64(i+1), entry.Balance.Int64())
	}
}

func TestCommitFarmRejectsMissingValues(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	require.Error(t, mgr.CommitFarm(nil, nil))
	acc := &farm.Accumulator{}
	require.Error(t, mgr.CommitFarm(acc, &farm.StakeEntry{}))
	_, err := mgr.FarmAccumulator()
	require.NoError(t, err)
}

func TestGenesisMarker(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	applied, err := mgr.GenesisApplied()
	require.NoError(t, err)
	require.False(t, applied)
	require.NoError(t, mgr.MarkGenesisApplied(0))
	applied, err = mgr.GenesisApplied()
	require.NoError(t, err)
	require.True(t, applied)
}

func TestEnsureStateVersion(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	require.NoError(t, mgr.EnsureStateVersion(false))
	version, ok, err := mgr.StateVersion()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StateVersion, version)

	require.NoError(t, mgr.SetStateVersion(StateVersion+1))
	err = mgr.EnsureStateVersion(false)
	require.True(t, errors.Is(err, ErrStateVersionMismatch))
	require.NoError(t, mgr.EnsureStateVersion(true))
}
