package explorer

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"yetifarm/core/events"
	"yetifarm/crypto"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func account(b byte) [20]byte {
	var out [20]byte
	copy(out[:], bytes.Repeat([]byte{b}, 20))
	return out
}

func TestJournalRecordsAndFilters(t *testing.T) {
	journal := NewJournal(setupTestDB(t), "STK", "RWD", nil)
	alice := account(0x01)
	bob := account(0x02)

	journal.Emit(events.FarmStaked{Account: alice, Amount: big.NewInt(5), TotalStaked: big.NewInt(5)})
	journal.Emit(events.FarmStaked{Account: bob, Amount: big.NewInt(7), TotalStaked: big.NewInt(12)})
	journal.Emit(events.FarmRewardAdded{Reward: big.NewInt(1000), Duration: 100, RewardRate: big.NewInt(10), PeriodFinish: 200})
	journal.Emit(events.FarmRewardPaid{Account: alice, Reward: big.NewInt(40)})

	ctx := context.Background()
	all, err := journal.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.Equal(t, events.TypeFarmRewardPaid, all[0].Type, "newest first")
	require.Equal(t, "Claimed 40 RWD", all[0].Label)
	require.Equal(t, "Funded 1000 RWD", all[1].Label)
	require.Equal(t, "10", all[1].Attrs()["rewardRate"])
	require.NotEqual(t, uuid.Nil, all[0].EventID)

	aliceAddr := crypto.MustNewAddress(crypto.AccountPrefix, alice[:]).String()
	mine, err := journal.List(ctx, Filter{Address: aliceAddr})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	for _, rec := range mine {
		require.Equal(t, aliceAddr, rec.Address)
	}

	staked, err := journal.List(ctx, Filter{Type: events.TypeFarmStaked, Limit: 1})
	require.NoError(t, err)
	require.Len(t, staked, 1)
	require.Equal(t, "7", staked[0].Amount)
	require.Equal(t, "Staked 7 STK", staked[0].Label)
}

func TestOpenSelectsSQLite(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := Open(dsn)
	require.NoError(t, err)
	journal := NewJournal(db, "STK", "RWD", nil)
	require.NoError(t, journal.Record(context.Background(), events.FarmWithdrawn{Account: account(0x03), Amount: big.NewInt(1)}))
	records, err := journal.List(context.Background(), Filter{Limit: MaxLimit + 10})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "Withdrew 1 STK", records[0].Label)

	_, err = Open("  ")
	require.Error(t, err)
}

func TestEventLabel(t *testing.T) {
	require.Equal(t, "Staked 0 LP", EventLabel(events.TypeFarmStaked, "", " lp "))
	require.Equal(t, "Withdrew 3 ?", EventLabel(events.TypeFarmWithdrawn, "3", ""))
	require.Equal(t, "custom", EventLabel("custom", "1", "X"))
}
