package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"yetifarm/crypto"
	"yetifarm/native/farm"
	"yetifarm/storage"
)

// FarmAccumulator loads the farm accumulator. A fresh state yields a zeroed
// accumulator.
func (m *Manager) FarmAccumulator() (*farm.Accumulator, error) {
	stored := new(storedAccumulator)
	ok, err := m.KVGet(farmAccumulatorKey, stored)
	if err != nil {
		return nil, fmt.Errorf("state: load farm accumulator: %w", err)
	}
	if !ok {
		return &farm.Accumulator{
			RewardRate:           big.NewInt(0),
			RewardPerTokenStored: big.NewInt(0),
			TotalStaked:          big.NewInt(0),
		}, nil
	}
	return stored.toAccumulator(), nil
}

// FarmStake loads the stake entry of addr.
func (m *Manager) FarmStake(addr crypto.Address) (*farm.StakeEntry, bool, error) {
	stored := new(storedStakeEntry)
	ok, err := m.KVGet(farmStakeKey(addr), stored)
	if err != nil {
		return nil, false, fmt.Errorf("state: load stake %s: %w", addr, err)
	}
	if !ok {
		return nil, false, nil
	}
	entry, err := stored.toStakeEntry()
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

// FarmStakes returns every stake entry ordered by address bytes.
func (m *Manager) FarmStakes() ([]*farm.StakeEntry, error) {
	kvs, err := m.db.Prefix(farmStakePrefix)
	if err != nil {
		return nil, fmt.Errorf("state: iterate stakes: %w", err)
	}
	out := make([]*farm.StakeEntry, 0, len(kvs))
	for _, kv := range kvs {
		stored := new(storedStakeEntry)
		if err := rlp.DecodeBytes(kv.Value, stored); err != nil {
			return nil, fmt.Errorf("state: decode stake %x: %w", kv.Key, err)
		}
		entry, err := stored.toStakeEntry()
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// CommitFarm writes the accumulator and, when non-nil, the entry in one batch.
func (m *Manager) CommitFarm(acc *farm.Accumulator, entry *farm.StakeEntry) error {
	if acc == nil {
		return fmt.Errorf("state: farm accumulator required")
	}
	batch := m.db.NewBatch()
	if err := stage(batch, farmAccumulatorKey, newStoredAccumulator(acc)); err != nil {
		return err
	}
	if entry != nil {
		if entry.Address.IsZero() {
			return fmt.Errorf("state: stake entry address required")
		}
		if err := stage(batch, farmStakeKey(entry.Address), newStoredStakeEntry(entry)); err != nil {
			return err
		}
	}
	return batch.Write()
}

// GenesisApplied reports whether the one-off genesis allocation has run.
func (m *Manager) GenesisApplied() (bool, error) {
	var marker uint64
	return m.KVGet(farmGenesisKey, &marker)
}

// MarkGenesisApplied records that the genesis allocation has run.
func (m *Manager) MarkGenesisApplied(timestamp uint64) error {
	batch := m.db.NewBatch()
	if err := m.StageGenesisApplied(batch, timestamp); err != nil {
		return err
	}
	return batch.Write()
}

// StageGenesisApplied stages the genesis marker into batch.
func (m *Manager) StageGenesisApplied(batch storage.Batch, timestamp uint64) error {
	return stage(batch, farmGenesisKey, timestamp)
}
