package genesis

import (
	"fmt"

	"yetifarm/crypto"
	"yetifarm/native/bank"
	"yetifarm/storage"
)

// Marker records whether genesis already ran against a data directory. The
// marker is staged into the same batch as the allocations.
type Marker interface {
	GenesisApplied() (bool, error)
	NewBatch() storage.Batch
	StageGenesisApplied(batch storage.Batch, timestamp uint64) error
}

// Apply mints the allocations, grants the approvals and funds the reward of
// spec exactly once. custody is the farm account that receives the approvals
// and the reward funding, minted on the reward ledger. Every write and the
// marker commit in a single batch, so a failed entry leaves nothing behind.
// The returned flag is false when genesis had already been applied.
func Apply(spec *GenesisSpec, marker Marker, custody crypto.Address, reward *bank.Ledger, ledgers ...*bank.Ledger) (bool, error) {
	if spec == nil {
		return false, fmt.Errorf("genesis spec must not be nil")
	}
	if marker == nil {
		return false, fmt.Errorf("genesis marker must not be nil")
	}
	applied, err := marker.GenesisApplied()
	if err != nil {
		return false, err
	}
	if applied {
		return false, nil
	}

	batch := marker.NewBatch()
	stages := make(map[string]*bank.Stage, len(ledgers)+1)
	for _, ledger := range append([]*bank.Ledger{reward}, ledgers...) {
		if ledger != nil {
			stages[ledger.Symbol()] = ledger.Stage(batch)
		}
	}
	for _, entry := range spec.mints {
		stage, ok := stages[entry.Asset]
		if !ok {
			return false, fmt.Errorf("genesis: unknown asset %q", entry.Asset)
		}
		if err := stage.Mint(entry.Address, entry.Amount); err != nil {
			return false, fmt.Errorf("genesis: mint %s to %s: %w", entry.Asset, entry.Address, err)
		}
	}
	for _, entry := range spec.approvals {
		stage, ok := stages[entry.Asset]
		if !ok {
			return false, fmt.Errorf("genesis: unknown asset %q", entry.Asset)
		}
		if err := stage.Approve(entry.Address, custody, entry.Amount); err != nil {
			return false, fmt.Errorf("genesis: approve %s for %s: %w", entry.Asset, entry.Address, err)
		}
	}
	if amount, _, ok := spec.RewardAmount(); ok {
		if reward == nil {
			return false, fmt.Errorf("genesis: reward funding requires a reward ledger")
		}
		if err := stages[reward.Symbol()].Mint(custody, amount); err != nil {
			return false, fmt.Errorf("genesis: fund reward: %w", err)
		}
	}

	var ts uint64
	if !spec.genesisTimestamp.IsZero() && spec.genesisTimestamp.Unix() > 0 {
		ts = uint64(spec.genesisTimestamp.Unix())
	}
	if err := marker.StageGenesisApplied(batch, ts); err != nil {
		return false, err
	}
	if err := batch.Write(); err != nil {
		return false, fmt.Errorf("genesis: commit: %w", err)
	}
	return true, nil
}
