package farm

import (
	"math/big"

	"yetifarm/crypto"
)

// Accumulator is the farm-wide distribution state. There is exactly one per
// farm. All amounts are in the smallest unit of their asset.
type Accumulator struct {
	// RewardRate is the reward asset distributed per second while the period
	// is active.
	RewardRate *big.Int
	// PeriodFinish is the unix second at which the funded period ends.
	PeriodFinish uint64
	// LastUpdateTime is the unix second of the last settlement.
	LastUpdateTime uint64
	// RewardPerTokenStored is the cumulative reward earned by one unit of
	// stake since genesis, scaled by Scale. It never decreases.
	RewardPerTokenStored *big.Int
	// TotalStaked caches the sum of every StakeEntry balance.
	TotalStaked *big.Int
}

// StakeEntry is the per-account position. It is created on the first stake
// and never removed.
type StakeEntry struct {
	Address crypto.Address
	// Balance is the staked amount currently held by the farm for the account.
	Balance *big.Int
	// RewardPerTokenPaid snapshots RewardPerTokenStored at the account's last
	// settlement.
	RewardPerTokenPaid *big.Int
	// RewardOwed is reward accrued but not yet transferred out.
	RewardOwed *big.Int
}

// PeriodState describes where the farm is in its reward period lifecycle.
type PeriodState uint8

const (
	// PeriodNone means no reward period was ever funded.
	PeriodNone PeriodState = iota
	// PeriodActive means the current time is before PeriodFinish.
	PeriodActive
	// PeriodExpired means the funded period has lapsed and no refund arrived yet.
	PeriodExpired
)

func (p PeriodState) String() string {
	switch p {
	case PeriodActive:
		return "active"
	case PeriodExpired:
		return "expired"
	default:
		return "none"
	}
}

// Position is the read-only view of an account.
type Position struct {
	Address            crypto.Address
	Balance            *big.Int
	RewardPerTokenPaid *big.Int
	RewardOwed         *big.Int
	Earned             *big.Int
}

// Status is the read-only view of the accumulator at a point in time.
type Status struct {
	Now                      uint64
	Period                   PeriodState
	RewardRate               *big.Int
	PeriodFinish             uint64
	LastUpdateTime           uint64
	LastTimeRewardApplicable uint64
	RewardPerTokenStored     *big.Int
	RewardPerToken           *big.Int
	TotalStaked              *big.Int
}

func newAccumulator() *Accumulator {
	return &Accumulator{
		RewardRate:           big.NewInt(0),
		RewardPerTokenStored: big.NewInt(0),
		TotalStaked:          big.NewInt(0),
	}
}

func newStakeEntry(addr crypto.Address) *StakeEntry {
	return &StakeEntry{
		Address:            addr,
		Balance:            big.NewInt(0),
		RewardPerTokenPaid: big.NewInt(0),
		RewardOwed:         big.NewInt(0),
	}
}

// Clone returns a deep copy of the accumulator.
func (a *Accumulator) Clone() *Accumulator {
	if a == nil {
		return nil
	}
	return &Accumulator{
		RewardRate:           normalizeBig(a.RewardRate),
		PeriodFinish:         a.PeriodFinish,
		LastUpdateTime:       a.LastUpdateTime,
		RewardPerTokenStored: normalizeBig(a.RewardPerTokenStored),
		TotalStaked:          normalizeBig(a.TotalStaked),
	}
}

// Clone returns a deep copy of the stake entry.
func (s *StakeEntry) Clone() *StakeEntry {
	if s == nil {
		return nil
	}
	return &StakeEntry{
		Address:            s.Address,
		Balance:            normalizeBig(s.Balance),
		RewardPerTokenPaid: normalizeBig(s.RewardPerTokenPaid),
		RewardOwed:         normalizeBig(s.RewardOwed),
	}
}
