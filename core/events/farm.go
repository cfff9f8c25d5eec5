package events

import (
	"math/big"
	"strconv"

	"yetifarm/core/types"
	"yetifarm/crypto"
)

const (
	// TypeFarmStaked is emitted when an account deposits staked asset into the farm.
	TypeFarmStaked = "farm.staked"
	// TypeFarmWithdrawn is emitted when an account takes staked asset back out.
	TypeFarmWithdrawn = "farm.withdrawn"
	// TypeFarmRewardPaid is emitted when owed reward is transferred to an account.
	TypeFarmRewardPaid = "farm.rewardPaid"
	// TypeFarmRewardAdded is emitted when a reward period is funded or refunded.
	TypeFarmRewardAdded = "farm.rewardAdded"
)

// FarmStaked captures a deposit and the pool total after it.
type FarmStaked struct {
	Account     [20]byte
	Amount      *big.Int
	TotalStaked *big.Int
}

// EventType satisfies the Event interface.
func (FarmStaked) EventType() string { return TypeFarmStaked }

// Event converts the structured payload into a broadcastable event.
func (e FarmStaked) Event() *types.Event {
	attrs := map[string]string{
		"addr":   crypto.MustNewAddress(crypto.AccountPrefix, e.Account[:]).String(),
		"amount": formatAmount(e.Amount),
	}
	if e.TotalStaked != nil {
		attrs["totalStaked"] = formatAmount(e.TotalStaked)
	}
	return &types.Event{Type: TypeFarmStaked, Attributes: attrs}
}

// FarmWithdrawn captures a withdrawal and the pool total after it.
type FarmWithdrawn struct {
	Account     [20]byte
	Amount      *big.Int
	TotalStaked *big.Int
}

// EventType satisfies the Event interface.
func (FarmWithdrawn) EventType() string { return TypeFarmWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e FarmWithdrawn) Event() *types.Event {
	attrs := map[string]string{
		"addr":   crypto.MustNewAddress(crypto.AccountPrefix, e.Account[:]).String(),
		"amount": formatAmount(e.Amount),
	}
	if e.TotalStaked != nil {
		attrs["totalStaked"] = formatAmount(e.TotalStaked)
	}
	return &types.Event{Type: TypeFarmWithdrawn, Attributes: attrs}
}

// FarmRewardPaid captures a reward payout.
type FarmRewardPaid struct {
	Account [20]byte
	Reward  *big.Int
}

// EventType satisfies the Event interface.
func (FarmRewardPaid) EventType() string { return TypeFarmRewardPaid }

// Event converts the structured payload into a broadcastable event.
func (e FarmRewardPaid) Event() *types.Event {
	return &types.Event{Type: TypeFarmRewardPaid, Attributes: map[string]string{
		"addr":   crypto.MustNewAddress(crypto.AccountPrefix, e.Account[:]).String(),
		"reward": formatAmount(e.Reward),
	}}
}

// FarmRewardAdded captures a reward period (re)funding.
type FarmRewardAdded struct {
	Reward       *big.Int
	Duration     uint64
	RewardRate   *big.Int
	PeriodFinish uint64
}

// EventType satisfies the Event interface.
func (FarmRewardAdded) EventType() string { return TypeFarmRewardAdded }

// Event converts the structured payload into a broadcastable event.
func (e FarmRewardAdded) Event() *types.Event {
	attrs := map[string]string{
		"reward":       formatAmount(e.Reward),
		"duration":     strconv.FormatUint(e.Duration, 10),
		"rewardRate":   formatAmount(e.RewardRate),
		"periodFinish": strconv.FormatUint(e.PeriodFinish, 10),
	}
	return &types.Event{Type: TypeFarmRewardAdded, Attributes: attrs}
}
