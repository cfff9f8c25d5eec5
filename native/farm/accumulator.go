package farm

import (
	"math"
	"math/big"
)

// LastTimeRewardApplicable caps accrual at the end of the funded period.
func (a *Accumulator) LastTimeRewardApplicable(now uint64) uint64 {
	return minUint64(now, a.PeriodFinish)
}

// RewardPerToken returns the reward-per-token value as of now without
// mutating the accumulator. While nothing is staked the stored value is
// returned unchanged: reward emitted into an empty pool is not distributed.
func (a *Accumulator) RewardPerToken(now uint64) *big.Int {
	stored := normalizeBig(a.RewardPerTokenStored)
	if a.TotalStaked == nil || a.TotalStaked.Sign() == 0 {
		return stored
	}
	applicable := a.LastTimeRewardApplicable(now)
	if applicable <= a.LastUpdateTime {
		return stored
	}
	elapsed := new(big.Int).SetUint64(applicable - a.LastUpdateTime)
	emitted := elapsed.Mul(elapsed, normalizeBig(a.RewardRate))
	emitted.Mul(emitted, Scale)
	emitted.Quo(emitted, a.TotalStaked)
	return stored.Add(stored, emitted)
}

// settle checkpoints accrual up to now. It must run before TotalStaked or
// RewardRate change so the elapsed interval is priced with the values that
// were in force during it.
func (a *Accumulator) settle(now uint64) {
	a.RewardPerTokenStored = a.RewardPerToken(now)
	if applicable := a.LastTimeRewardApplicable(now); applicable > a.LastUpdateTime {
		a.LastUpdateTime = applicable
	}
}

// refund starts a new reward period of duration seconds funded with amount.
// Reward still undistributed from an active period is carried into the new
// rate. The caller validates duration and solvency.
func (a *Accumulator) refund(amount *big.Int, duration, now uint64) error {
	if duration == 0 {
		return ErrInvalidDuration
	}
	if duration > math.MaxUint64-now {
		return ErrInvalidDuration
	}
	a.settle(now)

	total := normalizeBig(amount)
	if now < a.PeriodFinish {
		remaining := new(big.Int).SetUint64(a.PeriodFinish - now)
		leftover := remaining.Mul(remaining, normalizeBig(a.RewardRate))
		total.Add(total, leftover)
	}
	a.RewardRate = total.Quo(total, new(big.Int).SetUint64(duration))
	a.LastUpdateTime = now
	a.PeriodFinish = now + duration
	return nil
}

// rewardForDuration is the total reward the current rate releases over
// duration seconds.
func (a *Accumulator) rewardForDuration(duration uint64) *big.Int {
	total := new(big.Int).SetUint64(duration)
	return total.Mul(total, normalizeBig(a.RewardRate))
}

// periodState classifies the accumulator at now.
func (a *Accumulator) periodState(now uint64) PeriodState {
	switch {
	case a.PeriodFinish == 0:
		return PeriodNone
	case now < a.PeriodFinish:
		return PeriodActive
	default:
		return PeriodExpired
	}
}
