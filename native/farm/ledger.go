package farm

import "math/big"

// settle credits the reward the entry accrued up to rewardPerToken and moves
// its snapshot forward.
func (s *StakeEntry) settle(rewardPerToken *big.Int) {
	owed := accrued(s.Balance, rewardPerToken, s.RewardPerTokenPaid)
	s.RewardOwed = new(big.Int).Add(normalizeBig(s.RewardOwed), owed)
	s.RewardPerTokenPaid = normalizeBig(rewardPerToken)
}

// earned is what settle would leave in RewardOwed at rewardPerToken.
func (s *StakeEntry) earned(rewardPerToken *big.Int) *big.Int {
	owed := accrued(s.Balance, rewardPerToken, s.RewardPerTokenPaid)
	return owed.Add(owed, normalizeBig(s.RewardOwed))
}

// StakeLedger is the settlement unit of a single operation: the accumulator
// and the calling account's entry, settled together before any balance
// changes. It works on copies; nothing is persisted until the engine commits.
type StakeLedger struct {
	acc   *Accumulator
	entry *StakeEntry
	// created is set when the entry did not exist before this operation.
	created bool
}

// Settle advances the accumulator to now and then credits the account.
func (l *StakeLedger) Settle(now uint64) {
	l.acc.settle(now)
	if l.entry != nil {
		l.entry.settle(l.acc.RewardPerTokenStored)
	}
}

// Deposit adds amount to the account and the pool total.
func (l *StakeLedger) Deposit(amount *big.Int) {
	l.entry.Balance = new(big.Int).Add(l.entry.Balance, amount)
	l.acc.TotalStaked = new(big.Int).Add(l.acc.TotalStaked, amount)
}

// Withdraw removes amount from the account and the pool total.
func (l *StakeLedger) Withdraw(amount *big.Int) error {
	if l.entry == nil || l.entry.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	l.entry.Balance = new(big.Int).Sub(l.entry.Balance, amount)
	l.acc.TotalStaked = new(big.Int).Sub(l.acc.TotalStaked, amount)
	return nil
}

// TakeReward zeroes the owed reward and returns it.
func (l *StakeLedger) TakeReward() *big.Int {
	if l.entry == nil {
		return big.NewInt(0)
	}
	owed := normalizeBig(l.entry.RewardOwed)
	l.entry.RewardOwed = big.NewInt(0)
	return owed
}

// Balance returns the account's staked balance.
func (l *StakeLedger) Balance() *big.Int {
	if l.entry == nil {
		return big.NewInt(0)
	}
	return normalizeBig(l.entry.Balance)
}
