package farm

import (
	"errors"
	"fmt"
	"math/big"

	"yetifarm/core/events"
	"yetifarm/crypto"
	nativecommon "yetifarm/native/common"
	"yetifarm/observability/metrics"
)

// ModuleName identifies the farm for pausing and custody address derivation.
const ModuleName = "farm"

const (
	opStake    = "stake"
	opWithdraw = "withdraw"
	opReward   = "get_reward"
	opExit     = "exit"
	opNotify   = "notify_reward_amount"
)

type engineState interface {
	FarmAccumulator() (*Accumulator, error)
	FarmStake(addr crypto.Address) (*StakeEntry, bool, error)
	FarmStakes() ([]*StakeEntry, error)
	// CommitFarm persists the accumulator and, when non-nil, the entry in a
	// single atomic write.
	CommitFarm(acc *Accumulator, entry *StakeEntry) error
}

// Engine orchestrates the farm's state transitions: stake custody, reward
// accrual and reward payout.
//
// Engine is not safe for concurrent use. Mutations are rejected while another
// one is in flight, which covers asset gateways calling back into the farm;
// callers delivering operations from several goroutines serialize them.
type Engine struct {
	state   engineState
	module  crypto.Address
	staked  AssetGateway
	reward  AssetGateway
	clock   Clock
	emitter events.Emitter
	pauses  nativecommon.PauseView
	metrics *metrics.FarmMetrics
	guard   nativecommon.ReentrancyGuard
}

// NewEngine constructs a farm engine holding custody under module. staked and
// reward move the two assets; the engine reads the reward balance of module
// through reward when a period is funded.
func NewEngine(module crypto.Address, staked, reward AssetGateway) *Engine {
	return &Engine{
		module: module,
		staked: staked,
		reward: reward,
		clock:  SystemClock{},
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetClock replaces the time source.
func (e *Engine) SetClock(clock Clock) {
	if clock == nil {
		clock = SystemClock{}
	}
	e.clock = clock
}

// SetEmitter configures the sink receiving events after successful mutations.
func (e *Engine) SetEmitter(emitter events.Emitter) { e.emitter = emitter }

// SetPauses installs the pause view consulted before every mutation.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetMetrics attaches the Prometheus sink for engine operations.
func (e *Engine) SetMetrics(m *metrics.FarmMetrics) { e.metrics = m }

// Module returns the custody address of the farm.
func (e *Engine) Module() crypto.Address { return e.module }

type outcome struct {
	acc    *Accumulator
	events []events.Event
	paid   *big.Int
	funded *big.Int
}

type snapshot struct {
	acc   *Accumulator
	entry *StakeEntry
}

func (e *Engine) enter() error {
	if e.state == nil {
		return errNilState
	}
	if e.staked == nil || e.reward == nil {
		return errNilGateway
	}
	if e.clock == nil {
		return errNilClock
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	return e.guard.Enter()
}

func (e *Engine) run(op string, fn func() (*outcome, error)) (err error) {
	defer func() { e.metrics.ObserveOperation(op, err) }()
	if err = e.enter(); err != nil {
		return err
	}
	var result *outcome
	func() {
		defer e.guard.Exit()
		result, err = fn()
	}()
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if result.acc != nil {
		e.metrics.SetAccumulator(result.acc.TotalStaked, result.acc.RewardRate, result.acc.RewardPerTokenStored, result.acc.PeriodFinish)
	}
	e.metrics.AddRewardsPaid(result.paid)
	e.metrics.AddRewardsFunded(result.funded)
	for _, evt := range result.events {
		e.emit(evt)
	}
	return nil
}

func (e *Engine) emit(evt events.Event) {
	if e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) loadAccumulator() (*Accumulator, error) {
	acc, err := e.state.FarmAccumulator()
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return newAccumulator(), nil
	}
	return acc.Clone(), nil
}

// open loads the working copies for an operation on addr together with the
// pre-operation snapshot. When create is set a missing entry is started
// fresh; otherwise the ledger carries no entry for unknown accounts.
func (e *Engine) open(addr crypto.Address, create bool) (*StakeLedger, snapshot, error) {
	if addr.IsZero() || addr.Equal(e.module) {
		return nil, snapshot{}, ErrInvalidAccount
	}
	acc, err := e.loadAccumulator()
	if err != nil {
		return nil, snapshot{}, err
	}
	entry, ok, err := e.state.FarmStake(addr)
	if err != nil {
		return nil, snapshot{}, err
	}
	snap := snapshot{acc: acc.Clone()}
	ledger := &StakeLedger{acc: acc}
	switch {
	case ok && entry != nil:
		snap.entry = entry.Clone()
		ledger.entry = entry.Clone()
		ledger.entry.Address = addr
	case create:
		ledger.entry = newStakeEntry(addr)
		ledger.created = true
	}
	return ledger, snap, nil
}

// now reads the clock, clamped so it never precedes the last settlement.
func (e *Engine) now(acc *Accumulator) uint64 {
	ts := e.clock.Now()
	if acc != nil && ts < acc.LastUpdateTime {
		return acc.LastUpdateTime
	}
	return ts
}

// restore writes the pre-operation snapshot back after a failed transfer.
func (e *Engine) restore(snap snapshot, cause error) error {
	if err := e.state.CommitFarm(snap.acc, snap.entry); err != nil {
		return errors.Join(cause, fmt.Errorf("farm engine: restore state: %w", err))
	}
	return cause
}

// Stake pulls amount of the staked asset from addr into custody and credits
// it to the account after settling accrued reward.
func (e *Engine) Stake(addr crypto.Address, amount *big.Int) error {
	return e.run(opStake, func() (*outcome, error) {
		if !validAmount(amount) {
			return nil, ErrInvalidAmount
		}
		ledger, _, err := e.open(addr, true)
		if err != nil {
			return nil, err
		}
		value := new(big.Int).Set(amount)
		ledger.Settle(e.now(ledger.acc))
		ledger.Deposit(value)

		if err := e.staked.TransferIn(addr, value); err != nil {
			return nil, transferError(err)
		}
		if err := e.state.CommitFarm(ledger.acc, ledger.entry); err != nil {
			if refundErr := e.staked.TransferOut(addr, value); refundErr != nil {
				return nil, errors.Join(err, transferError(refundErr))
			}
			return nil, err
		}
		return &outcome{
			acc: ledger.acc,
			events: []events.Event{events.FarmStaked{
				Account:     accountBytes(addr),
				Amount:      value,
				TotalStaked: normalizeBig(ledger.acc.TotalStaked),
			}},
		}, nil
	})
}

// Withdraw returns amount of the staked asset to addr. Accrued reward stays
// owed to the account.
func (e *Engine) Withdraw(addr crypto.Address, amount *big.Int) error {
	return e.run(opWithdraw, func() (*outcome, error) {
		if !validAmount(amount) {
			return nil, fmt.Errorf("%w: %w", ErrInsufficientBalance, ErrInvalidAmount)
		}
		ledger, snap, err := e.open(addr, false)
		if err != nil {
			return nil, err
		}
		value := new(big.Int).Set(amount)
		if ledger.Balance().Cmp(value) < 0 {
			return nil, ErrInsufficientBalance
		}
		ledger.Settle(e.now(ledger.acc))
		if err := ledger.Withdraw(value); err != nil {
			return nil, err
		}
		if err := e.state.CommitFarm(ledger.acc, ledger.entry); err != nil {
			return nil, err
		}
		if err := e.staked.TransferOut(addr, value); err != nil {
			return nil, e.restore(snap, transferError(err))
		}
		return &outcome{
			acc: ledger.acc,
			events: []events.Event{events.FarmWithdrawn{
				Account:     accountBytes(addr),
				Amount:      value,
				TotalStaked: normalizeBig(ledger.acc.TotalStaked),
			}},
		}, nil
	})
}

// GetReward settles addr and transfers everything it is owed. It returns the
// amount paid; nothing is transferred when nothing is owed.
func (e *Engine) GetReward(addr crypto.Address) (*big.Int, error) {
	paid := big.NewInt(0)
	err := e.run(opReward, func() (*outcome, error) {
		ledger, snap, err := e.open(addr, false)
		if err != nil {
			return nil, err
		}
		ledger.Settle(e.now(ledger.acc))
		reward := ledger.TakeReward()
		if err := e.state.CommitFarm(ledger.acc, ledger.entry); err != nil {
			return nil, err
		}
		if reward.Sign() == 0 {
			return &outcome{acc: ledger.acc}, nil
		}
		if err := e.reward.TransferOut(addr, reward); err != nil {
			return nil, e.restore(snap, transferError(err))
		}
		paid = reward
		return &outcome{
			acc:  ledger.acc,
			paid: reward,
			events: []events.Event{events.FarmRewardPaid{
				Account: accountBytes(addr),
				Reward:  normalizeBig(reward),
			}},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return normalizeBig(paid), nil
}

// Exit withdraws the whole staked balance of addr and pays its owed reward.
// It returns the withdrawn stake and the reward paid.
func (e *Engine) Exit(addr crypto.Address) (*big.Int, *big.Int, error) {
	withdrawn := big.NewInt(0)
	paid := big.NewInt(0)
	err := e.run(opExit, func() (*outcome, error) {
		ledger, snap, err := e.open(addr, false)
		if err != nil {
			return nil, err
		}
		balance := ledger.Balance()
		if balance.Sign() == 0 {
			return nil, ErrInvalidAmount
		}
		ledger.Settle(e.now(ledger.acc))
		if err := ledger.Withdraw(balance); err != nil {
			return nil, err
		}
		partial := snapshot{acc: ledger.acc.Clone(), entry: ledger.entry.Clone()}
		reward := ledger.TakeReward()
		if err := e.state.CommitFarm(ledger.acc, ledger.entry); err != nil {
			return nil, err
		}
		if err := e.staked.TransferOut(addr, balance); err != nil {
			return nil, e.restore(snap, transferError(err))
		}
		if reward.Sign() > 0 {
			if err := e.reward.TransferOut(addr, reward); err != nil {
				cause := transferError(err)
				if pullErr := e.staked.TransferIn(addr, balance); pullErr == nil {
					return nil, e.restore(snap, cause)
				}
				// The stake already left custody: keep the withdrawal and
				// leave the reward owed.
				return nil, e.restore(partial, cause)
			}
		}

		withdrawn = balance
		paid = reward
		result := &outcome{
			acc: ledger.acc,
			events: []events.Event{events.FarmWithdrawn{
				Account:     accountBytes(addr),
				Amount:      normalizeBig(balance),
				TotalStaked: normalizeBig(ledger.acc.TotalStaked),
			}},
		}
		if reward.Sign() > 0 {
			result.paid = reward
			result.events = append(result.events, events.FarmRewardPaid{
				Account: accountBytes(addr),
				Reward:  normalizeBig(reward),
			})
		}
		return result, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return normalizeBig(withdrawn), normalizeBig(paid), nil
}

// NotifyRewardAmount starts a reward period of duration seconds distributing
// amount, blending in whatever the active period has not yet released. The
// reward asset must already be held by the farm: the new rate multiplied by
// duration may not exceed the farm's reward balance. A zero amount is
// accepted and only re-spreads the leftover.
func (e *Engine) NotifyRewardAmount(amount *big.Int, duration uint64) error {
	return e.run(opNotify, func() (*outcome, error) {
		if amount == nil {
			amount = big.NewInt(0)
		}
		if amount.Sign() < 0 || (amount.Sign() > 0 && !validAmount(amount)) {
			return nil, ErrInvalidAmount
		}
		if duration == 0 {
			return nil, ErrInvalidDuration
		}
		acc, err := e.loadAccumulator()
		if err != nil {
			return nil, err
		}
		now := e.now(acc)
		if err := acc.refund(amount, duration, now); err != nil {
			return nil, err
		}
		balance, err := e.reward.BalanceOf(e.module)
		if err != nil {
			return nil, transferError(err)
		}
		if acc.rewardForDuration(duration).Cmp(normalizeBig(balance)) > 0 {
			return nil, ErrInsufficientFunding
		}
		if err := e.state.CommitFarm(acc, nil); err != nil {
			return nil, err
		}
		return &outcome{
			acc:    acc,
			funded: normalizeBig(amount),
			events: []events.Event{events.FarmRewardAdded{
				Reward:       normalizeBig(amount),
				Duration:     duration,
				RewardRate:   normalizeBig(acc.RewardRate),
				PeriodFinish: acc.PeriodFinish,
			}},
		}, nil
	})
}

func (e *Engine) view() (*Accumulator, uint64, error) {
	if e.state == nil {
		return nil, 0, errNilState
	}
	if e.clock == nil {
		return nil, 0, errNilClock
	}
	acc, err := e.loadAccumulator()
	if err != nil {
		return nil, 0, err
	}
	return acc, e.now(acc), nil
}

// RewardPerToken returns the scaled reward earned by one staked unit since
// genesis, as of now.
func (e *Engine) RewardPerToken() (*big.Int, error) {
	acc, now, err := e.view()
	if err != nil {
		return nil, err
	}
	return acc.RewardPerToken(now), nil
}

// LastTimeRewardApplicable returns min(now, periodFinish).
func (e *Engine) LastTimeRewardApplicable() (uint64, error) {
	acc, now, err := e.view()
	if err != nil {
		return 0, err
	}
	return acc.LastTimeRewardApplicable(now), nil
}

// Earned returns the reward addr could claim now.
func (e *Engine) Earned(addr crypto.Address) (*big.Int, error) {
	pos, err := e.Position(addr)
	if err != nil {
		return nil, err
	}
	return pos.Earned, nil
}

// BalanceOf returns the staked balance of addr.
func (e *Engine) BalanceOf(addr crypto.Address) (*big.Int, error) {
	pos, err := e.Position(addr)
	if err != nil {
		return nil, err
	}
	return pos.Balance, nil
}

// TotalSupply returns the total staked amount.
func (e *Engine) TotalSupply() (*big.Int, error) {
	acc, _, err := e.view()
	if err != nil {
		return nil, err
	}
	return normalizeBig(acc.TotalStaked), nil
}

// RewardRate returns the reward released per second in the current period.
func (e *Engine) RewardRate() (*big.Int, error) {
	acc, _, err := e.view()
	if err != nil {
		return nil, err
	}
	return normalizeBig(acc.RewardRate), nil
}

// PeriodFinish returns the timestamp at which the current period ends.
func (e *Engine) PeriodFinish() (uint64, error) {
	acc, _, err := e.view()
	if err != nil {
		return 0, err
	}
	return acc.PeriodFinish, nil
}

// LastUpdateTime returns the timestamp of the last accumulator settlement.
func (e *Engine) LastUpdateTime() (uint64, error) {
	acc, _, err := e.view()
	if err != nil {
		return 0, err
	}
	return acc.LastUpdateTime, nil
}

// GetRewardForDuration returns rewardRate * duration.
func (e *Engine) GetRewardForDuration(duration uint64) (*big.Int, error) {
	acc, _, err := e.view()
	if err != nil {
		return nil, err
	}
	return acc.rewardForDuration(duration), nil
}

// Position returns the account view of addr. Unknown accounts report zeros.
func (e *Engine) Position(addr crypto.Address) (*Position, error) {
	acc, now, err := e.view()
	if err != nil {
		return nil, err
	}
	entry, ok, err := e.state.FarmStake(addr)
	if err != nil {
		return nil, err
	}
	if !ok || entry == nil {
		entry = newStakeEntry(addr)
	} else {
		entry = entry.Clone()
	}
	return &Position{
		Address:            addr,
		Balance:            normalizeBig(entry.Balance),
		RewardPerTokenPaid: normalizeBig(entry.RewardPerTokenPaid),
		RewardOwed:         normalizeBig(entry.RewardOwed),
		Earned:             entry.earned(acc.RewardPerToken(now)),
	}, nil
}

// Status returns the accumulator view as of now.
func (e *Engine) Status() (*Status, error) {
	acc, now, err := e.view()
	if err != nil {
		return nil, err
	}
	return &Status{
		Now:                      now,
		Period:                   acc.periodState(now),
		RewardRate:               normalizeBig(acc.RewardRate),
		PeriodFinish:             acc.PeriodFinish,
		LastUpdateTime:           acc.LastUpdateTime,
		LastTimeRewardApplicable: acc.LastTimeRewardApplicable(now),
		RewardPerTokenStored:     normalizeBig(acc.RewardPerTokenStored),
		RewardPerToken:           acc.RewardPerToken(now),
		TotalStaked:              normalizeBig(acc.TotalStaked),
	}, nil
}

// CheckInvariants verifies the bookkeeping against the stored entries and the
// staked asset held in custody.
func (e *Engine) CheckInvariants() error {
	acc, _, err := e.view()
	if err != nil {
		return err
	}
	entries, err := e.state.FarmStakes()
	if err != nil {
		return err
	}
	sum := big.NewInt(0)
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		if entry.Balance != nil && entry.Balance.Sign() < 0 {
			return fmt.Errorf("farm engine: negative balance for %s", entry.Address)
		}
		if normalizeBig(entry.RewardPerTokenPaid).Cmp(normalizeBig(acc.RewardPerTokenStored)) > 0 {
			return fmt.Errorf("farm engine: reward snapshot ahead of accumulator for %s", entry.Address)
		}
		sum.Add(sum, normalizeBig(entry.Balance))
	}
	if sum.Cmp(normalizeBig(acc.TotalStaked)) != 0 {
		return fmt.Errorf("farm engine: total staked %s does not match balances %s", normalizeBig(acc.TotalStaked), sum)
	}
	if e.staked != nil {
		held, err := e.staked.BalanceOf(e.module)
		if err != nil {
			return transferError(err)
		}
		if normalizeBig(held).Cmp(sum) < 0 {
			return fmt.Errorf("farm engine: custody %s below total staked %s", normalizeBig(held), sum)
		}
	}
	return nil
}

func accountBytes(addr crypto.Address) [20]byte {
	var out [20]byte
	copy(out[:], addr.Bytes())
	return out
}
