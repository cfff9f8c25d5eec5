package state

import (
	"fmt"
	"math/big"

	"yetifarm/crypto"
	"yetifarm/native/farm"
)

var (
	farmAccumulatorKey = []byte("farm/accumulator")
	farmStakePrefix    = []byte("farm/stake/")
	farmGenesisKey     = []byte("farm/genesis")
)

func farmStakeKey(addr crypto.Address) []byte {
	buf := make([]byte, len(farmStakePrefix)+crypto.AddressLength)
	copy(buf, farmStakePrefix)
	copy(buf[len(farmStakePrefix):], addr.Bytes())
	return buf
}

type storedAccumulator struct {
	RewardRate           *big.Int
	PeriodFinish         uint64
	LastUpdateTime       uint64
	RewardPerTokenStored *big.Int
	TotalStaked          *big.Int
}

func newStoredAccumulator(acc *farm.Accumulator) *storedAccumulator {
	if acc == nil {
		acc = &farm.Accumulator{}
	}
	return &storedAccumulator{
		RewardRate:           copyBig(acc.RewardRate),
		PeriodFinish:         acc.PeriodFinish,
		LastUpdateTime:       acc.LastUpdateTime,
		RewardPerTokenStored: copyBig(acc.RewardPerTokenStored),
		TotalStaked:          copyBig(acc.TotalStaked),
	}
}

func (s *storedAccumulator) toAccumulator() *farm.Accumulator {
	return &farm.Accumulator{
		RewardRate:           copyBig(s.RewardRate),
		PeriodFinish:         s.PeriodFinish,
		LastUpdateTime:       s.LastUpdateTime,
		RewardPerTokenStored: copyBig(s.RewardPerTokenStored),
		TotalStaked:          copyBig(s.TotalStaked),
	}
}

type storedStakeEntry struct {
	Address            []byte
	Balance            *big.Int
	RewardPerTokenPaid *big.Int
	RewardOwed         *big.Int
}

func newStoredStakeEntry(entry *farm.StakeEntry) *storedStakeEntry {
	return &storedStakeEntry{
		Address:            append([]byte(nil), entry.Address.Bytes()...),
		Balance:            copyBig(entry.Balance),
		RewardPerTokenPaid: copyBig(entry.RewardPerTokenPaid),
		RewardOwed:         copyBig(entry.RewardOwed),
	}
}

func (s *storedStakeEntry) toStakeEntry() (*farm.StakeEntry, error) {
	if len(s.Address) != crypto.AddressLength {
		return nil, fmt.Errorf("state: stake entry address must be %d bytes, got %d", crypto.AddressLength, len(s.Address))
	}
	return &farm.StakeEntry{
		Address:            crypto.NewAddress(crypto.AccountPrefix, s.Address),
		Balance:            copyBig(s.Balance),
		RewardPerTokenPaid: copyBig(s.RewardPerTokenPaid),
		RewardOwed:         copyBig(s.RewardOwed),
	}, nil
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
