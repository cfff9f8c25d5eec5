package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"yetifarm/crypto"
)

// GenesisSpec describes the one-off allocation applied to a fresh data
// directory.
type GenesisSpec struct {
	GenesisTime string                       `json:"genesisTime"`
	Alloc       map[string]map[string]string `json:"alloc"`               // addr -> asset -> amount
	Approvals   map[string]map[string]string `json:"approvals,omitempty"` // addr -> asset -> allowance granted to the farm
	Reward      *RewardSpec                  `json:"reward,omitempty"`

	genesisTimestamp time.Time
	mints            []Entry
	approvals        []Entry
}

// RewardSpec funds the farm and opens its first reward period.
type RewardSpec struct {
	Amount   string `json:"amount"`
	Duration uint64 `json:"duration"`

	amount *big.Int
}

// Entry is a validated per-account asset amount.
type Entry struct {
	Asset   string
	Address crypto.Address
	Amount  *big.Int
}

func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	var spec GenesisSpec
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode genesis spec %q: %w", path, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis spec %q: %w", path, err)
	}
	return &spec, nil
}

func (s *GenesisSpec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

// Mints returns the validated allocations ordered by asset then address.
func (s *GenesisSpec) Mints() []Entry { return append([]Entry(nil), s.mints...) }

// ApprovalEntries returns the validated farm allowances in the same order.
func (s *GenesisSpec) ApprovalEntries() []Entry { return append([]Entry(nil), s.approvals...) }

// RewardAmount returns the configured reward funding, if any.
func (s *GenesisSpec) RewardAmount() (*big.Int, uint64, bool) {
	if s.Reward == nil || s.Reward.amount == nil {
		return nil, 0, false
	}
	return new(big.Int).Set(s.Reward.amount), s.Reward.Duration, true
}

// Validate parses every address and amount. It must run before the spec is
// applied.
func (s *GenesisSpec) Validate() error {
	if strings.TrimSpace(s.GenesisTime) != "" {
		parsed, err := parseGenesisTime(s.GenesisTime)
		if err != nil {
			return err
		}
		s.genesisTimestamp = parsed
	}
	mints, err := parseEntries("alloc", s.Alloc)
	if err != nil {
		return err
	}
	approvals, err := parseEntries("approvals", s.Approvals)
	if err != nil {
		return err
	}
	s.mints = mints
	s.approvals = approvals
	if s.Reward != nil {
		amount, err := parseAmountString(s.Reward.Amount)
		if err != nil {
			return fmt.Errorf("reward.amount: %w", err)
		}
		if s.Reward.Duration == 0 {
			return fmt.Errorf("reward.duration must be positive")
		}
		s.Reward.amount = amount
	}
	return nil
}

func parseEntries(field string, raw map[string]map[string]string) ([]Entry, error) {
	out := make([]Entry, 0)
	for addrStr, assets := range raw {
		addr, err := crypto.DecodeAddress(strings.TrimSpace(addrStr))
		if err != nil {
			return nil, fmt.Errorf("%s: address %q: %w", field, addrStr, err)
		}
		for asset, amountStr := range assets {
			symbol := strings.ToUpper(strings.TrimSpace(asset))
			if symbol == "" {
				return nil, fmt.Errorf("%s: empty asset for %s", field, addrStr)
			}
			amount, err := parseAmountString(amountStr)
			if err != nil {
				return nil, fmt.Errorf("%s: %s/%s: %w", field, addrStr, symbol, err)
			}
			out = append(out, Entry{Asset: symbol, Address: addr, Amount: amount})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Asset != out[j].Asset {
			return out[i].Asset < out[j].Asset
		}
		return bytes.Compare(out[i].Address.Bytes(), out[j].Address.Bytes()) < 0
	})
	return out, nil
}

func parseAmountString(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return nil, fmt.Errorf("amount %q exceeds 256 bits", value)
	}
	return amount, nil
}

func parseGenesisTime(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid genesisTime %q", value)
}
