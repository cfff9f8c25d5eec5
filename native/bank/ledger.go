package bank

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/holiman/uint256"

	"yetifarm/crypto"
	"yetifarm/storage"
)

var (
	ErrInvalidAmount         = errors.New("bank: amount must not be negative")
	ErrOverflow              = errors.New("bank: amount overflows uint256")
	ErrInsufficientBalance   = errors.New("bank: insufficient balance")
	ErrInsufficientAllowance = errors.New("bank: insufficient allowance")
	ErrInvalidSymbol         = errors.New("bank: asset symbol required")
	errNilDatabase           = errors.New("bank: database not configured")
)

// maxAllowance is treated as an unlimited approval and never decremented.
var maxAllowance = new(uint256.Int).SetAllOne()

// Ledger is a fungible token ledger with balance, transfer, mint, approve and
// delegated transfer semantics. Balances are unsigned 256-bit integers
// persisted in the supplied database under a per-symbol key space.
type Ledger struct {
	symbol string
	db     storage.Database
	mu     sync.Mutex
}

// NewLedger binds a ledger for the asset symbol to the database.
func NewLedger(symbol string, db storage.Database) (*Ledger, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, ErrInvalidSymbol
	}
	if db == nil {
		return nil, errNilDatabase
	}
	return &Ledger{symbol: symbol, db: db}, nil
}

// Symbol returns the normalised asset symbol.
func (l *Ledger) Symbol() string { return l.symbol }

func (l *Ledger) balanceKey(addr crypto.Address) []byte {
	return append([]byte("bank/"+l.symbol+"/b/"), addr.Bytes()...)
}

func (l *Ledger) allowanceKey(owner, spender crypto.Address) []byte {
	key := append([]byte("bank/"+l.symbol+"/a/"), owner.Bytes()...)
	return append(key, spender.Bytes()...)
}

func (l *Ledger) supplyKey() []byte {
	return []byte("bank/" + l.symbol + "/supply")
}

func (l *Ledger) read(key []byte) (*uint256.Int, error) {
	raw, err := l.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("bank: read %s: %w", l.symbol, err)
	}
	return new(uint256.Int).SetBytes(raw), nil
}

func toUint256(amount *big.Int) (*uint256.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrOverflow
	}
	return value, nil
}

// BalanceOf returns the holder's balance.
func (l *Ledger) BalanceOf(holder crypto.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal, err := l.read(l.balanceKey(holder))
	if err != nil {
		return nil, err
	}
	return bal.ToBig(), nil
}

// TotalSupply returns the amount minted so far.
func (l *Ledger) TotalSupply() (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	supply, err := l.read(l.supplyKey())
	if err != nil {
		return nil, err
	}
	return supply.ToBig(), nil
}

// Allowance returns how much spender may move on behalf of owner.
func (l *Ledger) Allowance(owner, spender crypto.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	allowance, err := l.read(l.allowanceKey(owner, spender))
	if err != nil {
		return nil, err
	}
	return allowance.ToBig(), nil
}

// Mint credits amount to the recipient and grows the total supply.
func (l *Ledger) Mint(to crypto.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := l.db.NewBatch()
	if err := l.Stage(batch).mint(to, amount); err != nil {
		return err
	}
	return batch.Write()
}

// Approve sets the spender allowance for owner, replacing any previous value.
func (l *Ledger) Approve(owner, spender crypto.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := l.db.NewBatch()
	if err := l.Stage(batch).approve(owner, spender, amount); err != nil {
		return err
	}
	return batch.Write()
}

// Stage collects ledger writes into a caller-owned batch so they commit
// together with records of other stores. Reads observe the writes staged
// earlier through the same Stage. Nothing is visible until the batch is
// written.
type Stage struct {
	ledger  *Ledger
	batch   storage.Batch
	pending map[string]*uint256.Int
}

// Stage opens a staging view of the ledger over batch.
func (l *Ledger) Stage(batch storage.Batch) *Stage {
	return &Stage{ledger: l, batch: batch, pending: make(map[string]*uint256.Int)}
}

// Mint stages a credit to the recipient and the matching supply growth.
func (s *Stage) Mint(to crypto.Address, amount *big.Int) error {
	s.ledger.mu.Lock()
	defer s.ledger.mu.Unlock()
	return s.mint(to, amount)
}

// Approve stages a spender allowance for owner.
func (s *Stage) Approve(owner, spender crypto.Address, amount *big.Int) error {
	s.ledger.mu.Lock()
	defer s.ledger.mu.Unlock()
	return s.approve(owner, spender, amount)
}

func (s *Stage) read(key []byte) (*uint256.Int, error) {
	if value, ok := s.pending[string(key)]; ok {
		return new(uint256.Int).Set(value), nil
	}
	return s.ledger.read(key)
}

func (s *Stage) put(key []byte, value *uint256.Int) {
	s.pending[string(key)] = new(uint256.Int).Set(value)
	s.batch.Put(key, value.Bytes())
}

func (s *Stage) mint(to crypto.Address, amount *big.Int) error {
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	supplyKey := s.ledger.supplyKey()
	supply, err := s.read(supplyKey)
	if err != nil {
		return err
	}
	newSupply, overflow := new(uint256.Int).AddOverflow(supply, value)
	if overflow {
		return ErrOverflow
	}
	balanceKey := s.ledger.balanceKey(to)
	bal, err := s.read(balanceKey)
	if err != nil {
		return err
	}
	s.put(supplyKey, newSupply)
	s.put(balanceKey, new(uint256.Int).Add(bal, value))
	return nil
}

func (s *Stage) approve(owner, spender crypto.Address, amount *big.Int) error {
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	s.put(s.ledger.allowanceKey(owner, spender), value)
	return nil
}

// Transfer moves amount from one holder to another.
func (l *Ledger) Transfer(from, to crypto.Address, amount *big.Int) error {
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := l.db.NewBatch()
	if err := l.stageTransfer(batch, from, to, value); err != nil {
		return err
	}
	return batch.Write()
}

// TransferFrom moves amount from owner to recipient using the allowance
// granted to spender.
func (l *Ledger) TransferFrom(spender, owner, to crypto.Address, amount *big.Int) error {
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	allowance, err := l.read(l.allowanceKey(owner, spender))
	if err != nil {
		return err
	}
	if allowance.Lt(value) {
		return ErrInsufficientAllowance
	}
	batch := l.db.NewBatch()
	if err := l.stageTransfer(batch, owner, to, value); err != nil {
		return err
	}
	if !allowance.Eq(maxAllowance) {
		remaining := new(uint256.Int).Sub(allowance, value)
		batch.Put(l.allowanceKey(owner, spender), remaining.Bytes())
	}
	return batch.Write()
}

func (l *Ledger) stageTransfer(batch storage.Batch, from, to crypto.Address, value *uint256.Int) error {
	fromBal, err := l.read(l.balanceKey(from))
	if err != nil {
		return err
	}
	if fromBal.Lt(value) {
		return ErrInsufficientBalance
	}
	if value.IsZero() || from.Equal(to) {
		return nil
	}
	toBal, err := l.read(l.balanceKey(to))
	if err != nil {
		return err
	}
	newTo, overflow := new(uint256.Int).AddOverflow(toBal, value)
	if overflow {
		return ErrOverflow
	}
	batch.Put(l.balanceKey(from), new(uint256.Int).Sub(fromBal, value).Bytes())
	batch.Put(l.balanceKey(to), newTo.Bytes())
	return nil
}
