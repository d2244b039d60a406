package lockledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/yieldfarm-engine-go/engine"
)

var (
	// ErrInvalidConfig is returned when a ledger is constructed from an unusable configuration.
	ErrInvalidConfig = errors.New("lockledger: invalid config")
	// ErrNilAmount is returned when a nil pointer is passed as an amount.
	ErrNilAmount = errors.New("lockledger: nil pointer passed as amount")
	// ErrInvalidAmount is returned when an amount is negative.
	ErrInvalidAmount = errors.New("lockledger: amount must be non-negative")
	// ErrCustodyShortfall is returned when a lock would exceed the tokens
	// actually held in custody; it means the caller forgot to fund the lock.
	ErrCustodyShortfall = errors.New("lockledger: custody balance below total lock")
)

// Token is the fungible-token capability consumed by the ledger.
type Token interface {
	Transfer(from, to common.Address, amount *big.Int) error
	BalanceOf(holder common.Address) *big.Int
}

// Config holds the immutable parameters of a lock ledger. The lock window is
// global configuration shared by every entry, not per-entry state.
type Config struct {
	// LockFromBlock is the block at which linear release begins. Before it,
	// nothing is unlockable.
	LockFromBlock uint64

	// LockToBlock is the block at which the entire locked balance becomes
	// releasable. Must be greater than LockFromBlock.
	LockToBlock uint64

	// Token moves released tokens out of custody.
	Token Token

	// Custody is the address holding all locked tokens.
	Custody common.Address

	// Recorder receives Unlock events. Optional; defaults to a no-op.
	Recorder engine.Recorder
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.LockToBlock <= c.LockFromBlock {
		return fmt.Errorf("%w: LockToBlock must be greater than LockFromBlock", ErrInvalidConfig)
	}
	if c.Token == nil {
		return fmt.Errorf("%w: Token is required", ErrInvalidConfig)
	}
	return nil
}

// entry is one holder's vesting state. Entries are never destroyed; a fully
// released entry persists with locked balance zero.
type entry struct {
	// totalEver is the total amount ever locked for the holder.
	totalEver *big.Int
	// unlocked is the amount already released to the holder's spendable
	// balance. unlocked <= totalEver.
	unlocked *big.Int
	// lastUnlockBlock is the block of the holder's most recent release.
	lastUnlockBlock uint64
}

// Ledger tracks, per holder, how much of their received reward balance is
// spendable versus time-locked, releasing locked balances linearly over the
// configured block window.
//
// All state-mutating methods are serialized behind a single writer lock, so
// the ledger preserves its invariants on a concurrent host.
type Ledger struct {
	lockFromBlock uint64
	lockToBlock   uint64
	token         Token
	custody       common.Address
	recorder      engine.Recorder

	mu        sync.RWMutex
	entries   map[common.Address]*entry
	totalLock *big.Int
}

// New constructs a Ledger from a configuration, returning an error if the
// configuration is invalid.
func New(cfg *Config) (*Ledger, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = engine.NopRecorder{}
	}
	return &Ledger{
		lockFromBlock: cfg.LockFromBlock,
		lockToBlock:   cfg.LockToBlock,
		token:         cfg.Token,
		custody:       cfg.Custody,
		recorder:      recorder,
		entries:       make(map[common.Address]*entry),
		totalLock:     new(big.Int),
	}, nil
}

// Custody returns the address holding locked tokens.
func (l *Ledger) Custody() common.Address {
	return l.custody
}

// Window returns the global lock window.
func (l *Ledger) Window() (fromBlock, toBlock uint64) {
	return l.lockFromBlock, l.lockToBlock
}

// TotalLock returns the sum of all currently locked balances.
func (l *Ledger) TotalLock() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.totalLock)
}

// LockOf returns the holder's currently locked balance.
func (l *Ledger) LockOf(holder common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if e, ok := l.entries[holder]; ok {
		return new(big.Int).Sub(e.totalEver, e.unlocked)
	}
	return new(big.Int)
}

// TotalEverLocked returns the total amount ever locked for the holder,
// including portions already released.
func (l *Ledger) TotalEverLocked(holder common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if e, ok := l.entries[holder]; ok {
		return new(big.Int).Set(e.totalEver)
	}
	return new(big.Int)
}

// LastUnlockBlock returns the block of the holder's most recent release, or 0.
func (l *Ledger) LastUnlockBlock(holder common.Address) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if e, ok := l.entries[holder]; ok {
		return e.lastUnlockBlock
	}
	return 0
}

// canUnlock computes the releasable amount for an entry at the given block.
// Before the window it is zero; at or past the window end it is the entire
// remaining locked balance; in between it is the linear fraction of the total
// ever locked, minus what was already released, floored at zero. For fixed
// lock state the result is non-decreasing in block.
func (l *Ledger) canUnlock(e *entry, block uint64) *big.Int {
	if e == nil || block < l.lockFromBlock {
		return new(big.Int)
	}
	remaining := new(big.Int).Sub(e.totalEver, e.unlocked)
	if block >= l.lockToBlock {
		return remaining
	}

	vested := new(big.Int).SetUint64(block - l.lockFromBlock)
	vested.Mul(e.totalEver, vested)
	vested.Div(vested, new(big.Int).SetUint64(l.lockToBlock-l.lockFromBlock))
	vested.Sub(vested, e.unlocked)
	if vested.Sign() < 0 {
		vested.SetInt64(0)
	}
	return vested
}

// CanUnlock returns the amount the holder could release at the given block.
func (l *Ledger) CanUnlock(holder common.Address, block uint64) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.canUnlock(l.entries[holder], block)
}

// Lock merges amount into the holder's locked balance. Any amount already
// releasable at the current block is paid out first, so vesting progress
// earned before this lock is not diluted by the new tokens. The caller must
// have moved the locked tokens into custody before calling.
func (l *Ledger) Lock(holder common.Address, amount *big.Int, block uint64) (released *big.Int, err error) {
	if amount == nil {
		return nil, ErrNilAmount
	}
	if amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[holder]
	if !ok {
		e = &entry{totalEver: new(big.Int), unlocked: new(big.Int)}
		l.entries[holder] = e
	}

	// Checked up front so a shortfall aborts before any release is paid out,
	// keeping the whole call all-or-nothing. The release below reduces the
	// custody balance and the total lock equally, so the check stays valid.
	newTotalLock := new(big.Int).Add(l.totalLock, amount)
	custody := l.token.BalanceOf(l.custody)
	if custody.Cmp(newTotalLock) < 0 {
		return nil, fmt.Errorf("%w: have %s, locking to %s", ErrCustodyShortfall, custody, newTotalLock)
	}

	released, err = l.releaseLocked(holder, e, block)
	if err != nil {
		return nil, err
	}

	e.totalEver.Add(e.totalEver, amount)
	l.totalLock.Add(l.totalLock, amount)
	return released, nil
}

// Unlock releases everything currently releasable for the holder. Calling it
// with nothing releasable is a zero-amount no-op, not an error.
func (l *Ledger) Unlock(holder common.Address, block uint64) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[holder]
	if !ok {
		return new(big.Int), nil
	}
	return l.releaseLocked(holder, e, block)
}

// releaseLocked moves the releasable amount from custody to the holder and
// advances the entry's baseline. Callers must hold the write lock. The token
// transfer happens before any state change, so a failed transfer leaves the
// ledger untouched.
func (l *Ledger) releaseLocked(holder common.Address, e *entry, block uint64) (*big.Int, error) {
	amount := l.canUnlock(e, block)
	if amount.Sign() == 0 {
		return amount, nil
	}

	if err := l.token.Transfer(l.custody, holder, amount); err != nil {
		return nil, err
	}

	e.unlocked.Add(e.unlocked, amount)
	e.lastUnlockBlock = block
	l.totalLock.Sub(l.totalLock, amount)

	l.recorder.Record(engine.Event{
		Kind:   engine.EventUnlock,
		Block:  block,
		User:   holder,
		Amount: new(big.Int).Set(amount),
	})
	return amount, nil
}
