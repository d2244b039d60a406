package token

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrNilAmount is returned when a nil pointer is passed as an amount.
	ErrNilAmount = errors.New("token: nil pointer passed as amount")
	// ErrInvalidAmount is returned when an amount is negative.
	ErrInvalidAmount = errors.New("token: amount must be non-negative")
	// ErrInsufficientBalance is returned when a transfer exceeds the sender's balance.
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	// ErrNotAuthorized is returned when a mint or authority transfer is attempted
	// by anyone other than the current authority.
	ErrNotAuthorized = errors.New("token: caller is not the mint authority")
	// ErrArithmeticOverflow is returned when a balance or the total supply would
	// exceed 256 bits. Balances never silently wrap.
	ErrArithmeticOverflow = errors.New("token: arithmetic overflow")
)

// Ledger is an in-memory fungible-token ledger: balances, transfers, and
// authority-gated minting. It backs both staked-token custody and reward-token
// issuance in tests and simulations; production deployments substitute a real
// token adapter behind the same method set.
//
// Balances are 256-bit words; every overflow is surfaced as
// ErrArithmeticOverflow. All methods are safe for concurrent use.
type Ledger struct {
	mu          sync.RWMutex
	symbol      string
	authority   common.Address
	balances    map[common.Address]*uint256.Int
	totalSupply *uint256.Int
}

// NewLedger creates an empty ledger whose mint authority is owner.
func NewLedger(symbol string, owner common.Address) *Ledger {
	return &Ledger{
		symbol:      symbol,
		authority:   owner,
		balances:    make(map[common.Address]*uint256.Int),
		totalSupply: new(uint256.Int),
	}
}

// Symbol returns the token's display symbol.
func (l *Ledger) Symbol() string {
	return l.symbol
}

// Authority returns the current mint authority.
func (l *Ledger) Authority() common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.authority
}

// TransferAuthority hands the mint authority to a new owner. This is the
// one-time setup step that assigns minting to the reward engine; it must be
// invoked by the current authority.
func (l *Ledger) TransferAuthority(caller, newOwner common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.authority {
		return fmt.Errorf("%w: %s", ErrNotAuthorized, caller)
	}
	l.authority = newOwner
	return nil
}

// BalanceOf returns a copy of the holder's balance.
func (l *Ledger) BalanceOf(holder common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if bal, ok := l.balances[holder]; ok {
		return bal.ToBig()
	}
	return new(big.Int)
}

// TotalSupply returns a copy of the total minted supply.
func (l *Ledger) TotalSupply() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalSupply.ToBig()
}

// checkAmount converts a public amount into a 256-bit word.
func checkAmount(amount *big.Int) (*uint256.Int, error) {
	if amount == nil {
		return nil, ErrNilAmount
	}
	if amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	v, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, fmt.Errorf("%w: amount exceeds 256 bits", ErrArithmeticOverflow)
	}
	return v, nil
}

// Transfer moves amount from one holder to another. It fails with
// ErrInsufficientBalance when the sender's balance is too small, leaving both
// balances untouched.
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	v, err := checkAmount(amount)
	if err != nil {
		return err
	}
	if v.IsZero() || from == to {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fromBal, ok := l.balances[from]
	if !ok || fromBal.Lt(v) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from, l.balanceLocked(from), amount)
	}

	toBal, ok := l.balances[to]
	if !ok {
		toBal = new(uint256.Int)
		l.balances[to] = toBal
	}
	// The recipient balance cannot overflow: total supply already fits.
	fromBal.Sub(fromBal, v)
	toBal.Add(toBal, v)
	return nil
}

// Mint creates amount new tokens for the recipient. Only the current mint
// authority may mint.
func (l *Ledger) Mint(caller, to common.Address, amount *big.Int) error {
	v, err := checkAmount(amount)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.authority {
		return fmt.Errorf("%w: %s", ErrNotAuthorized, caller)
	}

	newSupply := new(uint256.Int)
	if _, overflow := newSupply.AddOverflow(l.totalSupply, v); overflow {
		return fmt.Errorf("%w: total supply exceeds 256 bits", ErrArithmeticOverflow)
	}

	toBal, ok := l.balances[to]
	if !ok {
		toBal = new(uint256.Int)
		l.balances[to] = toBal
	}
	toBal.Add(toBal, v)
	l.totalSupply = newSupply
	return nil
}

func (l *Ledger) balanceLocked(holder common.Address) *uint256.Int {
	if bal, ok := l.balances[holder]; ok {
		return bal
	}
	return new(uint256.Int)
}

// Minter is a mint capability bound to one caller identity. It satisfies the
// two-argument mint signature consumed by the reward engine; the ledger still
// verifies the bound identity against its authority on every call.
type Minter struct {
	ledger *Ledger
	as     common.Address
}

// AsMinter returns a mint capability acting as the given identity.
func (l *Ledger) AsMinter(as common.Address) *Minter {
	return &Minter{ledger: l, as: as}
}

// Mint creates amount new tokens for the recipient.
func (m *Minter) Mint(to common.Address, amount *big.Int) error {
	return m.ledger.Mint(m.as, to, amount)
}
