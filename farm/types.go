package farm

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInvalidConfig is returned when an engine is constructed from an unusable configuration.
	ErrInvalidConfig = errors.New("farm: invalid config")
	// ErrNilAmount is returned when a nil pointer is passed as an amount.
	ErrNilAmount = errors.New("farm: nil pointer passed as amount")
	// ErrInvalidAmount is returned when a deposit amount is zero or negative.
	ErrInvalidAmount = errors.New("farm: amount must be greater than zero")
	// ErrInsufficientStake is returned when a withdrawal exceeds the caller's stake.
	ErrInsufficientStake = errors.New("farm: insufficient staked amount")
	// ErrPoolNotFound is returned for an unknown pool id.
	ErrPoolNotFound = errors.New("farm: pool not found")
	// ErrDuplicateStakeToken is returned when adding a pool for a token that
	// already backs another pool.
	ErrDuplicateStakeToken = errors.New("farm: stake token already has a pool")
)

// FeeDenominator is the precision of stake-side fee rates: parts per 10^7.
// It is fine enough to express the 0.05625% exit fee exactly.
const FeeDenominator = 10_000_000

// accPrecision scales the reward-per-share accumulator: the accumulator
// carries reward per staked unit multiplied by 1e12.
var accPrecision = big.NewInt(1_000_000_000_000)

// Token is the fungible-token capability used for staked-token custody.
type Token interface {
	Transfer(from, to common.Address, amount *big.Int) error
	BalanceOf(holder common.Address) *big.Int
}

// Minter is the reward-token issuance capability, handed to the engine once
// at setup.
type Minter interface {
	Mint(to common.Address, amount *big.Int) error
}

// LockLedger is the vesting capability that receives the locked portion of
// every reward payout.
type LockLedger interface {
	Lock(holder common.Address, amount *big.Int, block uint64) (released *big.Int, err error)
	Custody() common.Address
}

// FeeStage is one step of a withdrawal fee schedule: the stage with the
// largest MinBlocksStaked not exceeding the blocks since the user's last
// deposit applies.
type FeeStage struct {
	MinBlocksStaked uint64 `json:"minBlocksStaked" yaml:"minBlocksStaked"`
	FeeParts        uint64 `json:"feeParts" yaml:"feeParts"`
}

// stake is one user's position in one pool.
type stake struct {
	// amount is the user's staked balance, net of deposit fees.
	amount *big.Int
	// rewardDebt is the accumulator product at the last settlement:
	// pending = amount*acc/accPrecision - rewardDebt.
	rewardDebt *big.Int
	// lastDepositBlock drives the withdrawal fee schedule.
	lastDepositBlock uint64
}

// pool is one weighted farming pool.
type pool struct {
	id        uint64
	weight    uint64
	token     Token
	tokenAddr common.Address

	totalStaked       *big.Int
	accRewardPerShare *big.Int
	lastRewardBlock   uint64

	depositFeeParts uint64
	withdrawFees    []FeeStage

	// holding accrues the farmer share of emission earned while the pool had
	// no stake, so no emission is lost to a division by zero.
	holding *big.Int

	stakes map[common.Address]*stake
}

// withdrawFeeParts picks the fee stage for the given number of blocks staked.
func (p *pool) withdrawFeeParts(blocksStaked uint64) uint64 {
	parts := uint64(0)
	for _, stage := range p.withdrawFees {
		if blocksStaked >= stage.MinBlocksStaked {
			parts = stage.FeeParts
		}
	}
	return parts
}

// PoolView is a read-only snapshot of one pool.
type PoolView struct {
	ID                uint64         `json:"id"`
	Weight            uint64         `json:"weight"`
	TokenAddr         common.Address `json:"tokenAddr"`
	TotalStaked       *big.Int       `json:"totalStaked"`
	AccRewardPerShare *big.Int       `json:"accRewardPerShare"`
	LastRewardBlock   uint64         `json:"lastRewardBlock"`
	Holding           *big.Int       `json:"holding"`
}

// FarmView is a read-only snapshot of the whole registry.
type FarmView struct {
	Pools       []PoolView `json:"pools"`
	TotalWeight uint64     `json:"totalWeight"`
}

// deepCopyPoolView creates a new PoolView with its own memory for the
// *big.Int fields, so a snapshot never shares state with the live registry.
func deepCopyPoolView(v PoolView) PoolView {
	out := v
	if v.TotalStaked != nil {
		out.TotalStaked = new(big.Int).Set(v.TotalStaked)
	}
	if v.AccRewardPerShare != nil {
		out.AccRewardPerShare = new(big.Int).Set(v.AccRewardPerShare)
	}
	if v.Holding != nil {
		out.Holding = new(big.Int).Set(v.Holding)
	}
	return out
}

func (p *pool) view() PoolView {
	return PoolView{
		ID:                p.id,
		Weight:            p.weight,
		TokenAddr:         p.tokenAddr,
		TotalStaked:       new(big.Int).Set(p.totalStaked),
		AccRewardPerShare: new(big.Int).Set(p.accRewardPerShare),
		LastRewardBlock:   p.lastRewardBlock,
		Holding:           new(big.Int).Set(p.holding),
	}
}
