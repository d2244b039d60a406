package farm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/yieldfarm-engine-go/engine"
	"github.com/defistate/yieldfarm-engine-go/feesplit"
	"github.com/defistate/yieldfarm-engine-go/schedule"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the immutable construction parameters of a reward engine.
// Nothing here is mutable mid-run.
type Config struct {
	// Schedule is the halving emission schedule.
	Schedule *schedule.Schedule

	// Splitter decomposes each block range's emission across the five
	// destinations.
	Splitter *feesplit.Splitter

	// LockLedger receives the locked portion of every reward payout.
	LockLedger LockLedger

	// RewardToken moves reward tokens out of the engine's custody; Minter
	// issues them. Both act on behalf of EngineAddr, which must hold the
	// token's mint authority.
	RewardToken Token
	Minter      Minter

	// EngineAddr is the engine's own custody address for farmer-share
	// rewards and staked tokens.
	EngineAddr common.Address

	// Emission destinations.
	DevAddr      common.Address
	LPAddr       common.Address
	ComAddr      common.Address
	FoundersAddr common.Address

	// TreasuryAddr receives withdrawal fees and emergency penalties.
	TreasuryAddr common.Address

	// LockParts is the portion of every reward payout routed through the
	// lock ledger, in parts of feesplit.Denominator (95_000 = 95%).
	LockParts uint64

	// EmergencyPenaltyParts is the emergency-withdraw penalty sent to the
	// treasury, in parts of FeeDenominator (250_000 = 2.5%).
	EmergencyPenaltyParts uint64

	// EmergencyFeeParts is the emergency-withdraw exit fee sent to the dev
	// fund, in parts of FeeDenominator (5_625 = 0.05625%).
	EmergencyFeeParts uint64

	// Recorder receives the engine's event records. Optional; defaults to a
	// no-op.
	Recorder engine.Recorder

	// Logger is required for operational logging.
	Logger Logger

	// Registry receives the engine's metrics. Optional; metrics are dropped
	// when nil.
	Registry prometheus.Registerer
}

// validate checks if the configuration is valid, ensuring required
// dependencies are present.
func (c *Config) validate() error {
	if c.Schedule == nil {
		return fmt.Errorf("%w: Schedule is required", ErrInvalidConfig)
	}
	if c.Splitter == nil {
		return fmt.Errorf("%w: Splitter is required", ErrInvalidConfig)
	}
	if c.LockLedger == nil {
		return fmt.Errorf("%w: LockLedger is required", ErrInvalidConfig)
	}
	if c.RewardToken == nil {
		return fmt.Errorf("%w: RewardToken is required", ErrInvalidConfig)
	}
	if c.Minter == nil {
		return fmt.Errorf("%w: Minter is required", ErrInvalidConfig)
	}
	if c.Logger == nil {
		return fmt.Errorf("%w: Logger is required", ErrInvalidConfig)
	}
	if c.LockParts > feesplit.Denominator {
		return fmt.Errorf("%w: LockParts exceeds denominator", ErrInvalidConfig)
	}
	if c.EmergencyPenaltyParts+c.EmergencyFeeParts > FeeDenominator {
		return fmt.Errorf("%w: emergency fees exceed denominator", ErrInvalidConfig)
	}
	return nil
}

// PoolParams describes a pool to add to the registry.
type PoolParams struct {
	// Weight is the pool's share of global emission, in relative allocation
	// units.
	Weight uint64

	// Token is the staked-token capability; TokenAddr is its identity, used
	// for duplicate detection and views.
	Token     Token
	TokenAddr common.Address

	// DepositFeeParts is deducted from every deposit, in parts of
	// FeeDenominator, and routed to the dev fund without entering the
	// staked total.
	DepositFeeParts uint64

	// WithdrawFees is the withdrawal fee schedule, sorted by ascending
	// MinBlocksStaked. May be empty for fee-free withdrawals.
	WithdrawFees []FeeStage
}

// validate checks if the pool parameters are valid.
func (p *PoolParams) validate() error {
	if p.Token == nil {
		return fmt.Errorf("%w: pool Token is required", ErrInvalidConfig)
	}
	if p.DepositFeeParts >= FeeDenominator {
		return fmt.Errorf("%w: DepositFeeParts must be below denominator", ErrInvalidConfig)
	}
	for i, stage := range p.WithdrawFees {
		if stage.FeeParts >= FeeDenominator {
			return fmt.Errorf("%w: withdraw FeeParts must be below denominator", ErrInvalidConfig)
		}
		if i > 0 && stage.MinBlocksStaked <= p.WithdrawFees[i-1].MinBlocksStaked {
			return fmt.Errorf("%w: WithdrawFees must be sorted by ascending MinBlocksStaked", ErrInvalidConfig)
		}
	}
	return nil
}
