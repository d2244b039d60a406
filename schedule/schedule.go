package schedule

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrInvalidConfig is returned when a schedule is constructed from an unusable configuration.
	ErrInvalidConfig = errors.New("schedule: invalid config")
)

// DefaultMultipliers is the halving multiplier table: the per-block multiplier
// starts at 512 and halves once per interval until it reaches 1. Emission stops
// entirely once the table is exhausted.
var DefaultMultipliers = []uint64{512, 256, 128, 64, 32, 16, 8, 4, 2, 1}

// Config holds the immutable parameters of an emission schedule.
type Config struct {
	// RewardPerBlock is the base per-block reward, before the halving multiplier.
	RewardPerBlock *big.Int

	// StartBlock is the first block that emits rewards. Any range before it
	// contributes zero.
	StartBlock uint64

	// HalvingInterval is the length, in blocks, of one halving epoch.
	HalvingInterval uint64

	// Multipliers is the per-epoch multiplier table. If nil, DefaultMultipliers
	// is used. Must be non-increasing.
	Multipliers []uint64
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.RewardPerBlock == nil || c.RewardPerBlock.Sign() < 0 {
		return fmt.Errorf("%w: RewardPerBlock must be non-nil and non-negative", ErrInvalidConfig)
	}
	if c.HalvingInterval == 0 {
		return fmt.Errorf("%w: HalvingInterval must be greater than 0", ErrInvalidConfig)
	}
	for i := 1; i < len(c.Multipliers); i++ {
		if c.Multipliers[i] > c.Multipliers[i-1] {
			return fmt.Errorf("%w: Multipliers must be non-increasing", ErrInvalidConfig)
		}
	}
	return nil
}

// Schedule computes per-block emission multipliers over halving epochs.
// It is pure configuration: all methods are read-only and safe for
// concurrent use.
type Schedule struct {
	rewardPerBlock  *big.Int
	startBlock      uint64
	halvingInterval uint64
	multipliers     []uint64
}

// New constructs a Schedule from a configuration, returning an error if the
// configuration is invalid.
func New(cfg *Config) (*Schedule, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	multipliers := cfg.Multipliers
	if multipliers == nil {
		multipliers = DefaultMultipliers
	}
	// Copy so later mutation of the caller's slice cannot change the schedule.
	table := make([]uint64, len(multipliers))
	copy(table, multipliers)

	return &Schedule{
		rewardPerBlock:  new(big.Int).Set(cfg.RewardPerBlock),
		startBlock:      cfg.StartBlock,
		halvingInterval: cfg.HalvingInterval,
		multipliers:     table,
	}, nil
}

// StartBlock returns the first emitting block.
func (s *Schedule) StartBlock() uint64 {
	return s.startBlock
}

// RewardPerBlock returns a copy of the base per-block reward.
func (s *Schedule) RewardPerBlock() *big.Int {
	return new(big.Int).Set(s.rewardPerBlock)
}

// endBlock is the first block past the multiplier table; blocks at or after
// it emit nothing.
func (s *Schedule) endBlock() uint64 {
	return s.startBlock + uint64(len(s.multipliers))*s.halvingInterval
}

// MultiplierAt returns the multiplier active at a single block, or 0 when the
// block is before the start block or past the last halving epoch.
func (s *Schedule) MultiplierAt(block uint64) uint64 {
	if block < s.startBlock {
		return 0
	}
	epoch := (block - s.startBlock) / s.halvingInterval
	if epoch >= uint64(len(s.multipliers)) {
		return 0
	}
	return s.multipliers[epoch]
}

// Multiplier sums the per-block multipliers over the half-open range
// [from, to). A range that straddles one or more halving boundaries is split
// into per-epoch sub-ranges, each weighted by the multiplier active there;
// collapsing the range onto a single multiplier would over- or under-count.
// Ranges entirely before the start block, or with to <= from, yield zero.
func (s *Schedule) Multiplier(from, to uint64) *big.Int {
	total := new(big.Int)
	if from < s.startBlock {
		from = s.startBlock
	}
	if end := s.endBlock(); to > end {
		to = end
	}
	if to <= from {
		return total
	}

	span := new(big.Int)
	for from < to {
		epoch := (from - s.startBlock) / s.halvingInterval
		epochEnd := s.startBlock + (epoch+1)*s.halvingInterval
		segEnd := to
		if epochEnd < segEnd {
			segEnd = epochEnd
		}
		span.SetUint64(segEnd - from)
		span.Mul(span, new(big.Int).SetUint64(s.multipliers[epoch]))
		total.Add(total, span)
		from = segEnd
	}
	return total
}

// EmissionRate returns the gross per-block emission at a single block:
// RewardPerBlock scaled by the multiplier active there.
func (s *Schedule) EmissionRate(block uint64) *big.Int {
	rate := new(big.Int).SetUint64(s.MultiplierAt(block))
	return rate.Mul(rate, s.rewardPerBlock)
}

// EmissionOver returns the gross emission over the half-open range [from, to):
// Multiplier(from, to) scaled by RewardPerBlock.
func (s *Schedule) EmissionOver(from, to uint64) *big.Int {
	return new(big.Int).Mul(s.Multiplier(from, to), s.rewardPerBlock)
}
