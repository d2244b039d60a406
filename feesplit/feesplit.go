package feesplit

import (
	"errors"
	"fmt"
	"math/big"
)

// Denominator is the precision of split percentages: parts per 100_000.
const Denominator = 100_000

var (
	// ErrInvalidConfig is returned when a splitter is constructed from an unusable configuration.
	ErrInvalidConfig = errors.New("feesplit: invalid config")
	// ErrNilAmount is returned when a nil pointer is passed as the amount to split.
	ErrNilAmount = errors.New("feesplit: nil pointer passed as amount")
	// ErrInvalidAmount is returned when a negative amount is passed to Split.
	ErrInvalidAmount = errors.New("feesplit: amount must be non-negative")
)

var denominator = big.NewInt(Denominator)

// Config holds the five destination percentages, in parts of Denominator.
// The parts may sum to less than Denominator; the shortfall is simply never
// minted. They are fixed at construction and never mutated mid-run.
type Config struct {
	FarmerParts  uint64
	DevParts     uint64
	LPParts      uint64
	ComParts     uint64
	FounderParts uint64
}

// DefaultConfig returns the reference deployment percentages: 49.625% to
// farmers, 4% to the dev fund, 2.5% each to liquidity and community, and
// 1.375% to the founders, for a 60% gross mint rate.
func DefaultConfig() *Config {
	return &Config{
		FarmerParts:  49_625,
		DevParts:     4_000,
		LPParts:      2_500,
		ComParts:     2_500,
		FounderParts: 1_375,
	}
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	sum := c.FarmerParts + c.DevParts + c.LPParts + c.ComParts + c.FounderParts
	if sum == 0 {
		return fmt.Errorf("%w: parts must not all be zero", ErrInvalidConfig)
	}
	if sum > Denominator {
		return fmt.Errorf("%w: parts sum %d exceeds denominator %d", ErrInvalidConfig, sum, Denominator)
	}
	if c.FarmerParts == 0 {
		return fmt.Errorf("%w: FarmerParts must be greater than 0", ErrInvalidConfig)
	}
	return nil
}

// Shares is one block range's gross emission decomposed across the five
// destinations. ForFarmer + ForDev + ForLP + ForCom + ForFounders always
// equals Total exactly.
type Shares struct {
	ForFarmer   *big.Int `json:"forFarmer"`
	ForDev      *big.Int `json:"forDev"`
	ForLP       *big.Int `json:"forLP"`
	ForCom      *big.Int `json:"forCom"`
	ForFounders *big.Int `json:"forFounders"`
}

// Total returns the exact sum of the five shares, which is the amount that
// must be minted for the range.
func (s Shares) Total() *big.Int {
	total := new(big.Int).Add(s.ForFarmer, s.ForDev)
	total.Add(total, s.ForLP)
	total.Add(total, s.ForCom)
	return total.Add(total, s.ForFounders)
}

// Splitter divides a raw emission amount across the five destinations.
// It is pure configuration: Split is read-only on the Splitter and safe for
// concurrent use.
type Splitter struct {
	farmerParts  *big.Int
	devParts     *big.Int
	lpParts      *big.Int
	comParts     *big.Int
	founderParts *big.Int
	totalParts   *big.Int
}

// New constructs a Splitter from a configuration, returning an error if the
// configuration is invalid.
func New(cfg *Config) (*Splitter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Splitter{
		farmerParts:  new(big.Int).SetUint64(cfg.FarmerParts),
		devParts:     new(big.Int).SetUint64(cfg.DevParts),
		lpParts:      new(big.Int).SetUint64(cfg.LPParts),
		comParts:     new(big.Int).SetUint64(cfg.ComParts),
		founderParts: new(big.Int).SetUint64(cfg.FounderParts),
		totalParts: new(big.Int).SetUint64(
			cfg.FarmerParts + cfg.DevParts + cfg.LPParts + cfg.ComParts + cfg.FounderParts),
	}, nil
}

// Split decomposes a raw emission amount into the five destination shares.
// Each non-farmer share is floored individually; the farmer share is the
// gross total minus the others, so it absorbs the integer remainder and the
// five shares sum exactly to the gross amount. Splitting zero yields five
// zero shares.
func (sp *Splitter) Split(raw *big.Int) (Shares, error) {
	if raw == nil {
		return Shares{}, ErrNilAmount
	}
	if raw.Sign() < 0 {
		return Shares{}, ErrInvalidAmount
	}

	part := func(parts *big.Int) *big.Int {
		share := new(big.Int).Mul(raw, parts)
		return share.Div(share, denominator)
	}

	total := part(sp.totalParts)
	dev := part(sp.devParts)
	lp := part(sp.lpParts)
	com := part(sp.comParts)
	founders := part(sp.founderParts)

	farmer := new(big.Int).Sub(total, dev)
	farmer.Sub(farmer, lp)
	farmer.Sub(farmer, com)
	farmer.Sub(farmer, founders)

	return Shares{
		ForFarmer:   farmer,
		ForDev:      dev,
		ForLP:       lp,
		ForCom:      com,
		ForFounders: founders,
	}, nil
}
