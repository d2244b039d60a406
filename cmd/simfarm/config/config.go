package config

import (
	"fmt"
	"math/big"
	"os"

	"gopkg.in/yaml.v3"
)

// FeeStageConfig is one withdrawal fee stage in the YAML file.
type FeeStageConfig struct {
	MinBlocksStaked uint64 `yaml:"minBlocksStaked"`
	FeeParts        uint64 `yaml:"feeParts"`
}

// PoolConfig describes one simulated pool.
type PoolConfig struct {
	Weight          uint64           `yaml:"weight"`
	DepositFeeParts uint64           `yaml:"depositFeeParts"`
	WithdrawFees    []FeeStageConfig `yaml:"withdrawFees"`
}

// SimConfig is the simulator configuration.
type SimConfig struct {
	// RewardPerBlock is the base emission in reward-token base units,
	// decimal-encoded to survive values beyond 64 bits.
	RewardPerBlock  string `yaml:"rewardPerBlock"`
	StartBlock      uint64 `yaml:"startBlock"`
	HalvingInterval uint64 `yaml:"halvingInterval"`

	LockFromBlock uint64 `yaml:"lockFromBlock"`
	LockToBlock   uint64 `yaml:"lockToBlock"`
	LockParts     uint64 `yaml:"lockParts"`

	EmergencyPenaltyParts uint64 `yaml:"emergencyPenaltyParts"`
	EmergencyFeeParts     uint64 `yaml:"emergencyFeeParts"`

	Pools []PoolConfig `yaml:"pools"`

	// Blocks is how many blocks past StartBlock the simulation advances.
	Blocks uint64 `yaml:"blocks"`
	Users  int    `yaml:"users"`
	Seed   int64  `yaml:"seed"`
}

// Default returns the reference deployment parameters: 1e18 per block, a
// 95% lock ratio vesting over 10k blocks, and a single unweighted pool.
func Default() *SimConfig {
	return &SimConfig{
		RewardPerBlock:        "1000000000000000000",
		StartBlock:            100,
		HalvingInterval:       1000,
		LockFromBlock:         10_000,
		LockToBlock:           20_000,
		LockParts:             95_000,
		EmergencyPenaltyParts: 250_000,
		EmergencyFeeParts:     5_625,
		Pools:                 []PoolConfig{{Weight: 1}},
		Blocks:                500,
		Users:                 4,
		Seed:                  1,
	}
}

// LoadConfig reads and validates a SimConfig from a YAML file.
func LoadConfig(path string) (*SimConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RewardPerBlockInt parses the decimal emission rate.
func (c *SimConfig) RewardPerBlockInt() (*big.Int, error) {
	v, ok := new(big.Int).SetString(c.RewardPerBlock, 10)
	if !ok || v.Sign() <= 0 {
		return nil, fmt.Errorf("config: rewardPerBlock %q is not a positive decimal", c.RewardPerBlock)
	}
	return v, nil
}

// Validate checks the cross-field constraints the engine cannot express.
func (c *SimConfig) Validate() error {
	if _, err := c.RewardPerBlockInt(); err != nil {
		return err
	}
	if c.HalvingInterval == 0 {
		return fmt.Errorf("config: halvingInterval must be positive")
	}
	if c.LockToBlock <= c.LockFromBlock {
		return fmt.Errorf("config: lock window [%d, %d) is empty", c.LockFromBlock, c.LockToBlock)
	}
	if len(c.Pools) == 0 {
		return fmt.Errorf("config: at least one pool is required")
	}
	if c.Users <= 0 {
		return fmt.Errorf("config: users must be positive")
	}
	return nil
}
