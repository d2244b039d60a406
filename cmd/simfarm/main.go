package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"math/big"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/yieldfarm-engine-go/cmd/simfarm/config"
	"github.com/defistate/yieldfarm-engine-go/engine"
	"github.com/defistate/yieldfarm-engine-go/farm"
	"github.com/defistate/yieldfarm-engine-go/feesplit"
	"github.com/defistate/yieldfarm-engine-go/lockledger"
	"github.com/defistate/yieldfarm-engine-go/schedule"
	"github.com/defistate/yieldfarm-engine-go/token"
)

const DefaultEventBufferSize = 256

var (
	engineAddr  = common.HexToAddress("0x00000000000000000000000000000000000000e0")
	devAddr     = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	lpAddr      = common.HexToAddress("0x00000000000000000000000000000000000000d2")
	comAddr     = common.HexToAddress("0x00000000000000000000000000000000000000d3")
	founders    = common.HexToAddress("0x00000000000000000000000000000000000000d4")
	treasury    = common.HexToAddress("0x00000000000000000000000000000000000000d5")
	lockCustody = common.HexToAddress("0x00000000000000000000000000000000000000d6")
	deployer    = common.HexToAddress("0x00000000000000000000000000000000000000d0")
)

func main() {
	// create the log handler
	rootLogHandler := slog.NewJSONHandler(os.Stdout, nil)
	close := func() {
		os.Exit(1)
	}

	rootLogger := slog.New(rootLogHandler)
	prometheusRegistry := prometheus.DefaultRegisterer
	cfg, err := loadConfig()
	if err != nil {
		rootLogger.Error("Failed to load configuration", "error", err)
		close()
	}

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rewardPerBlock, err := cfg.RewardPerBlockInt()
	if err != nil {
		rootLogger.Error("Failed to parse emission rate", "error", err)
		close()
	}

	sched, err := schedule.New(&schedule.Config{
		RewardPerBlock:  rewardPerBlock,
		StartBlock:      cfg.StartBlock,
		HalvingInterval: cfg.HalvingInterval,
	})
	if err != nil {
		rootLogger.Error("Failed to initialize emission schedule", "error", err)
		close()
	}

	splitter, err := feesplit.New(feesplit.DefaultConfig())
	if err != nil {
		rootLogger.Error("Failed to initialize fee splitter", "error", err)
		close()
	}

	rewardToken := token.NewLedger("RWD", deployer)
	if err := rewardToken.TransferAuthority(deployer, engineAddr); err != nil {
		rootLogger.Error("Failed to hand mint authority to the engine", "error", err)
		close()
	}

	events := engine.NewChanRecorder(DefaultEventBufferSize)

	locks, err := lockledger.New(&lockledger.Config{
		LockFromBlock: cfg.LockFromBlock,
		LockToBlock:   cfg.LockToBlock,
		Token:         rewardToken,
		Custody:       lockCustody,
		Recorder:      events,
	})
	if err != nil {
		rootLogger.Error("Failed to initialize lock ledger", "error", err)
		close()
	}

	sys, err := farm.NewSystem(&farm.Config{
		Schedule:              sched,
		Splitter:              splitter,
		LockLedger:            locks,
		RewardToken:           rewardToken,
		Minter:                rewardToken.AsMinter(engineAddr),
		EngineAddr:            engineAddr,
		DevAddr:               devAddr,
		LPAddr:                lpAddr,
		ComAddr:               comAddr,
		FoundersAddr:          founders,
		TreasuryAddr:          treasury,
		LockParts:             cfg.LockParts,
		EmergencyPenaltyParts: cfg.EmergencyPenaltyParts,
		EmergencyFeeParts:     cfg.EmergencyFeeParts,
		Recorder:              events,
		Logger:                rootLogger.With("component", "farm-engine"),
		Registry:              prometheusRegistry,
	})
	if err != nil {
		rootLogger.Error("Failed to initialize farm system", "error", err)
		close()
	}

	// One stake ledger and one pool per configured entry, funded users on each.
	users := make([]common.Address, cfg.Users)
	for i := range users {
		users[i] = common.BigToAddress(big.NewInt(int64(0xa000 + i)))
	}
	grant := new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1e18))

	poolIDs := make([]uint64, 0, len(cfg.Pools))
	for i, p := range cfg.Pools {
		lp := token.NewLedger("LP", deployer)
		for _, u := range users {
			if err := lp.Mint(deployer, u, grant); err != nil {
				rootLogger.Error("Failed to fund simulated user", "error", err)
				close()
			}
		}
		fees := make([]farm.FeeStage, len(p.WithdrawFees))
		for j, s := range p.WithdrawFees {
			fees[j] = farm.FeeStage{MinBlocksStaked: s.MinBlocksStaked, FeeParts: s.FeeParts}
		}
		id, err := sys.AddPool(cfg.StartBlock, farm.PoolParams{
			Weight:          p.Weight,
			Token:           lp,
			TokenAddr:       common.BigToAddress(big.NewInt(int64(0x1000 + i))),
			DepositFeeParts: p.DepositFeeParts,
			WithdrawFees:    fees,
		}, true)
		if err != nil {
			rootLogger.Error("Failed to add pool", "pool", i, "error", err)
			close()
		}
		poolIDs = append(poolIDs, id)
	}

	// Drain engine events into the structured log until the simulation ends.
	var wg sync.WaitGroup
	wg.Add(1)
	done := make(chan struct{})
	go func() {
		defer wg.Done()
		logger := rootLogger.With("component", "events")
		for {
			select {
			case ev := <-events.Events():
				logger.Info("engine event",
					"kind", ev.Kind,
					"block", ev.Block,
					"user", ev.User,
					"pool", ev.PoolID,
					"amount", ev.Amount,
					"locked", ev.Locked,
				)
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	runSimulation(ctx, rootLogger, sys, cfg, users, poolIDs)
	analyze(rootLogger, sys, rewardToken, locks, users, cfg.StartBlock+cfg.Blocks)

	// stop event draining
	go func() { done <- struct{}{} }()
	wg.Wait()
}

// runSimulation replays a deterministic pseudo-random operation stream
// against the farm, one batch per block.
func runSimulation(ctx context.Context, logger *slog.Logger, sys *farm.System, cfg *config.SimConfig, users []common.Address, poolIDs []uint64) {
	rng := rand.New(rand.NewSource(cfg.Seed))
	stakeUnit := new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))

	for block := cfg.StartBlock; block <= cfg.StartBlock+cfg.Blocks; block++ {
		select {
		case <-ctx.Done():
			logger.Warn("simulation interrupted", "block", block)
			return
		default:
		}

		user := users[rng.Intn(len(users))]
		pid := poolIDs[rng.Intn(len(poolIDs))]

		var err error
		switch rng.Intn(10) {
		case 0, 1, 2, 3:
			err = sys.Deposit(block, user, pid, stakeUnit, common.Address{})
		case 4, 5:
			staked, serr := sys.StakeOf(user, pid)
			if serr != nil {
				err = serr
				break
			}
			if staked.Sign() > 0 {
				err = sys.Withdraw(block, user, pid, staked, common.Address{})
			}
		case 6, 7, 8:
			err = sys.ClaimReward(block, user, pid)
		case 9:
			// Most blocks pass without this user acting at all.
		}
		if err != nil {
			logger.Error("operation failed", "block", block, "user", user, "pool", pid, "error", err)
			return
		}
	}

	if err := sys.MassUpdatePools(cfg.StartBlock + cfg.Blocks); err != nil {
		logger.Error("final refresh failed", "error", err)
	}
}

// analyze logs the end-of-run accounting: supply, its five-way decomposition
// destinations, and the vesting ledger totals.
func analyze(logger *slog.Logger, sys *farm.System, rewardToken *token.Ledger, locks *lockledger.Ledger, users []common.Address, lastBlock uint64) {
	logger.Info("simulation finished",
		"last_block", lastBlock,
		"pools", sys.PoolCount(),
		"reward_supply", rewardToken.TotalSupply(),
		"dev_fund", rewardToken.BalanceOf(devAddr),
		"lp_fund", rewardToken.BalanceOf(lpAddr),
		"com_fund", rewardToken.BalanceOf(comAddr),
		"founders_fund", rewardToken.BalanceOf(founders),
		"locked_total", locks.TotalLock(),
		"lock_custody", rewardToken.BalanceOf(lockCustody),
	)
	for _, u := range users {
		logger.Info("user position",
			"user", u,
			"liquid", rewardToken.BalanceOf(u),
			"locked", locks.LockOf(u),
			"ever_locked", locks.TotalEverLocked(u),
		)
	}
	for _, p := range sys.View().Pools {
		logger.Info("pool state",
			"pool", p.ID,
			"weight", p.Weight,
			"total_staked", p.TotalStaked,
			"acc_reward_per_share", p.AccRewardPerShare,
			"last_reward_block", p.LastRewardBlock,
			"holding", p.Holding,
		)
	}
}

func loadConfig() (*config.SimConfig, error) {
	configPath := flag.String("config", "", "Path to the configuration file. Empty runs the built-in reference scenario.")
	flag.Parse()
	if *configPath == "" {
		log.Printf("No configuration file given, using built-in defaults")
		return config.Default(), nil
	}
	log.Printf("Loading configuration from: %s", *configPath)
	return config.LoadConfig(*configPath)
}
