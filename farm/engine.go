package farm

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/yieldfarm-engine-go/engine"
	"github.com/defistate/yieldfarm-engine-go/feesplit"
	"github.com/defistate/yieldfarm-engine-go/schedule"
)

// Engine is the reward orchestrator: an ordered registry of weighted pools,
// per-user stakes, the halving emission schedule, the five-way emission
// split, and the lock ledger routing.
//
// Engine itself assumes a single-threaded, transactional execution model:
// each operation runs to completion against an externally supplied,
// monotonically non-decreasing block number. Wrap it in a System to host it
// on concurrent callers.
type Engine struct {
	schedule    *schedule.Schedule
	splitter    *feesplit.Splitter
	lockLedger  LockLedger
	rewardToken Token
	minter      Minter

	engineAddr   common.Address
	devAddr      common.Address
	lpAddr       common.Address
	comAddr      common.Address
	foundersAddr common.Address
	treasuryAddr common.Address

	lockParts             *big.Int
	emergencyPenaltyParts *big.Int
	emergencyFeeParts     *big.Int

	pools       []*pool
	poolByToken map[common.Address]uint64
	totalWeight uint64

	recorder engine.Recorder
	logger   Logger
	metrics  *Metrics
}

// New constructs an Engine from a configuration, returning an error if the
// configuration is invalid.
func New(cfg *Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = engine.NopRecorder{}
	}
	return &Engine{
		schedule:              cfg.Schedule,
		splitter:              cfg.Splitter,
		lockLedger:            cfg.LockLedger,
		rewardToken:           cfg.RewardToken,
		minter:                cfg.Minter,
		engineAddr:            cfg.EngineAddr,
		devAddr:               cfg.DevAddr,
		lpAddr:                cfg.LPAddr,
		comAddr:               cfg.ComAddr,
		foundersAddr:          cfg.FoundersAddr,
		treasuryAddr:          cfg.TreasuryAddr,
		lockParts:             new(big.Int).SetUint64(cfg.LockParts),
		emergencyPenaltyParts: new(big.Int).SetUint64(cfg.EmergencyPenaltyParts),
		emergencyFeeParts:     new(big.Int).SetUint64(cfg.EmergencyFeeParts),
		poolByToken:           make(map[common.Address]uint64),
		recorder:              recorder,
		logger:                cfg.Logger,
		metrics:               NewMetrics(cfg.Registry),
	}, nil
}

// PoolCount returns the number of registered pools.
func (e *Engine) PoolCount() int {
	return len(e.pools)
}

// TotalWeight returns the sum of all pool weights.
func (e *Engine) TotalWeight() uint64 {
	return e.totalWeight
}

func (e *Engine) pool(id uint64) (*pool, error) {
	if id >= uint64(len(e.pools)) {
		return nil, fmt.Errorf("%w: id %d", ErrPoolNotFound, id)
	}
	return e.pools[id], nil
}

// AddPool appends a new weighted pool. With updateAll set, every existing
// pool's accumulator is refreshed first, so the weight change cannot
// retroactively dilute rewards already accrued under the old weights.
func (e *Engine) AddPool(block uint64, params PoolParams, updateAll bool) (uint64, error) {
	if err := params.validate(); err != nil {
		return 0, err
	}
	if _, exists := e.poolByToken[params.TokenAddr]; exists {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateStakeToken, params.TokenAddr)
	}
	if updateAll {
		if err := e.MassUpdatePools(block); err != nil {
			return 0, err
		}
	}

	lastRewardBlock := block
	if start := e.schedule.StartBlock(); lastRewardBlock < start {
		lastRewardBlock = start
	}

	id := uint64(len(e.pools))
	fees := make([]FeeStage, len(params.WithdrawFees))
	copy(fees, params.WithdrawFees)
	e.pools = append(e.pools, &pool{
		id:                id,
		weight:            params.Weight,
		token:             params.Token,
		tokenAddr:         params.TokenAddr,
		totalStaked:       new(big.Int),
		accRewardPerShare: new(big.Int),
		lastRewardBlock:   lastRewardBlock,
		depositFeeParts:   params.DepositFeeParts,
		withdrawFees:      fees,
		holding:           new(big.Int),
		stakes:            make(map[common.Address]*stake),
	})
	e.poolByToken[params.TokenAddr] = id
	e.totalWeight += params.Weight

	e.logger.Info("pool added", "pool", id, "weight", params.Weight, "token", params.TokenAddr)
	return id, nil
}

// SetPoolWeight changes a pool's emission weight. With updateAll set, every
// pool is refreshed first so accrued rewards keep the old weights.
func (e *Engine) SetPoolWeight(block, poolID, weight uint64, updateAll bool) error {
	p, err := e.pool(poolID)
	if err != nil {
		return err
	}
	if updateAll {
		if err := e.MassUpdatePools(block); err != nil {
			return err
		}
	}
	e.totalWeight = e.totalWeight - p.weight + weight
	p.weight = weight
	e.logger.Info("pool weight set", "pool", poolID, "weight", weight)
	return nil
}

// MassUpdatePools refreshes every pool's accumulator up to the given block.
func (e *Engine) MassUpdatePools(block uint64) error {
	for _, p := range e.pools {
		if err := e.refreshPool(p, block); err != nil {
			return err
		}
	}
	return nil
}

// UpdatePool refreshes one pool's accumulator up to the given block.
// Refreshing twice at the same block is a no-op.
func (e *Engine) UpdatePool(block, poolID uint64) error {
	p, err := e.pool(poolID)
	if err != nil {
		return err
	}
	return e.refreshPool(p, block)
}

// poolEmission computes the raw emission owed to a pool over [from, to):
// the schedule's emission scaled by the pool's share of the total weight.
func (e *Engine) poolEmission(p *pool, from, to uint64) *big.Int {
	if e.totalWeight == 0 || p.weight == 0 {
		return new(big.Int)
	}
	raw := e.schedule.EmissionOver(from, to)
	raw.Mul(raw, new(big.Int).SetUint64(p.weight))
	return raw.Div(raw, new(big.Int).SetUint64(e.totalWeight))
}

// refreshPool brings a pool's accumulator up to the given block, minting the
// range's emission to the five destinations. The farmer share stays in the
// engine's custody: it raises the accumulator, or the pool's holding balance
// when nothing is staked. The mint happens before any state change, so a
// failed mint leaves the pool untouched.
func (e *Engine) refreshPool(p *pool, block uint64) error {
	if block <= p.lastRewardBlock {
		return nil
	}

	raw := e.poolEmission(p, p.lastRewardBlock, block)
	if raw.Sign() == 0 {
		p.lastRewardBlock = block
		return nil
	}

	shares, err := e.splitter.Split(raw)
	if err != nil {
		return err
	}
	total := shares.Total()

	// One mint into custody, then infallible transfers out: either the whole
	// emission lands or none of it does.
	if err := e.minter.Mint(e.engineAddr, total); err != nil {
		return fmt.Errorf("farm: emission mint: %w", err)
	}
	for _, out := range []struct {
		to     common.Address
		amount *big.Int
	}{
		{e.devAddr, shares.ForDev},
		{e.lpAddr, shares.ForLP},
		{e.comAddr, shares.ForCom},
		{e.foundersAddr, shares.ForFounders},
	} {
		if out.amount.Sign() == 0 {
			continue
		}
		if err := e.rewardToken.Transfer(e.engineAddr, out.to, out.amount); err != nil {
			return fmt.Errorf("farm: emission payout: %w", err)
		}
	}

	if p.totalStaked.Sign() == 0 {
		p.holding.Add(p.holding, shares.ForFarmer)
	} else {
		delta := new(big.Int).Mul(shares.ForFarmer, accPrecision)
		delta.Div(delta, p.totalStaked)
		p.accRewardPerShare.Add(p.accRewardPerShare, delta)
	}
	p.lastRewardBlock = block

	minted, _ := new(big.Float).Quo(
		new(big.Float).SetInt(total),
		new(big.Float).SetInt64(1e18),
	).Float64()
	e.metrics.mintedTotal.Add(minted)
	return nil
}

// pendingFor computes the settled-but-unpaid reward for a stake against the
// pool's current accumulator.
func pendingFor(p *pool, s *stake) *big.Int {
	pending := new(big.Int).Mul(s.amount, p.accRewardPerShare)
	pending.Div(pending, accPrecision)
	return pending.Sub(pending, s.rewardDebt)
}

// settleDebt re-anchors a stake's reward debt to the current accumulator.
func settleDebt(p *pool, s *stake) {
	s.rewardDebt.Mul(s.amount, p.accRewardPerShare)
	s.rewardDebt.Div(s.rewardDebt, accPrecision)
}

// payReward pays a pending reward: the lock-ratio portion moves into the
// lock ledger's custody, the liquid remainder goes straight to the user.
func (e *Engine) payReward(block uint64, user common.Address, poolID uint64, pending *big.Int) error {
	locked := new(big.Int).Mul(pending, e.lockParts)
	locked.Div(locked, big.NewInt(feesplit.Denominator))
	liquid := new(big.Int).Sub(pending, locked)

	if locked.Sign() > 0 {
		if err := e.rewardToken.Transfer(e.engineAddr, e.lockLedger.Custody(), locked); err != nil {
			return fmt.Errorf("farm: lock funding: %w", err)
		}
		if _, err := e.lockLedger.Lock(user, locked, block); err != nil {
			return err
		}
	}
	if liquid.Sign() > 0 {
		if err := e.rewardToken.Transfer(e.engineAddr, user, liquid); err != nil {
			return fmt.Errorf("farm: reward payout: %w", err)
		}
	}

	e.recorder.Record(engine.Event{
		Kind:   engine.EventSendReward,
		Block:  block,
		User:   user,
		PoolID: poolID,
		Amount: new(big.Int).Set(pending),
		Locked: locked,
	})
	return nil
}

// settleRewards pays any pending reward for a stake and immediately
// re-anchors its reward debt, so a failure later in the same operation
// cannot pay the same accrual twice.
func (e *Engine) settleRewards(block uint64, user common.Address, poolID uint64, p *pool, s *stake) error {
	if s.amount.Sign() == 0 {
		return nil
	}
	if pending := pendingFor(p, s); pending.Sign() > 0 {
		if err := e.payReward(block, user, poolID, pending); err != nil {
			return err
		}
	}
	settleDebt(p, s)
	return nil
}

// Deposit stakes amount of the pool's token for the user. The pool is
// refreshed and any already-accrued reward is settled before custody is
// taken, so a rejected incoming transfer aborts with every ledger exactly as
// a plain claim would have left it. The configured deposit fee is deducted
// from the incoming amount, routed to the dev fund, and never enters the
// staked total.
func (e *Engine) Deposit(block uint64, user common.Address, poolID uint64, amount *big.Int, referrer common.Address) error {
	defer e.observe("deposit", time.Now())
	if amount == nil {
		return ErrNilAmount
	}
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: deposit of %s", ErrInvalidAmount, amount)
	}
	p, err := e.pool(poolID)
	if err != nil {
		return err
	}

	if err := e.refreshPool(p, block); err != nil {
		return err
	}
	s, ok := p.stakes[user]
	if !ok {
		s = &stake{amount: new(big.Int), rewardDebt: new(big.Int)}
		p.stakes[user] = s
	}
	if err := e.settleRewards(block, user, poolID, p, s); err != nil {
		return err
	}

	if err := p.token.Transfer(user, e.engineAddr, amount); err != nil {
		return err
	}

	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(p.depositFeeParts))
	fee.Div(fee, big.NewInt(FeeDenominator))
	if fee.Sign() > 0 {
		if err := p.token.Transfer(e.engineAddr, e.devAddr, fee); err != nil {
			// Hand the custodied tokens back; a rejected fee routing must
			// strand nothing in engine custody.
			if backErr := p.token.Transfer(e.engineAddr, user, amount); backErr != nil {
				return fmt.Errorf("farm: deposit fee: %w (returning custody failed: %v)", err, backErr)
			}
			return err
		}
	}
	net := new(big.Int).Sub(amount, fee)

	s.amount.Add(s.amount, net)
	s.lastDepositBlock = block
	p.totalStaked.Add(p.totalStaked, net)
	settleDebt(p, s)

	e.recorder.Record(engine.Event{
		Kind:     engine.EventDeposit,
		Block:    block,
		User:     user,
		PoolID:   poolID,
		Amount:   new(big.Int).Set(amount),
		Referrer: referrer,
	})
	return nil
}

// Withdraw unstakes a gross amount for the user. The withdrawal fee stage is
// chosen by blocks since the user's last deposit and routed to the treasury;
// the fee-adjusted net goes to the user. The requested amount must not
// exceed the stake: callers wanting an exact net must compute the
// fee-adjusted gross themselves. A zero amount settles pending rewards only.
func (e *Engine) Withdraw(block uint64, user common.Address, poolID uint64, amount *big.Int, referrer common.Address) error {
	defer e.observe("withdraw", time.Now())
	if amount == nil {
		return ErrNilAmount
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("%w: withdraw of %s", ErrInvalidAmount, amount)
	}
	p, err := e.pool(poolID)
	if err != nil {
		return err
	}
	s, ok := p.stakes[user]
	if !ok || s.amount.Cmp(amount) < 0 {
		return fmt.Errorf("%w: withdraw %s", ErrInsufficientStake, amount)
	}

	if err := e.refreshPool(p, block); err != nil {
		return err
	}
	if err := e.settleRewards(block, user, poolID, p, s); err != nil {
		return err
	}

	if amount.Sign() > 0 {
		feeParts := p.withdrawFeeParts(block - s.lastDepositBlock)
		fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(feeParts))
		fee.Div(fee, big.NewInt(FeeDenominator))
		net := new(big.Int).Sub(amount, fee)

		// Tokens move first; the stake ledger mutates only once both
		// transfers went through.
		if fee.Sign() > 0 {
			if err := p.token.Transfer(e.engineAddr, e.treasuryAddr, fee); err != nil {
				return err
			}
		}
		if net.Sign() > 0 {
			if err := p.token.Transfer(e.engineAddr, user, net); err != nil {
				if fee.Sign() > 0 {
					if backErr := p.token.Transfer(e.treasuryAddr, e.engineAddr, fee); backErr != nil {
						return fmt.Errorf("farm: withdraw payout: %w (recovering fee failed: %v)", err, backErr)
					}
				}
				return err
			}
		}

		s.amount.Sub(s.amount, amount)
		p.totalStaked.Sub(p.totalStaked, amount)
		settleDebt(p, s)
	}

	e.recorder.Record(engine.Event{
		Kind:     engine.EventWithdraw,
		Block:    block,
		User:     user,
		PoolID:   poolID,
		Amount:   new(big.Int).Set(amount),
		Referrer: referrer,
	})
	return nil
}

// EmergencyWithdraw returns the user's full stake minus the emergency
// penalty and exit fee, forfeiting all pending rewards. The pool is
// deliberately not refreshed: no reward is minted or settled on this path.
func (e *Engine) EmergencyWithdraw(block uint64, user common.Address, poolID uint64) error {
	defer e.observe("emergency_withdraw", time.Now())
	p, err := e.pool(poolID)
	if err != nil {
		return err
	}
	s, ok := p.stakes[user]
	if !ok || s.amount.Sign() == 0 {
		return fmt.Errorf("%w: nothing staked", ErrInsufficientStake)
	}

	amount := new(big.Int).Set(s.amount)
	penalty := new(big.Int).Mul(amount, e.emergencyPenaltyParts)
	penalty.Div(penalty, big.NewInt(FeeDenominator))
	fee := new(big.Int).Mul(amount, e.emergencyFeeParts)
	fee.Div(fee, big.NewInt(FeeDenominator))
	payout := new(big.Int).Sub(amount, penalty)
	payout.Sub(payout, fee)

	if penalty.Sign() > 0 {
		if err := p.token.Transfer(e.engineAddr, e.treasuryAddr, penalty); err != nil {
			return err
		}
	}
	if fee.Sign() > 0 {
		if err := p.token.Transfer(e.engineAddr, e.devAddr, fee); err != nil {
			return err
		}
	}
	if err := p.token.Transfer(e.engineAddr, user, payout); err != nil {
		return err
	}

	p.totalStaked.Sub(p.totalStaked, amount)
	s.amount.SetInt64(0)
	s.rewardDebt.SetInt64(0)

	e.logger.Warn("emergency withdraw", "pool", poolID, "user", user, "returned", payout)
	e.recorder.Record(engine.Event{
		Kind:   engine.EventEmergencyWithdraw,
		Block:  block,
		User:   user,
		PoolID: poolID,
		Amount: payout,
	})
	return nil
}

// ClaimReward settles and pays the user's pending reward for one pool.
// Claiming twice at the same block pays zero the second time.
func (e *Engine) ClaimReward(block uint64, user common.Address, poolID uint64) error {
	defer e.observe("claim", time.Now())
	p, err := e.pool(poolID)
	if err != nil {
		return err
	}
	if err := e.refreshPool(p, block); err != nil {
		return err
	}
	s, ok := p.stakes[user]
	if !ok {
		return nil
	}
	return e.settleRewards(block, user, poolID, p, s)
}

// PendingReward returns the reward a claim at the given block would pay,
// without changing any state.
func (e *Engine) PendingReward(block uint64, user common.Address, poolID uint64) (*big.Int, error) {
	p, err := e.pool(poolID)
	if err != nil {
		return nil, err
	}
	s, ok := p.stakes[user]
	if !ok || s.amount.Sign() == 0 {
		return new(big.Int), nil
	}

	acc := new(big.Int).Set(p.accRewardPerShare)
	if block > p.lastRewardBlock && p.totalStaked.Sign() > 0 {
		raw := e.poolEmission(p, p.lastRewardBlock, block)
		if raw.Sign() > 0 {
			shares, err := e.splitter.Split(raw)
			if err != nil {
				return nil, err
			}
			delta := new(big.Int).Mul(shares.ForFarmer, accPrecision)
			delta.Div(delta, p.totalStaked)
			acc.Add(acc, delta)
		}
	}

	pending := new(big.Int).Mul(s.amount, acc)
	pending.Div(pending, accPrecision)
	return pending.Sub(pending, s.rewardDebt), nil
}

// GetPoolReward exposes the five-way decomposition of the emission over
// [from, to) at the given per-block rate, for auditability. The shares sum
// exactly to the amount that range mints.
func (e *Engine) GetPoolReward(from, to uint64, rate *big.Int) (feesplit.Shares, error) {
	if rate == nil {
		return feesplit.Shares{}, ErrNilAmount
	}
	raw := new(big.Int).Mul(e.schedule.Multiplier(from, to), rate)
	return e.splitter.Split(raw)
}

// StakeOf returns the user's staked amount in a pool.
func (e *Engine) StakeOf(user common.Address, poolID uint64) (*big.Int, error) {
	p, err := e.pool(poolID)
	if err != nil {
		return nil, err
	}
	if s, ok := p.stakes[user]; ok {
		return new(big.Int).Set(s.amount), nil
	}
	return new(big.Int), nil
}

// PoolViewOf returns a snapshot of one pool.
func (e *Engine) PoolViewOf(poolID uint64) (PoolView, error) {
	p, err := e.pool(poolID)
	if err != nil {
		return PoolView{}, err
	}
	return p.view(), nil
}

// view snapshots the whole registry.
func (e *Engine) view() *FarmView {
	pools := make([]PoolView, len(e.pools))
	for i, p := range e.pools {
		pools[i] = p.view()
	}
	return &FarmView{Pools: pools, TotalWeight: e.totalWeight}
}

func (e *Engine) observe(op string, start time.Time) {
	e.metrics.opsTotal.WithLabelValues(op).Inc()
	e.metrics.opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
