package farm

import (
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/yieldfarm-engine-go/feesplit"
)

// System provides a concurrency-safe layer over the Engine. Every
// state-mutating operation is serialized behind a single writer lock,
// preserving the engine's transactional execution model on a concurrent
// host; reads are served lock-free from an atomically swapped snapshot.
type System struct {
	mu         sync.RWMutex
	engine     *Engine
	cachedView atomic.Pointer[FarmView] // Read-optimized cache of the registry view.
}

// NewSystem constructs the engine from cfg and wraps it.
func NewSystem(cfg *Config) (*System, error) {
	eng, err := New(cfg)
	if err != nil {
		return nil, err
	}
	s := &System{engine: eng}
	s.cachedView.Store(eng.view())
	return s, nil
}

// updateCachedView generates a fresh view from the engine and atomically
// updates the pointer. Must be called with the write lock held.
func (s *System) updateCachedView() {
	s.cachedView.Store(s.engine.view())
}

// --- Write methods ---

// AddPool appends a pool. See Engine.AddPool.
func (s *System) AddPool(block uint64, params PoolParams, updateAll bool) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.engine.AddPool(block, params, updateAll)
	if err == nil {
		s.updateCachedView()
	}
	return id, err
}

// SetPoolWeight changes a pool's weight. See Engine.SetPoolWeight.
func (s *System) SetPoolWeight(block, poolID, weight uint64, updateAll bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.engine.SetPoolWeight(block, poolID, weight, updateAll)
	if err == nil {
		s.updateCachedView()
	}
	return err
}

// Deposit stakes tokens. See Engine.Deposit.
func (s *System) Deposit(block uint64, user common.Address, poolID uint64, amount *big.Int, referrer common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.engine.Deposit(block, user, poolID, amount, referrer)
	if err == nil {
		s.updateCachedView()
	}
	return err
}

// Withdraw unstakes tokens. See Engine.Withdraw.
func (s *System) Withdraw(block uint64, user common.Address, poolID uint64, amount *big.Int, referrer common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.engine.Withdraw(block, user, poolID, amount, referrer)
	if err == nil {
		s.updateCachedView()
	}
	return err
}

// EmergencyWithdraw exits a stake, forfeiting rewards. See
// Engine.EmergencyWithdraw.
func (s *System) EmergencyWithdraw(block uint64, user common.Address, poolID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.engine.EmergencyWithdraw(block, user, poolID)
	if err == nil {
		s.updateCachedView()
	}
	return err
}

// ClaimReward pays out pending rewards. See Engine.ClaimReward.
func (s *System) ClaimReward(block uint64, user common.Address, poolID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.engine.ClaimReward(block, user, poolID)
	if err == nil {
		s.updateCachedView()
	}
	return err
}

// MassUpdatePools refreshes every pool. See Engine.MassUpdatePools.
func (s *System) MassUpdatePools(block uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.engine.MassUpdatePools(block)
	if err == nil {
		s.updateCachedView()
	}
	return err
}

// --- Read methods ---

// PendingReward reproduces the value a claim at the given block would pay.
func (s *System) PendingReward(block uint64, user common.Address, poolID uint64) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.PendingReward(block, user, poolID)
}

// StakeOf returns the user's staked amount in a pool.
func (s *System) StakeOf(user common.Address, poolID uint64) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.StakeOf(user, poolID)
}

// GetPoolReward exposes the emission decomposition over a block range.
func (s *System) GetPoolReward(from, to uint64, rate *big.Int) (feesplit.Shares, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.GetPoolReward(from, to, rate)
}

// PoolCount returns the number of registered pools.
func (s *System) PoolCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.PoolCount()
}

// View returns a deep copy of the cached registry snapshot. It never blocks
// on writers, and the caller may mutate the result freely.
func (s *System) View() *FarmView {
	cached := s.cachedView.Load()
	if cached == nil {
		return &FarmView{}
	}

	pools := make([]PoolView, len(cached.Pools))
	for i, p := range cached.Pools {
		pools[i] = deepCopyPoolView(p)
	}
	return &FarmView{Pools: pools, TotalWeight: cached.TotalWeight}
}
