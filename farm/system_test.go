package farm

import (
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSystemFixture(t *testing.T, opts fixtureOpts) (*System, *fixture) {
	t.Helper()
	cfg, f := newTestConfig(t, opts)
	sys, err := NewSystem(cfg)
	require.NoError(t, err)
	return sys, f
}

func TestSystemViewIsDeepCopy(t *testing.T) {
	sys, f := newSystemFixture(t, fixtureOpts{startBlock: 100})
	pid, err := sys.AddPool(90, PoolParams{
		Weight:    1,
		Token:     f.lp,
		TokenAddr: common.HexToAddress("0x0000000000000000000000000000000000001111"),
	}, false)
	require.NoError(t, err)
	require.NoError(t, sys.Deposit(95, userA, pid, tokens(100), noReferrer))

	view := sys.View()
	require.Len(t, view.Pools, 1)
	assert.Equal(t, tokens(100), view.Pools[0].TotalStaked)

	// Mutating the returned snapshot must not leak into later snapshots.
	view.Pools[0].TotalStaked.SetInt64(7)
	view.Pools[0].Weight = 99

	again := sys.View()
	assert.Equal(t, tokens(100), again.Pools[0].TotalStaked)
	assert.Equal(t, uint64(1), again.Pools[0].Weight)
}

func TestSystemViewReflectsWrites(t *testing.T) {
	sys, f := newSystemFixture(t, fixtureOpts{startBlock: 100})
	assert.Empty(t, sys.View().Pools)

	pid, err := sys.AddPool(90, PoolParams{
		Weight:    1,
		Token:     f.lp,
		TokenAddr: common.HexToAddress("0x0000000000000000000000000000000000001111"),
	}, false)
	require.NoError(t, err)
	require.NoError(t, sys.Deposit(95, userA, pid, tokens(100), noReferrer))
	require.NoError(t, sys.ClaimReward(101, userA, pid))

	view := sys.View()
	require.Len(t, view.Pools, 1)
	assert.Equal(t, uint64(101), view.Pools[0].LastRewardBlock)
	assert.Positive(t, view.Pools[0].AccRewardPerShare.Sign())

	// A failed write must leave the cached view untouched.
	_, err = sys.AddPool(101, PoolParams{
		Weight:    1,
		Token:     f.lp,
		TokenAddr: common.HexToAddress("0x0000000000000000000000000000000000001111"),
	}, false)
	require.ErrorIs(t, err, ErrDuplicateStakeToken)
	assert.Len(t, sys.View().Pools, 1)
}

// TestSystemConcurrentAccess hammers the wrapper from writer and reader
// goroutines. The race detector is the real assertion here.
func TestSystemConcurrentAccess(t *testing.T) {
	sys, f := newSystemFixture(t, fixtureOpts{startBlock: 100})
	pid, err := sys.AddPool(90, PoolParams{
		Weight:    1,
		Token:     f.lp,
		TokenAddr: common.HexToAddress("0x0000000000000000000000000000000000001111"),
	}, false)
	require.NoError(t, err)
	require.NoError(t, sys.Deposit(95, userA, pid, tokens(100), noReferrer))
	require.NoError(t, sys.Deposit(95, userB, pid, tokens(100), noReferrer))

	const iterations = 50
	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		for i := uint64(0); i < iterations; i++ {
			_ = sys.Deposit(101+i, userA, pid, tokens(1), noReferrer)
		}
	}()
	go func() {
		defer wg.Done()
		for i := uint64(0); i < iterations; i++ {
			_ = sys.ClaimReward(101+i, userB, pid)
		}
	}()
	go func() {
		defer wg.Done()
		for i := uint64(0); i < iterations; i++ {
			_, _ = sys.PendingReward(101+i, userA, pid)
			_, _ = sys.StakeOf(userB, pid)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			view := sys.View()
			if len(view.Pools) > 0 {
				view.Pools[0].TotalStaked.Add(view.Pools[0].TotalStaked, big.NewInt(1))
			}
		}
	}()

	wg.Wait()

	stakeA, err := sys.StakeOf(userA, pid)
	require.NoError(t, err)
	assert.Equal(t, tokens(100+iterations), stakeA)
	assert.Equal(t, 1, sys.PoolCount())
}
