package lockledger

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/yieldfarm-engine-go/engine"
	"github.com/defistate/yieldfarm-engine-go/token"
)

var (
	minter  = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	custody = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	holder  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	other   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

// newTestLedger creates a funded ledger with a lock window of [100, 200).
func newTestLedger(t *testing.T, rec engine.Recorder) (*Ledger, *token.Ledger) {
	t.Helper()
	tok := token.NewLedger("RWD", minter)
	require.NoError(t, tok.Mint(minter, custody, big.NewInt(1_000_000)))

	l, err := New(&Config{
		LockFromBlock: 100,
		LockToBlock:   200,
		Token:         tok,
		Custody:       custody,
		Recorder:      rec,
	})
	require.NoError(t, err)
	return l, tok
}

func TestNew(t *testing.T) {
	t.Run("RejectsEmptyWindow", func(t *testing.T) {
		_, err := New(&Config{LockFromBlock: 100, LockToBlock: 100, Token: token.NewLedger("RWD", minter)})
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("RejectsNilToken", func(t *testing.T) {
		_, err := New(&Config{LockFromBlock: 100, LockToBlock: 200})
		require.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestLock(t *testing.T) {
	t.Run("CreatesEntry", func(t *testing.T) {
		l, _ := newTestLedger(t, nil)
		released, err := l.Lock(holder, big.NewInt(1000), 50)
		require.NoError(t, err)
		assert.Zero(t, released.Sign())
		assert.Equal(t, big.NewInt(1000), l.LockOf(holder))
		assert.Equal(t, big.NewInt(1000), l.TotalLock())
	})

	t.Run("RejectsNilAndNegative", func(t *testing.T) {
		l, _ := newTestLedger(t, nil)
		_, err := l.Lock(holder, nil, 50)
		require.ErrorIs(t, err, ErrNilAmount)
		_, err = l.Lock(holder, big.NewInt(-1), 50)
		require.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("RejectsUnfundedLock", func(t *testing.T) {
		l, _ := newTestLedger(t, nil)
		_, err := l.Lock(holder, big.NewInt(2_000_000), 50)
		require.ErrorIs(t, err, ErrCustodyShortfall)
		assert.Zero(t, l.TotalLock().Sign())
	})

	t.Run("MergePaysOutEarlierProgress", func(t *testing.T) {
		l, tok := newTestLedger(t, nil)
		_, err := l.Lock(holder, big.NewInt(1000), 50)
		require.NoError(t, err)

		// Halfway through the window 500 is releasable; a second lock must
		// pay it out rather than fold it back under the curve.
		released, err := l.Lock(holder, big.NewInt(600), 150)
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(500), released)
		assert.Equal(t, big.NewInt(500), tok.BalanceOf(holder))
		assert.Equal(t, big.NewInt(1100), l.LockOf(holder))
		assert.Equal(t, big.NewInt(1600), l.TotalEverLocked(holder))
	})
}

func TestCanUnlock(t *testing.T) {
	l, _ := newTestLedger(t, nil)
	_, err := l.Lock(holder, big.NewInt(1000), 50)
	require.NoError(t, err)

	t.Run("ZeroBeforeWindow", func(t *testing.T) {
		assert.Zero(t, l.CanUnlock(holder, 0).Sign())
		assert.Zero(t, l.CanUnlock(holder, 99).Sign())
	})

	t.Run("LinearInsideWindow", func(t *testing.T) {
		assert.Zero(t, l.CanUnlock(holder, 100).Sign())
		assert.Equal(t, big.NewInt(250), l.CanUnlock(holder, 125))
		assert.Equal(t, big.NewInt(500), l.CanUnlock(holder, 150))
		assert.Equal(t, big.NewInt(990), l.CanUnlock(holder, 199))
	})

	t.Run("FullAtWindowEnd", func(t *testing.T) {
		assert.Equal(t, big.NewInt(1000), l.CanUnlock(holder, 200))
		assert.Equal(t, big.NewInt(1000), l.CanUnlock(holder, 100_000))
	})

	t.Run("MonotonicallyNonDecreasing", func(t *testing.T) {
		prev := new(big.Int)
		for block := uint64(0); block <= 220; block++ {
			cur := l.CanUnlock(holder, block)
			require.True(t, cur.Cmp(prev) >= 0, "block %d: %s < %s", block, cur, prev)
			prev = cur
		}
	})

	t.Run("UnknownHolderIsZero", func(t *testing.T) {
		assert.Zero(t, l.CanUnlock(other, 150).Sign())
	})
}

func TestUnlock(t *testing.T) {
	t.Run("ReleasesAndRecords", func(t *testing.T) {
		rec := engine.NewChanRecorder(8)
		l, tok := newTestLedger(t, rec)
		_, err := l.Lock(holder, big.NewInt(1000), 50)
		require.NoError(t, err)

		released, err := l.Unlock(holder, 150)
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(500), released)
		assert.Equal(t, big.NewInt(500), tok.BalanceOf(holder))
		assert.Equal(t, big.NewInt(500), l.LockOf(holder))
		assert.Equal(t, big.NewInt(500), l.TotalLock())
		assert.Equal(t, uint64(150), l.LastUnlockBlock(holder))

		ev := <-rec.Events()
		assert.Equal(t, engine.EventUnlock, ev.Kind)
		assert.Equal(t, big.NewInt(500), ev.Amount)
		assert.Equal(t, holder, ev.User)
	})

	t.Run("NothingReleasableIsNoop", func(t *testing.T) {
		l, _ := newTestLedger(t, nil)
		_, err := l.Lock(holder, big.NewInt(1000), 50)
		require.NoError(t, err)

		released, err := l.Unlock(holder, 99)
		require.NoError(t, err)
		assert.Zero(t, released.Sign())

		// Unlocking twice at the same block releases nothing the second time.
		_, err = l.Unlock(holder, 150)
		require.NoError(t, err)
		released, err = l.Unlock(holder, 150)
		require.NoError(t, err)
		assert.Zero(t, released.Sign())
	})

	t.Run("UnknownHolderIsNoop", func(t *testing.T) {
		l, _ := newTestLedger(t, nil)
		released, err := l.Unlock(other, 150)
		require.NoError(t, err)
		assert.Zero(t, released.Sign())
	})

	t.Run("FullUnlockZeroesEntry", func(t *testing.T) {
		l, _ := newTestLedger(t, nil)
		_, err := l.Lock(holder, big.NewInt(1000), 50)
		require.NoError(t, err)

		released, err := l.Unlock(holder, 200)
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(1000), released)
		assert.Zero(t, l.LockOf(holder).Sign())
		assert.Zero(t, l.TotalLock().Sign())
		// Entries persist after full release.
		assert.Equal(t, big.NewInt(1000), l.TotalEverLocked(holder))
	})
}

// TestTotalLockMatchesEntries exercises the ledger-wide invariant: the global
// counter equals the sum of per-holder locked balances after any sequence of
// locks and unlocks.
func TestTotalLockMatchesEntries(t *testing.T) {
	l, _ := newTestLedger(t, nil)

	_, err := l.Lock(holder, big.NewInt(1000), 50)
	require.NoError(t, err)
	_, err = l.Lock(other, big.NewInt(300), 120)
	require.NoError(t, err)
	_, err = l.Unlock(holder, 150)
	require.NoError(t, err)
	_, err = l.Lock(holder, big.NewInt(40), 160)
	require.NoError(t, err)
	_, err = l.Unlock(other, 180)
	require.NoError(t, err)

	sum := new(big.Int).Add(l.LockOf(holder), l.LockOf(other))
	assert.Equal(t, sum, l.TotalLock())
}
