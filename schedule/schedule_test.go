package schedule

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSchedule(t *testing.T, start, interval uint64) *Schedule {
	t.Helper()
	s, err := New(&Config{
		RewardPerBlock:  big.NewInt(1e18),
		StartBlock:      start,
		HalvingInterval: interval,
	})
	require.NoError(t, err)
	return s
}

func TestNew(t *testing.T) {
	t.Run("RejectsNilReward", func(t *testing.T) {
		_, err := New(&Config{StartBlock: 0, HalvingInterval: 10})
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("RejectsZeroInterval", func(t *testing.T) {
		_, err := New(&Config{RewardPerBlock: big.NewInt(1)})
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("RejectsIncreasingTable", func(t *testing.T) {
		_, err := New(&Config{
			RewardPerBlock:  big.NewInt(1),
			HalvingInterval: 10,
			Multipliers:     []uint64{2, 4},
		})
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("DefaultsMultiplierTable", func(t *testing.T) {
		s := newTestSchedule(t, 100, 10)
		assert.Equal(t, uint64(512), s.MultiplierAt(100))
	})

	t.Run("CopiesCallerTable", func(t *testing.T) {
		table := []uint64{8, 4}
		s, err := New(&Config{
			RewardPerBlock:  big.NewInt(1),
			HalvingInterval: 10,
			Multipliers:     table,
		})
		require.NoError(t, err)
		table[0] = 1000
		assert.Equal(t, uint64(8), s.MultiplierAt(0))
	})
}

func TestMultiplierAt(t *testing.T) {
	s := newTestSchedule(t, 100, 10)

	assert.Equal(t, uint64(0), s.MultiplierAt(0))
	assert.Equal(t, uint64(0), s.MultiplierAt(99))
	assert.Equal(t, uint64(512), s.MultiplierAt(100))
	assert.Equal(t, uint64(512), s.MultiplierAt(109))
	assert.Equal(t, uint64(256), s.MultiplierAt(110))
	assert.Equal(t, uint64(1), s.MultiplierAt(199))
	// Table exhausted: emission stops.
	assert.Equal(t, uint64(0), s.MultiplierAt(200))
	assert.Equal(t, uint64(0), s.MultiplierAt(1_000_000))
}

func TestMultiplier(t *testing.T) {
	s := newTestSchedule(t, 100, 10)

	t.Run("ZeroBeforeStart", func(t *testing.T) {
		assert.Zero(t, s.Multiplier(0, 100).Sign())
		assert.Zero(t, s.Multiplier(50, 99).Sign())
	})

	t.Run("ZeroOnEmptyRange", func(t *testing.T) {
		assert.Zero(t, s.Multiplier(105, 105).Sign())
		assert.Zero(t, s.Multiplier(110, 105).Sign())
	})

	t.Run("ClampsAtStart", func(t *testing.T) {
		// Only [100, 101) emits.
		assert.Equal(t, big.NewInt(512), s.Multiplier(50, 101))
	})

	t.Run("SingleEpoch", func(t *testing.T) {
		assert.Equal(t, big.NewInt(512), s.Multiplier(100, 101))
		assert.Equal(t, big.NewInt(512*10), s.Multiplier(100, 110))
	})

	t.Run("StraddlesHalvingBoundary", func(t *testing.T) {
		// [105, 115) is 5 blocks at 512 and 5 blocks at 256. A naive
		// single-multiplier answer would be 10*512 or 10*256.
		got := s.Multiplier(105, 115)
		want := big.NewInt(5*512 + 5*256)
		assert.Equal(t, want, got)
		assert.NotEqual(t, big.NewInt(10*512), got)

		// The straddling range must equal the sum of its two halves.
		sum := new(big.Int).Add(s.Multiplier(105, 110), s.Multiplier(110, 115))
		assert.Equal(t, sum, got)
	})

	t.Run("SpansSeveralEpochs", func(t *testing.T) {
		// Whole schedule: 10 blocks at each table entry.
		want := big.NewInt(10 * (512 + 256 + 128 + 64 + 32 + 16 + 8 + 4 + 2 + 1))
		assert.Equal(t, want, s.Multiplier(100, 200))
		// Extending the range past the table adds nothing.
		assert.Equal(t, want, s.Multiplier(0, 10_000))
	})

	t.Run("TailBeyondTableIsZero", func(t *testing.T) {
		assert.Zero(t, s.Multiplier(200, 500).Sign())
	})
}

func TestEmission(t *testing.T) {
	s := newTestSchedule(t, 100, 10)

	t.Run("Rate", func(t *testing.T) {
		want := new(big.Int).Mul(big.NewInt(512), big.NewInt(1e18))
		assert.Equal(t, want, s.EmissionRate(100))
		assert.Zero(t, s.EmissionRate(99).Sign())
	})

	t.Run("Over", func(t *testing.T) {
		want := new(big.Int).Mul(big.NewInt(5*512+5*256), big.NewInt(1e18))
		assert.Equal(t, want, s.EmissionOver(105, 115))
	})
}
