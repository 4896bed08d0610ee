package lifecycle

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTick_EntersRestAfterQuietStreak(t *testing.T) {
	c := New(1000)
	mass := 1000.0

	for i := 0; i < RestAfter; i++ {
		mass = c.Tick(0, 0, mass)
		require.False(t, c.Resting(), "tick %d", i+1)
	}

	mass = c.Tick(0, 0, mass)
	assert.True(t, c.Resting(), "501st quiet tick enters rest")

	c.Tick(0.002, 0, mass)
	assert.False(t, c.Resting(), "one loud tick clears rest")
	assert.Zero(t, c.State().RestTicks)
}

func TestTick_ResonanceBreaksQuiet(t *testing.T) {
	c := New(1000)
	for i := 0; i < 600; i++ {
		c.Tick(0, 0.06, 1000)
	}
	assert.False(t, c.Resting())
}

func TestTick_RestSnapsEntropyToZero(t *testing.T) {
	c := New(1000)
	c.entropy = 0.7
	for i := 0; i <= RestAfter; i++ {
		c.Tick(0, 0, 1000)
	}
	require.True(t, c.Resting())

	for i := 0; i < 50; i++ {
		c.Tick(0, 0, 1000)
	}
	// perturbation keeps a residue of at most ~0.001
	assert.Less(t, c.Entropy(), 0.002)
}

func TestTick_ExhaleSpendsMassWithFloor(t *testing.T) {
	c := New(1000)
	mass := c.Tick(1.0, 0.5, 1000)
	assert.InDelta(t, 990.0, mass, 1e-12)
	assert.Equal(t, uint64(1), c.Exhales())

	mass = 105
	mass = c.Tick(1.5, 0.5, mass)
	assert.Equal(t, MassFloor, mass)
}

func TestTick_InhaleAccumulates(t *testing.T) {
	c := New(1000)
	mass := c.Tick(0.4, 0.5, 1000)
	assert.Equal(t, 1000.0, mass)
	assert.Greater(t, c.Entropy(), 0.03)
}

func TestTick_RestRegeneratesMass(t *testing.T) {
	c := New(1000)
	mass := 100.0
	for i := 0; i <= RestAfter; i++ {
		mass = c.Tick(0, 0, mass)
	}
	require.True(t, c.Resting())
	assert.Greater(t, mass, 100.0)
	assert.LessOrEqual(t, mass, 1000.0)

	for i := 0; i < 5000; i++ {
		mass = c.Tick(0, 0, mass)
	}
	assert.InDelta(t, 1000.0, mass, 1.0)
	assert.LessOrEqual(t, mass, 1000.0)
}

func TestTick_EntropyStaysInUnitRange(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	c := New(1000)
	mass := 1000.0
	for i := 0; i < 20000; i++ {
		mass = c.Tick(rng.NormFloat64()*2, rng.Float64(), mass)
		require.GreaterOrEqual(t, c.Entropy(), 0.0)
		require.LessOrEqual(t, c.Entropy(), 0.8)
		require.GreaterOrEqual(t, mass, MassFloor)
	}
}

func TestThreshold_Bounded(t *testing.T) {
	c := New(1000)
	for i := 0; i < 500; i++ {
		c.Tick(0.45, 0.5, 1000)
		th := c.Threshold(0.8)
		require.GreaterOrEqual(t, th, 0.8-0.1)
		require.LessOrEqual(t, th, 0.8+0.1)
	}
	assert.Equal(t, 1.0, c.Threshold(1.5))
	assert.Equal(t, 0.0, c.Threshold(-1))
}
