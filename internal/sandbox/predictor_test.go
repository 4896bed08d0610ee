package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/tigerdelta/internal/core"
)

func TestNew_InitialState(t *testing.T) {
	p := New(0)
	assert.Equal(t, core.Phi, p.StabilityIndex())
	assert.Zero(t, p.Projection())
	assert.Zero(t, p.DecoyState())
}

// TestPredict_AlarmsExactlyOnCrossing replays the accumulator by hand and
// checks Predict agrees on every step.
func TestPredict_AlarmsExactlyOnCrossing(t *testing.T) {
	p := New(0.05)
	const impact = 1.2

	projection, stability := 0.0, core.Phi
	lastStability := stability
	alarms := 0

	for i := 0; i < 500; i++ {
		projection += impact * 0.5
		want := projection > stability
		if want {
			projection *= 0.1
			stability += 0.05
			alarms++
		} else {
			projection *= 0.8
		}

		got := p.Predict(impact)
		require.Equal(t, want, got, "step %d", i)
		require.GreaterOrEqual(t, p.StabilityIndex(), lastStability)
		lastStability = p.StabilityIndex()
	}

	assert.Greater(t, alarms, 0)
	assert.Equal(t, uint64(alarms), p.Alarms())
}

func TestPredict_FirstAlarmStep(t *testing.T) {
	p := New(DefaultLearningRate)
	// projection before the check: 0.6, 1.08, 1.464, 1.7712
	assert.False(t, p.Predict(1.2))
	assert.False(t, p.Predict(1.2))
	assert.False(t, p.Predict(1.2))
	assert.True(t, p.Predict(1.2))
	assert.InDelta(t, core.Phi+DefaultLearningRate, p.StabilityIndex(), 1e-12)
	assert.InDelta(t, 0.17712, p.Projection(), 1e-9)
}

func TestPredict_SmallImpactNeverAlarms(t *testing.T) {
	p := New(DefaultLearningRate)
	for i := 0; i < 1000; i++ {
		require.False(t, p.Predict(0.5))
	}
}

func TestDecoyState_Bounded(t *testing.T) {
	p := New(DefaultLearningRate)
	for i := 0; i < 200; i++ {
		p.Predict(float64(i%7) * 0.4)
		d := p.DecoyState()
		require.GreaterOrEqual(t, d, 0.0)
		require.LessOrEqual(t, d, 1.0)
	}
}

func TestSyncWithReality_Blends(t *testing.T) {
	p := New(DefaultLearningRate)
	p.SyncWithReality(1.0)
	assert.InDelta(t, 0.9*core.Phi+0.1, p.StabilityIndex(), 1e-12)
}

func TestReset(t *testing.T) {
	p := New(DefaultLearningRate)
	for i := 0; i < 10; i++ {
		p.Predict(2)
	}
	require.NotZero(t, p.Alarms())
	p.Reset()
	assert.Zero(t, p.Alarms())
	assert.Equal(t, core.Phi, p.StabilityIndex())
}
