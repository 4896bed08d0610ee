// Package pipeline is the scoring task. It owns every stateful stage and
// processes queued items strictly one at a time.
package pipeline

import (
	"math"
	"time"

	"github.com/nmxmxh/tigerdelta/internal/core"
	"github.com/nmxmxh/tigerdelta/internal/diffusion"
	"github.com/nmxmxh/tigerdelta/internal/equilibrium"
)

// Response payloads
const (
	RespBlock         = "TD_BLOCK|RESONANCE_FAILURE"
	RespOverload      = "TD_OVERLOAD|PREEMPTIVE_BLOCK"
	RespSyncValidated = "LUMIS_SYNC_VALIDATED"
	respStatusFormat  = "TD_STATUS|%.6f"
)

// Response kinds used as metric labels
const (
	KindBlock    = "block"
	KindOverload = "overload"
	KindSync     = "sync"
	KindDecoy    = "decoy"
)

// Verdict is the outcome for one item.
type Verdict int

const (
	VerdictAllow Verdict = iota
	VerdictBlock
	VerdictPreempt
	VerdictValidated
)

func (v Verdict) String() string {
	switch v {
	case VerdictBlock:
		return "block"
	case VerdictPreempt:
		return "preempt"
	case VerdictValidated:
		return "validated"
	default:
		return "allow"
	}
}

// Mode is the node-wide defense posture.
type Mode int

const (
	ModeStable Mode = iota
	ModeShadow
)

func (m Mode) String() string {
	if m == ModeShadow {
		return "shadow"
	}
	return "stable"
}

// Decision records everything the chain computed for one item.
type Decision struct {
	Verdict      Verdict
	Compact      diffusion.Fixed
	CompactFloat float64
	Impact       float64
	Drift        float64
	Probability  float64
	Deviation    float64
	Unstable     bool
	Critical     bool
	Threshold    float64
	Coherence    float64
	Mode         Mode
	Mass         int
	DefenseMass  float64
	Novel        bool
	Responses    int
}

// Config tunes the scoring task.
type Config struct {
	BlockThreshold      float64
	CriticalProbability float64
	CoherenceThreshold  float64
	SyncInterval        uint64
	TelemetryInterval   uint64
	ShadowMass          int
	DecoyMass           int
	PurgeMass           int
	StaggerBase         time.Duration
	ProtonCount         uint32
	DefenseMass         float64
	LearningRate        float64
	Bands               equilibrium.Bands
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		BlockThreshold:      0.8,
		CriticalProbability: 0.99,
		CoherenceThreshold:  0.95,
		SyncInterval:        256,
		TelemetryInterval:   64,
		ShadowMass:          10,
		DecoyMass:           50,
		PurgeMass:           200,
		StaggerBase:         20 * time.Millisecond,
		ProtonCount:         1,
		DefenseMass:         1000,
		LearningRate:        0.01,
		Bands:               equilibrium.DefaultBands(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BlockThreshold <= 0 {
		c.BlockThreshold = def.BlockThreshold
	}
	if c.CriticalProbability <= 0 {
		c.CriticalProbability = def.CriticalProbability
	}
	if c.CoherenceThreshold <= 0 {
		c.CoherenceThreshold = def.CoherenceThreshold
	}
	if c.SyncInterval == 0 {
		c.SyncInterval = def.SyncInterval
	}
	if c.TelemetryInterval == 0 {
		c.TelemetryInterval = def.TelemetryInterval
	}
	if c.ShadowMass <= 0 {
		c.ShadowMass = def.ShadowMass
	}
	if c.DecoyMass <= 0 {
		c.DecoyMass = def.DecoyMass
	}
	if c.PurgeMass <= 0 {
		c.PurgeMass = def.PurgeMass
	}
	if c.StaggerBase <= 0 {
		c.StaggerBase = def.StaggerBase
	}
	if c.ProtonCount == 0 {
		c.ProtonCount = def.ProtonCount
	}
	if c.DefenseMass <= 0 {
		c.DefenseMass = def.DefenseMass
	}
	if c.LearningRate <= 0 {
		c.LearningRate = def.LearningRate
	}
	if c.Bands == (equilibrium.Bands{}) {
		c.Bands = def.Bands
	}
	return c
}

// Coherence scores a beacon against the φ-sinusoidal schedule: 1 when the
// interval is within 80ms of φ·|sin(freq/π)| seconds, falling off linearly.
func Coherence(freq, deltaT float64) float64 {
	expected := core.Phi * math.Abs(math.Sin(freq/math.Pi))
	drift := math.Abs(deltaT - expected)
	if drift < 0.08 {
		return 1.0
	}
	return math.Max(0, 1-drift*1.5)
}

// Stagger is the kinetic delay φ^(mass mod 7) × base.
func Stagger(mass int, base time.Duration) time.Duration {
	if mass < 0 {
		mass = -mass
	}
	return time.Duration(math.Pow(core.Phi, float64(mass%7)) * float64(base))
}
