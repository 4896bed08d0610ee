// Package resonance models per-packet pressure as energy levels around the
// φ/π equilibrium and turns the resulting drift into a threat probability.
package resonance

import (
	"math"

	"github.com/nmxmxh/tigerdelta/internal/core"
)

const (
	// ValenceFloor keeps every division by valence well defined.
	ValenceFloor = 0.001

	CriticalDrift  = 0.08
	MutationDrift  = 0.15
	MutationPhases = 7

	dissonance    = 1.777
	compression   = 0.02
	relaxWeight   = 0.01
	mutationBonus = 0.05
	scarDecay     = 0.9
)

// State is a read-only snapshot of the core.
type State struct {
	ProtonCount   uint32
	ElectronCloud float64
	Valence       float64
	Scars         float64
	MutationPhase int
	Critical      bool
}

// Core is the resonance state machine. Not safe for concurrent use.
type Core struct {
	protons   uint32
	cloud     float64
	valence   float64
	scars     float64
	phase     int
	critical  bool
	mutations uint64
}

// New creates a core with the given stability constant (floored at 1).
func New(protonCount uint32) *Core {
	if protonCount == 0 {
		protonCount = 1
	}
	return &Core{
		protons: protonCount,
		cloud:   0.5,
		valence: 1.0,
	}
}

// Absorb compresses an impact into a bounded angle and folds it into the
// electron cloud, valence and scar energy.
func (c *Core) Absorb(impact float64) {
	if math.IsNaN(impact) {
		return
	}
	resistance := math.Max(1.0, float64(c.protons)*core.Phi*(1+0.1*float64(c.phase)))
	pressure := math.Abs(impact)
	angle := math.Atan(pressure / resistance)

	c.cloud = math.Min(1.0, math.Abs(math.Cos(c.cloud+angle)))
	c.valence += angle * 0.1
	if pressure > resistance {
		c.scars += angle * 0.5
	}
}

// Rebalance moves valence toward equilibrium and returns the drift.
func (c *Core) Rebalance(entropyInput float64) float64 {
	c.floorValence()
	drift := c.drift(entropyInput)

	if math.Abs(drift) > CriticalDrift {
		c.critical = true
		c.valence *= 1 - compression*sign(drift)
		if math.Abs(drift) > MutationDrift {
			c.mutate()
		}
	} else {
		c.valence = c.valence*(1-relaxWeight) + 1.0*relaxWeight
		c.critical = false
	}

	c.floorValence()
	return drift
}

// ThreatProbability returns sin²(drift·π·1.777) in [0,1].
func (c *Core) ThreatProbability(entropyInput float64) float64 {
	if c.valence <= 0 {
		return 1.0
	}
	s := math.Sin(c.drift(entropyInput) * math.Pi * dissonance)
	return s * s
}

func (c *Core) mutate() {
	c.phase = (c.phase + 1) % MutationPhases
	c.scars *= scarDecay
	c.valence += mutationBonus
	c.mutations++
}

func (c *Core) drift(entropyInput float64) float64 {
	return entropyInput/c.valence - core.Equilibrium
}

func (c *Core) floorValence() {
	if c.valence < ValenceFloor || math.IsNaN(c.valence) {
		c.valence = ValenceFloor
	}
}

func (c *Core) Valence() float64   { return c.valence }
func (c *Core) Critical() bool     { return c.critical }
func (c *Core) MutationPhase() int { return c.phase }
func (c *Core) Mutations() uint64  { return c.mutations }

// State returns a snapshot of the core.
func (c *Core) State() State {
	return State{
		ProtonCount:   c.protons,
		ElectronCloud: c.cloud,
		Valence:       c.valence,
		Scars:         c.scars,
		MutationPhase: c.phase,
		Critical:      c.critical,
	}
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
