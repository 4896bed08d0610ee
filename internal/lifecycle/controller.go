// Package lifecycle implements the breathing controller that accumulates and
// sheds entropy and spends defense mass under sustained pressure.
package lifecycle

import (
	"math"

	"github.com/nmxmxh/tigerdelta/internal/core"
)

const (
	QuietImpact    = 0.001
	QuietResonance = 0.05
	RestAfter      = 500

	MassFloor = 100.0

	exhalePressure = 0.5
	exhaleEntropy  = 0.2
	exhaleCost     = 10.0
	inhaleRate     = 0.1
	restDecay      = 0.9
	restSnap       = 0.05
	regenRate      = 0.01
	perturbation   = 0.001
	coolingEdge    = 0.8
	coolingFactor  = 0.98
)

// State is a snapshot of the controller.
type State struct {
	Entropy   float64
	Tick      uint64
	RestTicks uint64
	Resting   bool
}

// Controller owns entropy and the rest/active cycle.
type Controller struct {
	entropy      float64
	tick         uint64
	restTicks    uint64
	resting      bool
	baselineMass float64
	exhales      uint64
}

// New creates a controller. baselineMass is the defense mass that rest
// regenerates toward; values below MassFloor are raised to it.
func New(baselineMass float64) *Controller {
	if baselineMass < MassFloor {
		baselineMass = MassFloor
	}
	return &Controller{baselineMass: baselineMass}
}

// Tick advances one step and returns the updated defense mass.
func (c *Controller) Tick(impact, resonance, mass float64) float64 {
	c.tick++
	pressure := math.Abs(impact)

	if pressure < QuietImpact && resonance < QuietResonance {
		c.restTicks++
		if c.restTicks > RestAfter {
			c.resting = true
		}
	} else {
		c.restTicks = 0
		c.resting = false
	}

	if c.resting {
		c.entropy *= restDecay
		if c.entropy < restSnap {
			c.entropy = 0
		}
		if mass < c.baselineMass {
			mass += (c.baselineMass - mass) * regenRate
		}
	} else if pressure > exhalePressure {
		c.entropy -= pressure * exhaleEntropy
		mass = math.Max(MassFloor, mass-pressure*exhaleCost)
		c.exhales++
	} else {
		c.entropy += pressure * inhaleRate
	}

	c.entropy += c.oscillation() * perturbation
	c.entropy = clamp01(c.entropy)

	if c.entropy > coolingEdge {
		c.entropy *= 0.5
	} else {
		c.entropy *= coolingFactor
	}

	return mass
}

// Threshold modulates a base decision threshold by the current phase and
// entropy, clamped to [0,1].
func (c *Controller) Threshold(base float64) float64 {
	return clamp01(base + c.oscillation()*c.entropy*0.1)
}

func (c *Controller) oscillation() float64 {
	return math.Sin(float64(c.tick) * math.Pi * core.InvPhi)
}

func (c *Controller) Resting() bool   { return c.resting }
func (c *Controller) Entropy() float64 { return c.entropy }
func (c *Controller) Exhales() uint64  { return c.exhales }

// State returns a snapshot.
func (c *Controller) State() State {
	return State{
		Entropy:   c.entropy,
		Tick:      c.tick,
		RestTicks: c.restTicks,
		Resting:   c.resting,
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}
