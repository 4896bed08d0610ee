// Package equilibrium holds the hysteresis stabilizer that decides whether
// the scoring chain is inside its tolerance zone.
package equilibrium

import (
	"fmt"
	"math"

	"github.com/nmxmxh/tigerdelta/internal/core"
)

// Band is a closed interval [Min, Max].
type Band struct {
	Min float64
	Max float64
}

// Contains reports whether v lies in the band.
func (b Band) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// Bands pairs the interval a value must reach to enter the zone with the
// wider interval it must leave to exit. Enter ⊂ Exit.
type Bands struct {
	Enter Band
	Exit  Band
}

// DefaultBands returns enter [φ⁻¹+0.1, φ−0.1] and exit [φ⁻¹, φ].
// Enter is the narrow band: with a wider enter band, any level between the
// two bands would flip the zone on every tick.
func DefaultBands() Bands {
	return Bands{
		Enter: Band{Min: core.InvPhi + 0.1, Max: core.Phi - 0.1},
		Exit:  Band{Min: core.InvPhi, Max: core.Phi},
	}
}

// Validate checks both bands are well formed and nested.
func (b Bands) Validate() error {
	if b.Enter.Min > b.Enter.Max {
		return fmt.Errorf("enter band inverted: [%g, %g]", b.Enter.Min, b.Enter.Max)
	}
	if b.Exit.Min > b.Exit.Max {
		return fmt.Errorf("exit band inverted: [%g, %g]", b.Exit.Min, b.Exit.Max)
	}
	if b.Enter.Min < b.Exit.Min || b.Enter.Max > b.Exit.Max {
		return fmt.Errorf("enter band [%g, %g] must lie within exit band [%g, %g]",
			b.Enter.Min, b.Enter.Max, b.Exit.Min, b.Exit.Max)
	}
	return nil
}

// Stabilizer tracks in_zone with two-band hysteresis.
type Stabilizer struct {
	mass        float64
	inZone      bool
	bands       Bands
	transitions uint64
}

// NewStabilizer creates a stabilizer; non-positive mass becomes 1.0.
func NewStabilizer(mass float64, bands Bands) *Stabilizer {
	if !(mass > 0) {
		mass = 1.0
	}
	return &Stabilizer{mass: mass, bands: bands}
}

// Level computes |φ·c² + sin(√(energy/mass)·φ⁻¹)| mod φ.
func (s *Stabilizer) Level(compact, energy float64) float64 {
	pull := math.Sqrt(math.Abs(energy) / s.mass)
	return math.Mod(math.Abs(core.Phi*compact*compact+math.Sin(pull*core.InvPhi)), core.Phi)
}

// Stabilize updates the zone from the current level. It returns the level
// and true when the chain is out of its zone after the update.
func (s *Stabilizer) Stabilize(compact, energy float64) (float64, bool) {
	l := s.Level(compact, energy)
	s.Observe(l)
	return l, !s.inZone
}

// Observe applies one hysteresis step to an already computed level.
func (s *Stabilizer) Observe(l float64) {
	if s.inZone {
		if !s.bands.Exit.Contains(l) {
			s.inZone = false
			s.transitions++
		}
		return
	}
	if s.bands.Enter.Contains(l) {
		s.inZone = true
		s.transitions++
	}
}

// UpdateMass accepts feedback from the life-cycle controller.
func (s *Stabilizer) UpdateMass(m float64) {
	if m > 0 {
		s.mass = m
	}
}

func (s *Stabilizer) Mass() float64       { return s.mass }
func (s *Stabilizer) InZone() bool        { return s.inZone }
func (s *Stabilizer) Transitions() uint64 { return s.transitions }
