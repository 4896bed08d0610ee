// Package sandbox runs a shadow accumulator ahead of the real pipeline and
// flags sustained pressure before it reaches the resonance core.
package sandbox

import (
	"math"

	"github.com/nmxmxh/tigerdelta/internal/core"
)

// DefaultLearningRate is how much the stability index hardens per alarm.
const DefaultLearningRate = 0.01

const (
	accumulation = 0.5
	alarmReset   = 0.1
	decay        = 0.8
	syncWeight   = 0.1
)

// Predictor is the sandbox state. Not safe for concurrent use.
type Predictor struct {
	projection   float64
	stability    float64
	learningRate float64
	alarms       uint64
}

// New creates a predictor with stability index φ.
func New(learningRate float64) *Predictor {
	if learningRate <= 0 {
		learningRate = DefaultLearningRate
	}
	return &Predictor{stability: core.Phi, learningRate: learningRate}
}

// Predict accumulates impact and reports true when the projection crosses
// the stability index.
func (p *Predictor) Predict(impact float64) bool {
	p.projection += impact * accumulation
	if p.projection > p.stability {
		p.projection *= alarmReset
		p.stability += p.learningRate
		p.alarms++
		return true
	}
	p.projection *= decay
	return false
}

// DecoyState is |sin(projection·π)|. It only feeds deception replies.
func (p *Predictor) DecoyState() float64 {
	return math.Abs(math.Sin(p.projection * math.Pi))
}

// SyncWithReality blends the stability index 90/10 toward real.
func (p *Predictor) SyncWithReality(real float64) {
	p.stability = p.stability*(1-syncWeight) + real*syncWeight
}

// Reset restores the initial state, keeping the learning rate.
func (p *Predictor) Reset() {
	p.projection = 0
	p.stability = core.Phi
	p.alarms = 0
}

func (p *Predictor) Projection() float64     { return p.projection }
func (p *Predictor) StabilityIndex() float64 { return p.stability }
func (p *Predictor) Alarms() uint64          { return p.alarms }
