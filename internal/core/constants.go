package core

import "math"

// Harmonic constants shared by every stage of the scoring chain.
const (
	Phi    = 1.6180339887498948
	InvPhi = 0.6180339887498948

	// Equilibrium is the resonance set point φ/π.
	Equilibrium = Phi / math.Pi
)

// Datagram size gate applied before feature extraction.
const (
	MinDatagram        = 8
	DefaultMaxDatagram = 1024
)
