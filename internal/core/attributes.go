package core

import (
	"net"
	"time"
)

// AttributeCount is the fixed length of every attribute vector.
const AttributeCount = 10

// Attribute slots
const (
	AttrSrcPort = iota
	AttrLength
	AttrFirstByte
	AttrWeight
	AttrWeightMod111
	AttrLengthMod7
	AttrPartialSum
	AttrAddrLen
	AttrReserved0
	AttrReserved1
)

// partialSumWindow is the number of leading bytes summed into AttrPartialSum.
const partialSumWindow = 8

// AttributeVector is the fixed-length integer fingerprint of one datagram.
type AttributeVector [AttributeCount]int64

// NewAttributeVector builds a vector from a slice, zero-padding short input
// and truncating long input.
func NewAttributeVector(vals []int64) AttributeVector {
	var v AttributeVector
	copy(v[:], vals)
	return v
}

// Slice returns the attributes as a slice (always AttributeCount long).
func (v AttributeVector) Slice() []int64 {
	out := make([]int64, AttributeCount)
	copy(out, v[:])
	return out
}

// Extract derives the attribute vector for a payload received from src.
// A nil src yields zero port and address length.
func Extract(payload []byte, src *net.UDPAddr) AttributeVector {
	var v AttributeVector

	var weight, partial int64
	for i, b := range payload {
		weight += int64(b)
		if i < partialSumWindow {
			partial += int64(b)
		}
	}

	length := int64(len(payload))
	if src != nil {
		v[AttrSrcPort] = int64(src.Port)
		if src.IP != nil {
			v[AttrAddrLen] = int64(len(src.IP.String()))
		}
	}
	v[AttrLength] = length
	if length > 0 {
		v[AttrFirstByte] = int64(payload[0])
	}
	v[AttrWeight] = weight
	v[AttrWeightMod111] = weight % 111
	v[AttrLengthMod7] = length % 7
	v[AttrPartialSum] = partial

	return v
}

// Density is the mean byte value normalized to [0,1]; 0 for an empty datagram.
func Density(v AttributeVector) float64 {
	if v[AttrLength] <= 0 {
		return 0
	}
	return float64(v[AttrWeight]) / (255.0 * float64(v[AttrLength]))
}

// Impact is the attack energy of a datagram: compact × density × φ, in [0, φ).
func Impact(v AttributeVector, compact float64) float64 {
	return compact * Density(v) * Phi
}

// Item is one unit of work handed from intake to the scoring task.
type Item struct {
	Attrs      AttributeVector
	Addr       *net.UDPAddr
	Control    Control
	HasControl bool
	Digest     uint64
	Received   time.Time
}
