// Package telemetry publishes scoring-state snapshots to operators over
// websocket and hosts the ops HTTP endpoints.
package telemetry

import (
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Snapshot is a copied view of the scoring state. It never aliases live state.
type Snapshot struct {
	NodeID            string
	Sequence          uint64
	Processed         uint64
	Shadow            bool
	Entropy           float64
	Valence           float64
	DefenseMass       float64
	MutationPhase     uint32
	ThreatProbability float64
	Blocks            uint64
	Preempts          uint64
	Validated         uint64
	QueueDepth        uint32
	Resting           bool
	TrackedSources    uint32
	Timestamp         time.Time
}

// Wire field numbers. Append-only.
const (
	fieldNodeID            protowire.Number = 1
	fieldSequence          protowire.Number = 2
	fieldProcessed         protowire.Number = 3
	fieldShadow            protowire.Number = 4
	fieldEntropy           protowire.Number = 5
	fieldValence           protowire.Number = 6
	fieldDefenseMass       protowire.Number = 7
	fieldMutationPhase     protowire.Number = 8
	fieldThreatProbability protowire.Number = 9
	fieldBlocks            protowire.Number = 10
	fieldPreempts          protowire.Number = 11
	fieldValidated         protowire.Number = 12
	fieldQueueDepth        protowire.Number = 13
	fieldResting           protowire.Number = 14
	fieldTrackedSources    protowire.Number = 15
	fieldTimestamp         protowire.Number = 16
)

// ErrMalformedSnapshot is returned for undecodable input.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

// Marshal encodes the snapshot in protobuf wire format.
func (s Snapshot) Marshal() []byte {
	b := make([]byte, 0, 128)
	b = appendString(b, fieldNodeID, s.NodeID)
	b = appendVarint(b, fieldSequence, s.Sequence)
	b = appendVarint(b, fieldProcessed, s.Processed)
	b = appendVarint(b, fieldShadow, protowire.EncodeBool(s.Shadow))
	b = appendDouble(b, fieldEntropy, s.Entropy)
	b = appendDouble(b, fieldValence, s.Valence)
	b = appendDouble(b, fieldDefenseMass, s.DefenseMass)
	b = appendVarint(b, fieldMutationPhase, uint64(s.MutationPhase))
	b = appendDouble(b, fieldThreatProbability, s.ThreatProbability)
	b = appendVarint(b, fieldBlocks, s.Blocks)
	b = appendVarint(b, fieldPreempts, s.Preempts)
	b = appendVarint(b, fieldValidated, s.Validated)
	b = appendVarint(b, fieldQueueDepth, uint64(s.QueueDepth))
	b = appendVarint(b, fieldResting, protowire.EncodeBool(s.Resting))
	b = appendVarint(b, fieldTrackedSources, uint64(s.TrackedSources))
	if !s.Timestamp.IsZero() {
		b = appendVarint(b, fieldTimestamp, uint64(s.Timestamp.UnixNano()))
	}
	return b
}

// Unmarshal decodes a snapshot. Unknown fields are skipped.
func Unmarshal(b []byte) (Snapshot, error) {
	var s Snapshot
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, protowire.ParseError(m))
			}
			s.setVarint(num, v)
			n = m
		case typ == protowire.Fixed64Type:
			v, m := protowire.ConsumeFixed64(b)
			if m < 0 {
				return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, protowire.ParseError(m))
			}
			s.setDouble(num, math.Float64frombits(v))
			n = m
		case typ == protowire.BytesType && num == fieldNodeID:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, protowire.ParseError(m))
			}
			s.NodeID = v
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, protowire.ParseError(n))
			}
		}
		b = b[n:]
	}
	return s, nil
}

func (s *Snapshot) setVarint(num protowire.Number, v uint64) {
	switch num {
	case fieldSequence:
		s.Sequence = v
	case fieldProcessed:
		s.Processed = v
	case fieldShadow:
		s.Shadow = protowire.DecodeBool(v)
	case fieldMutationPhase:
		s.MutationPhase = uint32(v)
	case fieldBlocks:
		s.Blocks = v
	case fieldPreempts:
		s.Preempts = v
	case fieldValidated:
		s.Validated = v
	case fieldQueueDepth:
		s.QueueDepth = uint32(v)
	case fieldResting:
		s.Resting = protowire.DecodeBool(v)
	case fieldTrackedSources:
		s.TrackedSources = uint32(v)
	case fieldTimestamp:
		s.Timestamp = time.Unix(0, int64(v))
	}
}

func (s *Snapshot) setDouble(num protowire.Number, v float64) {
	switch num {
	case fieldEntropy:
		s.Entropy = v
	case fieldValence:
		s.Valence = v
	case fieldDefenseMass:
		s.DefenseMass = v
	case fieldThreatProbability:
		s.ThreatProbability = v
	}
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}
