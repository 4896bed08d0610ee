package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		NodeID:            "c0ffee00-0000-4000-8000-000000000001",
		Sequence:          7,
		Processed:         1792,
		Shadow:            true,
		Entropy:           0.42,
		Valence:           1.0135,
		DefenseMass:       930.5,
		MutationPhase:     3,
		ThreatProbability: 0.87,
		Blocks:            12,
		Preempts:          4,
		Validated:         1,
		QueueDepth:        17,
		Resting:           false,
		TrackedSources:    33,
		Timestamp:         time.Unix(1_700_000_000, 123),
	}
}

func TestSnapshot_EncodeDecode(t *testing.T) {
	in := sampleSnapshot()
	out, err := Unmarshal(in.Marshal())
	require.NoError(t, err)

	assert.Equal(t, in.NodeID, out.NodeID)
	assert.Equal(t, in.Processed, out.Processed)
	assert.True(t, out.Shadow)
	assert.Equal(t, in.DefenseMass, out.DefenseMass)
	assert.Equal(t, in.MutationPhase, out.MutationPhase)
	assert.True(t, in.Timestamp.Equal(out.Timestamp))
}

func TestUnmarshal_SkipsUnknownFields(t *testing.T) {
	b := sampleSnapshot().Marshal()
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("future"))

	out, err := Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), out.Blocks)
}

func TestUnmarshal_Truncated(t *testing.T) {
	b := sampleSnapshot().Marshal()
	_, err := Unmarshal(b[:len(b)-3])
	assert.ErrorIs(t, err, ErrMalformedSnapshot)
}
