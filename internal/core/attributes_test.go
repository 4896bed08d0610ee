package core

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqPayload(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i + 1)
	}
	return p
}

// ========== SUCCESS CASES ==========

func TestExtract_KnownDatagram(t *testing.T) {
	src := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5000}
	v := Extract(seqPayload(12), src)

	require.Len(t, v.Slice(), AttributeCount)
	assert.Equal(t, int64(5000), v[AttrSrcPort])
	assert.Equal(t, int64(12), v[AttrLength])
	assert.Equal(t, int64(1), v[AttrFirstByte])
	assert.Equal(t, int64(78), v[AttrWeight])
	assert.Equal(t, int64(78), v[AttrWeightMod111])
	assert.Equal(t, int64(5), v[AttrLengthMod7])
	assert.Equal(t, int64(36), v[AttrPartialSum])
	assert.Equal(t, int64(len("127.0.0.1")), v[AttrAddrLen])
	assert.Zero(t, v[AttrReserved0])
	assert.Zero(t, v[AttrReserved1])
}

func TestExtract_NilSource(t *testing.T) {
	v := Extract([]byte{200, 200}, nil)
	assert.Zero(t, v[AttrSrcPort])
	assert.Zero(t, v[AttrAddrLen])
	assert.Equal(t, int64(400%111), v[AttrWeightMod111])
}

func TestNewAttributeVector_PadAndTruncate(t *testing.T) {
	short := NewAttributeVector([]int64{1, 2, 3})
	assert.Equal(t, AttributeVector{1, 2, 3}, short)

	long := NewAttributeVector([]int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})
	assert.Equal(t, AttributeVector{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, long)

	assert.Len(t, NewAttributeVector(nil).Slice(), AttributeCount)
}

func TestImpact_Bounds(t *testing.T) {
	full := Extract([]byte{255, 255, 255, 255, 255, 255, 255, 255}, nil)
	assert.InDelta(t, 1.0, Density(full), 1e-12)
	assert.InDelta(t, 0.5*Phi, Impact(full, 0.5), 1e-12)

	empty := NewAttributeVector(nil)
	assert.Zero(t, Impact(empty, 0.9))
}

// ========== CONTROL MESSAGES ==========

func TestParseControl(t *testing.T) {
	c, ok := ParseControl([]byte("PHI_PI_NOTE|432.5"))
	require.True(t, ok)
	assert.Equal(t, ControlBeacon, c.Kind)
	assert.InDelta(t, 432.5, c.Frequency, 1e-12)

	c, ok = ParseControl([]byte("PHI_PI_NOTE|not-a-number"))
	require.True(t, ok)
	assert.Zero(t, c.Frequency)

	c, ok = ParseControl([]byte("STATUS|ping|extra"))
	require.True(t, ok)
	assert.Equal(t, ControlStatus, c.Kind)
	assert.Equal(t, "ping", c.Value)
}

func TestParseControl_OrdinaryTraffic(t *testing.T) {
	cases := [][]byte{
		[]byte("HELLO|world"),
		[]byte("no separator here"),
		[]byte("|leading"),
		{0xff, '|', 0x01},
		seqPayload(12),
	}
	for _, p := range cases {
		_, ok := ParseControl(p)
		assert.False(t, ok, "payload %q", p)
	}
}

func TestDigest_Deterministic(t *testing.T) {
	assert.Equal(t, Digest([]byte("abc")), Digest([]byte("abc")))
	assert.NotEqual(t, Digest([]byte("abc")), Digest([]byte("abd")))
}

func TestIdentity(t *testing.T) {
	a, b := NewIdentity(), NewIdentity()
	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, a.Short(), 8)
}
