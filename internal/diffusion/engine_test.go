package diffusion

import (
	"bytes"
	"errors"
	"math"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/tigerdelta/internal/core"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy unavailable") }

func newTestEngine(t *testing.T, clock *fakeClock) *Engine {
	t.Helper()
	return NewEngine(Config{
		Epoch:   DefaultEpoch,
		Entropy: bytes.NewReader(bytes.Repeat([]byte{0xA5, 0x13, 0x77, 0x01}, 64)),
		Clock:   clock.Now,
	})
}

// ========== DETERMINISM ==========

func TestCompact_DeterministicForFixedNonce(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	e := newTestEngine(t, clock)
	e.SetNonce(0xDEADBEEF)

	attrs := core.NewAttributeVector([]int64{5000, 12, 1, 78, 78, 5, 36, 9})
	first := e.Compact(attrs)
	second := e.Compact(attrs)

	assert.Equal(t, first, second)
	assert.Equal(t, Fold(attrs, 0xDEADBEEF), first)
	assert.Equal(t, uint64(1), e.Refreshes())
}

func TestCompact_AlwaysInUnitRange(t *testing.T) {
	nonces := []uint64{0, 1, 42, math.MaxUint64, 1 << 63, 0x0123456789ABCDEF}
	vectors := []core.AttributeVector{
		{},
		core.NewAttributeVector([]int64{math.MaxInt64, math.MinInt64, -1, 1}),
		core.NewAttributeVector([]int64{65535, 1024, 255, 261120, 48, 2, 2040, 15}),
		core.NewAttributeVector([]int64{-5, -4, -3, -2, -1, 0, 1, 2, 3, 4}),
	}
	for _, n := range nonces {
		for _, v := range vectors {
			got := Fold(v, n)
			assert.GreaterOrEqual(t, int64(got), int64(0))
			assert.Less(t, int64(got), One)
		}
	}
}

func TestFold_EveryAttributeMoves(t *testing.T) {
	base := core.NewAttributeVector([]int64{5000, 12, 1, 78, 78, 5, 36, 9})
	want := Fold(base, 99)

	for i := 0; i < core.AttributeCount; i++ {
		bumped := base
		bumped[i]++
		assert.NotEqual(t, want, Fold(bumped, 99), "attribute %d", i)
	}

	far := base
	far[core.AttrSrcPort] = 60000
	far[core.AttrWeight] = 3000
	assert.Greater(t, math.Abs(ToFloat(Fold(far, 99))-ToFloat(want)), 1e-3)
}

func TestFold_DistinctSourcesSpread(t *testing.T) {
	payload := bytes.Repeat([]byte{0xFF}, 64)
	seen := make(map[Fixed]struct{})
	lo, hi := 1.0, 0.0

	for i := 0; i < 200; i++ {
		src := &net.UDPAddr{IP: net.IPv4(10, 1, 0, byte(i)), Port: 4000 + i}
		c := Fold(core.Extract(payload, src), 42)
		seen[c] = struct{}{}
		lo = math.Min(lo, ToFloat(c))
		hi = math.Max(hi, ToFloat(c))
	}

	assert.Len(t, seen, 200)
	assert.Greater(t, hi-lo, 0.5)
}

func TestFold_IndexOffset(t *testing.T) {
	const nonce = 99
	contrib := mulQ(sinFixed((int64(nonce)*PiFixed)>>32), PhiFixed)

	var offsets int64
	for i := 0; i < core.AttributeCount; i++ {
		offsets += (int64(i) * indexSalt) << 16
	}

	got := Fold(core.AttributeVector{}, nonce)
	assert.Equal(t, Fixed(remEuclid(core.AttributeCount*contrib+offsets, One)), got)
	assert.NotEqual(t, Fixed(remEuclid(core.AttributeCount*contrib, One)), got)
}

// ========== NONCE ROTATION ==========

func TestEnsureFresh_RotatesAfterEpoch(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	e := newTestEngine(t, clock)
	e.SetNonce(1)

	clock.Advance(DefaultEpoch - time.Millisecond)
	e.EnsureFresh()
	assert.Equal(t, uint64(1), e.Nonce())

	clock.Advance(time.Millisecond)
	e.EnsureFresh()
	assert.NotEqual(t, uint64(1), e.Nonce())
	assert.Equal(t, uint64(2), e.Refreshes())
	assert.Zero(t, e.Fallbacks())
}

func TestRefresh_FallsBackToIncrement(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	e := NewEngine(Config{Entropy: failingReader{}, Clock: clock.Now})
	require.Equal(t, uint64(1), e.Fallbacks())

	e.SetNonce(math.MaxUint64)
	clock.Advance(DefaultEpoch)
	e.EnsureFresh()

	assert.Equal(t, uint64(0), e.Nonce(), "increment wraps")
	assert.Equal(t, uint64(2), e.Fallbacks())
}

// ========== FIXED-POINT PRIMITIVES ==========

func TestSinFixed_TracksSine(t *testing.T) {
	for x := -math.Pi / 2; x <= math.Pi/2; x += 0.05 {
		got := ToFloat(Fixed(sinFixed(int64(FromFloat(x)))))
		assert.InDelta(t, math.Sin(x), got, 1e-3, "x=%f", x)
	}
	for x := -math.Pi; x <= math.Pi; x += 0.1 {
		got := ToFloat(Fixed(sinFixed(int64(FromFloat(x)))))
		assert.InDelta(t, math.Sin(x), got, 0.1, "x=%f", x)
	}
}

func TestSinFixed_RangeReduction(t *testing.T) {
	x := int64(FromFloat(1.0))
	assert.InDelta(t, float64(sinFixed(x)), float64(sinFixed(x+2*twoPi)), 1)
	assert.InDelta(t, float64(sinFixed(-x)), float64(sinFixed(-x-twoPi)), 1)
}

func TestMulQ(t *testing.T) {
	assert.Equal(t, One, mulQ(One, One))
	assert.Equal(t, -One/2, mulQ(One/2, -One))
	assert.InDelta(t, math.Pi*math.Pi, ToFloat(Fixed(mulQ(PiFixed, PiFixed))), 1e-8)
}

func TestRemEuclid(t *testing.T) {
	assert.Equal(t, int64(1), remEuclid(-One+1, One))
	assert.Equal(t, int64(0), remEuclid(-One, One))
	assert.Equal(t, int64(5), remEuclid(One+5, One))
}
