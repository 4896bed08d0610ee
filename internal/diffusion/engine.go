// Package diffusion folds an attribute vector into a nonce-salted Q32.32
// scalar in [0, 1).
package diffusion

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"time"

	"github.com/nmxmxh/tigerdelta/internal/core"
)

// DefaultEpoch is how long one nonce stays valid.
const DefaultEpoch = 5 * time.Second

// Config configures an Engine. Zero values take defaults.
type Config struct {
	Epoch   time.Duration
	Entropy io.Reader
	Clock   func() time.Time
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{
		Epoch:   DefaultEpoch,
		Entropy: rand.Reader,
		Clock:   time.Now,
	}
}

// Engine holds the diffusion state. It is owned by a single goroutine.
type Engine struct {
	cfg         Config
	nonce       uint64
	lastRefresh time.Time
	refreshes   uint64
	fallbacks   uint64
}

// NewEngine creates an engine and draws its first nonce.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.Epoch <= 0 {
		cfg.Epoch = def.Epoch
	}
	if cfg.Entropy == nil {
		cfg.Entropy = def.Entropy
	}
	if cfg.Clock == nil {
		cfg.Clock = def.Clock
	}

	e := &Engine{cfg: cfg}
	e.refresh()
	return e
}

// SetNonce pins the nonce and restarts the epoch. Used for reproducible runs.
func (e *Engine) SetNonce(n uint64) {
	e.nonce = n
	e.lastRefresh = e.cfg.Clock()
}

func (e *Engine) Nonce() uint64     { return e.nonce }
func (e *Engine) Refreshes() uint64 { return e.refreshes }
func (e *Engine) Fallbacks() uint64 { return e.fallbacks }

// EnsureFresh rotates the nonce when the epoch has elapsed.
func (e *Engine) EnsureFresh() {
	if e.cfg.Clock().Sub(e.lastRefresh) >= e.cfg.Epoch {
		e.refresh()
	}
}

// refresh draws a new nonce; if the entropy source fails the previous nonce
// is incremented so it never stays constant across epochs.
func (e *Engine) refresh() {
	var buf [8]byte
	if _, err := io.ReadFull(e.cfg.Entropy, buf[:]); err == nil {
		e.nonce = binary.LittleEndian.Uint64(buf[:])
	} else {
		e.nonce++
		e.fallbacks++
	}
	e.refreshes++
	e.lastRefresh = e.cfg.Clock()
}

// Compact folds attrs into a scalar in [0, One).
func (e *Engine) Compact(attrs core.AttributeVector) Fixed {
	e.EnsureFresh()
	return Fold(attrs, e.nonce)
}

// Fold is the pure diffusion map for a given nonce. Each integer attribute is
// lifted to Q32.32 before salting, so the wrapping product moves the sine
// argument by frac(π) per unit of attribute instead of by 2⁻³².
func Fold(attrs core.AttributeVector, nonce uint64) Fixed {
	var sum int64
	salt := int64(nonce)

	for i, a := range attrs {
		salted := a<<32 + salt
		scaled := (salted * PiFixed) >> 32
		s := sinFixed(scaled)
		contrib := mulQ(s, PhiFixed)

		offset := (int64(i) * indexSalt) << 16
		sum += contrib + offset
	}

	return Fixed(remEuclid(sum, One))
}
