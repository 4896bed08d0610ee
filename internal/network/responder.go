package network

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"github.com/yasserelgammal/rate-limiter/limiter"
	"github.com/yasserelgammal/rate-limiter/store"

	"github.com/nmxmxh/tigerdelta/internal/metrics"
	"github.com/nmxmxh/tigerdelta/internal/utils"
)

// PacketWriter is the sending half of a datagram socket.
type PacketWriter interface {
	WriteTo(p []byte, addr net.Addr) (int, error)
}

// Job is a self-contained response. Everything the delivery goroutine needs
// is copied in at spawn time.
type Job struct {
	Addr    *net.UDPAddr
	Payload []byte
	Delay   time.Duration
	Kind    string
	Shadow  bool
}

// ResponderConfig configures response shaping.
type ResponderConfig struct {
	RatePerSecond   int
	Burst           int
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// DefaultResponderConfig returns sensible defaults.
func DefaultResponderConfig() ResponderConfig {
	return ResponderConfig{
		RatePerSecond:   50,
		Burst:           100,
		BreakerFailures: 5,
		BreakerTimeout:  10 * time.Second,
	}
}

// Responder delivers fire-and-forget responses on detached goroutines.
type Responder struct {
	conn         PacketWriter
	limiter      *limiter.TokenBucket
	limiterStore store.Store
	breaker      *gobreaker.CircuitBreaker
	logger       *utils.Logger
	metrics      *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewResponder creates a responder writing through conn.
func NewResponder(conn PacketWriter, cfg ResponderConfig, logger *utils.Logger, m *metrics.Metrics) *Responder {
	def := DefaultResponderConfig()
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = def.RatePerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}
	if logger == nil {
		logger = utils.Nop()
	}
	if m == nil {
		m = metrics.NewUnregistered()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Responder{
		conn:    conn,
		logger:  logger.Named("responder"),
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}

	r.limiterStore = store.NewMemoryStore(time.Minute)
	r.limiter, _ = limiter.NewTokenBucket(
		limiter.Config{
			Rate:     int64(cfg.RatePerSecond),
			Duration: time.Second,
			Burst:    int64(cfg.Burst),
		},
		r.limiterStore,
	)

	failures := cfg.BreakerFailures
	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "udp-responder",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn("Circuit breaker state change",
				utils.String("breaker", name),
				utils.String("from", from.String()),
				utils.String("to", to.String()))
		},
	})

	return r
}

// Send spawns delivery of job and returns immediately. Jobs sent after
// Close are discarded.
func (r *Responder) Send(job Job) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed || job.Addr == nil {
		return
	}
	r.wg.Add(1)
	go r.deliver(job)
}

func (r *Responder) deliver(job Job) {
	defer r.wg.Done()

	if job.Delay > 0 {
		timer := time.NewTimer(job.Delay)
		select {
		case <-timer.C:
		case <-r.ctx.Done():
			timer.Stop()
			r.finish(job, metrics.OutcomeCancelled, nil)
			return
		}
	}

	if !r.limiter.Allow(job.Addr.IP.String()) {
		r.finish(job, metrics.OutcomeLimited,
			utils.NewCodedError(utils.ErrCodeRateLimited, "response budget exhausted for "+job.Addr.IP.String()))
		return
	}

	_, err := r.breaker.Execute(func() (interface{}, error) {
		return r.conn.WriteTo(job.Payload, job.Addr)
	})
	switch {
	case err == nil:
		r.finish(job, metrics.OutcomeSent, nil)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		r.finish(job, metrics.OutcomeOpen, utils.WrapCoded(err, utils.ErrCodeCircuitOpen, "send rejected"))
	default:
		r.finish(job, metrics.OutcomeFailed, utils.WrapCoded(err, utils.ErrCodeSendFailed, "write response"))
	}
}

// finish records the outcome under the defense mode captured at spawn time.
func (r *Responder) finish(job Job, outcome string, err error) {
	mode := metrics.ModeStable
	if job.Shadow {
		mode = metrics.ModeShadow
	}
	r.metrics.ObserveResponse(job.Kind, mode, outcome)
	if err != nil {
		r.logger.Debug("Response not delivered",
			utils.String("addr", job.Addr.String()),
			utils.String("kind", job.Kind),
			utils.String("mode", mode),
			utils.Err(err))
	}
}

// BreakerState reports the circuit breaker state.
func (r *Responder) BreakerState() gobreaker.State {
	return r.breaker.State()
}

// Close cancels pending delays and waits for in-flight deliveries.
func (r *Responder) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return utils.WrapError(ctx.Err(), "responder drain")
	}
}
