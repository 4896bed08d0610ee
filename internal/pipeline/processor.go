package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nmxmxh/tigerdelta/internal/core"
	"github.com/nmxmxh/tigerdelta/internal/diffusion"
	"github.com/nmxmxh/tigerdelta/internal/dispatch"
	"github.com/nmxmxh/tigerdelta/internal/equilibrium"
	"github.com/nmxmxh/tigerdelta/internal/lifecycle"
	"github.com/nmxmxh/tigerdelta/internal/metrics"
	"github.com/nmxmxh/tigerdelta/internal/network"
	"github.com/nmxmxh/tigerdelta/internal/resonance"
	"github.com/nmxmxh/tigerdelta/internal/sandbox"
	"github.com/nmxmxh/tigerdelta/internal/telemetry"
	"github.com/nmxmxh/tigerdelta/internal/tracker"
	"github.com/nmxmxh/tigerdelta/internal/utils"
)

// Responder accepts fire-and-forget response jobs.
type Responder interface {
	Send(job network.Job)
}

// Publisher receives periodic state snapshots.
type Publisher interface {
	Publish(s telemetry.Snapshot)
}

// Deps are the collaborators of a Processor. Nil fields get defaults.
type Deps struct {
	Diffusion *diffusion.Engine
	History   *tracker.History
	Beacons   *tracker.BeaconTable
	Responder Responder
	Publisher Publisher
	Metrics   *metrics.Metrics
	Logger    *utils.Logger
	Identity  *core.Identity
	Clock     func() time.Time
}

// Processor is the single sequential scoring task. None of its state is
// shared; responders and publishers only ever receive copies.
type Processor struct {
	cfg    Config
	logger *utils.Logger
	node   *core.Identity
	now    func() time.Time

	diffusion  *diffusion.Engine
	resonance  *resonance.Core
	stabilizer *equilibrium.Stabilizer
	lifecycle  *lifecycle.Controller
	sandbox    *sandbox.Predictor
	history    *tracker.History
	beacons    *tracker.BeaconTable

	responder Responder
	publisher Publisher
	metrics   *metrics.Metrics

	mass          float64
	mode          Mode
	processed     uint64
	published     uint64
	blocks        uint64
	preempts      uint64
	validated     uint64
	lastProb      float64
	lastFallbacks uint64
	queueDepth    int
}

// NewProcessor builds the scoring chain.
func NewProcessor(cfg Config, deps Deps) *Processor {
	cfg = cfg.withDefaults()

	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = utils.Nop()
	}
	if deps.Identity == nil {
		deps.Identity = core.NewIdentity()
	}
	if deps.Diffusion == nil {
		deps.Diffusion = diffusion.NewEngine(diffusion.DefaultConfig())
	}
	if deps.History == nil {
		hc := tracker.DefaultHistoryConfig()
		hc.Clock = deps.Clock
		deps.History = tracker.NewHistory(hc)
	}
	if deps.Beacons == nil {
		deps.Beacons = tracker.NewBeaconTable(1024, time.Minute, deps.Clock)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewUnregistered()
	}

	return &Processor{
		cfg:           cfg,
		logger:        deps.Logger.Named("scoring"),
		node:          deps.Identity,
		now:           deps.Clock,
		diffusion:     deps.Diffusion,
		resonance:     resonance.New(cfg.ProtonCount),
		stabilizer:    equilibrium.NewStabilizer(cfg.DefenseMass, cfg.Bands),
		lifecycle:     lifecycle.New(cfg.DefenseMass),
		sandbox:       sandbox.New(cfg.LearningRate),
		history:       deps.History,
		beacons:       deps.Beacons,
		responder:     deps.Responder,
		publisher:     deps.Publisher,
		metrics:       deps.Metrics,
		mass:          cfg.DefenseMass,
		lastFallbacks: deps.Diffusion.Fallbacks(),
	}
}

// Run consumes the queue until it is closed and drained or ctx is done.
func (p *Processor) Run(ctx context.Context, q *dispatch.Queue) error {
	p.logger.Info("Scoring task started", utils.Int("queue_capacity", q.Cap()))
	for {
		item, err := q.Receive(ctx)
		if err != nil {
			if errors.Is(err, dispatch.ErrQueueClosed) || ctx.Err() != nil {
				p.logger.Info("Scoring task stopped", utils.Uint64("processed", p.processed))
				return nil
			}
			return utils.WrapError(err, "receive")
		}
		p.queueDepth = q.Len()
		p.metrics.QueueDepth.Set(float64(p.queueDepth))
		p.Process(item)
	}
}

// Process runs one item through the chain and dispatches its responses.
func (p *Processor) Process(item core.Item) Decision {
	at := item.Received
	if at.IsZero() {
		at = p.now()
	}
	key := addrKey(item)
	d := Decision{Mode: p.mode, DefenseMass: p.mass}

	if item.HasControl && item.Control.Kind == core.ControlBeacon {
		d.Coherence = Coherence(item.Control.Frequency, p.beacons.Observe(key, at))
		if d.Coherence > p.cfg.CoherenceThreshold {
			d.Verdict = VerdictValidated
			p.respond(item, &d, RespSyncValidated, 0, KindSync)
			p.logger.Debug("Beacon validated",
				utils.String("addr", key),
				utils.Float64("coherence", d.Coherence))
			p.finish(&d)
			return d
		}
	}

	compact := p.diffusion.Compact(item.Attrs)
	if fb := p.diffusion.Fallbacks(); fb != p.lastFallbacks {
		p.lastFallbacks = fb
		p.logger.Warn("Entropy source failed, nonce advanced by increment", utils.Uint64("fallbacks", fb))
	}
	d.Compact = compact
	d.CompactFloat = diffusion.ToFloat(compact)
	d.Impact = core.Impact(item.Attrs, d.CompactFloat)

	if p.sandbox.Predict(d.Impact) {
		d.Verdict = VerdictPreempt
		p.mass = p.lifecycle.Tick(d.Impact, 1.0, p.mass)
		p.stabilizer.UpdateMass(p.mass)
	} else {
		p.score(&d)
	}
	d.DefenseMass = p.mass

	entry, novel := p.history.Record(key, item.Digest)
	d.Mass, d.Novel = entry.Mass, novel
	if novel {
		p.metrics.NovelSources.Inc()
	}
	if entry.Mass > p.cfg.ShadowMass && p.mode != ModeShadow {
		p.setMode(ModeShadow, key, entry.Mass)
	}
	d.Mode = p.mode

	p.dispatchResponses(item, &d)

	if entry.Mass > p.cfg.PurgeMass {
		p.history.Purge(key)
		p.setMode(ModeStable, key, entry.Mass)
	}

	p.finish(&d)
	return d
}

// score runs resonance, stabilizer and life-cycle, then decides.
func (p *Processor) score(d *Decision) {
	c := d.CompactFloat

	p.resonance.Absorb(d.Impact)
	d.Drift = p.resonance.Rebalance(c)
	d.Probability = p.resonance.ThreatProbability(c)
	d.Critical = p.resonance.Critical()

	d.Deviation, d.Unstable = p.stabilizer.Stabilize(c, d.Impact)

	p.mass = p.lifecycle.Tick(d.Impact, d.Probability, p.mass)
	p.stabilizer.UpdateMass(p.mass)

	d.Threshold = p.lifecycle.Threshold(p.cfg.BlockThreshold)
	p.lastProb = d.Probability
	p.metrics.Probability.Observe(d.Probability)

	if (d.Unstable && d.Probability >= d.Threshold) ||
		(d.Critical && d.Probability >= p.cfg.CriticalProbability) {
		d.Verdict = VerdictBlock
	} else {
		d.Verdict = VerdictAllow
	}
}

func (p *Processor) dispatchResponses(item core.Item, d *Decision) {
	switch d.Verdict {
	case VerdictBlock:
		var delay time.Duration
		if d.Mode == ModeShadow {
			delay = Stagger(d.Mass, p.cfg.StaggerBase)
		}
		p.respond(item, d, RespBlock, delay, KindBlock)
	case VerdictPreempt:
		p.respond(item, d, RespOverload, 0, KindOverload)
	}

	status := item.HasControl && item.Control.Kind == core.ControlStatus
	if status || (d.Mode == ModeShadow && d.Mass > p.cfg.DecoyMass) {
		p.respond(item, d, fmt.Sprintf(respStatusFormat, p.sandbox.DecoyState()), 0, KindDecoy)
	}
}

func (p *Processor) respond(item core.Item, d *Decision, payload string, delay time.Duration, kind string) {
	d.Responses++
	if p.responder == nil || item.Addr == nil {
		return
	}
	p.responder.Send(network.Job{
		Addr:    item.Addr,
		Payload: []byte(payload),
		Delay:   delay,
		Kind:    kind,
		Shadow:  d.Mode == ModeShadow,
	})
}

func (p *Processor) setMode(m Mode, addr string, mass int) {
	if p.mode == m {
		return
	}
	p.mode = m
	if m == ModeShadow {
		p.metrics.ShadowMode.Set(1)
		p.logger.Warn("Entering shadow mode", utils.String("addr", addr), utils.Int("mass", mass))
		return
	}
	p.metrics.ShadowMode.Set(0)
	p.logger.Info("Threat history purged, returning to stable", utils.String("addr", addr), utils.Int("mass", mass))
}

// finish does per-item bookkeeping: counters, periodic sync and telemetry.
func (p *Processor) finish(d *Decision) {
	p.processed++
	switch d.Verdict {
	case VerdictBlock:
		p.blocks++
	case VerdictPreempt:
		p.preempts++
	case VerdictValidated:
		p.validated++
	}

	if p.processed%p.cfg.SyncInterval == 0 {
		p.sandbox.SyncWithReality(core.Phi * p.resonance.Valence())
		if swept := p.history.Sweep(); swept > 0 {
			p.logger.Debug("Expired threat history", utils.Int("entries", swept))
		}
	}

	p.metrics.Scored.Inc()
	p.metrics.Verdicts.WithLabelValues(d.Verdict.String()).Inc()
	p.metrics.Entropy.Set(p.lifecycle.Entropy())
	p.metrics.Valence.Set(p.resonance.Valence())
	p.metrics.DefenseMass.Set(p.mass)
	p.metrics.MutationPhase.Set(float64(p.resonance.MutationPhase()))
	p.metrics.Tracked.Set(float64(p.history.Len()))

	if d.Verdict == VerdictBlock {
		p.logger.Debug("Blocked",
			utils.Float64("p", d.Probability),
			utils.Float64("threshold", d.Threshold),
			utils.Float64("deviation", d.Deviation),
			utils.Bool("critical", d.Critical),
			utils.Int("mass", d.Mass))
	}

	if p.publisher != nil && p.processed%p.cfg.TelemetryInterval == 0 {
		p.publisher.Publish(p.Snapshot())
	}
}

// Snapshot copies the current state for telemetry.
func (p *Processor) Snapshot() telemetry.Snapshot {
	p.published++
	lc := p.lifecycle.State()
	return telemetry.Snapshot{
		NodeID:            p.node.ID,
		Sequence:          p.published,
		Processed:         p.processed,
		Shadow:            p.mode == ModeShadow,
		Entropy:           lc.Entropy,
		Valence:           p.resonance.Valence(),
		DefenseMass:       p.mass,
		MutationPhase:     uint32(p.resonance.MutationPhase()),
		ThreatProbability: p.lastProb,
		Blocks:            p.blocks,
		Preempts:          p.preempts,
		Validated:         p.validated,
		QueueDepth:        uint32(p.queueDepth),
		Resting:           lc.Resting,
		TrackedSources:    uint32(p.history.Len()),
		Timestamp:         p.now(),
	}
}

// Mode returns the current defense posture.
func (p *Processor) Mode() Mode { return p.mode }

// Processed returns the number of items handled.
func (p *Processor) Processed() uint64 { return p.processed }

func addrKey(item core.Item) string {
	if item.Addr == nil {
		return "unknown"
	}
	return item.Addr.String()
}
