// Package config loads node configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"gopkg.in/yaml.v3"

	"github.com/nmxmxh/tigerdelta/internal/core"
	"github.com/nmxmxh/tigerdelta/internal/diffusion"
	"github.com/nmxmxh/tigerdelta/internal/dispatch"
	"github.com/nmxmxh/tigerdelta/internal/equilibrium"
	"github.com/nmxmxh/tigerdelta/internal/network"
	"github.com/nmxmxh/tigerdelta/internal/pipeline"
	"github.com/nmxmxh/tigerdelta/internal/tracker"
	"github.com/nmxmxh/tigerdelta/internal/utils"
)

// Environment overrides
const (
	EnvListen    = "TIGERDELTA_LISTEN"
	EnvLogLevel  = "TIGERDELTA_LOG_LEVEL"
	EnvOpsListen = "TIGERDELTA_OPS_LISTEN"
)

// DefaultListen is the UDP intake address.
const DefaultListen = "/ip4/0.0.0.0/udp/8888"

// Config is the node configuration.
type Config struct {
	Listen          string          `yaml:"listen"`
	OpsListen       string          `yaml:"ops_listen"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
	Logging         LoggingConfig   `yaml:"logging"`
	Intake          IntakeConfig    `yaml:"intake"`
	Diffusion       DiffusionConfig `yaml:"diffusion"`
	Scoring         ScoringConfig   `yaml:"scoring"`
	History         HistoryConfig   `yaml:"history"`
	Responder       ResponderConfig `yaml:"responder"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// IntakeConfig bounds the receive path.
type IntakeConfig struct {
	QueueCapacity int `yaml:"queue_capacity"`
	MaxDatagram   int `yaml:"max_datagram"`
	BatchSize     int `yaml:"batch_size"`
}

// DiffusionConfig sets the nonce epoch.
type DiffusionConfig struct {
	Epoch time.Duration `yaml:"epoch"`
}

// ScoringConfig tunes the scoring task.
type ScoringConfig struct {
	BlockThreshold      float64           `yaml:"block_threshold"`
	CriticalProbability float64           `yaml:"critical_probability"`
	CoherenceThreshold  float64           `yaml:"coherence_threshold"`
	SyncInterval        uint64            `yaml:"sync_interval"`
	TelemetryInterval   uint64            `yaml:"telemetry_interval"`
	ShadowMass          int               `yaml:"shadow_mass"`
	DecoyMass           int               `yaml:"decoy_mass"`
	PurgeMass           int               `yaml:"purge_mass"`
	StaggerBase         time.Duration     `yaml:"stagger_base"`
	ProtonCount         uint32            `yaml:"proton_count"`
	DefenseMass         float64           `yaml:"defense_mass"`
	LearningRate        float64           `yaml:"learning_rate"`
	Bands               equilibrium.Bands `yaml:"bands"`
}

// HistoryConfig bounds per-address memory.
type HistoryConfig struct {
	Capacity          int           `yaml:"capacity"`
	TTL               time.Duration `yaml:"ttl"`
	ExpectedSources   uint          `yaml:"expected_sources"`
	FalsePositiveRate float64       `yaml:"false_positive_rate"`
}

// ResponderConfig shapes outbound replies.
type ResponderConfig struct {
	RatePerSecond   int           `yaml:"rate_per_second"`
	Burst           int           `yaml:"burst"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	sc := pipeline.DefaultConfig()
	hc := tracker.DefaultHistoryConfig()
	rc := network.DefaultResponderConfig()
	ic := network.DefaultServerConfig()

	return &Config{
		Listen:          DefaultListen,
		OpsListen:       "127.0.0.1:9188",
		ShutdownTimeout: 5 * time.Second,
		Logging:         LoggingConfig{Level: "info"},
		Intake: IntakeConfig{
			QueueCapacity: dispatch.DefaultCapacity,
			MaxDatagram:   ic.MaxDatagram,
			BatchSize:     ic.BatchSize,
		},
		Diffusion: DiffusionConfig{Epoch: diffusion.DefaultEpoch},
		Scoring: ScoringConfig{
			BlockThreshold:      sc.BlockThreshold,
			CriticalProbability: sc.CriticalProbability,
			CoherenceThreshold:  sc.CoherenceThreshold,
			SyncInterval:        sc.SyncInterval,
			TelemetryInterval:   sc.TelemetryInterval,
			ShadowMass:          sc.ShadowMass,
			DecoyMass:           sc.DecoyMass,
			PurgeMass:           sc.PurgeMass,
			StaggerBase:         sc.StaggerBase,
			ProtonCount:         sc.ProtonCount,
			DefenseMass:         sc.DefenseMass,
			LearningRate:        sc.LearningRate,
			Bands:               sc.Bands,
		},
		History: HistoryConfig{
			Capacity:          hc.Capacity,
			TTL:               hc.TTL,
			ExpectedSources:   hc.ExpectedSources,
			FalsePositiveRate: hc.FalsePositiveRate,
		},
		Responder: ResponderConfig{
			RatePerSecond:   rc.RatePerSecond,
			Burst:           rc.Burst,
			BreakerFailures: rc.BreakerFailures,
			BreakerTimeout:  rc.BreakerTimeout,
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
// Environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, utils.WrapCoded(err, utils.ErrCodeInvalidConfig, "parse "+path)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvOpsListen); v != "" {
		c.OpsListen = v
	}
}

// Validate rejects configurations the node cannot run with.
func (c *Config) Validate() error {
	if _, err := c.UDPAddr(); err != nil {
		return err
	}

	s := c.Scoring
	switch {
	case c.Intake.QueueCapacity <= 0:
		return invalid("intake.queue_capacity must be positive")
	case c.Intake.MaxDatagram < core.MinDatagram:
		return invalid(fmt.Sprintf("intake.max_datagram must be at least %d", core.MinDatagram))
	case s.BlockThreshold <= 0 || s.BlockThreshold > 1:
		return invalid("scoring.block_threshold must be in (0, 1]")
	case s.CriticalProbability <= 0 || s.CriticalProbability > 1:
		return invalid("scoring.critical_probability must be in (0, 1]")
	case s.CoherenceThreshold <= 0 || s.CoherenceThreshold > 1:
		return invalid("scoring.coherence_threshold must be in (0, 1]")
	case s.SyncInterval == 0:
		return invalid("scoring.sync_interval must be positive")
	case s.ShadowMass <= 0 || s.ShadowMass > s.DecoyMass || s.DecoyMass > s.PurgeMass:
		return invalid("scoring masses must satisfy 0 < shadow_mass <= decoy_mass <= purge_mass")
	case c.History.Capacity <= 0:
		return invalid("history.capacity must be positive")
	}

	if err := s.Bands.Validate(); err != nil {
		return utils.WrapCoded(err, utils.ErrCodeInvalidConfig, "scoring.bands")
	}
	return nil
}

func invalid(msg string) error {
	return utils.NewCodedError(utils.ErrCodeInvalidConfig, msg)
}

// UDPAddr resolves the multiaddr listen address.
func (c *Config) UDPAddr() (*net.UDPAddr, error) {
	m, err := ma.NewMultiaddr(c.Listen)
	if err != nil {
		return nil, utils.WrapCoded(err, utils.ErrCodeInvalidConfig, "listen "+c.Listen)
	}
	na, err := manet.ToNetAddr(m)
	if err != nil {
		return nil, utils.WrapCoded(err, utils.ErrCodeInvalidConfig, "listen "+c.Listen)
	}
	udp, ok := na.(*net.UDPAddr)
	if !ok {
		return nil, invalid("listen address is not UDP: " + c.Listen)
	}
	return udp, nil
}

// Level returns the parsed log level.
func (c *Config) Level() utils.LogLevel {
	return utils.ParseLevel(c.Logging.Level)
}

// PipelineConfig maps scoring settings onto the processor.
func (c *Config) PipelineConfig() pipeline.Config {
	s := c.Scoring
	return pipeline.Config{
		BlockThreshold:      s.BlockThreshold,
		CriticalProbability: s.CriticalProbability,
		CoherenceThreshold:  s.CoherenceThreshold,
		SyncInterval:        s.SyncInterval,
		TelemetryInterval:   s.TelemetryInterval,
		ShadowMass:          s.ShadowMass,
		DecoyMass:           s.DecoyMass,
		PurgeMass:           s.PurgeMass,
		StaggerBase:         s.StaggerBase,
		ProtonCount:         s.ProtonCount,
		DefenseMass:         s.DefenseMass,
		LearningRate:        s.LearningRate,
		Bands:               s.Bands,
	}
}

func (c *Config) ServerConfig() network.ServerConfig {
	return network.ServerConfig{MaxDatagram: c.Intake.MaxDatagram, BatchSize: c.Intake.BatchSize}
}

func (c *Config) ResponderConfig() network.ResponderConfig {
	r := c.Responder
	return network.ResponderConfig{
		RatePerSecond:   r.RatePerSecond,
		Burst:           r.Burst,
		BreakerFailures: r.BreakerFailures,
		BreakerTimeout:  r.BreakerTimeout,
	}
}

func (c *Config) HistoryConfig() tracker.HistoryConfig {
	h := c.History
	return tracker.HistoryConfig{
		Capacity:          h.Capacity,
		TTL:               h.TTL,
		ExpectedSources:   h.ExpectedSources,
		FalsePositiveRate: h.FalsePositiveRate,
	}
}

func (c *Config) DiffusionConfig() diffusion.Config {
	return diffusion.Config{Epoch: c.Diffusion.Epoch}
}
