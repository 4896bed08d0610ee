package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/nmxmxh/tigerdelta/internal/config"
	"github.com/nmxmxh/tigerdelta/internal/core"
	"github.com/nmxmxh/tigerdelta/internal/diffusion"
	"github.com/nmxmxh/tigerdelta/internal/dispatch"
	"github.com/nmxmxh/tigerdelta/internal/metrics"
	"github.com/nmxmxh/tigerdelta/internal/network"
	"github.com/nmxmxh/tigerdelta/internal/pipeline"
	"github.com/nmxmxh/tigerdelta/internal/telemetry"
	"github.com/nmxmxh/tigerdelta/internal/tracker"
	"github.com/nmxmxh/tigerdelta/internal/utils"
)

// Set by -ldflags at release time.
var version = "dev"

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "tigerdelta-node",
	Short: "Per-packet UDP anomaly scoring node",
	Long: `tigerdelta-node listens for UDP datagrams, scores each one through the
diffusion, resonance and equilibrium chain, and answers suspicious sources
with block, overload or decoy replies.

Run without a subcommand to start serving.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scoring node",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "tigerdelta-node", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "tigerdelta.yaml", "Path to YAML config (missing file uses defaults)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildLogger(cfg *config.Config) (*utils.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Logging.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(cfg.Level())
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	z, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return utils.FromZap(z, "tigerdelta"), nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown := utils.NewGracefulShutdown(cfg.ShutdownTimeout, logger.Named("shutdown"))
	shutdown.Register("logger", func(context.Context) error {
		_ = logger.Sync()
		return nil
	})

	identity := core.NewIdentity()
	logger = logger.With(utils.String("node", identity.Short()))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	addr, err := cfg.UDPAddr()
	if err != nil {
		return err
	}
	conn, err := network.Listen(addr)
	if err != nil {
		return err
	}
	shutdown.Register("udp", func(context.Context) error { return conn.Close() })

	responder := network.NewResponder(conn, cfg.ResponderConfig(), logger, m)
	shutdown.Register("responder", responder.Close)

	queue := dispatch.New(cfg.Intake.QueueCapacity)
	server := network.NewServer(conn, queue, cfg.ServerConfig(), logger, m)

	hub := telemetry.NewHub(logger)
	ops := telemetry.NewOpsServer(cfg.OpsListen, identity.ID, hub, m, logger)

	hc := cfg.HistoryConfig()
	proc := pipeline.NewProcessor(cfg.PipelineConfig(), pipeline.Deps{
		Diffusion: diffusion.NewEngine(cfg.DiffusionConfig()),
		History:   tracker.NewHistory(hc),
		Beacons:   tracker.NewBeaconTable(hc.Capacity, hc.TTL, nil),
		Responder: responder,
		Publisher: hub,
		Metrics:   m,
		Logger:    logger,
		Identity:  identity,
	})

	logger.Info("Node starting",
		utils.String("version", version),
		utils.String("listen", cfg.Listen),
		utils.String("ops", cfg.OpsListen))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Serve(gctx) })
	g.Go(func() error { return proc.Run(gctx, queue) })
	g.Go(func() error { return ops.Run(gctx) })

	runErr := g.Wait()
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	if err := shutdown.Shutdown(context.Background()); err != nil {
		logger.Warn("Shutdown incomplete", utils.Err(err))
	}
	return runErr
}
