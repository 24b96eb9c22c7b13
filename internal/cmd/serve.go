package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	appconfig "github.com/3leaps/trellis/internal/config"
	"github.com/3leaps/trellis/internal/observability"
	"github.com/3leaps/trellis/internal/server"
	"github.com/3leaps/trellis/internal/server/handlers"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the trellis HTTP API server",
	Long: `Start the HTTP API server exposing the lint, expand, and rules
endpoints under /v1, along with health probes and Prometheus metrics.

Examples:
  trellis serve                      # Serve on localhost:8080
  trellis serve --port 9000          # Override the listen port
  TRELLIS_LOG_LEVEL=debug trellis serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	serverOverrides := map[string]any{}
	if cmd.Flags().Changed("host") {
		serverOverrides["host"] = serveHost
	}
	if cmd.Flags().Changed("port") {
		serverOverrides["port"] = servePort
	}
	overrides := map[string]any{}
	if len(serverOverrides) > 0 {
		overrides["server"] = serverOverrides
	}

	cfg, err := appconfig.Load(cmd.Context(), overrides)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	logger, err := observability.NewServerLogger(cfg.Logging.Level, cfg.Logging.Profile)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	version := versionInfo.Version
	if version == "" {
		version = "dev"
	}

	observability.InitTelemetry("trellis", version)
	handlers.SetBuildInfo(versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
	handlers.InitHealthManager(version)

	manager := handlers.GetHealthManager()
	manager.RegisterChecker("signals", signalHealthChecker{})
	manager.RegisterChecker("telemetry", telemetryHealthChecker{})
	if identity := GetAppIdentity(); identity != nil {
		manager.RegisterChecker("identity", identityHealthChecker{
			binaryName: identity.BinaryName,
			envPrefix:  identity.EnvPrefix,
			configName: identity.ConfigName,
		})
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := server.New(cfg.Server.Host, cfg.Server.Port)
	srv.ConfigureTimeouts(
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		cfg.Server.IdleTimeout,
		cfg.Server.ShutdownTimeout,
	)
	srv.OnSignal(func(sig string) {
		switch sig {
		case server.SignalShutdown:
			logger.Info("shutdown signal received from admin endpoint")
			cancel()
		case server.SignalReload:
			logger.Info("reload signal received, reloading configuration")
			if _, reloadErr := appconfig.Load(context.Background()); reloadErr != nil {
				logger.Warn("config reload failed", zap.Error(reloadErr))
			}
		}
	})

	if cfg.Metrics.Enabled {
		startMetricsServer(ctx, logger, cfg)
	}

	logger.Info("server starting",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
	)

	if err := srv.Run(ctx); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
	}

	logger.Info("server stopped")
	return nil
}

// startMetricsServer serves the Prometheus exporter, and the pprof
// endpoints when enabled, on the metrics port.
func startMetricsServer(ctx context.Context, logger *zap.Logger, cfg *appconfig.Config) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.PrometheusExporter)
	if cfg.Debug.PprofEnabled {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	metricsServer := &http.Server{
		Addr:        net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Metrics.Port)),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	go func() {
		logger.Info("metrics server starting", zap.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
}

// signalHealthChecker reports signal handling as healthy; its presence in
// the health map confirms the serve loop installed its handlers.
type signalHealthChecker struct{}

func (signalHealthChecker) CheckHealth(ctx context.Context) error {
	return nil
}

// telemetryHealthChecker verifies the telemetry registry and exporter
// were initialized.
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errors.New("telemetry system not initialized")
	}
	return nil
}

// identityHealthChecker verifies the app identity fields used for config
// discovery are populated.
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (c identityHealthChecker) CheckHealth(ctx context.Context) error {
	if c.binaryName == "" {
		return errors.New("app identity missing binary name")
	}
	if c.envPrefix == "" {
		return errors.New("app identity missing env prefix")
	}
	if c.configName == "" {
		return errors.New("app identity missing config name")
	}
	return nil
}
