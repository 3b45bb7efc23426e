package cli

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/parleyhub/parley/internal/config"
	"github.com/parleyhub/parley/internal/logger"
	"github.com/parleyhub/parley/internal/observability"
	"github.com/parleyhub/parley/pkg/hub"
	"github.com/spf13/cobra"
)

var (
	serveHost        string
	servePort        int
	serveIdleTimeout time.Duration
	serveMetricsAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay hub",
	Long: `Start the parley relay hub. The hub binds a TCP listener, serves the
session protocol until terminated, and reclaims sessions that stay idle
longer than the configured timeout. All state is process-lifetime only.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "bind host (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "bind port (overrides config)")
	serveCmd.Flags().DurationVar(&serveIdleTimeout, "idle-timeout", 0, "idle session timeout (overrides config)")
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "address for /metrics and /healthz (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Flag overrides
	if serveHost != "" {
		cfg.Hub.Host = serveHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Hub.Port = servePort
	}
	if serveIdleTimeout > 0 {
		cfg.Hub.IdleTimeout = serveIdleTimeout
	}
	if serveMetricsAddr != "" {
		cfg.Hub.MetricsAddr = serveMetricsAddr
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if err := config.NewValidator().Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	lg, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer lg.Close()

	zl := lg.GetZerolog()

	server, err := hub.NewServer(hub.Config{
		Host:          cfg.Hub.Host,
		Port:          cfg.Hub.Port,
		IdleTimeout:   cfg.Hub.IdleTimeout,
		SweepInterval: cfg.Hub.SweepInterval,
		Logger:        zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create hub server: %w", err)
	}

	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start hub server: %w", err)
	}

	var metricsSrv *http.Server
	if cfg.Hub.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})

		metricsSrv = &http.Server{Addr: cfg.Hub.MetricsAddr, Handler: mux}
		go func() {
			zl.Info().Str("addr", cfg.Hub.MetricsAddr).Msg("Metrics endpoint listening")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				zl.Error().Err(err).Msg("Metrics endpoint error")
			}
		}()
	}

	// Serve until terminated.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	zl.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	if metricsSrv != nil {
		_ = metricsSrv.Close()
	}
	if err := server.Stop(); err != nil {
		return fmt.Errorf("failed to stop hub server: %w", err)
	}

	return nil
}
