package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/slidesmith/slidesmith/internal/assemble"
	"github.com/slidesmith/slidesmith/internal/config"
	"github.com/slidesmith/slidesmith/internal/core"
	"github.com/slidesmith/slidesmith/internal/core/engine"
	"github.com/slidesmith/slidesmith/internal/core/store"
	errwrap "github.com/slidesmith/slidesmith/internal/errors"
	"github.com/slidesmith/slidesmith/internal/genlink"
	"github.com/slidesmith/slidesmith/internal/observability"
	"github.com/slidesmith/slidesmith/internal/server"
	"github.com/slidesmith/slidesmith/internal/server/handlers"
	"github.com/slidesmith/slidesmith/internal/slides"
	"github.com/slidesmith/slidesmith/internal/variant"
)

var (
	serverPort int
	serverHost string
)

// signalHealthChecker implements HealthChecker for signal system
type signalHealthChecker struct{}

func (s signalHealthChecker) CheckHealth(ctx context.Context) error {
	// Check if signal system is responsive
	// This is a basic check - in production you might want more sophisticated checks
	return nil // Signal handlers are registered and ready
}

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// identityHealthChecker validates app identity metadata
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (i identityHealthChecker) CheckHealth(ctx context.Context) error {
	switch {
	case i.binaryName == "":
		return errwrap.NewConfigInvalidError("app identity missing binary name")
	case i.envPrefix == "":
		return errwrap.NewConfigInvalidError("app identity missing env prefix")
	case i.configName == "":
		return errwrap.NewConfigInvalidError("app identity missing config name")
	}
	return nil
}

// storeHealthChecker pings the render-log database
type storeHealthChecker struct {
	store *store.Store
}

func (s storeHealthChecker) CheckHealth(ctx context.Context) error {
	if s.store == nil || s.store.DB == nil {
		return errwrap.NewDatabaseError("store not initialized")
	}
	if err := s.store.DB.PingContext(ctx); err != nil {
		return errwrap.WrapDatabaseError(ctx, err, "store ping failed")
	}
	return nil
}

// pipeline bundles the wired slide service with the pieces the serve command
// still needs a handle on after startup.
type pipeline struct {
	service *slides.Service
	loader  *variant.Loader
	limiter *engine.RateLimiter
	store   *store.Store
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the slide generation HTTP server",
	Long: `Start the slide generation HTTP server with graceful shutdown support.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config reload (log level and rate limits apply live)

The server will cleanly shut down the HTTP server, close the store, and
flush logs on shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Get app identity for telemetry namespace
		identity := GetAppIdentity()
		namespace := identity.TelemetryNamespace()

		// Layered config, with explicit flags overriding file and environment
		overrides := map[string]any{}
		serverOverrides := map[string]any{}
		if cmd.Flags().Changed("host") {
			serverOverrides["host"] = serverHost
		}
		if cmd.Flags().Changed("port") {
			serverOverrides["port"] = serverPort
		}
		if len(serverOverrides) > 0 {
			overrides["server"] = serverOverrides
		}

		cfg, err := config.Load(cmd.Context(), overrides)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		// Initialize server logger with namespace
		logLevel := cfg.Logging.Level
		if cfg.Debug.Enabled {
			logLevel = "debug"
		}
		observability.InitServerLogger(identity.BinaryName, logLevel, namespace)

		metricsPort := cfg.Metrics.Port
		if metricsPort == 0 {
			metricsPort = 9090
		}

		// Initialize metrics with namespace
		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(identity.BinaryName, metricsPort, namespace); err != nil {
				observability.ServerLogger.Error("Failed to initialize metrics",
					zap.Error(err))
				return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
			}
		}

		observability.ServerLogger.Info("Initializing server",
			zap.String("service", identity.BinaryName),
			zap.String("namespace", namespace),
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Int("metrics_port", metricsPort),
			zap.Bool("store_enabled", cfg.Store.Enabled))

		// Wire the slide pipeline: variant catalog, assembler, backends,
		// rate limiter, orchestrator, store.
		pipe, err := buildPipeline(cmd.Context(), cfg)
		if err != nil {
			observability.ServerLogger.Error("Failed to build slide pipeline",
				zap.Error(err))
			return err
		}

		// Initialize health manager
		handlers.InitHealthManager(identity.BinaryName, versionInfo.Version)
		if cfg.Health.Enabled {
			hm := handlers.GetHealthManager()
			hm.RegisterChecker("signal_handlers", signalHealthChecker{})
			if cfg.Metrics.Enabled {
				hm.RegisterChecker("telemetry", telemetryHealthChecker{})
			}
			hm.RegisterChecker("app_identity", identityHealthChecker{
				binaryName: identity.BinaryName,
				envPrefix:  identity.EnvPrefix,
				configName: identity.ConfigName,
			})
			if pipe.store != nil {
				hm.RegisterChecker("store", storeHealthChecker{store: pipe.store})
			}
		}

		// Create server
		srv := server.New(server.Options{
			Host:                cfg.Server.Host,
			Port:                cfg.Server.Port,
			ReadTimeout:         cfg.Server.ReadTimeout,
			WriteTimeout:        cfg.Server.WriteTimeout,
			IdleTimeout:         cfg.Server.IdleTimeout,
			Generator:           pipe.service,
			Variants:            pipe.loader,
			MaxConcurrentSlides: cfg.Workers.MaxConcurrentSlides,
			QueueRetryAfter:     cfg.Workers.QueueRetryAfter,
			EnablePprof:         cfg.Debug.PprofEnabled,
		})

		// Set app identity for handlers
		handlers.SetAppIdentity(identity)

		// Get shutdown timeout from config
		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Register graceful shutdown handlers (LIFO order - last registered, first executed)
		// Handler 1: Flush logger (executed last)
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Flushing logger...")
			if err := observability.ServerLogger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				observability.ServerLogger.Warn("Logger sync returned error (may be benign)",
					zap.Error(err))
			}
			return nil
		})

		// Handler 2: Stop the metrics exporter (executed after the store closes)
		if cfg.Metrics.Enabled {
			signals.OnShutdown(func(ctx context.Context) error {
				observability.ServerLogger.Info("Stopping metrics exporter...")
				if observability.PrometheusExporter != nil {
					if err := observability.PrometheusExporter.Stop(); err != nil {
						observability.ServerLogger.Warn("Metrics exporter stop returned error",
							zap.Error(err))
					}
				}
				return nil
			})
		}

		// Handler 3: Close the store (executed after the HTTP server stops)
		if pipe.store != nil {
			signals.OnShutdown(func(ctx context.Context) error {
				observability.ServerLogger.Info("Closing store...")
				if err := pipe.store.Close(); err != nil {
					return errwrap.WrapDatabaseError(ctx, err, "store close failed")
				}
				return nil
			})
		}

		// Handler 4: Shutdown HTTP server (executed first)
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			observability.ServerLogger.Info("HTTP server stopped gracefully")
			return nil
		})

		// Register config reload handler (SIGHUP)
		signals.OnReload(func(ctx context.Context) error {
			observability.ServerLogger.Info("Received SIGHUP: reloading configuration")

			reloaded, err := config.Load(ctx, overrides)
			if err != nil {
				observability.ServerLogger.Error("Failed to reload config",
					zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}

			// Log level and rate-limit budgets take effect immediately.
			// Server timeouts, store settings, and backend wiring need a
			// restart.
			observability.SetServerLogLevel(reloaded.Logging.Level)
			pipe.limiter.ApplyOverrides(reloaded.RateLimits)
			pipe.limiter.ApplySafetyMargin(reloaded.RateLimitMargin)

			observability.ServerLogger.Info("Configuration reloaded",
				zap.String("log_level", reloaded.Logging.Level),
				zap.Int("rate_limit_overrides", len(reloaded.RateLimits)))

			return nil
		})

		// Enable double-tap force quit (Ctrl+C within 2 seconds)
		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			observability.ServerLogger.Warn("Failed to enable double-tap force quit",
				zap.Error(err))
		}

		// Start server in background goroutine
		errChan := make(chan error, 1)
		go func() {
			observability.ServerLogger.Info("Starting HTTP server...",
				zap.String("host", cfg.Server.Host),
				zap.Int("port", cfg.Server.Port))
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		// Start signal listener in background
		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				observability.ServerLogger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		// Wait for error or shutdown completion
		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}

		return nil
	},
}

// buildPipeline wires the full generation path from config. Variant specs are
// preloaded so malformed JSON fails at startup rather than on first request.
func buildPipeline(ctx context.Context, cfg *config.Config) (*pipeline, error) {
	loader := newVariantLoader(cfg)
	if err := loader.Preload(); err != nil {
		return nil, errwrap.WrapConfigInvalid(ctx, err, "variant catalog failed to load")
	}

	templates := []fs.FS{variant.DefaultTemplates()}
	if dir := cfg.Slides.TemplatesDir; dir != "" {
		templates = append([]fs.FS{os.DirFS(dir)}, templates...)
	}
	assembler := assemble.New(assemble.Config{
		Sources:      templates,
		Policy:       assemble.MissingPolicy(cfg.Slides.MissingPlaceholder),
		ReservedKeys: []string{"slide_title", "background_style"},
	})

	backend, err := genlink.NewService(cfg.Backends.Config)
	if err != nil {
		return nil, errwrap.WrapConfigInvalid(ctx, err, "backend client init failed")
	}

	var (
		st         *store.Store
		limitStore engine.RateLimitStore
		renders    slides.RenderLog
	)
	if cfg.Store.Enabled {
		st, err = store.Open(ctx, cfg.Store)
		if err != nil {
			return nil, errwrap.WrapDatabaseError(ctx, err, "store open failed")
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, errwrap.WrapDatabaseError(ctx, err, "store migration failed")
		}
		limitStore = st
		renders = st
	} else {
		// Without a store, rate-limit state lives in memory and the render
		// log is skipped.
		limitStore = engine.NewMemoryStore()
	}

	limiter := &engine.RateLimiter{Store: limitStore}
	limiter.ApplyOverrides(cfg.RateLimits)
	limiter.ApplySafetyMargin(cfg.RateLimitMargin)

	runner := &engine.Orchestrator{
		Fields:  backend,
		Images:  backend,
		Routing: engine.NewRouting(cfg.Slides.Routing),
		Limiter: limiter,
		Retry:   cfg.Backends.Retry,
		Workers: cfg.Workers.ElementConcurrency,
	}

	service := &slides.Service{
		Loader:         loader,
		Assembler:      assembler,
		Engine:         runner,
		Renders:        renders,
		DefaultMode:    core.Mode(cfg.Slides.DefaultMode),
		DefaultTimeout: cfg.Slides.RequestTimeout,
		MaxTimeout:     cfg.Slides.MaxRequestTimeout,
	}

	return &pipeline{
		service: service,
		loader:  loader,
		limiter: limiter,
		store:   st,
	}, nil
}

// newVariantLoader builds the variant catalog, letting a configured directory
// shadow the embedded specs.
func newVariantLoader(cfg *config.Config) *variant.Loader {
	if dir := cfg.Slides.VariantsDir; dir != "" {
		return variant.NewLoader(os.DirFS(dir), variant.DefaultSpecs())
	}
	return variant.NewDefaultLoader()
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")
}
