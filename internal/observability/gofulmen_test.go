package observability_test

import (
	"testing"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/telemetry"
	"go.uber.org/zap"

	"github.com/slidesmith/slidesmith/internal/observability"
)

func TestCLILoggerInitialization(t *testing.T) {
	t.Run("default level", func(t *testing.T) {
		observability.InitCLILogger("slidesmith", false)

		if observability.CLILogger == nil {
			t.Fatal("CLI logger should not be nil after initialization")
		}

		observability.CLILogger.Info("Rendered slide",
			zap.String("variant_id", "matrix_2x2"))
	})

	t.Run("verbose enables debug", func(t *testing.T) {
		observability.InitCLILogger("slidesmith", true)

		if observability.CLILogger == nil {
			t.Fatal("CLI logger should not be nil after initialization")
		}

		// Debug output is only visible at verbose; this must not be dropped
		// with an error or panic.
		observability.CLILogger.Debug("Prompt assembled",
			zap.String("role", "fields-standard"),
			zap.Int("prompt_bytes", 2048))
	})
}

func TestServerLoggerInitialization(t *testing.T) {
	t.Run("structured profile with namespace", func(t *testing.T) {
		observability.InitServerLogger("slidesmith", "info", "slidesmith")

		if observability.ServerLogger == nil {
			t.Fatal("Server logger should not be nil after initialization")
		}

		observability.ServerLogger.Info("Generation complete",
			zap.String("variant_id", "pyramid_3"),
			zap.String("backend", "openai-main"),
			zap.Duration("elapsed", 0))
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		observability.InitServerLogger("slidesmith", "chatty")

		if observability.ServerLogger == nil {
			t.Fatal("Server logger should not be nil after initialization")
		}
	})
}

func TestSetServerLogLevel(t *testing.T) {
	t.Run("nil logger is tolerated", func(t *testing.T) {
		prev := observability.ServerLogger
		observability.ServerLogger = nil
		defer func() { observability.ServerLogger = prev }()

		// Reload can fire before serve finishes wiring the logger.
		observability.SetServerLogLevel("debug")
	})

	t.Run("live logger accepts every level name", func(t *testing.T) {
		observability.InitServerLogger("slidesmith", "info")

		for _, level := range []string{"trace", "debug", "info", "warn", "error", "bogus"} {
			observability.SetServerLogLevel(level)
		}

		observability.ServerLogger.Info("Log level cycled",
			zap.String("final_level", "info"))
	})
}

func TestInitMetricsRejectsDoubleInit(t *testing.T) {
	prev := observability.TelemetrySystem
	observability.TelemetrySystem = &telemetry.System{}
	defer func() { observability.TelemetrySystem = prev }()

	if err := observability.InitMetrics("slidesmith", 0); err == nil {
		t.Fatal("InitMetrics should refuse to run twice; the exporter owns its listener")
	}
}

// Crucible versions surface in `slidesmith version`, `slidesmith doctor`, and
// the /version endpoint, so the embedded registry has to be reachable.
func TestCrucibleVersionReported(t *testing.T) {
	version := crucible.GetVersion()

	if version.Gofulmen == "" {
		t.Error("Gofulmen version should not be empty")
	}
	if version.Crucible == "" {
		t.Error("Crucible version should not be empty")
	}

	if crucible.SchemaRegistry == nil {
		t.Fatal("SchemaRegistry should not be nil")
	}
	if obsSchemas := crucible.SchemaRegistry.Observability(); obsSchemas == nil {
		t.Fatal("Observability schemas should not be nil")
	}
}
