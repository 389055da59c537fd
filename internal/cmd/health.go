package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/slidesmith/slidesmith/internal/config"
	errwrap "github.com/slidesmith/slidesmith/internal/errors"
	"github.com/slidesmith/slidesmith/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Run a self-health check to verify the application can start successfully.",
	Run: func(cmd *cobra.Command, args []string) {
		observability.CLILogger.Info("Running health check...")

		// Check 1: Version info available
		if versionInfo.Version == "" {
			observability.CLILogger.Error("❌ FAIL: Version information missing")
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return
		}
		observability.CLILogger.Debug("Version check passed", zap.String("version", versionInfo.Version))
		observability.CLILogger.Info("✅ Version information available")

		// Check 2: Logger initialized
		if observability.CLILogger == nil {
			// Can't log if logger is nil, so use stderr
			ExitWithCodeStderr(foundry.ExitConfigInvalid, "Logger not initialized", errwrap.NewConfigInvalidError("Logger not initialized"))
			return
		}
		observability.CLILogger.Info("✅ Logger initialized")

		// Check 3: Configuration loads
		cfg, err := config.Load(cmd.Context())
		if err != nil {
			observability.CLILogger.Error("❌ FAIL: Configuration invalid")
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Configuration invalid", err)
			return
		}
		observability.CLILogger.Info("✅ Configuration loaded")

		// Check 4: Variant catalog loads
		if err := newVariantLoader(cfg).Preload(); err != nil {
			observability.CLILogger.Error("❌ FAIL: Variant catalog failed to load")
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Variant catalog failed to load", err)
			return
		}
		observability.CLILogger.Info("✅ Variant catalog loaded")

		// Overall status
		observability.CLILogger.Info("")
		observability.CLILogger.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
