package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/slidesmith/slidesmith/internal/config"
	"github.com/slidesmith/slidesmith/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display comprehensive environment, configuration, and version information.",
	Run: func(cmd *cobra.Command, args []string) {
		version := crucible.GetVersion()

		observability.CLILogger.Info("=== Slidesmith Environment Information ===")
		observability.CLILogger.Info("")

		// Application Info
		identity := GetAppIdentity()
		observability.CLILogger.Info("Application:")
		observability.CLILogger.Info("  Name:       " + identity.BinaryName)
		observability.CLILogger.Info("  Version:    " + versionInfo.Version)
		observability.CLILogger.Info("  Commit:     " + versionInfo.Commit)
		observability.CLILogger.Info("  Built:      " + versionInfo.BuildDate)
		observability.CLILogger.Info("")

		// SSOT Info
		observability.CLILogger.Info("SSOT:")
		observability.CLILogger.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		observability.CLILogger.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		observability.CLILogger.Info("")

		// Runtime Info
		observability.CLILogger.Info("Runtime:")
		observability.CLILogger.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		observability.CLILogger.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		observability.CLILogger.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		observability.CLILogger.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		observability.CLILogger.Info("")

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			observability.CLILogger.Warn("Config load failed", zap.Error(err))
			return
		}

		// Configuration
		observability.CLILogger.Info("Configuration:")
		observability.CLILogger.Info("  Server Host:    "+cfg.Server.Host, zap.String("host", cfg.Server.Host))
		observability.CLILogger.Info(fmt.Sprintf("  Server Port:    %d", cfg.Server.Port), zap.Int("port", cfg.Server.Port))
		observability.CLILogger.Info("  Log Level:      "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		observability.CLILogger.Info("  Log Profile:    "+cfg.Logging.Profile, zap.String("log_profile", cfg.Logging.Profile))
		observability.CLILogger.Info(fmt.Sprintf("  Store Enabled:  %t", cfg.Store.Enabled), zap.Bool("store_enabled", cfg.Store.Enabled))
		observability.CLILogger.Info("  DB Driver:      "+cfg.Store.Driver, zap.String("db_driver", cfg.Store.Driver))
		if strings.TrimSpace(cfg.Store.URL) != "" {
			observability.CLILogger.Info("  DB URL:         "+cfg.Store.URL, zap.String("db_url", cfg.Store.URL))
		} else {
			observability.CLILogger.Info("  DB Path:        "+cfg.Store.Path, zap.String("db_path", cfg.Store.Path))
		}
		observability.CLILogger.Info(fmt.Sprintf("  Metrics Port:   %d", cfg.Metrics.Port), zap.Int("metrics_port", cfg.Metrics.Port))
		observability.CLILogger.Info("  Config File:    "+config.DefaultConfigPath(), zap.String("config_file", config.DefaultConfigPath()))
		observability.CLILogger.Info("")

		// Slide Pipeline Configuration
		observability.CLILogger.Info("Slides:")
		observability.CLILogger.Info("  Default Mode:        "+cfg.Slides.DefaultMode, zap.String("default_mode", cfg.Slides.DefaultMode))
		observability.CLILogger.Info("  Request Timeout:     " + cfg.Slides.RequestTimeout.String())
		observability.CLILogger.Info("  Max Request Timeout: " + cfg.Slides.MaxRequestTimeout.String())
		observability.CLILogger.Info("  Missing Placeholder: " + cfg.Slides.MissingPlaceholder)
		if strings.TrimSpace(cfg.Slides.VariantsDir) != "" {
			observability.CLILogger.Info("  Variants Dir:        " + cfg.Slides.VariantsDir)
		}
		if strings.TrimSpace(cfg.Slides.TemplatesDir) != "" {
			observability.CLILogger.Info("  Templates Dir:       " + cfg.Slides.TemplatesDir)
		}
		observability.CLILogger.Info("")

		// Worker Configuration
		observability.CLILogger.Info("Workers:")
		observability.CLILogger.Info(fmt.Sprintf("  Max Concurrent Slides: %d", cfg.Workers.MaxConcurrentSlides), zap.Int("max_concurrent_slides", cfg.Workers.MaxConcurrentSlides))
		observability.CLILogger.Info(fmt.Sprintf("  Element Concurrency:   %d", cfg.Workers.ElementConcurrency), zap.Int("element_concurrency", cfg.Workers.ElementConcurrency))
		observability.CLILogger.Info("  Queue Retry After:     " + cfg.Workers.QueueRetryAfter.String())
		observability.CLILogger.Info("")

		// Backend Provider Configuration
		observability.CLILogger.Info("Backends:")
		observability.CLILogger.Info("  Default Provider: " + cfg.Backends.DefaultProvider)
		observability.CLILogger.Info("  Default Timeout:  " + cfg.Backends.DefaultTimeout.String())
		providerID := strings.TrimSpace(cfg.Backends.DefaultProvider)
		if providerID == "" {
			providerID = "(unset)"
		}
		providerCfg, ok := cfg.Backends.Providers[providerID]
		if !ok {
			observability.CLILogger.Info(fmt.Sprintf("  %s: (not configured)", providerID))
		} else {
			observability.CLILogger.Info(fmt.Sprintf("  %s.enabled: %t", providerID, providerCfg.Enabled))
			observability.CLILogger.Info(fmt.Sprintf("  %s.ai_provider: %s", providerID, providerCfg.AIProvider))
			observability.CLILogger.Info(fmt.Sprintf("  %s.base_url: %s", providerID, providerCfg.BaseURL))
			observability.CLILogger.Info(fmt.Sprintf("  %s.model: %s", providerID, providerCfg.Models["default"]))
			if len(providerCfg.Credentials) > 0 && strings.TrimSpace(providerCfg.Credentials[0].APIKey) != "" {
				observability.CLILogger.Info(fmt.Sprintf("  %s.credentials[0].api_key: (set)", providerID))
			} else {
				observability.CLILogger.Info(fmt.Sprintf("  %s.credentials[0].api_key: (not set)", providerID))
			}
		}
		observability.CLILogger.Info("")

		observability.CLILogger.Info("=== End Environment Information ===")
	},
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
