package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/slidesmith/slidesmith/internal/config"
	"github.com/slidesmith/slidesmith/internal/genlink"
	"github.com/slidesmith/slidesmith/internal/observability"
)

var (
	doctorBackendsModelKey string
	doctorBackendsModel    string
)

var doctorBackendsCmd = &cobra.Command{
	Use:   "backends [role]",
	Short: "Inspect backend provider resolution",
	Long:  "Resolve a generation role to a provider instance and show credential selection.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		role := "fields-standard"
		if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
			role = strings.TrimSpace(args[0])
		}

		modelKey := strings.TrimSpace(doctorBackendsModelKey)
		if modelKey == "" {
			modelKey = roleModelKey(role)
		}

		providers := genlink.NewRegistry(cfg.Backends.Config)
		resolved, err := providers.Resolve(role, modelKey, doctorBackendsModel)
		if err != nil {
			return fmt.Errorf("resolve provider: %w", err)
		}

		providerCfg := resolved.Provider
		resolutionSource, routingTarget := describeBackendResolution(cfg.Backends.Config, role)

		observability.CLILogger.Info("Backend Resolution")
		observability.CLILogger.Info(fmt.Sprintf("  Role:         %s", role))
		observability.CLILogger.Info(fmt.Sprintf("  Model Key:    %s", modelKey))
		observability.CLILogger.Info(fmt.Sprintf("  Source:       %s", resolutionSource))
		if routingTarget != "" {
			observability.CLILogger.Info(fmt.Sprintf("  Routing:      %s -> %s", role, routingTarget))
		}
		observability.CLILogger.Info(fmt.Sprintf("  Provider ID:  %s", resolved.ProviderID))
		observability.CLILogger.Info(fmt.Sprintf("  ai_provider:  %s", providerCfg.AIProvider))
		observability.CLILogger.Info(fmt.Sprintf("  base_url:     %s", providerCfg.BaseURL))

		keyedModel := ""
		configuredModel := ""
		if providerCfg.Models != nil {
			keyedModel = strings.TrimSpace(providerCfg.Models[modelKey])
			configuredModel = strings.TrimSpace(providerCfg.Models["default"])
		}

		modelSource := "unknown"
		switch {
		case strings.TrimSpace(doctorBackendsModel) != "":
			modelSource = "cli_override"
		case keyedModel != "":
			modelSource = "provider.models." + modelKey
		case configuredModel != "":
			modelSource = "provider.models.default"
		}

		observability.CLILogger.Info(fmt.Sprintf("  model:        %s", resolved.Model))
		observability.CLILogger.Info(fmt.Sprintf("  model_source: %s", modelSource))
		if modelSource == "provider.models.default" && keyedModel == "" && modelKey != "default" {
			observability.CLILogger.Info(fmt.Sprintf("  provider.models.%s: (not set, fell back to default)", modelKey))
		}
		observability.CLILogger.Info("")

		policy := strings.TrimSpace(providerCfg.SelectionPolicy)
		if policy == "" {
			policy = "priority"
		}
		observability.CLILogger.Info("Credential Selection")
		observability.CLILogger.Info(fmt.Sprintf("  selection_policy:   %s", policy))
		if strings.TrimSpace(providerCfg.DefaultCredential) != "" {
			observability.CLILogger.Info(fmt.Sprintf("  default_credential: %s", providerCfg.DefaultCredential))
		}
		observability.CLILogger.Info(fmt.Sprintf("  selected.label:     %s", resolved.Credential.Label))
		observability.CLILogger.Info(fmt.Sprintf("  selected.priority:  %d", resolved.Credential.Priority))
		if strings.TrimSpace(resolved.Credential.APIKey) != "" {
			observability.CLILogger.Info("  selected.api_key:   (set)")
		} else {
			observability.CLILogger.Info("  selected.api_key:   (not set)")
			observability.CLILogger.Warn("Selected credential has no API key", zap.String("provider", resolved.ProviderID))
		}

		return nil
	},
}

// roleModelKey maps a generation role to the model key its calls resolve.
// Unknown roles fall back to the provider's default model.
func roleModelKey(role string) string {
	for _, entry := range generationRoles {
		if strings.EqualFold(entry.Role, strings.TrimSpace(role)) {
			return entry.ModelKey
		}
	}
	return "default"
}

func describeBackendResolution(cfg genlink.Config, role string) (source string, routingTarget string) {
	role = strings.TrimSpace(role)
	if role != "" && cfg.Routing != nil {
		routingTarget = strings.TrimSpace(cfg.Routing[role])
		if routingTarget != "" {
			return "routing", routingTarget
		}
	}

	for _, providerCfg := range cfg.Providers {
		if !providerCfg.Enabled {
			continue
		}
		for _, r := range providerCfg.Roles {
			if strings.EqualFold(strings.TrimSpace(r), role) {
				return "roles", ""
			}
		}
	}

	if strings.TrimSpace(cfg.DefaultProvider) != "" {
		return "default_provider", ""
	}

	enabledCount := 0
	for _, providerCfg := range cfg.Providers {
		if providerCfg.Enabled {
			enabledCount++
		}
	}
	if enabledCount == 1 {
		return "only_enabled_provider", ""
	}

	return "unknown", ""
}

func init() {
	doctorCmd.AddCommand(doctorBackendsCmd)

	doctorBackendsCmd.Flags().StringVar(&doctorBackendsModelKey, "model-key", "", "Model key to resolve (defaults to the role's key)")
	doctorBackendsCmd.Flags().StringVar(&doctorBackendsModel, "model", "", "Model override (defaults to provider config)")
}
