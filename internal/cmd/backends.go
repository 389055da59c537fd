package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/slidesmith/slidesmith/internal/config"
	"github.com/slidesmith/slidesmith/internal/core/engine"
	"github.com/slidesmith/slidesmith/internal/genlink"
	"github.com/slidesmith/slidesmith/internal/variant"
)

var backendsJSON bool

// generationRoles are the provider-routing roles the orchestrator asks for,
// paired with the model key each role resolves.
var generationRoles = []struct {
	Role     string
	ModelKey string
}{
	{Role: "fields-standard", ModelKey: "standard"},
	{Role: "fields-premium", ModelKey: "premium"},
	{Role: "hero", ModelKey: "premium"},
	{Role: "imagery", ModelKey: "image"},
}

type backendsReport struct {
	DefaultProvider string                   `json:"default_provider,omitempty"`
	Providers       []providerReport         `json:"providers"`
	Roles           []roleReport             `json:"roles"`
	ElementTiers    map[string]string        `json:"element_tiers"`
	RateLimits      map[string]rateLimitView `json:"rate_limits"`
	Retry           engine.RetryConfig       `json:"retry"`
}

type providerReport struct {
	ID           string            `json:"id"`
	Type         string            `json:"type"`
	Enabled      bool              `json:"enabled"`
	Models       map[string]string `json:"models,omitempty"`
	Roles        []string          `json:"roles,omitempty"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Credentials  int               `json:"credentials"`
	BaseURL      string            `json:"base_url,omitempty"`
}

type roleReport struct {
	Role     string `json:"role"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	Error    string `json:"error,omitempty"`
}

type rateLimitView struct {
	RequestsPerMinute int `json:"requests_per_minute"`
}

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "Show configured AI backends and routing",
	Long: `Show the configured provider instances, how generation roles resolve to
providers and models, which model tier each element type routes to, and the
effective per-backend rate limits. Credentials are reported as counts only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		report := buildBackendsReport(cfg)

		if backendsJSON {
			payload, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(payload))
			return nil
		}

		printBackendsReport(report)
		return nil
	},
}

func buildBackendsReport(cfg *config.Config) *backendsReport {
	report := &backendsReport{
		DefaultProvider: cfg.Backends.DefaultProvider,
		Providers:       make([]providerReport, 0, len(cfg.Backends.Providers)),
		Roles:           make([]roleReport, 0, len(generationRoles)),
		ElementTiers:    make(map[string]string, len(variant.KnownElementTypes())),
		RateLimits:      make(map[string]rateLimitView),
		Retry:           cfg.Backends.Retry,
	}

	ids := make([]string, 0, len(cfg.Backends.Providers))
	for id := range cfg.Backends.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		provider := cfg.Backends.Providers[id]
		report.Providers = append(report.Providers, providerReport{
			ID:           id,
			Type:         provider.AIProvider,
			Enabled:      provider.Enabled,
			Models:       provider.Models,
			Roles:        provider.Roles,
			Capabilities: capabilityTags(provider.Capabilities),
			Credentials:  len(provider.Credentials),
			BaseURL:      provider.BaseURL,
		})
	}

	registry := genlink.NewRegistry(cfg.Backends.Config)
	for _, role := range generationRoles {
		entry := roleReport{Role: role.Role}
		resolved, err := registry.Resolve(role.Role, role.ModelKey, "")
		if err != nil {
			entry.Error = err.Error()
		} else {
			entry.Provider = resolved.ProviderID
			entry.Model = resolved.Model
		}
		report.Roles = append(report.Roles, entry)
	}

	routing := engine.NewRouting(cfg.Slides.Routing)
	for _, elementType := range variant.KnownElementTypes() {
		tier := routing.TierFor(nil, &variant.ElementDef{ElementType: elementType})
		report.ElementTiers[string(elementType)] = string(tier)
	}

	limiter := &engine.RateLimiter{}
	limiter.ApplyOverrides(cfg.RateLimits)
	limiter.ApplySafetyMargin(cfg.RateLimitMargin)
	for backend := range engine.DefaultLimits {
		report.RateLimits[backend] = rateLimitView{RequestsPerMinute: limiter.EffectiveLimit(backend).RequestsPerWindow}
	}
	for backend := range cfg.RateLimits {
		report.RateLimits[backend] = rateLimitView{RequestsPerMinute: limiter.EffectiveLimit(backend).RequestsPerWindow}
	}

	return report
}

// capabilityTags flattens the config-time capability hints. These are
// operator intent, not runtime truth; drivers still gate image calls.
func capabilityTags(c genlink.Capabilities) []string {
	var tags []string
	if c.Images {
		tags = append(tags, "images")
	}
	if c.JSONSchema {
		tags = append(tags, "json_schema")
	}
	return tags
}

func printBackendsReport(report *backendsReport) {
	if report.DefaultProvider != "" {
		fmt.Printf("Default provider: %s\n", report.DefaultProvider)
	}

	fmt.Println("Providers:")
	if len(report.Providers) == 0 {
		fmt.Println("- (none configured)")
	}
	for _, provider := range report.Providers {
		state := "enabled"
		if !provider.Enabled {
			state = "disabled"
		}
		fmt.Printf("- %s (%s): %s, %d credential(s)\n", provider.ID, provider.Type, state, provider.Credentials)
		if len(provider.Models) > 0 {
			keys := make([]string, 0, len(provider.Models))
			for key := range provider.Models {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			pairs := make([]string, 0, len(keys))
			for _, key := range keys {
				pairs = append(pairs, fmt.Sprintf("%s=%s", key, provider.Models[key]))
			}
			fmt.Printf("    models: %s\n", strings.Join(pairs, ", "))
		}
		if len(provider.Roles) > 0 {
			fmt.Printf("    roles: %s\n", strings.Join(provider.Roles, ", "))
		}
		if len(provider.Capabilities) > 0 {
			fmt.Printf("    capabilities: %s\n", strings.Join(provider.Capabilities, ", "))
		}
		if provider.BaseURL != "" {
			fmt.Printf("    base_url: %s\n", provider.BaseURL)
		}
	}

	fmt.Println("Role routing:")
	for _, role := range report.Roles {
		if role.Error != "" {
			fmt.Printf("- %s: unresolved (%s)\n", role.Role, role.Error)
			continue
		}
		fmt.Printf("- %s: %s model=%s\n", role.Role, role.Provider, role.Model)
	}

	fmt.Println("Element tiers:")
	types := make([]string, 0, len(report.ElementTiers))
	for elementType := range report.ElementTiers {
		types = append(types, elementType)
	}
	sort.Strings(types)
	for _, elementType := range types {
		fmt.Printf("- %s: %s\n", elementType, report.ElementTiers[elementType])
	}

	fmt.Println("Rate limits (requests/minute):")
	backends := make([]string, 0, len(report.RateLimits))
	for backend := range report.RateLimits {
		backends = append(backends, backend)
	}
	sort.Strings(backends)
	for _, backend := range backends {
		fmt.Printf("- %s: %d\n", backend, report.RateLimits[backend].RequestsPerMinute)
	}

	fmt.Printf("Retry: %d attempt(s), backoff %s..%s\n",
		report.Retry.MaxAttempts, report.Retry.BaseBackoff, report.Retry.MaxBackoff)
}

func init() {
	rootCmd.AddCommand(backendsCmd)

	backendsCmd.Flags().BoolVar(&backendsJSON, "json", false, "Print the report as JSON")
}
