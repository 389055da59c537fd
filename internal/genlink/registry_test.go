package genlink

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveModelUsesOverrideFirst(t *testing.T) {
	providerCfg := ProviderInstanceConfig{Models: map[string]string{"default": "m-default", "premium": "m-premium"}}

	model, err := resolveModel(providerCfg, "premium", "override-model")
	require.NoError(t, err)
	require.Equal(t, "override-model", model)
}

func TestResolveModelPrefersModelKey(t *testing.T) {
	providerCfg := ProviderInstanceConfig{Models: map[string]string{"default": "m-default", "premium": "m-premium"}}

	model, err := resolveModel(providerCfg, "premium", "")
	require.NoError(t, err)
	require.Equal(t, "m-premium", model)
}

func TestResolveModelFallsBackToDefaultWhenKeyMissing(t *testing.T) {
	providerCfg := ProviderInstanceConfig{Models: map[string]string{"default": "m-default"}}

	model, err := resolveModel(providerCfg, "premium", "")
	require.NoError(t, err)
	require.Equal(t, "m-default", model)
}

func TestResolveModelErrorsWhenNothingConfigured(t *testing.T) {
	_, err := resolveModel(ProviderInstanceConfig{}, "standard", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "model not configured")
}

func testConfig() Config {
	return Config{
		DefaultProvider: "text",
		Routing: map[string]string{
			"imagery": "img",
		},
		Providers: map[string]ProviderInstanceConfig{
			"text": {
				Enabled:     true,
				AIProvider:  "anthropic",
				Models:      map[string]string{"default": "claude-3-5-haiku-latest"},
				Roles:       []string{"fields-standard", "fields-premium", "hero"},
				Credentials: []CredentialConfig{{APIKey: "k1"}},
			},
			"img": {
				Enabled:     true,
				AIProvider:  "openai",
				Models:      map[string]string{"image": "dall-e-3", "default": "gpt-4o-mini"},
				Credentials: []CredentialConfig{{APIKey: "k2"}},
			},
		},
	}
}

func TestResolveRoutesRoleToProvider(t *testing.T) {
	reg := NewRegistry(testConfig())

	resolved, err := reg.Resolve("imagery", "image", "")
	require.NoError(t, err)
	require.Equal(t, "img", resolved.ProviderID)
	require.Equal(t, "dall-e-3", resolved.Model)
	require.Equal(t, "openai", resolved.Driver.Name())
}

func TestResolveMatchesRolesListWithoutExplicitRouting(t *testing.T) {
	reg := NewRegistry(testConfig())

	resolved, err := reg.Resolve("fields-premium", "premium", "")
	require.NoError(t, err)
	require.Equal(t, "text", resolved.ProviderID)
	require.Equal(t, "claude-3-5-haiku-latest", resolved.Model)
	require.Equal(t, "anthropic", resolved.Driver.Name())
}

func TestResolveFallsBackToDefaultProvider(t *testing.T) {
	reg := NewRegistry(testConfig())

	resolved, err := reg.Resolve("unrouted-role", "standard", "")
	require.NoError(t, err)
	require.Equal(t, "text", resolved.ProviderID)
}

func TestResolveCachesDriverPerCredential(t *testing.T) {
	reg := NewRegistry(testConfig())

	first, err := reg.Resolve("hero", "standard", "")
	require.NoError(t, err)
	second, err := reg.Resolve("hero", "standard", "")
	require.NoError(t, err)
	require.Same(t, first.Driver, second.Driver)
}

func TestResolveRejectsUnknownDriverType(t *testing.T) {
	cfg := testConfig()
	provider := cfg.Providers["text"]
	provider.AIProvider = "mystery"
	cfg.Providers["text"] = provider

	reg := NewRegistry(cfg)
	_, err := reg.Resolve("hero", "standard", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), `unsupported ai_provider "mystery"`)
}

func TestResolveErrorsWhenProviderDisabled(t *testing.T) {
	cfg := testConfig()
	provider := cfg.Providers["img"]
	provider.Enabled = false
	cfg.Providers["img"] = provider

	reg := NewRegistry(cfg)
	_, err := reg.Resolve("imagery", "image", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "disabled")
}

func TestSelectCredentialPrefersHighestPriority(t *testing.T) {
	cfg := ProviderInstanceConfig{Credentials: []CredentialConfig{
		{Enabled: true, Label: "secondary", APIKey: "k-low", Priority: 1},
		{Enabled: true, Label: "primary", APIKey: "k-high", Priority: 5},
	}}

	cred, key, err := selectCredential(cfg, nil)
	require.NoError(t, err)
	require.Equal(t, "k-high", cred.APIKey)
	require.Equal(t, "primary", key)
}

func TestSelectCredentialRoundRobinCycles(t *testing.T) {
	cfg := ProviderInstanceConfig{
		SelectionPolicy: "round_robin",
		Credentials: []CredentialConfig{
			{Enabled: true, Label: "a", APIKey: "ka"},
			{Enabled: true, Label: "b", APIKey: "kb"},
		},
	}

	calls := 0
	next := func(groupKey string, n int) int {
		idx := calls % n
		calls++
		return idx
	}

	first, _, err := selectCredential(cfg, next)
	require.NoError(t, err)
	second, _, err := selectCredential(cfg, next)
	require.NoError(t, err)
	require.NotEqual(t, first.APIKey, second.APIKey)
}
