package engine

import (
	"strings"

	"github.com/slidesmith/slidesmith/internal/core"
	"github.com/slidesmith/slidesmith/internal/variant"
)

// Routing maps element types to model tiers. The table is fixed at
// construction time; requests cannot change it.
type Routing struct {
	tiers map[variant.ElementType]core.Tier
}

// DefaultRouting returns the stock tier table. Elements that carry the
// slide's analytical weight (metrics, comparisons, quotes) go premium; bulk
// prose goes standard.
func DefaultRouting() Routing {
	return Routing{tiers: map[variant.ElementType]core.Tier{
		variant.TypeTextBox:          core.TierStandard,
		variant.TypeTableRow:         core.TierStandard,
		variant.TypeSequentialStep:   core.TierStandard,
		variant.TypeColoredSection:   core.TierStandard,
		variant.TypeMetricCard:       core.TierPremium,
		variant.TypeComparisonColumn: core.TierPremium,
		variant.TypeQuote:            core.TierPremium,
	}}
}

// NewRouting builds a routing table from a config override map keyed by
// element type name. Unknown types and tiers are ignored so a stale config
// entry cannot disable routing.
func NewRouting(overrides map[string]string) Routing {
	routing := DefaultRouting()
	for rawType, rawTier := range overrides {
		elementType := variant.ElementType(strings.ToLower(strings.TrimSpace(rawType)))
		if !elementType.Valid() {
			continue
		}
		switch core.Tier(strings.ToLower(strings.TrimSpace(rawTier))) {
		case core.TierStandard:
			routing.tiers[elementType] = core.TierStandard
		case core.TierPremium:
			routing.tiers[elementType] = core.TierPremium
		}
	}
	return routing
}

// TierFor returns the tier for an element. Hero elements always route
// premium regardless of their element type.
func (r Routing) TierFor(spec *variant.Spec, el *variant.ElementDef) core.Tier {
	if spec != nil && spec.Hero {
		return core.TierPremium
	}
	if tier, ok := r.tiers[el.ElementType]; ok {
		return tier
	}
	return core.TierStandard
}

// RoleFor maps a tier to the provider-routing role the registry resolves.
func RoleFor(spec *variant.Spec, tier core.Tier) string {
	if spec != nil && spec.Hero {
		return "hero"
	}
	if tier == core.TierPremium {
		return "fields-premium"
	}
	return "fields-standard"
}

// ModelKeyFor maps a tier to the provider models-map key.
func ModelKeyFor(tier core.Tier) string {
	if tier == core.TierPremium {
		return "premium"
	}
	return "standard"
}
