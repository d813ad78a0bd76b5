package config

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azuremigrate/preflight/internal/model"
)

func TestResolveDefaultsEnableEveryCanonicalCheck(t *testing.T) {
	r, err := Resolve(DefaultDocument(), nil)
	require.NoError(t, err)

	var want []model.CheckId
	want = append(want, model.Tier1Checks...)
	want = append(want, model.Tier2Checks...)
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

	// sortedKeys gives a deterministic order for this comparison,
	// independent of Go's randomized map iteration order.
	got := sortedKeys(r.checks)
	assert.Equal(t, want, got)

	for _, id := range want {
		assert.True(t, r.IsEnabled(id), "expected %s enabled by default", id)
	}
}

func TestResolveAppliesExplicitOverride(t *testing.T) {
	r, err := Resolve(DefaultDocument(), map[string]interface{}{
		"server.sku.enabled": false,
	})
	require.NoError(t, err)

	assert.False(t, r.IsEnabled(model.CheckServerSKU))
	assert.True(t, r.IsEnabled(model.CheckServerRegion))
}

func TestResolveAppliesProfileThenExplicitOverride(t *testing.T) {
	doc := DefaultDocument()
	doc.ActiveProfile = "fast"
	doc.Profiles["fast"] = Profile{Overrides: map[string]interface{}{
		"global.fail_fast":           false,
		"appliance.health.enabled": false,
	}}

	r, err := Resolve(doc, map[string]interface{}{
		// explicit overrides win over the profile for the same field.
		"appliance.health.enabled": true,
	})
	require.NoError(t, err)

	assert.False(t, r.Global.FailFast)
	assert.True(t, r.IsEnabled(model.CheckApplianceHealth))
}

func TestResolveUnknownProfileErrors(t *testing.T) {
	doc := DefaultDocument()
	doc.ActiveProfile = "does-not-exist"

	_, err := Resolve(doc, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown profile")
}

func TestResolveUnknownOverrideCheckIdErrors(t *testing.T) {
	_, err := Resolve(DefaultDocument(), map[string]interface{}{
		"no.such.check.enabled": true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown check id")
}

func TestFingerprintStableAcrossEquivalentOverrideOrder(t *testing.T) {
	r1, err := Resolve(DefaultDocument(), map[string]interface{}{
		"server.sku.enabled":          false,
		"global.timeout_seconds": 60,
	})
	require.NoError(t, err)

	r2, err := Resolve(DefaultDocument(), map[string]interface{}{
		"global.timeout_seconds": 60,
		"server.sku.enabled":          false,
	})
	require.NoError(t, err)

	assert.Equal(t, r1.Fingerprint(), r2.Fingerprint())
}

func TestFingerprintChangesWithOverride(t *testing.T) {
	r1, err := Resolve(DefaultDocument(), nil)
	require.NoError(t, err)

	r2, err := Resolve(DefaultDocument(), map[string]interface{}{
		"server.sku.enabled": false,
	})
	require.NoError(t, err)

	assert.NotEqual(t, r1.Fingerprint(), r2.Fingerprint())
}

func TestParamIntToleratesFloat64FromYAMLDecode(t *testing.T) {
	// YAML/JSON decoders hand back float64 for bare numeric overrides;
	// ParamInt must coerce it rather than fall back to the default.
	r, err := Resolve(DefaultDocument(), map[string]interface{}{
		"appliance.health.max_heartbeat_age_hours": float64(48),
	})
	require.NoError(t, err)

	assert.Equal(t, 48, r.ParamInt(model.CheckApplianceHealth, "max_heartbeat_age_hours", 0))
}
