package checks_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azuremigrate/preflight/internal/cal"
	"github.com/azuremigrate/preflight/internal/cal/calfake"
	"github.com/azuremigrate/preflight/internal/checks"
	"github.com/azuremigrate/preflight/internal/config"
	"github.com/azuremigrate/preflight/internal/model"
)

func resolvedDefaults(t *testing.T) config.Resolved {
	t.Helper()
	r, err := config.Resolve(config.DefaultDocument(), nil)
	require.NoError(t, err)
	return r
}

func baseProject() model.ProjectDecl {
	return model.ProjectDecl{
		SubscriptionID:            "sub-1",
		ResourceGroup:             "rg-1",
		ProjectName:               "proj-1",
		Region:                    "eastus",
		ApplianceName:             "appliance-1",
		ApplianceKind:             model.ApplianceVMware,
		CacheStorageAccount:       "cache1",
		CacheStorageResourceGroup: "rg-1",
	}
}

func TestAccessRBACMigrateProjectSubscriptionNotFoundIsCritical(t *testing.T) {
	client := calfake.New()
	p := baseProject()

	got := checks.AccessRBACMigrateProject(context.Background(), checks.ProjectContext{Project: p}, client, resolvedDefaults(t))

	assert.Equal(t, model.SeverityCritical, got.Severity)
	assert.Equal(t, model.CheckAccessRBACMigrateProject, got.CheckId)
}

func TestAccessRBACMigrateProjectOKWithRole(t *testing.T) {
	client := calfake.New()
	p := baseProject()
	client.Subscriptions[p.SubscriptionID] = cal.SubscriptionInfo{SubscriptionID: p.SubscriptionID}
	scope := "/subscriptions/sub-1/resourceGroups/rg-1/providers/Microsoft.Migrate/migrateProjects/proj-1"
	client.RoleAssignments[scope] = map[string]bool{config.RoleContributor: true}

	got := checks.AccessRBACMigrateProject(context.Background(), checks.ProjectContext{Project: p}, client, resolvedDefaults(t))

	assert.Equal(t, model.SeverityOK, got.Severity)
}

func TestAccessRBACMigrateProjectFailsWithoutRole(t *testing.T) {
	client := calfake.New()
	p := baseProject()
	client.Subscriptions[p.SubscriptionID] = cal.SubscriptionInfo{SubscriptionID: p.SubscriptionID}
	scope := "/subscriptions/sub-1/resourceGroups/rg-1/providers/Microsoft.Migrate/migrateProjects/proj-1"
	client.RoleAssignments[scope] = map[string]bool{config.RoleReader: true}

	got := checks.AccessRBACMigrateProject(context.Background(), checks.ProjectContext{Project: p}, client, resolvedDefaults(t))

	assert.Equal(t, model.SeverityFailure, got.Severity)
}

func TestApplianceHealthMissingIsFailure(t *testing.T) {
	client := calfake.New()
	p := baseProject()

	got := checks.ApplianceHealth(context.Background(), checks.ProjectContext{Project: p}, client, resolvedDefaults(t))

	assert.Equal(t, model.SeverityFailure, got.Severity)
}

func TestApplianceHealthStaleHeartbeatIsWarning(t *testing.T) {
	client := calfake.New()
	p := baseProject()
	key := p.SubscriptionID + "/" + p.ResourceGroup + "/" + p.ProjectName
	client.Appliances[key] = []cal.Appliance{{
		Name:          p.ApplianceName,
		Kind:          string(p.ApplianceKind),
		LastHeartbeat: time.Now().Add(-48 * time.Hour),
		Health:        "Healthy",
	}}

	got := checks.ApplianceHealth(context.Background(), checks.ProjectContext{Project: p}, client, resolvedDefaults(t))

	assert.Equal(t, model.SeverityWarning, got.Severity)
}

// TestApplianceHealthHeartbeatExactlyAtThresholdIsWarning covers the
// inclusive boundary of spec §8: a heartbeat exactly max_heartbeat_age_hours
// old warns, it does not pass silently.
func TestApplianceHealthHeartbeatExactlyAtThresholdIsWarning(t *testing.T) {
	client := calfake.New()
	p := baseProject()
	key := p.SubscriptionID + "/" + p.ResourceGroup + "/" + p.ProjectName
	client.Appliances[key] = []cal.Appliance{{
		Name:          p.ApplianceName,
		Kind:          string(p.ApplianceKind),
		LastHeartbeat: time.Now().Add(-24 * time.Hour),
		Health:        "Healthy",
	}}

	got := checks.ApplianceHealth(context.Background(), checks.ProjectContext{Project: p}, client, resolvedDefaults(t))

	assert.Equal(t, model.SeverityWarning, got.Severity)
}

func TestApplianceHealthKindMismatchIsFailure(t *testing.T) {
	client := calfake.New()
	p := baseProject()
	key := p.SubscriptionID + "/" + p.ResourceGroup + "/" + p.ProjectName
	client.Appliances[key] = []cal.Appliance{{
		Name:          p.ApplianceName,
		Kind:          "hyperv",
		LastHeartbeat: time.Now(),
	}}

	got := checks.ApplianceHealth(context.Background(), checks.ProjectContext{Project: p}, client, resolvedDefaults(t))

	assert.Equal(t, model.SeverityFailure, got.Severity)
}

func TestStorageCacheMissingWithoutAutoCreateIsFailure(t *testing.T) {
	client := calfake.New()
	p := baseProject()

	got := checks.StorageCache(context.Background(), checks.ProjectContext{Project: p}, client, resolvedDefaults(t))

	assert.Equal(t, model.SeverityFailure, got.Severity)
}

func TestStorageCacheAutoCreateSucceeds(t *testing.T) {
	client := calfake.New()
	p := baseProject()
	doc := config.DefaultDocument()
	entry := doc.Tier1[model.CheckStorageCache]
	entry.Params["auto_create"] = true
	doc.Tier1[model.CheckStorageCache] = entry
	cfg, err := config.Resolve(doc, nil)
	require.NoError(t, err)

	got := checks.StorageCache(context.Background(), checks.ProjectContext{Project: p}, client, cfg)

	assert.Equal(t, model.SeverityOK, got.Severity)
	assert.Len(t, client.CreatedStorageAccounts, 1)
}

func TestStorageCacheAutoCreateDoesNotRecreateOnRerun(t *testing.T) {
	client := calfake.New()
	p := baseProject()
	key := p.SubscriptionID + "/" + p.CacheStorageResourceGroup + "/" + p.CacheStorageAccount
	client.StorageAccounts[key] = cal.StorageAccountInfo{Name: p.CacheStorageAccount, Region: p.Region}
	doc := config.DefaultDocument()
	entry := doc.Tier1[model.CheckStorageCache]
	entry.Params["auto_create"] = true
	doc.Tier1[model.CheckStorageCache] = entry
	cfg, err := config.Resolve(doc, nil)
	require.NoError(t, err)

	got := checks.StorageCache(context.Background(), checks.ProjectContext{Project: p}, client, cfg)

	assert.Equal(t, model.SeverityOK, got.Severity)
	assert.Empty(t, client.CreatedStorageAccounts)
}

func TestStorageCacheRegionMismatchIsWarning(t *testing.T) {
	client := calfake.New()
	p := baseProject()
	key := p.SubscriptionID + "/" + p.CacheStorageResourceGroup + "/" + p.CacheStorageAccount
	client.StorageAccounts[key] = cal.StorageAccountInfo{Name: p.CacheStorageAccount, Region: "westus"}

	got := checks.StorageCache(context.Background(), checks.ProjectContext{Project: p}, client, resolvedDefaults(t))

	assert.Equal(t, model.SeverityWarning, got.Severity)
}

func TestQuotaVCPUInsufficientIsFailure(t *testing.T) {
	client := calfake.New()
	p := baseProject()
	machine := model.MachineDecl{TargetSKU: "Standard_D2s_v3", TargetSubscription: p.SubscriptionID, TargetRegion: p.Region}

	skuKey := p.SubscriptionID + "/" + p.Region
	client.VMSKUs[skuKey] = []cal.SkuInfo{{
		Name: "Standard_D2s_v3", Family: "standardDSv3Family",
		Capabilities: map[string]string{"vCPUs": "2"},
	}}
	usageKey := p.SubscriptionID + "/" + p.Region + "/standardDSv3Family"
	client.VCPUUsage[usageKey] = cal.VCPUUsage{Family: "standardDSv3Family", Current: 9, Limit: 10}

	got := checks.QuotaVCPU(context.Background(), checks.ProjectContext{Project: p, Machines: []model.MachineDecl{machine}}, client, resolvedDefaults(t))

	assert.Equal(t, model.SeverityFailure, got.Severity)
}

func TestQuotaVCPUSufficientIsOK(t *testing.T) {
	client := calfake.New()
	p := baseProject()
	machine := model.MachineDecl{TargetSKU: "Standard_D2s_v3", TargetSubscription: p.SubscriptionID, TargetRegion: p.Region}

	skuKey := p.SubscriptionID + "/" + p.Region
	client.VMSKUs[skuKey] = []cal.SkuInfo{{
		Name: "Standard_D2s_v3", Family: "standardDSv3Family",
		Capabilities: map[string]string{"vCPUs": "2"},
	}}
	usageKey := p.SubscriptionID + "/" + p.Region + "/standardDSv3Family"
	client.VCPUUsage[usageKey] = cal.VCPUUsage{Family: "standardDSv3Family", Current: 1, Limit: 100}

	got := checks.QuotaVCPU(context.Background(), checks.ProjectContext{Project: p, Machines: []model.MachineDecl{machine}}, client, resolvedDefaults(t))

	assert.Equal(t, model.SeverityOK, got.Severity)
}
