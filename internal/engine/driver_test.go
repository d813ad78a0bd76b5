package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azuremigrate/preflight/internal/cal"
	"github.com/azuremigrate/preflight/internal/cal/calfake"
	"github.com/azuremigrate/preflight/internal/config"
	"github.com/azuremigrate/preflight/internal/engine"
	"github.com/azuremigrate/preflight/internal/model"
)

func mustResolve(t *testing.T) config.Resolved {
	t.Helper()
	r, err := config.Resolve(config.DefaultDocument(), nil)
	require.NoError(t, err)
	return r
}

func readyProject() model.ProjectDecl {
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

func seedHappyPathProject(client *calfake.Client, p model.ProjectDecl) {
	client.Subscriptions[p.SubscriptionID] = cal.SubscriptionInfo{SubscriptionID: p.SubscriptionID}
	scope := "/subscriptions/" + p.SubscriptionID + "/resourceGroups/" + p.ResourceGroup + "/providers/Microsoft.Migrate/migrateProjects/" + p.ProjectName
	client.RoleAssignments[scope] = map[string]bool{config.RoleContributor: true}
	key := p.SubscriptionID + "/" + p.ResourceGroup + "/" + p.ProjectName
	client.Appliances[key] = []cal.Appliance{{Name: p.ApplianceName, Kind: string(p.ApplianceKind), LastHeartbeat: time.Now().UTC()}}
	storageKey := p.SubscriptionID + "/" + p.CacheStorageResourceGroup + "/" + p.CacheStorageAccount
	client.StorageAccounts[storageKey] = cal.StorageAccountInfo{Name: p.CacheStorageAccount, Region: p.Region}
	client.VMSKUs[p.SubscriptionID+"/"+p.Region] = nil
}

// TestScenarioS2SubscriptionMissingFailsFast matches spec S2:
// subscription not accessible short-circuits Tier-1 with a critical
// outcome and gates every dependent machine.
func TestScenarioS2SubscriptionMissingFailsFast(t *testing.T) {
	client := calfake.New()
	p := readyProject()
	m := model.MachineDecl{
		TargetName: "vm-1", ProjectKey: p.Key(),
		TargetRegion: "eastus", TargetSubscription: "sub-1", TargetResourceGroup: "rg-target",
		TargetVNet: "vnet-1", TargetSubnet: "subnet-1", TargetSKU: "Standard_D2s_v3", TargetDiskType: model.DiskPremiumLRS,
	}

	run, err := engine.Run(context.Background(), engine.Options{Client: client, Config: mustResolve(t)}, []model.ProjectDecl{p}, []model.MachineDecl{m})
	require.NoError(t, err)

	readiness := run.Projects[p.Key()]
	require.NotEmpty(t, readiness.Outcomes)
	assert.Equal(t, model.SeverityCritical, readiness.Outcomes[0].Severity)
	assert.True(t, readiness.ShortCircuited)
	for _, o := range readiness.Outcomes[1:] {
		assert.Equal(t, model.SkippedCheckId(), o.CheckId)
	}

	require.Len(t, run.Machines, 1)
	assert.Equal(t, model.SkippedPrerequisiteFailed, run.Machines[0].SkippedReason)
	assert.Equal(t, model.SeverityFailure, run.Machines[0].RolledUp)
	assert.Empty(t, run.Machines[0].Outcomes)
}

func TestUnknownProjectKeyIsSkipped(t *testing.T) {
	client := calfake.New()
	m := model.MachineDecl{
		TargetName: "vm-orphan", ProjectKey: model.ProjectKey{SubscriptionID: "x", ResourceGroup: "y", ProjectName: "z"},
		TargetRegion: "eastus", TargetSubscription: "x", TargetResourceGroup: "rg-target",
		TargetVNet: "vnet-1", TargetSubnet: "subnet-1", TargetSKU: "Standard_D2s_v3", TargetDiskType: model.DiskPremiumLRS,
	}

	run, err := engine.Run(context.Background(), engine.Options{Client: client, Config: mustResolve(t)}, nil, []model.MachineDecl{m})
	require.NoError(t, err)

	require.Len(t, run.Machines, 1)
	assert.Equal(t, model.SkippedUnknownProject, run.Machines[0].SkippedReason)
	assert.Equal(t, model.SeverityFailure, run.Machines[0].RolledUp)
}

// TestMalformedProjectDeclProducesPerEntityCriticalOutcome covers §7's
// InputError handling: a ProjectDecl missing a required field never
// aborts the run, it produces a critical outcome for that project
// alone, and its machines are gated the same way a Tier-1 critical
// failure gates them.
func TestMalformedProjectDeclProducesPerEntityCriticalOutcome(t *testing.T) {
	client := calfake.New()
	p := readyProject()
	p.Region = "" // missing required field
	m := model.MachineDecl{
		TargetName: "vm-1", ProjectKey: p.Key(),
		TargetRegion: "eastus", TargetSubscription: p.SubscriptionID, TargetResourceGroup: "rg-target",
		TargetVNet: "vnet-1", TargetSubnet: "subnet-1", TargetSKU: "Standard_D2s_v3", TargetDiskType: model.DiskPremiumLRS,
	}

	run, err := engine.Run(context.Background(), engine.Options{Client: client, Config: mustResolve(t)}, []model.ProjectDecl{p}, []model.MachineDecl{m})
	require.NoError(t, err)

	readiness, ok := run.Projects[p.Key()]
	require.True(t, ok)
	require.Len(t, readiness.Outcomes, 1)
	assert.Equal(t, model.SeverityCritical, readiness.Outcomes[0].Severity)
	assert.Contains(t, readiness.Outcomes[0].Detail, "region")
	assert.Equal(t, model.SeverityCritical, readiness.RolledUp)
	assert.Equal(t, 0, client.CallCounts["GetSubscription"], "a malformed project must never reach CAL")

	require.Len(t, run.Machines, 1)
	assert.Equal(t, model.SkippedPrerequisiteFailed, run.Machines[0].SkippedReason)
}

// TestMalformedMachineDeclProducesPerEntityCriticalOutcome covers §7's
// InputError handling on the machine side: a machine missing a
// required field gets its own critical outcome and never reaches
// Tier-2, while its (valid) project proceeds normally.
func TestMalformedMachineDeclProducesPerEntityCriticalOutcome(t *testing.T) {
	client := calfake.New()
	p := readyProject()
	seedHappyPathProject(client, p)
	m := model.MachineDecl{TargetName: "vm-1", ProjectKey: p.Key()} // missing region/subscription/etc.

	run, err := engine.Run(context.Background(), engine.Options{Client: client, Config: mustResolve(t)}, []model.ProjectDecl{p}, []model.MachineDecl{m})
	require.NoError(t, err)

	assert.Equal(t, model.SeverityOK, run.Projects[p.Key()].RolledUp)

	require.Len(t, run.Machines, 1)
	mr := run.Machines[0]
	assert.Equal(t, "vm-1", mr.TargetName)
	assert.Empty(t, mr.SkippedReason)
	require.Len(t, mr.Outcomes, 1)
	assert.Equal(t, model.SeverityCritical, mr.Outcomes[0].Severity)
	assert.Equal(t, model.SeverityCritical, mr.RolledUp)
}

// TestRunLevelTimeoutAbortsSlowCALCalls covers spec.md:230's run-level
// deadline: global.timeout_seconds multiplied by ceil(scopes /
// parallelism). With one project scope, parallelism 1, and a
// one-second budget, the deadline is one second; a calfake client
// that blocks longer than that on every call must have its in-flight
// CAL call aborted by ctx, surfacing as a critical outcome rather than
// hanging the run.
func TestRunLevelTimeoutAbortsSlowCALCalls(t *testing.T) {
	client := calfake.New()
	client.Delay = 2 * time.Second
	p := readyProject()
	seedHappyPathProject(client, p)

	cfg, err := config.Resolve(config.DefaultDocument(), map[string]interface{}{
		"global.timeout_seconds": 1,
	})
	require.NoError(t, err)

	start := time.Now()
	run, err := engine.Run(context.Background(), engine.Options{Client: client, Config: cfg, Parallelism: 1}, []model.ProjectDecl{p}, nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), client.Delay, "the run must not wait out the full CAL delay")

	readiness := run.Projects[p.Key()]
	assert.Equal(t, model.SeverityCritical, readiness.RolledUp)
}

func TestHappyPathTier1RollsUpOK(t *testing.T) {
	client := calfake.New()
	p := readyProject()
	seedHappyPathProject(client, p)

	run, err := engine.Run(context.Background(), engine.Options{Client: client, Config: mustResolve(t)}, []model.ProjectDecl{p}, nil)
	require.NoError(t, err)

	assert.Equal(t, model.SeverityOK, run.Projects[p.Key()].RolledUp)
	assert.False(t, run.Projects[p.Key()].ShortCircuited)
}

func TestConflictingProjectDeclarationProducesWarning(t *testing.T) {
	client := calfake.New()
	p1 := readyProject()
	seedHappyPathProject(client, p1)
	p2 := p1
	p2.Region = "westus" // same key, conflicting field

	run, err := engine.Run(context.Background(), engine.Options{Client: client, Config: mustResolve(t)}, []model.ProjectDecl{p1, p2}, nil)
	require.NoError(t, err)

	readiness := run.Projects[p1.Key()]
	found := false
	for _, o := range readiness.Outcomes {
		if o.Summary == "Conflicting project declaration" {
			found = true
		}
	}
	assert.True(t, found)
}

// TestConflictingProjectDeclarationBeforeFailFastStaysBeforeSkips
// combines a critical Tier-1 fail-fast with a conflicting duplicate
// ProjectDecl for the same key: per §8 invariant 2, once
// ShortCircuited is true every outcome after the triggering critical
// one must carry __skipped__, so the conflict warning must never land
// after the synthetic skips.
func TestConflictingProjectDeclarationBeforeFailFastStaysBeforeSkips(t *testing.T) {
	client := calfake.New() // unseeded: access.rbac.migrate_project fails critical
	p1 := readyProject()
	p2 := p1
	p2.Region = "westus" // same key, conflicting field

	run, err := engine.Run(context.Background(), engine.Options{Client: client, Config: mustResolve(t)}, []model.ProjectDecl{p1, p2}, nil)
	require.NoError(t, err)

	readiness := run.Projects[p1.Key()]
	require.True(t, readiness.ShortCircuited)
	require.NotEmpty(t, readiness.Outcomes)

	criticalIdx := -1
	for i, o := range readiness.Outcomes {
		if o.Severity == model.SeverityCritical {
			criticalIdx = i
			break
		}
	}
	require.GreaterOrEqual(t, criticalIdx, 0, "expected a critical outcome")

	assert.Equal(t, "Conflicting project declaration", readiness.Outcomes[0].Summary,
		"conflict warning must be seeded before any check outcome, never spliced in after the skips")
	for _, o := range readiness.Outcomes[criticalIdx+1:] {
		assert.Equal(t, model.SkippedCheckId(), o.CheckId)
	}
}

// TestConcurrentTier2MachinesEvaluateIndependently runs two machines
// concurrently under one project. calfake has no caching layer of its
// own, so it can't demonstrate CAL's singleflight coalescing (that's
// internal/cal/cache_test.go's TestGetOrLoadSingleFlight); what this
// covers is that concurrent Tier-2 scopes each reach OK independently
// under §5's bounded parallelism.
func TestConcurrentTier2MachinesEvaluateIndependently(t *testing.T) {
	client := calfake.New()
	p := readyProject()
	seedHappyPathProject(client, p)

	vnetKey := p.SubscriptionID + "/rg-target/vnet-1"
	client.VNets[vnetKey] = cal.VNetInfo{Name: "vnet-1"}
	client.Subnets[vnetKey+"/subnet-1"] = cal.SubnetInfo{Name: "subnet-1", AddressPrefix: "10.0.0.0/24"}
	client.Locations[p.SubscriptionID] = map[string]bool{"eastus": true}
	client.ResourceGroups[p.SubscriptionID+"/rg-target"] = cal.ResourceGroupInfo{Name: "rg-target", Region: "eastus"}
	client.VMSKUs[p.SubscriptionID+"/eastus"] = []cal.SkuInfo{{Name: "Standard_D2s_v3"}}
	client.RoleAssignments["/subscriptions/"+p.SubscriptionID+"/resourceGroups/rg-target"] = map[string]bool{config.RoleContributor: true}
	discoveryKey := p.SubscriptionID + "/" + p.ResourceGroup + "/" + p.ProjectName
	client.DiscoveredMachines[discoveryKey] = []cal.DiscoveredMachine{
		{Name: "vm-a", DisplayName: "vm-a"},
		{Name: "vm-b", DisplayName: "vm-b"},
	}

	machines := []model.MachineDecl{
		{SourceName: "vm-a", TargetName: "vm-a", TargetRegion: "eastus", TargetSubscription: p.SubscriptionID, TargetResourceGroup: "rg-target", TargetVNet: "vnet-1", TargetSubnet: "subnet-1", TargetSKU: "Standard_D2s_v3", TargetDiskType: model.DiskPremiumLRS, ProjectKey: p.Key()},
		{SourceName: "vm-b", TargetName: "vm-b", TargetRegion: "eastus", TargetSubscription: p.SubscriptionID, TargetResourceGroup: "rg-target", TargetVNet: "vnet-1", TargetSubnet: "subnet-1", TargetSKU: "Standard_D2s_v3", TargetDiskType: model.DiskPremiumLRS, ProjectKey: p.Key()},
	}

	run, err := engine.Run(context.Background(), engine.Options{Client: client, Config: mustResolve(t)}, []model.ProjectDecl{p}, machines)
	require.NoError(t, err)

	require.Len(t, run.Machines, 2)
	for _, mr := range run.Machines {
		assert.Equal(t, model.SeverityOK, mr.RolledUp, mr.Outcomes)
	}
	assert.Equal(t, 2, client.CallCounts["SearchDiscoveredByName"], "one discovery lookup per machine, run concurrently")
}
