package matcher_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/azuremigrate/preflight/internal/cal"
	"github.com/azuremigrate/preflight/internal/cal/calfake"
	"github.com/azuremigrate/preflight/internal/matcher"
	"github.com/azuremigrate/preflight/internal/model"
)

func projectA() model.ProjectDecl {
	return model.ProjectDecl{SubscriptionID: "sub-1", ResourceGroup: "rg-a", ProjectName: "proj-a", Region: "eastus"}
}

func projectB() model.ProjectDecl {
	return model.ProjectDecl{SubscriptionID: "sub-1", ResourceGroup: "rg-b", ProjectName: "proj-b", Region: "westus"}
}

func TestMatchExactNameWins(t *testing.T) {
	client := calfake.New()
	pa, pb := projectA(), projectB()
	client.DiscoveredMachines["sub-1/rg-a/proj-a"] = []cal.DiscoveredMachine{{Name: "web-01", DisplayName: "web-01"}}
	client.DiscoveredMachines["sub-1/rg-b/proj-b"] = []cal.DiscoveredMachine{{Name: "other", DisplayName: "other"}}

	machines := []model.MachineDecl{{SourceName: "web-01", TargetName: "web-01-new", TargetRegion: "eastus"}}

	out, results := matcher.Match(context.Background(), client, []model.ProjectDecl{pa, pb}, machines)

	assert.Equal(t, pa.Key(), out[0].ProjectKey)
	assert.True(t, results[0].Matched)
	assert.Equal(t, pa.Key(), results[0].Winner)
	assert.Contains(t, results[0].Reasons, "exact name match against discovered machine web-01")
}

func TestMatchLeavesUnscoredMachineUnassigned(t *testing.T) {
	client := calfake.New()
	pa, pb := projectA(), projectB()
	client.DiscoveredMachines["sub-1/rg-a/proj-a"] = []cal.DiscoveredMachine{{Name: "unrelated"}}
	client.DiscoveredMachines["sub-1/rg-b/proj-b"] = []cal.DiscoveredMachine{{Name: "unrelated2"}}

	machines := []model.MachineDecl{{SourceName: "totally-unknown-name", TargetRegion: "centralus"}}

	out, results := matcher.Match(context.Background(), client, []model.ProjectDecl{pa, pb}, machines)

	assert.Equal(t, model.ProjectKey{}, out[0].ProjectKey)
	assert.False(t, results[0].Matched)
}

func TestMatchDoesNotOverwriteExistingProjectKey(t *testing.T) {
	client := calfake.New()
	pa, pb := projectA(), projectB()
	preset := pb.Key()

	machines := []model.MachineDecl{{SourceName: "web-01", ProjectKey: preset}}

	out, results := matcher.Match(context.Background(), client, []model.ProjectDecl{pa, pb}, machines)

	assert.Equal(t, preset, out[0].ProjectKey)
	assert.Equal(t, 0, client.CallCounts["ListDiscoveredMachines"])
	assert.Empty(t, results)
}

func TestMatchTieBreaksByLexicographicallySmallestKey(t *testing.T) {
	client := calfake.New()
	pa, pb := projectA(), projectB()
	// Neither project's discovery matches; both score only on region.
	machines := []model.MachineDecl{{SourceName: "no-match", TargetRegion: "eastus"}}
	pbSameRegion := pb
	pbSameRegion.Region = "eastus"

	out, results := matcher.Match(context.Background(), client, []model.ProjectDecl{pa, pbSameRegion}, machines)

	// rg-a sorts before rg-b lexicographically within the same subscription.
	assert.Equal(t, pa.Key(), out[0].ProjectKey)
	assert.Len(t, results[0].NearMisses, 1)
	assert.Equal(t, pbSameRegion.Key(), results[0].NearMisses[0].Key)
}
