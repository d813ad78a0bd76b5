// Package cal implements the Cloud Access Layer: a small typed
// surface over the Azure control plane, hiding pagination, retries,
// credential plumbing and a per-run response cache from the Check
// Library (spec §4.1).
package cal

import "context"

// Client is the CAL's public contract. Every operation returns either
// a typed value or one of the errors in errors.go.
//
// Implementations must be safe for concurrent use: the engine calls
// these methods from many goroutines at once across Tier-1 and Tier-2
// scopes.
type Client interface {
	GetSubscription(ctx context.Context, subscriptionID string) (SubscriptionInfo, error)
	ListRoleAssignments(ctx context.Context, scope string) (map[string]bool, error)
	GetResourceGroup(ctx context.Context, subscriptionID, rg string) (ResourceGroupInfo, error)
	ListLocations(ctx context.Context, subscriptionID string) (map[string]bool, error)
	ListVMSKUs(ctx context.Context, subscriptionID, region string) ([]SkuInfo, error)
	GetVNet(ctx context.Context, subscriptionID, rg, vnet string) (VNetInfo, error)
	GetSubnet(ctx context.Context, subscriptionID, rg, vnet, subnet string) (SubnetInfo, error)
	GetStorageAccount(ctx context.Context, subscriptionID, rg, name string) (StorageAccountInfo, error)
	CreateStorageAccount(ctx context.Context, subscriptionID, rg, name, region string) (StorageAccountInfo, error)
	GetVCPUUsage(ctx context.Context, subscriptionID, region, family string) (VCPUUsage, error)
	ListMigrateProjects(ctx context.Context, subscriptionID, rg string) ([]ProjectInfo, error)
	ListAppliances(ctx context.Context, subscriptionID, rg, project string) ([]Appliance, error)
	ListDiscoveredMachines(ctx context.Context, subscriptionID, rg, project string) ([]DiscoveredMachine, error)
	SearchDiscoveredByName(ctx context.Context, subscriptionID, rg, project, name string) ([]DiscoveredMachine, error)
}
