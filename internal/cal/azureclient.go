package cal

import (
	"context"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/authorization/armauthorization/v3"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v2"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armsubscriptions"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/storage/armstorage"
	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/azuremigrate/preflight/internal/logger"
)

var log = logger.GetLogger("azpreflight.cal")

// azureClient is the production Client, backed by the Azure ARM SDKs.
// It owns credential reuse (one azcore.TokenCredential shared across
// every typed sub-client) and per-subscription client caching, the way
// the teacher's LandingZoneValidator/ServersValidator cache one
// {Resource,Storage,Auth,Compute}ManagementClient per subscription
// (original_source/azmig_tool/validators/*.py, _get_*_client methods).
type azureClient struct {
	credential azcore.TokenCredential
	clock      clock.Clock
	cache      *cache
	migrate    *migrateAPI

	mu               sync.Mutex
	subsClients      map[string]*armsubscriptions.Client
	rgClients        map[string]*armresources.ResourceGroupsClient
	resClients       map[string]*armresources.Client
	authClients      map[string]*armauthorization.RoleAssignmentsClient
	vnetClients      map[string]*armnetwork.VirtualNetworksClient
	subnetClients    map[string]*armnetwork.SubnetsClient
	skuClients       map[string]*armcompute.ResourceSKUsClient
	usageClients     map[string]*armcompute.UsageClient
	storageClients   map[string]*armstorage.AccountsClient
}

// NewAzureClient builds a production CAL client from a caller-supplied
// credential (spec §6, "Credential provider" is an external, read-only
// capability -- CAL never acquires or refreshes it itself).
func NewAzureClient(credential azcore.TokenCredential, clk clock.Clock) (Client, error) {
	if credential == nil {
		return nil, errors.NotValidf("nil credential")
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &azureClient{
		credential:     credential,
		clock:          clk,
		cache:          newCache(),
		migrate:        newMigrateAPI(credential),
		subsClients:    map[string]*armsubscriptions.Client{},
		rgClients:      map[string]*armresources.ResourceGroupsClient{},
		resClients:     map[string]*armresources.Client{},
		authClients:    map[string]*armauthorization.RoleAssignmentsClient{},
		vnetClients:    map[string]*armnetwork.VirtualNetworksClient{},
		subnetClients:  map[string]*armnetwork.SubnetsClient{},
		skuClients:     map[string]*armcompute.ResourceSKUsClient{},
		usageClients:   map[string]*armcompute.UsageClient{},
		storageClients: map[string]*armstorage.AccountsClient{},
	}, nil
}

func (c *azureClient) subscriptionsClient() (*armsubscriptions.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.subsClients[""]; ok {
		return cl, nil
	}
	cl, err := armsubscriptions.NewClient(c.credential, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	c.subsClients[""] = cl
	return cl, nil
}

func (c *azureClient) resourceGroupsClient(sub string) (*armresources.ResourceGroupsClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.rgClients[sub]; ok {
		return cl, nil
	}
	cl, err := armresources.NewResourceGroupsClient(sub, c.credential, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	c.rgClients[sub] = cl
	return cl, nil
}

func (c *azureClient) resourcesClient(sub string) (*armresources.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.resClients[sub]; ok {
		return cl, nil
	}
	cl, err := armresources.NewClient(sub, c.credential, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	c.resClients[sub] = cl
	return cl, nil
}

func (c *azureClient) roleAssignmentsClient(sub string) (*armauthorization.RoleAssignmentsClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.authClients[sub]; ok {
		return cl, nil
	}
	cl, err := armauthorization.NewRoleAssignmentsClient(sub, c.credential, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	c.authClients[sub] = cl
	return cl, nil
}

func (c *azureClient) vnetClient(sub string) (*armnetwork.VirtualNetworksClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.vnetClients[sub]; ok {
		return cl, nil
	}
	cl, err := armnetwork.NewVirtualNetworksClient(sub, c.credential, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	c.vnetClients[sub] = cl
	return cl, nil
}

func (c *azureClient) subnetClient(sub string) (*armnetwork.SubnetsClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.subnetClients[sub]; ok {
		return cl, nil
	}
	cl, err := armnetwork.NewSubnetsClient(sub, c.credential, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	c.subnetClients[sub] = cl
	return cl, nil
}

func (c *azureClient) skuClient(sub string) (*armcompute.ResourceSKUsClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.skuClients[sub]; ok {
		return cl, nil
	}
	cl, err := armcompute.NewResourceSKUsClient(sub, c.credential, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	c.skuClients[sub] = cl
	return cl, nil
}

func (c *azureClient) usageClient(sub string) (*armcompute.UsageClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.usageClients[sub]; ok {
		return cl, nil
	}
	cl, err := armcompute.NewUsageClient(sub, c.credential, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	c.usageClients[sub] = cl
	return cl, nil
}

func (c *azureClient) storageAccountsClient(sub string) (*armstorage.AccountsClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.storageClients[sub]; ok {
		return cl, nil
	}
	cl, err := armstorage.NewAccountsClient(sub, c.credential, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	c.storageClients[sub] = cl
	return cl, nil
}

// GetSubscription implements Client.
func (c *azureClient) GetSubscription(ctx context.Context, subscriptionID string) (SubscriptionInfo, error) {
	cl, err := c.subscriptionsClient()
	if err != nil {
		return SubscriptionInfo{}, err
	}
	return callAzure(ctx, log, c.clock, "GetSubscription", func(ctx context.Context) (SubscriptionInfo, error) {
		resp, err := cl.Get(ctx, subscriptionID, nil)
		if err != nil {
			return SubscriptionInfo{}, classify(err)
		}
		info := SubscriptionInfo{SubscriptionID: subscriptionID}
		if resp.DisplayName != nil {
			info.DisplayName = *resp.DisplayName
		}
		return info, nil
	})
}

// ListRoleAssignments implements Client. It returns the set of
// role-definition ids assigned at scope, paginated per §4.1.
func (c *azureClient) ListRoleAssignments(ctx context.Context, scope string) (map[string]bool, error) {
	key := cacheKey("ListRoleAssignments", "", "", scope)
	return getOrLoad(c.cache, key, func() (map[string]bool, error) {
		// Role assignments are scoped by an ARM resource path, not a
		// subscription id directly; the subscription segment of the
		// scope selects which client to build.
		sub := subscriptionFromScope(scope)
		cl, err := c.roleAssignmentsClient(sub)
		if err != nil {
			return nil, err
		}
		return callAzure(ctx, log, c.clock, "ListRoleAssignments", func(ctx context.Context) (map[string]bool, error) {
			roles := map[string]bool{}
			pager := cl.NewListForScopePager(scope, nil)
			for pager.More() {
				page, err := pager.NextPage(ctx)
				if err != nil {
					return nil, classify(err)
				}
				for _, a := range page.Value {
					if a.Properties == nil || a.Properties.RoleDefinitionID == nil {
						continue
					}
					roles[lastSegment(*a.Properties.RoleDefinitionID)] = true
				}
			}
			return roles, nil
		})
	})
}

// GetResourceGroup implements Client.
func (c *azureClient) GetResourceGroup(ctx context.Context, subscriptionID, rg string) (ResourceGroupInfo, error) {
	cl, err := c.resourceGroupsClient(subscriptionID)
	if err != nil {
		return ResourceGroupInfo{}, err
	}
	return callAzure(ctx, log, c.clock, "GetResourceGroup", func(ctx context.Context) (ResourceGroupInfo, error) {
		resp, err := cl.Get(ctx, rg, nil)
		if err != nil {
			return ResourceGroupInfo{}, classify(err)
		}
		info := ResourceGroupInfo{Name: rg}
		if resp.Location != nil {
			info.Region = *resp.Location
		}
		return info, nil
	})
}

// ListLocations implements Client, cached per subscription for the run.
func (c *azureClient) ListLocations(ctx context.Context, subscriptionID string) (map[string]bool, error) {
	key := cacheKey("ListLocations", subscriptionID, "", "")
	return getOrLoad(c.cache, key, func() (map[string]bool, error) {
		cl, err := c.subscriptionsClient()
		if err != nil {
			return nil, err
		}
		return callAzure(ctx, log, c.clock, "ListLocations", func(ctx context.Context) (map[string]bool, error) {
			locations := map[string]bool{}
			pager := cl.NewListLocationsPager(subscriptionID, nil)
			for pager.More() {
				page, err := pager.NextPage(ctx)
				if err != nil {
					return nil, classify(err)
				}
				for _, l := range page.Value {
					if l.Name != nil {
						locations[normalizeRegion(*l.Name)] = true
					}
				}
			}
			return locations, nil
		})
	})
}

// ListVMSKUs implements Client, cached per (sub, region) for the run.
func (c *azureClient) ListVMSKUs(ctx context.Context, subscriptionID, region string) ([]SkuInfo, error) {
	key := cacheKey("ListVMSKUs", subscriptionID, "", region)
	return getOrLoad(c.cache, key, func() ([]SkuInfo, error) {
		cl, err := c.skuClient(subscriptionID)
		if err != nil {
			return nil, err
		}
		return callAzure(ctx, log, c.clock, "ListVMSKUs", func(ctx context.Context) ([]SkuInfo, error) {
			filter := "location eq '" + normalizeRegion(region) + "'"
			var skus []SkuInfo
			pager := cl.NewListPager(&armcompute.ResourceSKUsClientListOptions{Filter: &filter})
			for pager.More() {
				page, err := pager.NextPage(ctx)
				if err != nil {
					return nil, classify(err)
				}
				for _, s := range page.Value {
					if s.ResourceType == nil || *s.ResourceType != "virtualMachines" {
						continue
					}
					skus = append(skus, skuFromARM(s))
				}
			}
			return skus, nil
		})
	})
}

// GetVNet implements Client.
func (c *azureClient) GetVNet(ctx context.Context, subscriptionID, rg, vnet string) (VNetInfo, error) {
	cl, err := c.vnetClient(subscriptionID)
	if err != nil {
		return VNetInfo{}, err
	}
	return callAzure(ctx, log, c.clock, "GetVNet", func(ctx context.Context) (VNetInfo, error) {
		resp, err := cl.Get(ctx, rg, vnet, nil)
		if err != nil {
			return VNetInfo{}, classify(err)
		}
		info := VNetInfo{Name: vnet}
		if resp.Properties != nil {
			for _, s := range resp.Properties.Subnets {
				info.Subnets = append(info.Subnets, subnetFromARM(s))
			}
		}
		return info, nil
	})
}

// GetSubnet implements Client.
func (c *azureClient) GetSubnet(ctx context.Context, subscriptionID, rg, vnet, subnet string) (SubnetInfo, error) {
	cl, err := c.subnetClient(subscriptionID)
	if err != nil {
		return SubnetInfo{}, err
	}
	return callAzure(ctx, log, c.clock, "GetSubnet", func(ctx context.Context) (SubnetInfo, error) {
		resp, err := cl.Get(ctx, rg, vnet, subnet, nil)
		if err != nil {
			return SubnetInfo{}, classify(err)
		}
		return subnetFromARM(&resp.Subnet), nil
	})
}

// GetStorageAccount implements Client.
func (c *azureClient) GetStorageAccount(ctx context.Context, subscriptionID, rg, name string) (StorageAccountInfo, error) {
	cl, err := c.storageAccountsClient(subscriptionID)
	if err != nil {
		return StorageAccountInfo{}, err
	}
	return callAzure(ctx, log, c.clock, "GetStorageAccount", func(ctx context.Context) (StorageAccountInfo, error) {
		resp, err := cl.GetProperties(ctx, rg, name, nil)
		if err != nil {
			return StorageAccountInfo{}, classify(err)
		}
		info := StorageAccountInfo{Name: name}
		if resp.Location != nil {
			info.Region = *resp.Location
		}
		if resp.Kind != nil {
			info.Kind = string(*resp.Kind)
		}
		return info, nil
	})
}

// CreateStorageAccount implements Client. It is the engine's only
// state-mutating operation, gated by the storage.cache.auto_create
// parameter (spec §4.3, §6 "No persisted state").
func (c *azureClient) CreateStorageAccount(ctx context.Context, subscriptionID, rg, name, region string) (StorageAccountInfo, error) {
	cl, err := c.storageAccountsClient(subscriptionID)
	if err != nil {
		return StorageAccountInfo{}, err
	}
	return callAzure(ctx, log, c.clock, "CreateStorageAccount", func(ctx context.Context) (StorageAccountInfo, error) {
		sku := armstorage.SKUNameStandardLRS
		kind := armstorage.KindStorageV2
		poller, err := cl.BeginCreate(ctx, rg, name, armstorage.AccountCreateParameters{
			SKU:      &armstorage.SKU{Name: &sku},
			Kind:     &kind,
			Location: &region,
			Tags: map[string]*string{
				"Purpose":   strPtr("Azure Migrate Cache"),
				"CreatedBy": strPtr("azpreflight"),
			},
		}, nil)
		if err != nil {
			return StorageAccountInfo{}, classify(err)
		}
		resp, err := poller.PollUntilDone(ctx, nil)
		if err != nil {
			return StorageAccountInfo{}, classify(err)
		}
		info := StorageAccountInfo{Name: name}
		if resp.Location != nil {
			info.Region = *resp.Location
		}
		if resp.Kind != nil {
			info.Kind = string(*resp.Kind)
		}
		return info, nil
	})
}

// GetVCPUUsage implements Client.
func (c *azureClient) GetVCPUUsage(ctx context.Context, subscriptionID, region, family string) (VCPUUsage, error) {
	cl, err := c.usageClient(subscriptionID)
	if err != nil {
		return VCPUUsage{}, err
	}
	return callAzure(ctx, log, c.clock, "GetVCPUUsage", func(ctx context.Context) (VCPUUsage, error) {
		pager := cl.NewListPager(normalizeRegion(region), nil)
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				return VCPUUsage{}, classify(err)
			}
			for _, u := range page.Value {
				if u.Name == nil || u.Name.Value == nil {
					continue
				}
				if !strings.EqualFold(*u.Name.Value, family) {
					continue
				}
				usage := VCPUUsage{Family: family}
				if u.CurrentValue != nil {
					usage.Current = int(*u.CurrentValue)
				}
				if u.Limit != nil {
					usage.Limit = int(*u.Limit)
				}
				return usage, nil
			}
		}
		return VCPUUsage{}, NewNotFoundError(nil, "usage family "+family)
	})
}

// ListMigrateProjects implements Client via generic ARM resource
// listing (Microsoft.Migrate/migrateProjects has no typed SDK in the
// corpus, unlike network/compute/storage/authorization).
func (c *azureClient) ListMigrateProjects(ctx context.Context, subscriptionID, rg string) ([]ProjectInfo, error) {
	cl, err := c.resourcesClient(subscriptionID)
	if err != nil {
		return nil, err
	}
	return callAzure(ctx, log, c.clock, "ListMigrateProjects", func(ctx context.Context) ([]ProjectInfo, error) {
		filter := "resourceType eq 'Microsoft.Migrate/migrateProjects'"
		var projects []ProjectInfo
		pager := cl.NewListByResourceGroupPager(rg, &armresources.ClientListByResourceGroupOptions{Filter: &filter})
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				return nil, classify(err)
			}
			for _, r := range page.Value {
				if r.Name == nil {
					continue
				}
				projects = append(projects, ProjectInfo{Name: *r.Name, ResourceGroup: rg})
			}
		}
		return projects, nil
	})
}

// ListAppliances implements Client via the Azure Migrate REST surface.
func (c *azureClient) ListAppliances(ctx context.Context, subscriptionID, rg, project string) ([]Appliance, error) {
	key := cacheKey("ListAppliances", subscriptionID, rg, project)
	return getOrLoad(c.cache, key, func() ([]Appliance, error) {
		return callAzure(ctx, log, c.clock, "ListAppliances", func(ctx context.Context) ([]Appliance, error) {
			return c.migrate.listAppliances(ctx, subscriptionID, rg, project)
		})
	})
}

// ListDiscoveredMachines implements Client, cached at (sub, rg,
// project) per §4.1 so repeated Tier-2 discovery lookups across
// machines in the same project share one upstream fetch.
func (c *azureClient) ListDiscoveredMachines(ctx context.Context, subscriptionID, rg, project string) ([]DiscoveredMachine, error) {
	key := cacheKey("ListDiscoveredMachines", subscriptionID, rg, project)
	return getOrLoad(c.cache, key, func() ([]DiscoveredMachine, error) {
		return callAzure(ctx, log, c.clock, "ListDiscoveredMachines", func(ctx context.Context) ([]DiscoveredMachine, error) {
			return c.migrate.listDiscoveredMachines(ctx, subscriptionID, rg, project)
		})
	})
}

// SearchDiscoveredByName implements Client on top of the cached
// discovered-machine list, so a search never issues its own upstream
// call once the project's machines are cached.
func (c *azureClient) SearchDiscoveredByName(ctx context.Context, subscriptionID, rg, project, name string) ([]DiscoveredMachine, error) {
	all, err := c.ListDiscoveredMachines(ctx, subscriptionID, rg, project)
	if err != nil {
		return nil, err
	}
	var matches []DiscoveredMachine
	lower := strings.ToLower(name)
	for _, m := range all {
		if strings.Contains(strings.ToLower(m.Name), lower) || strings.Contains(strings.ToLower(m.DisplayName), lower) {
			matches = append(matches, m)
		}
	}
	return matches, nil
}

func normalizeRegion(region string) string {
	return strings.ToLower(strings.ReplaceAll(region, " ", ""))
}

func subscriptionFromScope(scope string) string {
	const marker = "/subscriptions/"
	idx := strings.Index(scope, marker)
	if idx < 0 {
		return ""
	}
	rest := scope[idx+len(marker):]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		return rest[:slash]
	}
	return rest
}

func lastSegment(path string) string {
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

func strPtr(s string) *string { return &s }
