// Package calfake provides an in-memory cal.Client test double, the
// way the teacher's providers are tested against fake environ/clients
// rather than live Azure (see internal/provider/azure/*_test.go's
// use of internal/testing fakes).
package calfake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/azuremigrate/preflight/internal/cal"
)

// Client is a scriptable cal.Client. Every method looks up its result
// by a caller-chosen key; for a missing key the single-resource getters
// (GetSubscription, GetResourceGroup, GetVNet, GetSubnet,
// GetStorageAccount, GetVCPUUsage) return NotFound and the list and
// search methods return an empty result. Calls are recorded for
// assertions like "the cache made exactly one upstream call".
type Client struct {
	mu sync.Mutex

	Subscriptions       map[string]cal.SubscriptionInfo
	RoleAssignments     map[string]map[string]bool
	ResourceGroups      map[string]cal.ResourceGroupInfo
	Locations           map[string]map[string]bool
	VMSKUs              map[string][]cal.SkuInfo
	VNets               map[string]cal.VNetInfo
	Subnets             map[string]cal.SubnetInfo
	StorageAccounts     map[string]cal.StorageAccountInfo
	VCPUUsage           map[string]cal.VCPUUsage
	MigrateProjects     map[string][]cal.ProjectInfo
	Appliances          map[string][]cal.Appliance
	DiscoveredMachines  map[string][]cal.DiscoveredMachine

	// Errors overrides the result for a given key with a forced error,
	// for exercising the failure taxonomy paths in checks.
	Errors map[string]error

	// Delay, if set, is held before every call returns, honoring ctx
	// cancellation, so tests can exercise the engine's run-level timeout
	// and cancellation handling without a live slow provider.
	Delay time.Duration

	CallCounts map[string]int
	CreatedStorageAccounts []string
}

var _ cal.Client = (*Client)(nil)

// New returns an empty fake with every map initialized.
func New() *Client {
	return &Client{
		Subscriptions:      map[string]cal.SubscriptionInfo{},
		RoleAssignments:    map[string]map[string]bool{},
		ResourceGroups:     map[string]cal.ResourceGroupInfo{},
		Locations:          map[string]map[string]bool{},
		VMSKUs:             map[string][]cal.SkuInfo{},
		VNets:              map[string]cal.VNetInfo{},
		Subnets:            map[string]cal.SubnetInfo{},
		StorageAccounts:    map[string]cal.StorageAccountInfo{},
		VCPUUsage:          map[string]cal.VCPUUsage{},
		MigrateProjects:    map[string][]cal.ProjectInfo{},
		Appliances:         map[string][]cal.Appliance{},
		DiscoveredMachines: map[string][]cal.DiscoveredMachine{},
		Errors:             map[string]error{},
		CallCounts:         map[string]int{},
	}
}

func (c *Client) record(ctx context.Context, op, key string) error {
	c.mu.Lock()
	c.CallCounts[op]++
	delay := c.Delay
	err, hasErr := c.Errors[op+"|"+key]
	c.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	if hasErr {
		return err
	}
	return nil
}

func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (cal.SubscriptionInfo, error) {
	if err := c.record(ctx, "GetSubscription", subscriptionID); err != nil {
		return cal.SubscriptionInfo{}, err
	}
	v, ok := c.Subscriptions[subscriptionID]
	if !ok {
		return cal.SubscriptionInfo{}, cal.NewNotFoundError(nil, subscriptionID)
	}
	return v, nil
}

func (c *Client) ListRoleAssignments(ctx context.Context, scope string) (map[string]bool, error) {
	if err := c.record(ctx, "ListRoleAssignments", scope); err != nil {
		return nil, err
	}
	return c.RoleAssignments[scope], nil
}

func (c *Client) GetResourceGroup(ctx context.Context, subscriptionID, rg string) (cal.ResourceGroupInfo, error) {
	key := subscriptionID + "/" + rg
	if err := c.record(ctx, "GetResourceGroup", key); err != nil {
		return cal.ResourceGroupInfo{}, err
	}
	v, ok := c.ResourceGroups[key]
	if !ok {
		return cal.ResourceGroupInfo{}, cal.NewNotFoundError(nil, rg)
	}
	return v, nil
}

func (c *Client) ListLocations(ctx context.Context, subscriptionID string) (map[string]bool, error) {
	if err := c.record(ctx, "ListLocations", subscriptionID); err != nil {
		return nil, err
	}
	return c.Locations[subscriptionID], nil
}

func (c *Client) ListVMSKUs(ctx context.Context, subscriptionID, region string) ([]cal.SkuInfo, error) {
	key := subscriptionID + "/" + region
	if err := c.record(ctx, "ListVMSKUs", key); err != nil {
		return nil, err
	}
	return c.VMSKUs[key], nil
}

func (c *Client) GetVNet(ctx context.Context, subscriptionID, rg, vnet string) (cal.VNetInfo, error) {
	key := subscriptionID + "/" + rg + "/" + vnet
	if err := c.record(ctx, "GetVNet", key); err != nil {
		return cal.VNetInfo{}, err
	}
	v, ok := c.VNets[key]
	if !ok {
		return cal.VNetInfo{}, cal.NewNotFoundError(nil, vnet)
	}
	return v, nil
}

func (c *Client) GetSubnet(ctx context.Context, subscriptionID, rg, vnet, subnet string) (cal.SubnetInfo, error) {
	key := subscriptionID + "/" + rg + "/" + vnet + "/" + subnet
	if err := c.record(ctx, "GetSubnet", key); err != nil {
		return cal.SubnetInfo{}, err
	}
	v, ok := c.Subnets[key]
	if !ok {
		return cal.SubnetInfo{}, cal.NewNotFoundError(nil, subnet)
	}
	return v, nil
}

func (c *Client) GetStorageAccount(ctx context.Context, subscriptionID, rg, name string) (cal.StorageAccountInfo, error) {
	key := subscriptionID + "/" + rg + "/" + name
	if err := c.record(ctx, "GetStorageAccount", key); err != nil {
		return cal.StorageAccountInfo{}, err
	}
	v, ok := c.StorageAccounts[key]
	if !ok {
		return cal.StorageAccountInfo{}, cal.NewNotFoundError(nil, name)
	}
	return v, nil
}

func (c *Client) CreateStorageAccount(ctx context.Context, subscriptionID, rg, name, region string) (cal.StorageAccountInfo, error) {
	key := subscriptionID + "/" + rg + "/" + name
	if err := c.record(ctx, "CreateStorageAccount", key); err != nil {
		return cal.StorageAccountInfo{}, err
	}
	c.mu.Lock()
	c.CreatedStorageAccounts = append(c.CreatedStorageAccounts, key)
	c.mu.Unlock()
	info := cal.StorageAccountInfo{Name: name, Region: region, Kind: "StorageV2"}
	c.mu.Lock()
	c.StorageAccounts[key] = info
	c.mu.Unlock()
	return info, nil
}

func (c *Client) GetVCPUUsage(ctx context.Context, subscriptionID, region, family string) (cal.VCPUUsage, error) {
	key := fmt.Sprintf("%s/%s/%s", subscriptionID, region, family)
	if err := c.record(ctx, "GetVCPUUsage", key); err != nil {
		return cal.VCPUUsage{}, err
	}
	v, ok := c.VCPUUsage[key]
	if !ok {
		return cal.VCPUUsage{}, cal.NewNotFoundError(nil, family)
	}
	return v, nil
}

func (c *Client) ListMigrateProjects(ctx context.Context, subscriptionID, rg string) ([]cal.ProjectInfo, error) {
	key := subscriptionID + "/" + rg
	if err := c.record(ctx, "ListMigrateProjects", key); err != nil {
		return nil, err
	}
	return c.MigrateProjects[key], nil
}

func (c *Client) ListAppliances(ctx context.Context, subscriptionID, rg, project string) ([]cal.Appliance, error) {
	key := subscriptionID + "/" + rg + "/" + project
	if err := c.record(ctx, "ListAppliances", key); err != nil {
		return nil, err
	}
	return c.Appliances[key], nil
}

func (c *Client) ListDiscoveredMachines(ctx context.Context, subscriptionID, rg, project string) ([]cal.DiscoveredMachine, error) {
	key := subscriptionID + "/" + rg + "/" + project
	if err := c.record(ctx, "ListDiscoveredMachines", key); err != nil {
		return nil, err
	}
	return c.DiscoveredMachines[key], nil
}

func (c *Client) SearchDiscoveredByName(ctx context.Context, subscriptionID, rg, project, name string) ([]cal.DiscoveredMachine, error) {
	key := subscriptionID + "/" + rg + "/" + project
	if err := c.record(ctx, "SearchDiscoveredByName", key+"/"+name); err != nil {
		return nil, err
	}
	var matches []cal.DiscoveredMachine
	for _, m := range c.DiscoveredMachines[key] {
		if m.Name == name || m.DisplayName == name {
			matches = append(matches, m)
		}
	}
	return matches, nil
}
