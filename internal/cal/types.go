package cal

import "time"

// SubscriptionInfo is the result of GetSubscription.
type SubscriptionInfo struct {
	SubscriptionID string
	DisplayName    string
}

// ResourceGroupInfo is the result of GetResourceGroup.
type ResourceGroupInfo struct {
	Name   string
	Region string
}

// SkuRestriction mirrors an Azure resource SKU restriction entry.
type SkuRestriction struct {
	Type       string
	ReasonCode string
	Zones      []string
}

// SkuInfo is one entry of ListVMSKUs.
type SkuInfo struct {
	Name         string
	Family       string
	Capabilities map[string]string
	Restrictions []SkuRestriction
	Deprecated   bool
}

// Restricted reports whether the SKU is unusable in every zone it
// declares restrictions for (or has no zones and any restriction at
// all), per spec §8's "SKU with restriction in every zone" boundary.
func (s SkuInfo) Restricted(zones []string) bool {
	if len(s.Restrictions) == 0 {
		return false
	}
	if len(zones) == 0 {
		return true
	}
	restrictedZones := map[string]bool{}
	for _, r := range s.Restrictions {
		for _, z := range r.Zones {
			restrictedZones[z] = true
		}
	}
	for _, z := range zones {
		if !restrictedZones[z] {
			return false
		}
	}
	return true
}

// SubnetInfo is the result of GetSubnet.
type SubnetInfo struct {
	Name              string
	AddressPrefix     string
	Delegations       []string
	UsedIPConfigCount int
}

// VNetInfo is the result of GetVNet.
type VNetInfo struct {
	Name    string
	Subnets []SubnetInfo
}

// StorageAccountInfo is the result of GetStorageAccount /
// CreateStorageAccount.
type StorageAccountInfo struct {
	Name   string
	Region string
	Kind   string
}

// VCPUUsage is the result of GetVCPUUsage.
type VCPUUsage struct {
	Family  string
	Current int
	Limit   int
}

// Available returns the unused quota for this family.
func (u VCPUUsage) Available() int { return u.Limit - u.Current }

// ProjectInfo is one entry of ListMigrateProjects.
type ProjectInfo struct {
	Name          string
	ResourceGroup string
}

// Appliance is one entry of ListAppliances.
type Appliance struct {
	Name          string
	Kind          string // vmware, hyperv, physical, agentless
	LastHeartbeat time.Time
	Health        string // Healthy, Warning, Unhealthy, Critical, Unknown
}

// DiscoveredMachine is one entry of ListDiscoveredMachines /
// SearchDiscoveredByName.
type DiscoveredMachine struct {
	ID               string
	Name             string
	DisplayName      string
	ReplicationState string // e.g. "NotStarted", "Replicating", "Protected"
	IPAddresses      []string
}

// IsReplicating reports whether the discovered machine is already in
// an active-replication state (spec §4.3, server.discovery).
func (m DiscoveredMachine) IsReplicating() bool {
	switch m.ReplicationState {
	case "", "NotStarted", "Discovered":
		return false
	default:
		return true
	}
}
