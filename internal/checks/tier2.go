package checks

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/azuremigrate/preflight/internal/cal"
	"github.com/azuremigrate/preflight/internal/config"
	"github.com/azuremigrate/preflight/internal/model"
)

const providerReservedIPs = 5

// ServerRegion implements server.region, grounded on
// validators/core/region_validator.py.
func ServerRegion(ctx context.Context, mc MachineContext, client cal.Client, cfg config.Resolved) model.CheckOutcome {
	const id = model.CheckServerRegion
	m := mc.Machine

	locations, err := client.ListLocations(ctx, m.TargetSubscription)
	if err != nil {
		return outcomeWithCause(ctx, id, model.SeverityFailure, "unable to list subscription locations", err.Error(), err)
	}
	if !locations[strings.ToLower(m.TargetRegion)] {
		return outcome(ctx, id, model.SeverityFailure, "target region is not a known Azure region",
			fmt.Sprintf("%q not found for subscription %s", m.TargetRegion, m.TargetSubscription))
	}
	return outcome(ctx, id, model.SeverityOK, "target region is valid", "")
}

// ServerResourceGroup implements server.resource_group, grounded on
// validators/core/resource_group_validator.py.
func ServerResourceGroup(ctx context.Context, mc MachineContext, client cal.Client, cfg config.Resolved) model.CheckOutcome {
	const id = model.CheckServerResourceGroup
	m := mc.Machine

	rg, err := client.GetResourceGroup(ctx, m.TargetSubscription, m.TargetResourceGroup)
	if err != nil {
		if cal.IsNotFound(err) {
			return outcome(ctx, id, model.SeverityFailure, "target resource group does not exist", m.TargetResourceGroup)
		}
		return outcomeWithCause(ctx, id, model.SeverityFailure, "unable to verify target resource group", err.Error(), err)
	}
	if rg.Region != "" && !strings.EqualFold(rg.Region, m.TargetRegion) {
		return outcome(ctx, id, model.SeverityWarning, "resource group region differs from target region",
			fmt.Sprintf("resource group is in %q, machine targets %q", rg.Region, m.TargetRegion))
	}
	return outcome(ctx, id, model.SeverityOK, "target resource group exists", "")
}

// ServerVnetSubnet implements server.vnet_subnet, grounded on
// validators/core/vnet_validator.py.
func ServerVnetSubnet(ctx context.Context, mc MachineContext, client cal.Client, cfg config.Resolved) model.CheckOutcome {
	const id = model.CheckServerVnetSubnet
	m := mc.Machine

	if _, err := client.GetVNet(ctx, m.TargetSubscription, m.TargetResourceGroup, m.TargetVNet); err != nil {
		if cal.IsNotFound(err) {
			return outcome(ctx, id, model.SeverityFailure, "target vnet does not exist", m.TargetVNet)
		}
		return outcomeWithCause(ctx, id, model.SeverityFailure, "unable to verify target vnet", err.Error(), err)
	}

	subnet, err := client.GetSubnet(ctx, m.TargetSubscription, m.TargetResourceGroup, m.TargetVNet, m.TargetSubnet)
	if err != nil {
		if cal.IsNotFound(err) {
			return outcome(ctx, id, model.SeverityFailure, "target subnet does not exist", m.TargetSubnet)
		}
		return outcomeWithCause(ctx, id, model.SeverityFailure, "unable to verify target subnet", err.Error(), err)
	}

	if len(subnet.Delegations) > 0 {
		return outcome(ctx, id, model.SeverityFailure, "target subnet has delegations that preclude general VMs",
			strings.Join(subnet.Delegations, ", "))
	}

	capacity, err := subnetCapacity(subnet.AddressPrefix)
	if err != nil {
		return outcomeWithCause(ctx, id, model.SeverityFailure, "unable to compute subnet capacity", err.Error(), err)
	}
	free := capacity - providerReservedIPs - subnet.UsedIPConfigCount
	if free <= 0 {
		return outcome(ctx, id, model.SeverityFailure, "target subnet has no free IP addresses",
			fmt.Sprintf("capacity=%d used=%d reserved=%d", capacity, subnet.UsedIPConfigCount, providerReservedIPs))
	}
	if capacity > 0 && free*100 <= capacity*5 {
		return outcome(ctx, id, model.SeverityWarning, "target subnet is nearly out of free IP addresses",
			fmt.Sprintf("%d free of %d usable", free, capacity))
	}
	return outcome(ctx, id, model.SeverityOK, "target subnet has sufficient free IP addresses", "")
}

func subnetCapacity(prefix string) (int, error) {
	_, ipnet, err := net.ParseCIDR(prefix)
	if err != nil {
		return 0, err
	}
	ones, bits := ipnet.Mask.Size()
	return 1 << uint(bits-ones), nil
}

// ServerSKU implements server.sku, grounded on
// validators/core/vmsku_validator.py.
func ServerSKU(ctx context.Context, mc MachineContext, client cal.Client, cfg config.Resolved) model.CheckOutcome {
	const id = model.CheckServerSKU
	m := mc.Machine

	skus, err := client.ListVMSKUs(ctx, m.TargetSubscription, m.TargetRegion)
	if err != nil {
		return outcomeWithCause(ctx, id, model.SeverityFailure, "unable to list VM SKUs", err.Error(), err)
	}
	var found *cal.SkuInfo
	for i := range skus {
		if skus[i].Name == m.TargetSKU {
			found = &skus[i]
			break
		}
	}
	if found == nil {
		return outcome(ctx, id, model.SeverityFailure, "target SKU is not available in target region",
			fmt.Sprintf("%q not offered in %q", m.TargetSKU, m.TargetRegion))
	}
	if found.Restricted(nil) {
		return outcome(ctx, id, model.SeverityFailure, "target SKU is restricted in target region", m.TargetSKU)
	}
	if found.Deprecated {
		return outcome(ctx, id, model.SeverityWarning, "target SKU is deprecated", m.TargetSKU)
	}
	return outcome(ctx, id, model.SeverityOK, "target SKU is available", "")
}

// ServerDiskType implements server.disk_type, grounded on
// validators/core/disk_validator.py. The compatibility table is
// config-driven per SPEC_FULL.md's Open Question decision (permissive
// default: every known disk type is valid for every SKU/region unless
// overridden).
func ServerDiskType(ctx context.Context, mc MachineContext, client cal.Client, cfg config.Resolved) model.CheckOutcome {
	const id = model.CheckServerDiskType
	m := mc.Machine

	if !isKnownDiskType(m.TargetDiskType) {
		return outcome(ctx, id, model.SeverityFailure, "target disk type is not recognized", string(m.TargetDiskType))
	}
	allowed := cfg.ParamStringSlice(id, "sku_disallowed_disk_types."+m.TargetSKU, nil)
	for _, disallowed := range allowed {
		if strings.EqualFold(disallowed, string(m.TargetDiskType)) {
			return outcome(ctx, id, model.SeverityFailure, "target disk type unsupported for target SKU",
				fmt.Sprintf("%s does not support %s", m.TargetSKU, m.TargetDiskType))
		}
	}
	return outcome(ctx, id, model.SeverityOK, "target disk type is supported", "")
}

func isKnownDiskType(dt model.DiskType) bool {
	for _, k := range model.KnownDiskTypes {
		if k == dt {
			return true
		}
	}
	return false
}

// ServerDiscovery implements server.discovery, grounded on
// validators/core/discovery_validator.py.
func ServerDiscovery(ctx context.Context, mc MachineContext, client cal.Client, cfg config.Resolved) model.CheckOutcome {
	const id = model.CheckServerDiscovery
	m := mc.Machine
	name := m.DiscoveryName()

	matches, err := client.SearchDiscoveredByName(ctx, m.ProjectKey.SubscriptionID, m.ProjectKey.ResourceGroup, m.ProjectKey.ProjectName, name)
	if err != nil {
		return outcomeWithCause(ctx, id, model.SeverityFailure, "unable to search discovered machines", err.Error(), err)
	}

	var exact []cal.DiscoveredMachine
	for _, dm := range matches {
		if strings.EqualFold(dm.Name, name) || strings.EqualFold(dm.DisplayName, name) {
			exact = append(exact, dm)
		}
	}
	switch len(exact) {
	case 0:
		return outcome(ctx, id, model.SeverityFailure, "source machine not found in discovery", name)
	case 1:
		if exact[0].IsReplicating() {
			return outcome(ctx, id, model.SeverityWarning, "source machine already has an active replication",
				fmt.Sprintf("replication_state=%s", exact[0].ReplicationState))
		}
		return outcome(ctx, id, model.SeverityOK, "source machine found in discovery", "")
	default:
		ids := make([]string, len(exact))
		for i, dm := range exact {
			ids[i] = dm.ID
		}
		return outcome(ctx, id, model.SeverityWarning, "multiple discovered machines match source name",
			strings.Join(ids, ", "))
	}
}

// ServerRBACResourceGroup implements server.rbac.rg, grounded on
// validators/core/rbac_validator.py.
func ServerRBACResourceGroup(ctx context.Context, mc MachineContext, client cal.Client, cfg config.Resolved) model.CheckOutcome {
	const id = model.CheckServerRBACResourceGroup
	m := mc.Machine

	requiredRoles := cfg.ParamStringSlice(id, "required_roles", []string{config.RoleContributor, config.RoleOwner})
	scope := fmt.Sprintf("/subscriptions/%s/resourceGroups/%s", m.TargetSubscription, m.TargetResourceGroup)

	assigned, err := client.ListRoleAssignments(ctx, scope)
	if err != nil {
		if cal.IsForbidden(err) {
			return outcomeWithCause(ctx, id, model.SeverityFailure, "insufficient permission to verify permissions", scope, err)
		}
		return outcomeWithCause(ctx, id, model.SeverityFailure, "unable to verify target resource group role assignments", err.Error(), err)
	}
	if !anyRoleAssigned(assigned, requiredRoles) {
		return outcome(ctx, id, model.SeverityFailure, "principal lacks required role on target resource group",
			fmt.Sprintf("none of %v assigned at %s", requiredRoles, scope))
	}
	return outcome(ctx, id, model.SeverityOK, "principal has required role on target resource group", "")
}
