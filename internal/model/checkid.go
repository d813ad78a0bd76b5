package model

// CheckId names one member of the closed set of checks the engine can
// run. New checks are never added at runtime; the set is exhaustively
// enumerated here.
type CheckId string

const (
	CheckAccessRBACMigrateProject CheckId = "access.rbac.migrate_project"
	CheckApplianceHealth          CheckId = "appliance.health"
	CheckStorageCache             CheckId = "storage.cache"
	CheckQuotaVCPU                CheckId = "quota.vcpu"

	CheckServerRegion         CheckId = "server.region"
	CheckServerResourceGroup  CheckId = "server.resource_group"
	CheckServerVnetSubnet     CheckId = "server.vnet_subnet"
	CheckServerSKU            CheckId = "server.sku"
	CheckServerDiskType       CheckId = "server.disk_type"
	CheckServerDiscovery      CheckId = "server.discovery"
	CheckServerRBACResourceGroup CheckId = "server.rbac.rg"

	// checkSkipped is the synthetic id attached to outcomes emitted
	// after a fail-fast short-circuit; it is never independently
	// enabled or configured.
	checkSkipped CheckId = "__skipped__"
)

// Tier1Checks is the canonical evaluation order for a project scope.
// Access checks come first so a critical outcome there can fail-fast
// the remaining project-level checks.
var Tier1Checks = []CheckId{
	CheckAccessRBACMigrateProject,
	CheckApplianceHealth,
	CheckStorageCache,
	CheckQuotaVCPU,
}

// Tier2Checks is the canonical evaluation order for a machine scope.
var Tier2Checks = []CheckId{
	CheckServerRegion,
	CheckServerResourceGroup,
	CheckServerVnetSubnet,
	CheckServerSKU,
	CheckServerDiskType,
	CheckServerDiscovery,
	CheckServerRBACResourceGroup,
}

// SkippedCheckId returns the synthetic check id used for the
// remaining-checks-skipped outcomes emitted on fail-fast.
func SkippedCheckId() CheckId { return checkSkipped }
