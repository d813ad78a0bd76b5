// Package checks implements the closed set of pre-flight validation
// functions: pure functions of (declaration, CAL, resolved config)
// returning a single CheckOutcome, grounded on
// original_source/azmig_tool/validators/{landing_zone_validator,
// servers_validator}.py and their validators/core/*.py subordinates.
package checks

import (
	"context"

	"github.com/azuremigrate/preflight/internal/cal"
	"github.com/azuremigrate/preflight/internal/config"
	"github.com/azuremigrate/preflight/internal/logger"
	"github.com/azuremigrate/preflight/internal/model"
)

var log = logger.GetLogger("azpreflight.checks")

// ProjectContext is everything a Tier-1 check needs: the project
// declaration plus the machines that reference it, since quota.vcpu
// must sum demand across a project's declared machines.
type ProjectContext struct {
	Project  model.ProjectDecl
	Machines []model.MachineDecl
}

// MachineContext is everything a Tier-2 check needs.
type MachineContext struct {
	Project model.ProjectDecl
	Machine model.MachineDecl
}

// Tier1Check validates one Tier-1 concern.
type Tier1Check func(ctx context.Context, pc ProjectContext, client cal.Client, cfg config.Resolved) model.CheckOutcome

// Tier2Check validates one Tier-2 concern.
type Tier2Check func(ctx context.Context, mc MachineContext, client cal.Client, cfg config.Resolved) model.CheckOutcome

// Tier1Registry maps each Tier-1 CheckId to its implementation. As a
// map it carries no order; the engine's tier1CanonicalOrder decides the
// evaluation order (access checks first).
var Tier1Registry = map[model.CheckId]Tier1Check{
	model.CheckAccessRBACMigrateProject: AccessRBACMigrateProject,
	model.CheckApplianceHealth:          ApplianceHealth,
	model.CheckStorageCache:             StorageCache,
	model.CheckQuotaVCPU:                QuotaVCPU,
}

// Tier2Registry maps each Tier-2 CheckId to its implementation.
var Tier2Registry = map[model.CheckId]Tier2Check{
	model.CheckServerRegion:             ServerRegion,
	model.CheckServerResourceGroup:      ServerResourceGroup,
	model.CheckServerVnetSubnet:         ServerVnetSubnet,
	model.CheckServerSKU:                ServerSKU,
	model.CheckServerDiskType:           ServerDiskType,
	model.CheckServerDiscovery:          ServerDiscovery,
	model.CheckServerRBACResourceGroup:  ServerRBACResourceGroup,
}

func outcome(ctx context.Context, id model.CheckId, sev model.Severity, summary, detail string) model.CheckOutcome {
	logOutcome(ctx, id, sev, summary)
	return model.CheckOutcome{CheckId: id, Severity: sev, Summary: summary, Detail: detail}
}

func outcomeWithCause(ctx context.Context, id model.CheckId, sev model.Severity, summary, detail string, err error) model.CheckOutcome {
	o := outcome(ctx, id, sev, summary, detail)
	o.CauseTrace = &model.CauseTrace{RequestID: cal.RequestID(err), Reason: err.Error()}
	return o
}

// logOutcome logs every check invocation at Debug, and additionally at
// Warning when the outcome is failure or critical, per §4.1's ambient
// logging commitment.
func logOutcome(ctx context.Context, id model.CheckId, sev model.Severity, summary string) {
	log.Debugf(ctx, "check %s -> %s: %s", id, sev, summary)
	if sev == model.SeverityFailure || sev == model.SeverityCritical {
		log.Warningf(ctx, "check %s -> %s: %s", id, sev, summary)
	}
}
