package engine

import (
	"context"

	"github.com/azuremigrate/preflight/internal/cal"
	"github.com/azuremigrate/preflight/internal/checks"
	"github.com/azuremigrate/preflight/internal/config"
	"github.com/azuremigrate/preflight/internal/model"
)

// tier2CanonicalOrder is the fixed evaluation order of §4.3 for
// machine-scoped checks.
var tier2CanonicalOrder = []model.CheckId{
	model.CheckServerRegion,
	model.CheckServerResourceGroup,
	model.CheckServerVnetSubnet,
	model.CheckServerSKU,
	model.CheckServerDiskType,
	model.CheckServerDiscovery,
	model.CheckServerRBACResourceGroup,
}

// runTier2 executes one machine's Tier-2 checks, implementing §4.5's
// prerequisite gate and fail-fast state machine.
func runTier2(ctx context.Context, mc checks.MachineContext, projectReadiness *model.ProjectReadiness, client cal.Client, cfg config.Resolved) model.MachineReadiness {
	readiness := model.MachineReadiness{TargetName: mc.Machine.TargetName, ProjectKey: mc.Machine.ProjectKey}
	log.Debugf(ctx, "engine: entering machine scope %s", readiness.TargetName)
	defer func() { log.Debugf(ctx, "engine: leaving machine scope %s: rolled_up=%s", readiness.TargetName, readiness.RolledUp) }()

	if projectReadiness == nil {
		readiness.SkippedReason = model.SkippedUnknownProject
		readiness.RolledUp = model.SeverityFailure
		return readiness
	}
	if projectReadiness.RolledUp == model.SeverityFailure || projectReadiness.RolledUp == model.SeverityCritical {
		readiness.SkippedReason = model.SkippedPrerequisiteFailed
		readiness.RolledUp = model.SeverityFailure
		return readiness
	}

	if ctx.Err() != nil {
		readiness.SkippedReason = model.SkippedRunCancelled
		readiness.Outcomes = []model.CheckOutcome{runCancelledOutcome()}
		readiness.RolledUp = model.SeverityWarning
		return readiness
	}

	for i, id := range tier2CanonicalOrder {
		if !cfg.IsEnabled(id) {
			continue
		}
		check, ok := checks.Tier2Registry[id]
		if !ok {
			continue
		}
		outcome := check(ctx, mc, client, cfg)
		readiness.Outcomes = append(readiness.Outcomes, outcome)

		if outcome.Severity == model.SeverityCritical && cfg.Global.FailFast {
			for _, remaining := range tier2CanonicalOrder[i+1:] {
				if cfg.IsEnabled(remaining) {
					readiness.Outcomes = append(readiness.Outcomes, model.SkippedOutcome())
				}
			}
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	readiness.RolledUp = model.RollUp(readiness.Outcomes)
	return readiness
}
