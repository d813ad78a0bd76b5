// Package engine implements the Engine Driver together with the
// Tier-1 and Tier-2 orchestrators (§4.4-§4.6), the state machines
// that turn declarations plus check outcomes into a Run.
package engine

import (
	"context"

	"github.com/azuremigrate/preflight/internal/cal"
	"github.com/azuremigrate/preflight/internal/checks"
	"github.com/azuremigrate/preflight/internal/config"
	"github.com/azuremigrate/preflight/internal/model"
)

// tier1CanonicalOrder is the fixed evaluation order of §4.3: access
// checks first, so a critical failure there fail-fasts before any
// other Tier-1 work runs.
var tier1CanonicalOrder = []model.CheckId{
	model.CheckAccessRBACMigrateProject,
	model.CheckApplianceHealth,
	model.CheckStorageCache,
	model.CheckQuotaVCPU,
}

// runTier1 executes one project's Tier-1 checks in canonical order,
// implementing §4.4's fail-fast state machine. conflictOutcomes (if
// any) is seeded onto readiness.Outcomes before any check runs, so a
// dedup-conflict warning never lands after the synthetic __skipped__
// outcomes a fail-fast produces (§8 invariant 2).
func runTier1(ctx context.Context, pc checks.ProjectContext, client cal.Client, cfg config.Resolved, conflictOutcomes []model.CheckOutcome) model.ProjectReadiness {
	readiness := model.ProjectReadiness{ProjectKey: pc.Project.Key()}
	readiness.Outcomes = append(readiness.Outcomes, conflictOutcomes...)
	log.Debugf(ctx, "engine: entering project scope %s", readiness.ProjectKey)
	defer func() { log.Debugf(ctx, "engine: leaving project scope %s: rolled_up=%s", readiness.ProjectKey, readiness.RolledUp) }()

	if ctx.Err() != nil {
		readiness.Outcomes = append(readiness.Outcomes, runCancelledOutcome())
		readiness.RolledUp = model.SeverityWarning
		return readiness
	}

	for i, id := range tier1CanonicalOrder {
		if !cfg.IsEnabled(id) {
			continue
		}
		check, ok := checks.Tier1Registry[id]
		if !ok {
			continue
		}
		outcome := check(ctx, pc, client, cfg)
		readiness.Outcomes = append(readiness.Outcomes, outcome)

		if outcome.Severity == model.SeverityCritical && cfg.Global.FailFast {
			readiness.ShortCircuited = true
			for _, remaining := range tier1CanonicalOrder[i+1:] {
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

func runCancelledOutcome() model.CheckOutcome {
	return model.CheckOutcome{Severity: model.SeverityWarning, Summary: "run cancelled"}
}
