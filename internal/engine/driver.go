package engine

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/azuremigrate/preflight/internal/cal"
	"github.com/azuremigrate/preflight/internal/checks"
	"github.com/azuremigrate/preflight/internal/config"
	"github.com/azuremigrate/preflight/internal/logger"
	"github.com/azuremigrate/preflight/internal/matcher"
	"github.com/azuremigrate/preflight/internal/model"
)

var log = logger.GetLogger("azpreflight.engine")

// Options configures one invocation of Run (§4.6, the Engine Driver's
// single entry point per §6).
type Options struct {
	Client                cal.Client
	Config                config.Resolved
	RunIntelligentMatcher bool
	// Parallelism bounds concurrent project and machine scopes
	// independently; zero selects the §5 default of min(NumCPU*2, 8).
	Parallelism int
}

func (o Options) parallelism() int {
	if o.Parallelism > 0 {
		return o.Parallelism
	}
	n := runtime.NumCPU() * 2
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Run is the Engine Driver: dedups projects, optionally matches
// machines to projects, and runs the Tier-1 then Tier-2 orchestrators
// with bounded parallelism, per §4.6. It is the only component that
// stamps the run's wall-clock start and finish times.
func Run(ctx context.Context, opts Options, projects []model.ProjectDecl, machines []model.MachineDecl) (model.Run, error) {
	startedAt := time.Now().UTC()

	validProjects, malformedProjects := partitionProjects(ctx, projects)
	validMachines, malformedMachines := partitionMachines(ctx, machines)

	deduped, conflictOutcomes := dedupProjects(validProjects)

	ctx, cancel := context.WithTimeout(ctx, runTimeout(opts, len(deduped)+len(validMachines)))
	defer cancel()

	if opts.RunIntelligentMatcher {
		var results []matcher.MatchResult
		validMachines, results = matcher.Match(ctx, opts.Client, deduped, validMachines)
		logMatchResults(ctx, results)
	}

	machinesByProject := make(map[model.ProjectKey][]model.MachineDecl)
	for _, m := range validMachines {
		machinesByProject[m.ProjectKey] = append(machinesByProject[m.ProjectKey], m)
	}

	readinessByKey, err := runProjects(ctx, opts, deduped, machinesByProject, conflictOutcomes)
	if err != nil {
		return model.Run{}, err
	}
	for k, v := range malformedProjects {
		readinessByKey[k] = v
	}

	machineReadiness, err := runMachines(ctx, opts, validMachines, readinessByKey)
	if err != nil {
		return model.Run{}, err
	}
	machineReadiness = append(machineReadiness, malformedMachines...)

	projectsOut := make(map[model.ProjectKey]model.ProjectReadiness, len(readinessByKey))
	for k, v := range readinessByKey {
		projectsOut[k] = *v
	}

	return model.Run{
		ID:                uuid.NewString(),
		Projects:          projectsOut,
		Machines:          machineReadiness,
		StartedAt:         startedAt,
		FinishedAt:        time.Now().UTC(),
		ConfigFingerprint: opts.Config.Fingerprint(),
	}, nil
}

// runTimeout derives the run's overall deadline per spec: global.timeout_seconds
// multiplied by ceil(scopes / parallelism), since each worker-pool slot may
// need to run more than one scope's budget back to back. A run with no scopes
// at all still gets one project's worth of budget.
func runTimeout(opts Options, scopes int) time.Duration {
	budget := opts.Config.Global.TimeoutSeconds
	if budget <= 0 {
		budget = 300
	}
	if scopes < 1 {
		scopes = 1
	}
	rounds := (scopes + opts.parallelism() - 1) / opts.parallelism()
	return time.Duration(budget) * time.Duration(rounds) * time.Second
}

// logMatchResults logs the intelligent matcher's per-machine reasoning
// at Debug: the winning project and its reasons when a match was
// found, or the absence of one, plus any near-miss runner-up projects
// (SPEC_FULL.md's supplemented validation_issues surfacing).
func logMatchResults(ctx context.Context, results []matcher.MatchResult) {
	for _, r := range results {
		if !r.Matched {
			log.Debugf(ctx, "matcher: no project match for machine %s", r.TargetName)
			continue
		}
		log.Debugf(ctx, "matcher: machine %s matched project %s: %s", r.TargetName, r.Winner, strings.Join(r.Reasons, "; "))
		for _, nm := range r.NearMisses {
			log.Debugf(ctx, "matcher: machine %s near miss project %s (score %d): %s", r.TargetName, nm.Key, nm.Score, strings.Join(nm.Reasons, "; "))
		}
	}
}

// partitionProjects splits off any ProjectDecl missing a required
// field (§7's InputError) into a ready-made critical ProjectReadiness,
// so a malformed declaration produces a per-entity outcome instead of
// entering Tier-1 (and, per §7, never aborts the run).
func partitionProjects(ctx context.Context, projects []model.ProjectDecl) ([]model.ProjectDecl, map[model.ProjectKey]*model.ProjectReadiness) {
	valid := make([]model.ProjectDecl, 0, len(projects))
	malformed := make(map[model.ProjectKey]*model.ProjectReadiness)
	for _, p := range projects {
		if err := p.Validate(); err != nil {
			key := p.Key()
			log.Warningf(ctx, "engine: project %s declaration is malformed: %v", key, err)
			malformed[key] = &model.ProjectReadiness{
				ProjectKey: key,
				Outcomes:   []model.CheckOutcome{model.InputErrorOutcome(err)},
				RolledUp:   model.SeverityCritical,
			}
			continue
		}
		valid = append(valid, p)
	}
	return valid, malformed
}

// partitionMachines splits off any MachineDecl missing a required
// field into a ready-made critical MachineReadiness, the machine-scope
// counterpart of partitionProjects.
func partitionMachines(ctx context.Context, machines []model.MachineDecl) ([]model.MachineDecl, []model.MachineReadiness) {
	valid := make([]model.MachineDecl, 0, len(machines))
	var malformed []model.MachineReadiness
	for _, m := range machines {
		if err := m.Validate(); err != nil {
			log.Warningf(ctx, "engine: machine %s declaration is malformed: %v", m.TargetName, err)
			malformed = append(malformed, model.MachineReadiness{
				TargetName: m.TargetName,
				ProjectKey: m.ProjectKey,
				Outcomes:   []model.CheckOutcome{model.InputErrorOutcome(err)},
				RolledUp:   model.SeverityCritical,
			})
			continue
		}
		valid = append(valid, m)
	}
	return valid, malformed
}

// dedupProjects collapses ProjectDecls by ProjectKey; a later
// declaration that conflicts with an earlier one for the same key
// produces a synthetic warning outcome attached to that key (§4.6.1),
// keeping the first-seen declaration as authoritative.
func dedupProjects(projects []model.ProjectDecl) ([]model.ProjectDecl, map[model.ProjectKey][]model.CheckOutcome) {
	seen := make(map[model.ProjectKey]model.ProjectDecl)
	order := make([]model.ProjectKey, 0, len(projects))
	conflicts := make(map[model.ProjectKey][]model.CheckOutcome)

	for _, p := range projects {
		key := p.Key()
		existing, ok := seen[key]
		if !ok {
			seen[key] = p
			order = append(order, key)
			continue
		}
		if existing != p {
			conflicts[key] = append(conflicts[key], model.CheckOutcome{
				Severity: model.SeverityWarning,
				Summary:  "Conflicting project declaration",
			})
		}
	}

	out := make([]model.ProjectDecl, 0, len(order))
	for _, k := range order {
		out = append(out, seen[k])
	}
	return out, conflicts
}

func runProjects(ctx context.Context, opts Options, projects []model.ProjectDecl, machinesByProject map[model.ProjectKey][]model.MachineDecl, conflictOutcomes map[model.ProjectKey][]model.CheckOutcome) (map[model.ProjectKey]*model.ProjectReadiness, error) {
	results := make(map[model.ProjectKey]*model.ProjectReadiness, len(projects))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.parallelism())

	for _, p := range projects {
		p := p
		g.Go(func() error {
			pc := checks.ProjectContext{Project: p, Machines: machinesByProject[p.Key()]}
			readiness := runTier1(gctx, pc, opts.Client, opts.Config, conflictOutcomes[p.Key()])

			mu.Lock()
			results[p.Key()] = &readiness
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func runMachines(ctx context.Context, opts Options, machines []model.MachineDecl, projectReadiness map[model.ProjectKey]*model.ProjectReadiness) ([]model.MachineReadiness, error) {
	results := make([]model.MachineReadiness, len(machines))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.parallelism())

	for i, m := range machines {
		i, m := i, m
		g.Go(func() error {
			if gctx.Err() != nil {
				log.Debugf(gctx, "skipping machine %s: run cancelled", m.TargetName)
			}
			mc := checks.MachineContext{Machine: m}
			results[i] = runTier2(gctx, mc, projectReadiness[m.ProjectKey], opts.Client, opts.Config)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
