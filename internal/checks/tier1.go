package checks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/azuremigrate/preflight/internal/cal"
	"github.com/azuremigrate/preflight/internal/config"
	"github.com/azuremigrate/preflight/internal/model"
)

// AccessRBACMigrateProject implements access.rbac.migrate_project.
// Grounded on validators/core/access_validator.py's two-step shape:
// subscription existence first (the canonical fail-fast trigger), then
// a role check on the project scope.
func AccessRBACMigrateProject(ctx context.Context, pc ProjectContext, client cal.Client, cfg config.Resolved) model.CheckOutcome {
	const id = model.CheckAccessRBACMigrateProject
	p := pc.Project

	if _, err := client.GetSubscription(ctx, p.SubscriptionID); err != nil {
		if cal.IsNotFound(err) {
			return outcomeWithCause(ctx, id, model.SeverityCritical, "subscription not accessible",
				fmt.Sprintf("subscription %q could not be found", p.SubscriptionID), err)
		}
		return outcomeWithCause(ctx, id, model.SeverityCritical, "unable to verify subscription access", err.Error(), err)
	}

	requiredRoles := cfg.ParamStringSlice(id, "required_roles", []string{config.RoleContributor})
	scope := projectScope(p)
	assigned, err := client.ListRoleAssignments(ctx, scope)
	if err != nil {
		if cal.IsForbidden(err) {
			return outcomeWithCause(ctx, id, model.SeverityFailure, "insufficient permission to verify permissions",
				"listing role assignments on "+scope, err)
		}
		return outcomeWithCause(ctx, id, model.SeverityFailure, "unable to verify project role assignments", err.Error(), err)
	}
	if !anyRoleAssigned(assigned, requiredRoles) {
		return outcome(ctx, id, model.SeverityFailure, "principal lacks required role on migrate project",
			fmt.Sprintf("none of %v assigned at %s", requiredRoles, scope))
	}
	return outcome(ctx, id, model.SeverityOK, "principal has required role on migrate project", "")
}

// ApplianceHealth implements appliance.health, grounded on
// validators/core/appliance_validator.py.
func ApplianceHealth(ctx context.Context, pc ProjectContext, client cal.Client, cfg config.Resolved) model.CheckOutcome {
	const id = model.CheckApplianceHealth
	p := pc.Project

	appliances, err := client.ListAppliances(ctx, p.SubscriptionID, p.ResourceGroup, p.ProjectName)
	if err != nil {
		return outcomeWithCause(ctx, id, model.SeverityFailure, "unable to list appliances", err.Error(), err)
	}

	var found *cal.Appliance
	for i := range appliances {
		if appliances[i].Name == p.ApplianceName {
			found = &appliances[i]
			break
		}
	}
	if found == nil {
		return outcome(ctx, id, model.SeverityFailure, "declared appliance not found",
			fmt.Sprintf("no appliance named %q in project", p.ApplianceName))
	}
	if !strings.EqualFold(found.Kind, string(p.ApplianceKind)) {
		return outcome(ctx, id, model.SeverityFailure, "appliance kind mismatch",
			fmt.Sprintf("declared %q, discovered %q", p.ApplianceKind, found.Kind))
	}

	maxAgeHours := cfg.ParamInt(id, "max_heartbeat_age_hours", 24)
	age := time.Since(found.LastHeartbeat)
	if age >= time.Duration(maxAgeHours)*time.Hour {
		return outcome(ctx, id, model.SeverityWarning, "appliance heartbeat is stale",
			fmt.Sprintf("last heartbeat %s ago, threshold %dh", age.Round(time.Minute), maxAgeHours))
	}
	return outcome(ctx, id, model.SeverityOK, "appliance is healthy", "")
}

// StorageCache implements storage.cache, grounded on
// validators/core/storage_validator.py.
func StorageCache(ctx context.Context, pc ProjectContext, client cal.Client, cfg config.Resolved) model.CheckOutcome {
	const id = model.CheckStorageCache
	p := pc.Project

	acct, err := client.GetStorageAccount(ctx, p.SubscriptionID, p.CacheStorageResourceGroup, p.CacheStorageAccount)
	if err != nil {
		if !cal.IsNotFound(err) {
			return outcomeWithCause(ctx, id, model.SeverityFailure, "unable to verify cache storage account", err.Error(), err)
		}
		if !cfg.ParamBool(id, "auto_create", false) {
			return outcome(ctx, id, model.SeverityFailure, "cache storage account does not exist",
				fmt.Sprintf("%s/%s not found and auto_create is disabled", p.CacheStorageResourceGroup, p.CacheStorageAccount))
		}
		created, cerr := client.CreateStorageAccount(ctx, p.SubscriptionID, p.CacheStorageResourceGroup, p.CacheStorageAccount, p.Region)
		if cerr != nil {
			return outcomeWithCause(ctx, id, model.SeverityFailure, "failed to create cache storage account", cerr.Error(), cerr)
		}
		acct = created
	}

	if !strings.EqualFold(acct.Region, p.Region) {
		return outcome(ctx, id, model.SeverityWarning, "cache storage account region mismatch",
			fmt.Sprintf("account is in %q, project declares %q", acct.Region, p.Region))
	}
	return outcome(ctx, id, model.SeverityOK, "cache storage account is ready", "")
}

// QuotaVCPU implements quota.vcpu, grounded on
// validators/core/quota_validator.py: sum required vCPUs per family
// across the project's declared machines, compare against remaining
// quota for that family in the project's region.
func QuotaVCPU(ctx context.Context, pc ProjectContext, client cal.Client, cfg config.Resolved) model.CheckOutcome {
	const id = model.CheckQuotaVCPU
	p := pc.Project

	skus, err := client.ListVMSKUs(ctx, p.SubscriptionID, p.Region)
	if err != nil {
		return outcomeWithCause(ctx, id, model.SeverityFailure, "unable to list VM SKUs for quota calculation", err.Error(), err)
	}
	skuByName := make(map[string]cal.SkuInfo, len(skus))
	for _, s := range skus {
		skuByName[s.Name] = s
	}

	requiredByFamily := map[string]int{}
	for _, m := range pc.Machines {
		sku, ok := skuByName[m.TargetSKU]
		if !ok {
			continue // server.sku reports the unknown SKU; quota can't size it
		}
		vcpus := vcpuCapacity(sku)
		if vcpus == 0 {
			continue // no vCPUs capability on the SKU; nothing to size against quota
		}
		requiredByFamily[sku.Family] += vcpus
	}

	warnThreshold := cfg.ParamInt(id, "warn_threshold_percent", 80)
	worstSeverity := model.SeverityOK
	var details []string
	for family, required := range requiredByFamily {
		usage, err := client.GetVCPUUsage(ctx, p.SubscriptionID, p.Region, family)
		if err != nil {
			return outcomeWithCause(ctx, id, model.SeverityFailure, "unable to read vCPU usage", err.Error(), err)
		}
		available := usage.Available()
		if required > available {
			worstSeverity = worstSeverity.Max(model.SeverityFailure)
			details = append(details, fmt.Sprintf("%s: need %d, only %d available", family, required, available))
			continue
		}
		if usage.Limit > 0 {
			projectedPercent := (usage.Current + required) * 100 / usage.Limit
			if projectedPercent >= 100 {
				worstSeverity = worstSeverity.Max(model.SeverityFailure)
				details = append(details, fmt.Sprintf("%s: projected usage would exhaust quota", family))
			} else if projectedPercent >= warnThreshold {
				worstSeverity = worstSeverity.Max(model.SeverityWarning)
				details = append(details, fmt.Sprintf("%s: projected usage %d%% of quota", family, projectedPercent))
			}
		}
	}

	switch worstSeverity {
	case model.SeverityFailure:
		return outcome(ctx, id, model.SeverityFailure, "insufficient vCPU quota", strings.Join(details, "; "))
	case model.SeverityWarning:
		return outcome(ctx, id, model.SeverityWarning, "vCPU quota is close to its limit", strings.Join(details, "; "))
	default:
		return outcome(ctx, id, model.SeverityOK, "sufficient vCPU quota available", "")
	}
}

func vcpuCapacity(sku cal.SkuInfo) int {
	v, ok := sku.Capabilities["vCPUs"]
	if !ok {
		return 0
	}
	var n int
	fmt.Sscanf(v, "%d", &n)
	return n
}

func projectScope(p model.ProjectDecl) string {
	return fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/providers/Microsoft.Migrate/migrateProjects/%s",
		p.SubscriptionID, p.ResourceGroup, p.ProjectName)
}

func anyRoleAssigned(assigned map[string]bool, required []string) bool {
	for _, r := range required {
		if assigned[r] {
			return true
		}
	}
	return false
}
