// Package config implements the Validation Config component (§4.2):
// a declarative, profile-layered description of which checks are
// enabled and with what parameters, resolved once into an immutable
// snapshot for the run.
package config

import "github.com/azuremigrate/preflight/internal/model"

// CheckEntry is one check's raw entry in the configuration document,
// before profile/override resolution.
type CheckEntry struct {
	Enabled bool                   `yaml:"enabled" json:"enabled"`
	Params  map[string]interface{} `yaml:",inline" json:"params,omitempty"`
}

// Global holds the run-wide flags of §4.2.
type Global struct {
	FailFast          bool `yaml:"fail_fast" json:"fail_fast"`
	ParallelExecution bool `yaml:"parallel_execution" json:"parallel_execution"`
	TimeoutSeconds    int  `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// Profile is a named set of dotted-path overrides.
type Profile struct {
	Overrides map[string]interface{} `yaml:"overrides" json:"overrides"`
}

// Document is the parsed shape of the configuration document in
// spec §6, before any profile/override resolution.
type Document struct {
	ActiveProfile string                    `yaml:"active_profile" json:"active_profile"`
	Global        Global                    `yaml:"global" json:"global"`
	Tier1         map[model.CheckId]CheckEntry `yaml:"tier1" json:"tier1"`
	Tier2         map[model.CheckId]CheckEntry `yaml:"tier2" json:"tier2"`
	Profiles      map[string]Profile        `yaml:"profiles" json:"profiles"`
}

// DefaultDocument returns the built-in defaults named in §4.2: every
// check enabled, fail_fast true, parallel execution true, a 300 second
// per-scope timeout, and the role-id defaults SPEC_FULL.md carries
// forward from the original tool's constants module.
func DefaultDocument() Document {
	return Document{
		ActiveProfile: "",
		Global: Global{
			FailFast:          true,
			ParallelExecution: true,
			TimeoutSeconds:    300,
		},
		Tier1: map[model.CheckId]CheckEntry{
			model.CheckAccessRBACMigrateProject: {Enabled: true, Params: map[string]interface{}{
				"required_roles": []interface{}{RoleContributor},
			}},
			model.CheckApplianceHealth: {Enabled: true, Params: map[string]interface{}{
				"max_heartbeat_age_hours": 24,
			}},
			model.CheckStorageCache: {Enabled: true, Params: map[string]interface{}{
				"auto_create": false,
			}},
			model.CheckQuotaVCPU: {Enabled: true, Params: map[string]interface{}{
				"warn_threshold_percent": 80,
			}},
		},
		Tier2: map[model.CheckId]CheckEntry{
			model.CheckServerRegion:            {Enabled: true},
			model.CheckServerResourceGroup:     {Enabled: true},
			model.CheckServerVnetSubnet:        {Enabled: true},
			model.CheckServerSKU:               {Enabled: true},
			model.CheckServerDiskType:          {Enabled: true},
			model.CheckServerDiscovery:         {Enabled: true},
			model.CheckServerRBACResourceGroup: {Enabled: true, Params: map[string]interface{}{
				"required_roles": []interface{}{RoleContributor, RoleOwner},
			}},
		},
		Profiles: map[string]Profile{},
	}
}

// Azure built-in role definition GUIDs, carried forward from the
// original tool's AZURE_ROLE_IDS constant (SPEC_FULL.md §1).
const (
	RoleOwner                     = "8e3af657-a8ff-443c-a75c-2fe8c4bcb635"
	RoleContributor               = "b24988ac-6180-42a0-ab88-20f7382dd24c"
	RoleReader                    = "acdd72a7-3385-48ef-bd42-f606fba81ae7"
	RoleUserAccessAdministrator   = "18d7d88d-d35e-4fb5-a5c3-7773c20a72d9"
)
