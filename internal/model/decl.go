package model

// ApplianceKind is the closed set of migration appliance kinds. The
// original tool also recognizes "agentless"; spec.md's declared set of
// {vmware, hyperv, physical} is extended with it per SPEC_FULL.md since
// no Non-goal excludes it.
type ApplianceKind string

const (
	ApplianceVMware    ApplianceKind = "vmware"
	ApplianceHyperV    ApplianceKind = "hyperv"
	AppliancePhysical  ApplianceKind = "physical"
	ApplianceAgentless ApplianceKind = "agentless"
)

// DiskType is the closed set of Azure managed-disk kinds the engine
// knows how to validate a machine's declared disk type against.
type DiskType string

const (
	DiskStandardLRS    DiskType = "Standard_LRS"
	DiskPremiumLRS     DiskType = "Premium_LRS"
	DiskStandardSSDLRS DiskType = "StandardSSD_LRS"
	DiskPremiumZRS     DiskType = "Premium_ZRS"
	DiskStandardSSDZRS DiskType = "StandardSSD_ZRS"
)

// KnownDiskTypes lists every disk type the engine recognizes, in a
// stable order for error messages.
var KnownDiskTypes = []DiskType{
	DiskStandardLRS, DiskPremiumLRS, DiskStandardSSDLRS, DiskPremiumZRS, DiskStandardSSDZRS,
}

// ProjectKey is the dedup identity for Tier 1: a project declaration
// is unique by subscription, resource group and project name.
type ProjectKey struct {
	SubscriptionID string `json:"subscription_id"`
	ResourceGroup  string `json:"resource_group"`
	ProjectName    string `json:"project_name"`
}

// String renders the key the way it is used as a map key / log field.
func (k ProjectKey) String() string {
	return k.SubscriptionID + "/" + k.ResourceGroup + "/" + k.ProjectName
}

// Less orders keys lexicographically, used to break IM scoring ties
// deterministically (spec §4.7).
func (k ProjectKey) Less(other ProjectKey) bool {
	return k.String() < other.String()
}

// MarshalText lets ProjectKey serve as a JSON object key (Run.Projects
// is a map[ProjectKey]ProjectReadiness; encoding/json requires
// encoding.TextMarshaler for non-string map keys).
func (k ProjectKey) MarshalText() ([]byte, error) {
	return []byte(k.SubscriptionID + "|" + k.ResourceGroup + "|" + k.ProjectName), nil
}

// UnmarshalText is the inverse of MarshalText.
func (k *ProjectKey) UnmarshalText(text []byte) error {
	parts := splitN3(string(text), '|')
	k.SubscriptionID, k.ResourceGroup, k.ProjectName = parts[0], parts[1], parts[2]
	return nil
}

// splitN3 splits s on sep into exactly 3 fields, padding with empty
// strings if fewer are present. ProjectKey components never contain
// '|' (Azure identifiers are alphanumeric/hyphen), so this is a safe,
// allocation-light stand-in for strings.SplitN with a fixed arity.
func splitN3(s string, sep byte) [3]string {
	var out [3]string
	start, field := 0, 0
	for i := 0; i < len(s) && field < 2; i++ {
		if s[i] == sep {
			out[field] = s[start:i]
			start = i + 1
			field++
		}
	}
	out[field] = s[start:]
	return out
}

// ProjectDecl is a user-declared target-environment project context.
// All fields are required except RecoveryVaultName.
type ProjectDecl struct {
	SubscriptionID               string        `json:"subscription_id"`
	ResourceGroup                string        `json:"resource_group"`
	ProjectName                  string        `json:"project_name"`
	Region                       string        `json:"region"`
	ApplianceName                string        `json:"appliance_name"`
	ApplianceKind                ApplianceKind `json:"appliance_kind"`
	CacheStorageAccount          string        `json:"cache_storage_account"`
	CacheStorageResourceGroup    string        `json:"cache_storage_resource_group"`
	RecoveryVaultName            string        `json:"recovery_vault_name,omitempty"`
}

// Key returns the ProjectKey this declaration dedups under.
func (p ProjectDecl) Key() ProjectKey {
	return ProjectKey{
		SubscriptionID: p.SubscriptionID,
		ResourceGroup:  p.ResourceGroup,
		ProjectName:    p.ProjectName,
	}
}

// Validate reports the first missing required field, if any. It never
// checks anything that requires a network call (e.g. whether Region is
// a real Azure region — that's the job of a check, not parsing).
func (p ProjectDecl) Validate() error {
	switch {
	case p.SubscriptionID == "":
		return errMissingField("subscription_id")
	case p.ResourceGroup == "":
		return errMissingField("resource_group")
	case p.ProjectName == "":
		return errMissingField("project_name")
	case p.Region == "":
		return errMissingField("region")
	case p.ApplianceName == "":
		return errMissingField("appliance_name")
	case p.ApplianceKind == "":
		return errMissingField("appliance_kind")
	case p.CacheStorageAccount == "":
		return errMissingField("cache_storage_account")
	case p.CacheStorageResourceGroup == "":
		return errMissingField("cache_storage_resource_group")
	}
	return nil
}

// MachineDecl is a user-declared per-machine migration target.
type MachineDecl struct {
	SourceName         string     `json:"source_name,omitempty"`
	TargetName         string     `json:"target_name"`
	TargetRegion       string     `json:"target_region"`
	TargetSubscription string     `json:"target_subscription"`
	TargetResourceGroup string    `json:"target_resource_group"`
	TargetVNet         string     `json:"target_vnet"`
	TargetSubnet       string     `json:"target_subnet"`
	TargetSKU          string     `json:"target_sku"`
	TargetDiskType     DiskType   `json:"target_disk_type"`
	ProjectKey         ProjectKey `json:"project_key"`
}

// Validate reports the first missing required field, if any.
// ProjectKey may be entirely empty (the Intelligent Matcher may fill
// it in); every other field is required.
func (m MachineDecl) Validate() error {
	switch {
	case m.TargetName == "":
		return errMissingField("target_name")
	case m.TargetRegion == "":
		return errMissingField("target_region")
	case m.TargetSubscription == "":
		return errMissingField("target_subscription")
	case m.TargetResourceGroup == "":
		return errMissingField("target_resource_group")
	case m.TargetVNet == "":
		return errMissingField("target_vnet")
	case m.TargetSubnet == "":
		return errMissingField("target_subnet")
	case m.TargetSKU == "":
		return errMissingField("target_sku")
	case m.TargetDiskType == "":
		return errMissingField("target_disk_type")
	}
	return nil
}

// DiscoveryName is the name used to search the migration project's
// discovered-machine set: source_name if declared, else target_name.
func (m MachineDecl) DiscoveryName() string {
	if m.SourceName != "" {
		return m.SourceName
	}
	return m.TargetName
}

func errMissingField(field string) error {
	return &InputError{Field: field}
}

// InputError is raised when a declaration is missing a required
// field. The engine never aborts a run for it; §7 requires a per-entity
// critical outcome instead.
type InputError struct {
	Field string
}

func (e *InputError) Error() string {
	return "missing required field: " + e.Field
}
