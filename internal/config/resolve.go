package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/juju/errors"

	"github.com/azuremigrate/preflight/internal/model"
)

// ResolvedCheck is one check's fully-merged enablement and parameters,
// frozen for the run.
type ResolvedCheck struct {
	Enabled bool
	Params  map[string]interface{}
}

// Resolved is the immutable, profile-merged configuration snapshot
// described in §4.2. It is cheaply cloneable (all fields are read via
// value receivers) and safe for concurrent reads by every worker.
type Resolved struct {
	Global      Global
	checks      map[model.CheckId]ResolvedCheck
	fingerprint string
}

// IsEnabled implements the VC contract's is_enabled(check_id).
func (r Resolved) IsEnabled(id model.CheckId) bool {
	c, ok := r.checks[id]
	return ok && c.Enabled
}

// Param implements the VC contract's param(check_id, key, default).
func (r Resolved) Param(id model.CheckId, key string, def interface{}) interface{} {
	c, ok := r.checks[id]
	if !ok {
		return def
	}
	v, ok := c.Params[key]
	if !ok {
		return def
	}
	return v
}

// ParamInt is a convenience wrapper over Param for integer-valued
// parameters, tolerating both int and float64 (viper/YAML decode
// numbers as either depending on the source).
func (r Resolved) ParamInt(id model.CheckId, key string, def int) int {
	v := r.Param(id, key, def)
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

// ParamBool is a convenience wrapper over Param for boolean-valued
// parameters.
func (r Resolved) ParamBool(id model.CheckId, key string, def bool) bool {
	v := r.Param(id, key, def)
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// ParamStringSlice is a convenience wrapper over Param for
// string-slice-valued parameters such as required_roles.
func (r Resolved) ParamStringSlice(id model.CheckId, key string, def []string) []string {
	v := r.Param(id, key, def)
	switch s := v.(type) {
	case []string:
		return s
	case []interface{}:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return def
	}
}

// Fingerprint returns the hex SHA-256 digest of the canonicalized
// resolved configuration (spec §3, §8 invariant 8): stable under
// cosmetic reordering because it's computed from a sorted-key encoding
// of the already-merged Resolved value, not from the raw document.
func (r Resolved) Fingerprint() string { return r.fingerprint }

// Resolve merges the built-in defaults, the active profile's
// overrides, and explicit per-check overrides (highest wins, in that
// order per §4.2) into an immutable snapshot.
func Resolve(doc Document, explicitOverrides map[string]interface{}) (Resolved, error) {
	merged := cloneDocument(doc)

	if doc.ActiveProfile != "" {
		profile, ok := doc.Profiles[doc.ActiveProfile]
		if !ok {
			return Resolved{}, &ConfigError{Reason: "unknown profile: " + doc.ActiveProfile}
		}
		if err := applyOverrides(&merged, profile.Overrides); err != nil {
			return Resolved{}, errors.Annotatef(err, "applying profile %q", doc.ActiveProfile)
		}
	}
	if err := applyOverrides(&merged, explicitOverrides); err != nil {
		return Resolved{}, errors.Annotate(err, "applying explicit overrides")
	}

	checks := make(map[model.CheckId]ResolvedCheck, len(merged.Tier1)+len(merged.Tier2))
	for id, entry := range merged.Tier1 {
		checks[id] = ResolvedCheck{Enabled: entry.Enabled, Params: entry.Params}
	}
	for id, entry := range merged.Tier2 {
		checks[id] = ResolvedCheck{Enabled: entry.Enabled, Params: entry.Params}
	}

	r := Resolved{Global: merged.Global, checks: checks}
	fp, err := fingerprint(merged)
	if err != nil {
		return Resolved{}, errors.Annotate(err, "computing config fingerprint")
	}
	r.fingerprint = fp
	return r, nil
}

func cloneDocument(doc Document) Document {
	out := doc
	out.Tier1 = cloneCheckMap(doc.Tier1)
	out.Tier2 = cloneCheckMap(doc.Tier2)
	return out
}

func cloneCheckMap(m map[model.CheckId]CheckEntry) map[model.CheckId]CheckEntry {
	out := make(map[model.CheckId]CheckEntry, len(m))
	for id, entry := range m {
		params := make(map[string]interface{}, len(entry.Params))
		for k, v := range entry.Params {
			params[k] = v
		}
		out[id] = CheckEntry{Enabled: entry.Enabled, Params: params}
	}
	return out
}

// applyOverrides mutates doc in place per the dotted-path override
// scheme of §6, e.g. "server.rbac.rg.enabled=false" or
// "global.timeout_seconds"=120.
func applyOverrides(doc *Document, overrides map[string]interface{}) error {
	for path, value := range overrides {
		segments := strings.Split(path, ".")
		if len(segments) < 2 {
			return &ConfigError{Reason: "malformed override path: " + path}
		}
		if segments[0] == "global" {
			if err := applyGlobalOverride(&doc.Global, segments[1], value); err != nil {
				return err
			}
			continue
		}

		checkID := model.CheckId(strings.Join(segments[:len(segments)-1], "."))
		field := segments[len(segments)-1]

		entry, tier, ok := findCheckEntry(doc, checkID)
		if !ok {
			return &ConfigError{Reason: "unknown check id in override: " + string(checkID)}
		}
		if field == "enabled" {
			b, ok := value.(bool)
			if !ok {
				return &ConfigError{Reason: "enabled override for " + string(checkID) + " must be a bool"}
			}
			entry.Enabled = b
		} else {
			if entry.Params == nil {
				entry.Params = map[string]interface{}{}
			}
			entry.Params[field] = value
		}
		putCheckEntry(doc, tier, checkID, entry)
	}
	return nil
}

func applyGlobalOverride(g *Global, field string, value interface{}) error {
	switch field {
	case "fail_fast":
		b, ok := value.(bool)
		if !ok {
			return &ConfigError{Reason: "global.fail_fast override must be a bool"}
		}
		g.FailFast = b
	case "parallel_execution":
		b, ok := value.(bool)
		if !ok {
			return &ConfigError{Reason: "global.parallel_execution override must be a bool"}
		}
		g.ParallelExecution = b
	case "timeout_seconds":
		n, err := coerceInt(value)
		if err != nil {
			return &ConfigError{Reason: "global.timeout_seconds override must be an int"}
		}
		g.TimeoutSeconds = n
	default:
		return &ConfigError{Reason: "unknown global override field: " + field}
	}
	return nil
}

func coerceInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	default:
		return 0, errors.Errorf("cannot coerce %T to int", v)
	}
}

type tier int

const (
	tier1 tier = iota
	tier2
)

func findCheckEntry(doc *Document, id model.CheckId) (CheckEntry, tier, bool) {
	if e, ok := doc.Tier1[id]; ok {
		return e, tier1, true
	}
	if e, ok := doc.Tier2[id]; ok {
		return e, tier2, true
	}
	return CheckEntry{}, 0, false
}

func putCheckEntry(doc *Document, t tier, id model.CheckId, entry CheckEntry) {
	if t == tier1 {
		doc.Tier1[id] = entry
	} else {
		doc.Tier2[id] = entry
	}
}

// fingerprint canonicalizes doc (sorted map keys, via Go's default
// map-key-sorted JSON encoding of map[string]X) and hashes it.
func fingerprint(doc Document) (string, error) {
	canon := canonicalDoc{
		Global:   doc.Global,
		Tier1:    stringKeyed(doc.Tier1),
		Tier2:    stringKeyed(doc.Tier2),
	}
	b, err := json.Marshal(canon)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

type canonicalDoc struct {
	Global Global                        `json:"global"`
	Tier1  map[string]CheckEntry `json:"tier1"`
	Tier2  map[string]CheckEntry `json:"tier2"`
}

func stringKeyed(m map[model.CheckId]CheckEntry) map[string]CheckEntry {
	out := make(map[string]CheckEntry, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

// sortedKeys is used only by tests that need deterministic iteration
// over a checks map.
func sortedKeys(m map[model.CheckId]ResolvedCheck) []model.CheckId {
	keys := make([]model.CheckId, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
