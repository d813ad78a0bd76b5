package cal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/juju/errors"

	"github.com/azuremigrate/preflight/internal/logger"
)

var migrateLog = logger.GetLogger("azpreflight.cal.migrateapi")

// migrateAPI is a hand-rolled REST client for the Azure Migrate and
// Off-Azure control planes, which (unlike compute/network/storage/
// authorization) have no typed ARM SDK in the pack. It is grounded on
// original_source/azmig_tool/clients/azure_client.py's
// AzureRestApiClient.get/list_all: build the path, attach api-version,
// GET, and follow "nextLink" until absent.
//
// It intentionally implements one API version per resource rather than
// the original's ordered fallback across several ServerSites/solutions
// API versions -- CAL surfaces a single classified failure per §4.1, and
// no layer above it retries a request against another API version.
type migrateAPI struct {
	pipeline runtime.Pipeline
}

const (
	migrateAPIBaseURL          = "https://management.azure.com"
	migrateProjectsAPIVersion  = "2020-05-01"
	discoveredMachinesAPIVer   = "2018-09-01-preview"
	offAzureServerSitesAPIVer  = "2023-06-06"
)

func newMigrateAPI(credential azcore.TokenCredential) *migrateAPI {
	authPolicy := runtime.NewBearerTokenPolicy(credential, []string{"https://management.azure.com/.default"}, nil)
	pipeline := runtime.NewPipeline("azpreflight", "1.0.0", runtime.PipelineOptions{
		PerRetry: []policy.Policy{authPolicy},
	}, nil)
	return &migrateAPI{pipeline: pipeline}
}

type migrateListEnvelope struct {
	Value    []json.RawMessage `json:"value"`
	NextLink string            `json:"nextLink"`
}

// listAll follows nextLink pagination, matching AzureRestApiClient.list_all.
func (m *migrateAPI) listAll(ctx context.Context, path string) ([]json.RawMessage, error) {
	var all []json.RawMessage
	next := path
	for next != "" {
		migrateLog.Debugf(ctx, "cal: calling GET %s", next)
		req, err := runtime.NewRequest(ctx, http.MethodGet, joinURL(next))
		if err != nil {
			return nil, errors.Trace(err)
		}
		resp, err := m.pipeline.Do(req)
		if err != nil {
			return nil, &NetworkError{Cause: err}
		}
		if err := statusToCALError(resp); err != nil {
			migrateLog.Warningf(ctx, "cal: GET %s failed: %v", next, err)
			return nil, err
		}
		var envelope migrateListEnvelope
		if err := runtime.UnmarshalAsJSON(resp, &envelope); err != nil {
			return nil, NewMalformedError(err, err.Error())
		}
		all = append(all, envelope.Value...)
		next = stripHost(envelope.NextLink)
	}
	return all, nil
}

func joinURL(pathOrURL string) string {
	if strings.HasPrefix(pathOrURL, "http") {
		return pathOrURL
	}
	return migrateAPIBaseURL + pathOrURL
}

func stripHost(link string) string {
	if link == "" {
		return ""
	}
	if !strings.HasPrefix(link, "http") {
		return link
	}
	trimmed := strings.TrimPrefix(link, migrateAPIBaseURL)
	return trimmed
}

func statusToCALError(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return NewNotFoundError(nil, resp.Request.URL.Path)
	case http.StatusUnauthorized, http.StatusForbidden:
		return NewForbiddenError(nil, resp.Request.URL.Path)
	case http.StatusTooManyRequests:
		return NewThrottledError(fmt.Errorf("status %d", resp.StatusCode))
	case http.StatusRequestTimeout, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return NewTransientError(fmt.Errorf("status %d", resp.StatusCode))
	default:
		return NewMalformedError(nil, fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}
}

type applianceEnvelope struct {
	Name       string `json:"name"`
	Properties struct {
		ApplianceType    string    `json:"applianceType"`
		LastHeartbeatUTC time.Time `json:"lastHeartBeatUtc"`
		Status           string    `json:"status"`
		HealthErrorCode  string    `json:"healthErrorCode"`
	} `json:"properties"`
}

// listAppliances fetches the Off-Azure ServerSites/appliances under a
// migrate project's resource group, per original_source's
// _try_server_sites_api approach.
func (m *migrateAPI) listAppliances(ctx context.Context, subscriptionID, rg, project string) ([]Appliance, error) {
	path := fmt.Sprintf(
		"/subscriptions/%s/resourceGroups/%s/providers/Microsoft.OffAzure/ServerSites?api-version=%s&$filter=properties/discoverySolutionId%%20eq%%20'%s'",
		subscriptionID, rg, offAzureServerSitesAPIVer, project)
	raw, err := m.listAll(ctx, path)
	if err != nil {
		return nil, err
	}
	appliances := make([]Appliance, 0, len(raw))
	for _, r := range raw {
		var env applianceEnvelope
		if err := json.Unmarshal(r, &env); err != nil {
			return nil, NewMalformedError(err, err.Error())
		}
		appliances = append(appliances, Appliance{
			Name:          env.Name,
			Kind:          normalizeApplianceKind(env.Properties.ApplianceType),
			LastHeartbeat: env.Properties.LastHeartbeatUTC,
			Health:        normalizeHealth(env.Properties.Status, env.Properties.HealthErrorCode),
		})
	}
	return appliances, nil
}

func normalizeApplianceKind(raw string) string {
	switch strings.ToLower(raw) {
	case "vmware", "hyperv", "physical", "agentless":
		return strings.ToLower(raw)
	case "hyper-v":
		return "hyperv"
	default:
		return strings.ToLower(raw)
	}
}

func normalizeHealth(status, errorCode string) string {
	if errorCode != "" {
		return "Critical"
	}
	switch strings.ToLower(status) {
	case "active", "healthy":
		return "Healthy"
	case "warning":
		return "Warning"
	case "critical", "error":
		return "Critical"
	case "":
		return "Unknown"
	default:
		return status
	}
}

type machineEnvelope struct {
	Name       string `json:"name"`
	Properties struct {
		DisplayName       string            `json:"displayName"`
		VMwareMachineFQDN string            `json:"fqdn"`
		IPAddresses       []string          `json:"ipAddresses"`
		MigrationData     []json.RawMessage `json:"migrationData"`
		DiscoveryData     []json.RawMessage `json:"discoveryData"`
	} `json:"properties"`
}

// listDiscoveredMachines fetches discovered machines from the
// migrateProjects/machines collection, matching original_source's
// list_discovered_machines (its authoritative path, not the
// Resource-Graph fallbacks it also tries).
func (m *migrateAPI) listDiscoveredMachines(ctx context.Context, subscriptionID, rg, project string) ([]DiscoveredMachine, error) {
	path := fmt.Sprintf(
		"/subscriptions/%s/resourceGroups/%s/providers/Microsoft.Migrate/migrateProjects/%s/machines?api-version=%s",
		subscriptionID, rg, project, discoveredMachinesAPIVer)
	raw, err := m.listAll(ctx, path)
	if err != nil {
		return nil, err
	}
	machines := make([]DiscoveredMachine, 0, len(raw))
	for _, r := range raw {
		var env machineEnvelope
		if err := json.Unmarshal(r, &env); err != nil {
			return nil, NewMalformedError(err, err.Error())
		}
		displayName := env.Properties.DisplayName
		if displayName == "" {
			displayName = env.Name
		}
		machines = append(machines, DiscoveredMachine{
			ID:               env.Name,
			Name:             env.Name,
			DisplayName:      displayName,
			ReplicationState: replicationStateOf(env),
			IPAddresses:      env.Properties.IPAddresses,
		})
	}
	return machines, nil
}

func replicationStateOf(env machineEnvelope) string {
	if len(env.Properties.MigrationData) > 0 {
		return "Replicating"
	}
	if len(env.Properties.DiscoveryData) > 0 {
		return "Discovered"
	}
	return "NotStarted"
}
