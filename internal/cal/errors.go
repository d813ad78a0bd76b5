package cal

import (
	stderrors "errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/juju/errors"
)

// The CAL failure taxonomy (spec §4.1) is built on github.com/juju/errors'
// typed constructors, the way the teacher classifies provider failures --
// e.g. provider/gce/google/conn_network.go's errors.IsNotFound/
// errors.Annotate, environs/config.go's errors.NewNotFound, and
// state/application.go's errors.NewQuotaLimitExceeded. Resource/scope
// context travels in the annotated message rather than as bespoke
// struct fields, since juju/errors' New*/Is* pairs are opaque outside
// the errors package itself.

// NewNotFoundError reports that the provider returned 404 for resource.
// cause may be nil when no underlying error is available.
func NewNotFoundError(cause error, resource string) error {
	return errors.NewNotFound(cause, fmt.Sprintf("resource %q not found", resource))
}

func IsNotFound(err error) bool { return errors.IsNotFound(err) }

// NewForbiddenError reports that the provider returned 401/403 for scope.
func NewForbiddenError(cause error, scope string) error {
	return errors.NewForbidden(cause, fmt.Sprintf("access denied at scope %q", scope))
}

func IsForbidden(err error) bool { return errors.IsForbidden(err) }

// NewThrottledError reports that the provider returned 429 after
// retries were exhausted. Mapped onto juju/errors' QuotaLimitExceeded
// kind, which state/application.go and api/common/unitstate.go already
// use for "the provider says slow down."
func NewThrottledError(cause error) error {
	return errors.NewQuotaLimitExceeded(cause, "request was throttled")
}

func IsThrottled(err error) bool { return errors.IsQuotaLimitExceeded(err) }

// NewTransientError reports that the provider returned a 5xx after
// retries were exhausted. Mapped onto juju/errors' NotYetAvailable
// kind, which apiserver/charms.go uses for the same "try again later"
// semantics as a transient 5xx.
func NewTransientError(cause error) error {
	return errors.NewNotYetAvailable(cause, "provider reported a transient failure")
}

func IsTransient(err error) bool { return errors.IsNotYetAvailable(err) }

// NewMalformedError reports that the provider's response violated the
// expected schema. Mapped onto juju/errors' NotValid kind.
func NewMalformedError(cause error, reason string) error {
	return errors.NewNotValid(cause, fmt.Sprintf("malformed response: %s", reason))
}

func IsMalformed(err error) bool { return errors.IsNotValid(err) }

// NetworkError means a raw transport failure (dial, DNS, i/o timeout)
// survived retries. juju/errors has no fixed kind for a bare transport
// failure the way it does for NotFound/Forbidden/QuotaLimitExceeded/
// NotYetAvailable/NotValid above -- none of its documented kinds name
// "the connection itself failed" -- so this one stays a distinct type,
// unwrapped through the same stdlib-compatible chain juju/errors' own
// wrapped errors support.
type NetworkError struct{ Cause error }

func (e *NetworkError) Error() string { return fmt.Sprintf("network error: %v", e.Cause) }
func (e *NetworkError) Unwrap() error { return e.Cause }

func IsNetwork(err error) bool {
	var e *NetworkError
	return stderrors.As(err, &e)
}

// RequestID extracts the provider's request-id from an error, if the
// underlying azcore.ResponseError carried one (its response's
// x-ms-request-id header). Returns "" otherwise.
func RequestID(err error) string {
	var respErr *azcore.ResponseError
	if stderrors.As(err, &respErr) && respErr.RawResponse != nil {
		return respErr.RawResponse.Header.Get("x-ms-request-id")
	}
	return ""
}
