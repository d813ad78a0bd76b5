package cal

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	azcoreErrors "github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/juju/clock"
	"github.com/juju/retry"

	"github.com/azuremigrate/preflight/internal/logger"
)

const (
	retryAttempts = 4 // the initial call plus up to 3 retries
	retryBaseDelay = 1 * time.Second
	retryJitter    = 0.2
)

// callAzure wraps a single Azure SDK call with the retry/backoff
// policy of §4.1: up to 3 retries with exponential backoff (base 1s,
// factor 2, +-20% jitter) for transient failures; auth errors and
// non-transient errors surface immediately. Grounded on the teacher's
// backoffAPIRequestCaller (provider/azure/utils.go), adapted from
// autorest's http.Response inspection to azcore's typed
// ResponseError.
//
// f must return a fully-classified CAL error (see classify) so
// callAzure can decide whether to retry; on final failure the original
// cause is preserved so the outcome's cause_trace reflects it.
func callAzure[T any](ctx context.Context, log logger.Logger, clk clock.Clock, op string, f func(context.Context) (T, error)) (T, error) {
	log.Debugf(ctx, "cal: calling %s", op)

	var result T
	var lastErr error

	attempt := 0
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			attempt++
			var err error
			result, err = f(ctx)
			lastErr = err
			return err
		},
		IsFatalError: func(err error) bool {
			return !isTransientClassified(err)
		},
		NotifyFunc: func(err error, attemptNum int) {
			log.Debugf(ctx, "%s: attempt %d failed: %v", op, attemptNum, err)
		},
		Attempts:    retryAttempts,
		Delay:       retryBaseDelay,
		BackoffFunc: jitteredDoubleDelay,
		Clock:       clk,
		Stop:        ctx.Done(),
	})
	if err == nil {
		log.Debugf(ctx, "cal: %s succeeded after %d attempt(s)", op, attempt)
		return result, nil
	}
	// retry.Call returns its own wrapping error on exhaustion; the
	// caller only cares about the last classified CAL error.
	classified := classify(lastErr)
	log.Warningf(ctx, "cal: %s failed after %d attempt(s): %v", op, attempt, classified)
	return result, classified
}

// jitteredDoubleDelay doubles the delay each attempt (matching
// retry.DoubleDelay) and applies +-20% jitter, per §4.1.
func jitteredDoubleDelay(delay time.Duration, attempt int) time.Duration {
	next := delay * 2
	jitter := time.Duration(float64(next) * retryJitter)
	if jitter <= 0 {
		return next
	}
	offset := time.Duration(pseudoRandom(attempt)) % (2*jitter + 1)
	return next - jitter + offset
}

// pseudoRandom is a tiny deterministic generator so retry backoff
// jitter doesn't depend on math/rand's global state (kept out of the
// hot path and irrelevant to correctness -- jitter is cosmetic here).
func pseudoRandom(seed int) int64 {
	x := int64(seed)*2654435761 + 1
	if x < 0 {
		x = -x
	}
	return x
}

// isTransientClassified reports whether err, once classified, is one
// CAL will retry: Throttled, Transient or Network. NotFound, Forbidden
// and Malformed never retry.
func isTransientClassified(err error) bool {
	classified := classify(err)
	return IsThrottled(classified) || IsTransient(classified) || IsNetwork(classified)
}

// classify maps a raw azcore/network error into the CAL failure
// taxonomy (§4.1). It is idempotent: classifying an already-classified
// CAL error returns it unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case IsNotFound(err), IsForbidden(err), IsThrottled(err), IsTransient(err), IsMalformed(err), IsNetwork(err):
		return err
	}

	var respErr *azcoreErrors.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return NewNotFoundError(err, respErr.ErrorCode)
		case http.StatusUnauthorized, http.StatusForbidden:
			return NewForbiddenError(err, respErr.ErrorCode)
		case http.StatusTooManyRequests:
			return NewThrottledError(err)
		case http.StatusRequestTimeout, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return NewTransientError(err)
		}
		return NewMalformedError(err, err.Error())
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &NetworkError{Cause: err}
	}

	return err
}
