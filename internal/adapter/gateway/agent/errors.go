package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/outcome"
)

// classifyStatus maps an HTTP status from a model API to the error taxonomy
func classifyStatus(status int) outcome.ErrorKind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return outcome.BackendUnavailable
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return outcome.TransientFailure
	case status >= 400:
		return outcome.InvalidInput
	default:
		return outcome.TransientFailure
	}
}

// classify wraps err with a kind derived from the API status, if any
func classify(backend string, status int, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return outcome.Wrap(outcome.TransientFailure, err, backend)
	}
	if status == 0 {
		return outcome.Wrap(outcome.TransientFailure, err, backend)
	}
	return outcome.Wrap(classifyStatus(status), err, fmt.Sprintf("%s: HTTP %d", backend, status))
}
