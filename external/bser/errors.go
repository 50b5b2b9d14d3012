package bser

import (
	"fmt"

	crerr "github.com/cockroachdb/errors"
)

// Sentinel failure classes for upstream calls. Callers branch on these
// with errors.Is; the concrete error carries status and body context.
var (
	// ErrMissingCredential means no API key is configured. Requests are
	// never sent unauthenticated.
	ErrMissingCredential = crerr.New("bser: missing api credential")

	// ErrRateLimited marks 429/403 responses that survived the retry
	// ceiling.
	ErrRateLimited = crerr.New("bser: rate limited")

	// ErrTransient marks transport failures and non-2xx statuses that
	// survived the retry ceiling.
	ErrTransient = crerr.New("bser: transient upstream failure")

	// ErrUpstreamLogic marks HTTP 200 responses whose inner code field
	// reports failure. These are never retried.
	ErrUpstreamLogic = crerr.New("bser: upstream logical failure")
)

// LogicError carries the inner application code of a 200 response whose
// payload reports failure.
type LogicError struct {
	Code    int
	Message string
}

func (e *LogicError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("bser: upstream code=%d", e.Code)
	}
	return fmt.Sprintf("bser: upstream code=%d message=%s", e.Code, e.Message)
}

func (e *LogicError) Is(target error) bool {
	return target == ErrUpstreamLogic
}
