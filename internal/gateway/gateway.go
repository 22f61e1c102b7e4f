package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	contractdomain "github.com/smallbiznis/metersync/internal/contract/domain"
	usagedomain "github.com/smallbiznis/metersync/internal/usage/domain"
)

// ErrorKind classifies upstream failures so callers can pick a recovery
// strategy without inspecting status codes.
type ErrorKind string

const (
	KindAuth        ErrorKind = "auth"
	KindRateLimited ErrorKind = "rate_limited"
	KindTransient   ErrorKind = "transient"
	KindNotFound    ErrorKind = "not_found"
)

// Error is a classified upstream failure.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream %s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("upstream %s: %s", e.Kind, e.Message)
}

func isKind(err error, kind ErrorKind) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind == kind
	}
	return false
}

func IsAuth(err error) bool        { return isKind(err, KindAuth) }
func IsRateLimited(err error) bool { return isKind(err, KindRateLimited) }
func IsTransient(err error) bool   { return isKind(err, KindTransient) }
func IsNotFound(err error) bool    { return isKind(err, KindNotFound) }

// Gateway talks to the third-party usage API. Implementations must not
// retry internally; classification is the caller's signal to back off.
type Gateway interface {
	FetchUsage(ctx context.Context, contractID string, kind usagedomain.IntervalKind, from, to time.Time) ([]usagedomain.UsageRecord, error)
	FetchContracts(ctx context.Context) ([]contractdomain.Contract, error)
}
