// Package quota implements token quota accounting.
//
// A request is checked against every configured limiter before the upstream
// is contacted, and every limiter is charged after a completed turn. Charges
// are never refunded; a turn that fails before consumption charges nothing.
package quota

import (
	"context"
	"fmt"
)

// Subject scopes for limiters.
const (
	ScopeUser    = "user"
	ScopeCluster = "cluster"
)

// Limiter is one quota limiter.
//
// Implementations must tolerate concurrent Consume calls on the same subject;
// the backing store is atomic at the row level. Atomicity across limiters is
// not required.
type Limiter interface {
	// Name identifies the limiter in error bodies and quota listings.
	Name() string

	// EnsureAvailable fails with a *ExceededError when the subject has no
	// quota left. Storage failures surface as ordinary errors.
	EnsureAvailable(ctx context.Context, userID string) error

	// Consume debits the subject by the turn's token usage.
	Consume(ctx context.Context, userID string, inputTokens, outputTokens int64) error

	// Available reports the subject's remaining quota.
	Available(ctx context.Context, userID string) (int64, error)
}

// ExceededError reports an exhausted quota. It maps to HTTP 429.
type ExceededError struct {
	Limiter   string
	Subject   string
	Available int64
	Needed    int64
}

func (e *ExceededError) Error() string {
	if e.Needed > 0 {
		return fmt.Sprintf("quota %q exceeded for %s: %d available, %d needed",
			e.Limiter, e.Subject, e.Available, e.Needed)
	}
	return fmt.Sprintf("quota %q exceeded for %s: %d available", e.Limiter, e.Subject, e.Available)
}

// subjectFor maps a user to the limiter's accounting subject.
func subjectFor(scope, userID string) string {
	if scope == ScopeCluster {
		return ScopeCluster
	}
	return userID
}
