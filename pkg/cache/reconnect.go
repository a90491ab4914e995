package cache

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lightspan-ai/gateway/pkg/api"
)

// Reconnecting retries an operation once after re-establishing the
// connection. database/sql already replaces bad connections inside the pool;
// this wrapper covers the window where the whole pool went stale, for
// example after a postgres failover.
type Reconnecting struct {
	inner Cache
}

// NewReconnecting wraps a cache with single-retry reconnection.
func NewReconnecting(inner Cache) *Reconnecting {
	return &Reconnecting{inner: inner}
}

// retry reruns op once when the first attempt failed and the backend reports
// ready again afterwards. Key validation errors are never retried.
func (r *Reconnecting) retry(ctx context.Context, op func() error) error {
	err := op()
	if err == nil {
		return nil
	}
	var invalid *InvalidKeyError
	if errors.As(err, &invalid) {
		return err
	}
	if !r.inner.Ready(ctx) {
		return err
	}
	slog.Warn("Conversation cache operation failed, retrying after reconnect", "error", err)
	return op()
}

// Get implements Cache.
func (r *Reconnecting) Get(ctx context.Context, userID, convID string, skipUserCheck bool) ([]Entry, error) {
	var out []Entry
	err := r.retry(ctx, func() error {
		var opErr error
		out, opErr = r.inner.Get(ctx, userID, convID, skipUserCheck)
		return opErr
	})
	return out, err
}

// Insert implements Cache.
func (r *Reconnecting) Insert(ctx context.Context, userID, convID string, entry Entry, skipUserCheck bool) error {
	return r.retry(ctx, func() error {
		return r.inner.Insert(ctx, userID, convID, entry, skipUserCheck)
	})
}

// Delete implements Cache.
func (r *Reconnecting) Delete(ctx context.Context, userID, convID string, skipUserCheck bool) (bool, error) {
	var removed bool
	err := r.retry(ctx, func() error {
		var opErr error
		removed, opErr = r.inner.Delete(ctx, userID, convID, skipUserCheck)
		return opErr
	})
	return removed, err
}

// List implements Cache.
func (r *Reconnecting) List(ctx context.Context, userID string, skipUserCheck bool) ([]api.ConversationData, error) {
	var out []api.ConversationData
	err := r.retry(ctx, func() error {
		var opErr error
		out, opErr = r.inner.List(ctx, userID, skipUserCheck)
		return opErr
	})
	return out, err
}

// SetTopicSummary implements Cache.
func (r *Reconnecting) SetTopicSummary(ctx context.Context, userID, convID, summary string, skipUserCheck bool) error {
	return r.retry(ctx, func() error {
		return r.inner.SetTopicSummary(ctx, userID, convID, summary, skipUserCheck)
	})
}

// Ready implements Cache.
func (r *Reconnecting) Ready(ctx context.Context) bool { return r.inner.Ready(ctx) }

// Close implements Cache.
func (r *Reconnecting) Close() error { return r.inner.Close() }
