package cache

import (
	"context"

	"github.com/lightspan-ai/gateway/pkg/api"
)

// NoopCache accepts everything and remembers nothing. Unlike MemoryCache it
// does not validate keys.
type NoopCache struct{}

// NewNoopCache creates a noop cache.
func NewNoopCache() *NoopCache { return &NoopCache{} }

// Get implements Cache.
func (n *NoopCache) Get(context.Context, string, string, bool) ([]Entry, error) {
	return nil, nil
}

// Insert implements Cache.
func (n *NoopCache) Insert(context.Context, string, string, Entry, bool) error {
	return nil
}

// Delete implements Cache.
func (n *NoopCache) Delete(context.Context, string, string, bool) (bool, error) {
	return false, nil
}

// List implements Cache.
func (n *NoopCache) List(context.Context, string, bool) ([]api.ConversationData, error) {
	return nil, nil
}

// SetTopicSummary implements Cache.
func (n *NoopCache) SetTopicSummary(context.Context, string, string, string, bool) error {
	return nil
}

// Ready implements Cache.
func (n *NoopCache) Ready(context.Context) bool { return true }

// Close implements Cache.
func (n *NoopCache) Close() error { return nil }
