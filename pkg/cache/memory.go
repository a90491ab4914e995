package cache

import (
	"context"
	"log/slog"

	"github.com/lightspan-ai/gateway/pkg/api"
)

// MemoryCache validates keys but stores nothing. It exists so a deployment
// can request the memory backend and keep the same key discipline as the
// SQL backends without persisting history.
type MemoryCache struct{}

// NewMemoryCache creates a memory cache.
func NewMemoryCache() *MemoryCache {
	slog.Warn("Conversation cache backend is memory, history will not persist")
	return &MemoryCache{}
}

// Get implements Cache.
func (m *MemoryCache) Get(_ context.Context, userID, convID string, skipUserCheck bool) ([]Entry, error) {
	if err := validateKey(userID, convID, skipUserCheck); err != nil {
		return nil, err
	}
	return nil, nil
}

// Insert implements Cache.
func (m *MemoryCache) Insert(_ context.Context, userID, convID string, _ Entry, skipUserCheck bool) error {
	return validateKey(userID, convID, skipUserCheck)
}

// Delete implements Cache.
func (m *MemoryCache) Delete(_ context.Context, userID, convID string, skipUserCheck bool) (bool, error) {
	if err := validateKey(userID, convID, skipUserCheck); err != nil {
		return false, err
	}
	return false, nil
}

// List implements Cache.
func (m *MemoryCache) List(_ context.Context, userID string, skipUserCheck bool) ([]api.ConversationData, error) {
	if !skipUserCheck {
		if err := validateUser(userID); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// SetTopicSummary implements Cache.
func (m *MemoryCache) SetTopicSummary(_ context.Context, userID, convID, _ string, skipUserCheck bool) error {
	return validateKey(userID, convID, skipUserCheck)
}

// Ready implements Cache.
func (m *MemoryCache) Ready(context.Context) bool { return true }

// Close implements Cache.
func (m *MemoryCache) Close() error { return nil }
