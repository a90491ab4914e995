package conversations

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps ownership rows in process memory. Used with the memory
// and noop cache backends.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]*UserConversation
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]*UserConversation)}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, convID string) (*UserConversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	uc, ok := m.rows[convID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *uc
	return &copied, nil
}

// RecordTurn implements Store.
func (m *MemoryStore) RecordTurn(_ context.Context, convID, userID, provider, model, topicSummary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if uc, ok := m.rows[convID]; ok {
		uc.LastUsedModel = model
		uc.LastUsedProvider = provider
		uc.LastMessageAt = now
		uc.MessageCount++
		return nil
	}
	m.rows[convID] = &UserConversation{
		ID:               convID,
		UserID:           userID,
		LastUsedModel:    model,
		LastUsedProvider: provider,
		TopicSummary:     topicSummary,
		LastMessageAt:    now,
		MessageCount:     1,
	}
	return nil
}

// SetTopicSummary implements Store.
func (m *MemoryStore) SetTopicSummary(_ context.Context, convID, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	uc, ok := m.rows[convID]
	if !ok {
		return ErrNotFound
	}
	uc.TopicSummary = summary
	uc.LastMessageAt = time.Now().UTC()
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, convID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.rows, convID)
	return nil
}

// ListForUser implements Store.
func (m *MemoryStore) ListForUser(_ context.Context, userID string) ([]UserConversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []UserConversation
	for _, uc := range m.rows {
		if uc.UserID == userID {
			out = append(out, *uc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out, nil
}
