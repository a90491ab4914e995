// Package conversations tracks conversation ownership and last-used hints.
//
// The user_conversations table is authoritative for the ownership check: a
// conversation id maps to exactly one user. It also remembers the last model
// and provider used so a follow-up request can omit both.
package conversations

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no row exists for a conversation id.
var ErrNotFound = errors.New("conversation not found")

// UserConversation is one ownership row.
type UserConversation struct {
	ID               string
	UserID           string
	LastUsedModel    string
	LastUsedProvider string
	TopicSummary     string
	LastMessageAt    time.Time
	MessageCount     int64
}

// Store persists UserConversation rows.
type Store interface {
	// Get looks a conversation up by id. The caller compares UserID itself;
	// ownership failures must stay indistinguishable from absence at the
	// HTTP layer.
	Get(ctx context.Context, convID string) (*UserConversation, error)

	// RecordTurn creates the row on the first turn (message count 1, topic
	// summary set) or bumps the counters and last-used hints on later turns.
	RecordTurn(ctx context.Context, convID, userID, provider, model, topicSummary string) error

	// SetTopicSummary replaces the row's topic summary.
	SetTopicSummary(ctx context.Context, convID, summary string) error

	// Delete removes the row. Deleting an absent row is not an error.
	Delete(ctx context.Context, convID string) error

	// ListForUser returns the user's rows ordered by last message descending.
	ListForUser(ctx context.Context, userID string) ([]UserConversation, error)
}
