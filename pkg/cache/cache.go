// Package cache persists conversation history.
//
// A conversation is a list of entries totally ordered by a server-assigned
// monotonic created_at. Alongside the entries each backend keeps a small
// conversations table with the topic summary and the last-message timestamp
// used for list views. Four backends share one contract: sqlite, postgres,
// memory (validates keys, stores nothing) and noop.
package cache

import (
	"context"
	"fmt"

	"github.com/lightspan-ai/gateway/pkg/api"
	"github.com/lightspan-ai/gateway/pkg/suid"
)

// Entry is one persisted turn. ReferencedDocuments stays nil when the turn
// produced none; nil and empty are distinguishable after a round trip.
type Entry struct {
	Query               string
	Response            string
	Provider            string
	Model               string
	StartedAt           string
	CompletedAt         string
	ReferencedDocuments []api.ReferencedDocument
}

// Cache is the conversation cache contract. Every operation validates the
// key pair first; skipUserCheck disables the UUID check on userID only, the
// conversation id must always parse.
type Cache interface {
	// Get returns the conversation's entries ordered by created_at ascending.
	Get(ctx context.Context, userID, convID string, skipUserCheck bool) ([]Entry, error)

	// Insert appends an entry and bumps the conversation's last-message
	// timestamp.
	Insert(ctx context.Context, userID, convID string, entry Entry, skipUserCheck bool) error

	// Delete removes the conversation's entries and metadata. It reports
	// whether anything was removed.
	Delete(ctx context.Context, userID, convID string, skipUserCheck bool) (bool, error)

	// List returns the user's conversations ordered by last message
	// descending.
	List(ctx context.Context, userID string, skipUserCheck bool) ([]api.ConversationData, error)

	// SetTopicSummary upserts the conversation's topic summary and bumps its
	// last-message timestamp.
	SetTopicSummary(ctx context.Context, userID, convID, summary string, skipUserCheck bool) error

	// Ready reports whether the backend can serve requests.
	Ready(ctx context.Context) bool

	// Close releases the backend's resources.
	Close() error
}

// InvalidKeyError reports a cache key component that is not a UUID.
type InvalidKeyError struct {
	Field string
	Value string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("invalid cache key: %s %q is not a valid UUID", e.Field, e.Value)
}

// validateKey enforces the UUID shape of the key pair.
func validateKey(userID, convID string, skipUserCheck bool) error {
	if !skipUserCheck {
		if err := validateUser(userID); err != nil {
			return err
		}
	}
	if !suid.Valid(convID) {
		return &InvalidKeyError{Field: "conversation_id", Value: convID}
	}
	return nil
}

func validateUser(userID string) error {
	if !suid.Valid(userID) {
		return &InvalidKeyError{Field: "user_id", Value: userID}
	}
	return nil
}
