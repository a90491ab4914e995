// Package feedback stores user feedback submissions, one JSON file each.
package feedback

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lightspan-ai/gateway/pkg/suid"
)

// Record is one stored feedback submission.
type Record struct {
	UserID         string   `json:"user_id"`
	ConversationID string   `json:"conversation_id"`
	UserQuestion   string   `json:"user_question"`
	LLMResponse    string   `json:"llm_response"`
	Sentiment      int      `json:"sentiment,omitempty"`
	UserFeedback   string   `json:"user_feedback,omitempty"`
	Categories     []string `json:"categories,omitempty"`
	Timestamp      string   `json:"timestamp"`
}

// Store persists feedback and tracks the runtime enabled flag. The flag is
// toggled over HTTP by admins, so reads and writes are guarded.
type Store struct {
	dir string

	mu      sync.RWMutex
	enabled bool
}

// NewStore creates a feedback store. enabled is the configured initial
// state.
func NewStore(dir string, enabled bool) *Store {
	return &Store{dir: dir, enabled: enabled}
}

// Enabled reports whether feedback collection is on.
func (s *Store) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// SetEnabled flips feedback collection at runtime.
func (s *Store) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

// Save writes one record under a fresh SUID.
func (s *Store) Save(rec Record) error {
	if rec.Timestamp == "" {
		rec.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create feedback directory: %w", err)
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode feedback: %w", err)
	}

	path := filepath.Join(s.dir, suid.New()+".json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write feedback file: %w", err)
	}
	return nil
}
