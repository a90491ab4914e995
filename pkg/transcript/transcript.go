// Package transcript stores one JSON record per completed turn on disk.
//
// Layout: <root>/<sha256(user_id)>/<conversation_id>/<suid>.json. The user
// directory is hashed so transcripts can be collected without exposing user
// ids in the filesystem.
package transcript

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lightspan-ai/gateway/pkg/api"
	"github.com/lightspan-ai/gateway/pkg/suid"
)

// Record is one stored transcript.
type Record struct {
	Metadata      Metadata              `json:"metadata"`
	RedactedQuery string                `json:"redacted_query"`
	QueryIsValid  bool                  `json:"query_is_valid"`
	Response      string                `json:"llm_response"`
	RAGChunks     []api.RAGChunk        `json:"rag_chunks"`
	Truncated     bool                  `json:"truncated"`
	Attachments   []api.Attachment      `json:"attachments"`
	ToolCalls     []api.ToolCallSummary `json:"tool_calls"`
}

// Metadata identifies the turn a record belongs to.
type Metadata struct {
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	Timestamp      string `json:"timestamp"`
}

// Writer persists transcript records.
type Writer struct {
	root string
}

// NewWriter creates a writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{root: dir}
}

// Write stores one record. The file name is a fresh SUID; records are never
// mutated.
func (w *Writer) Write(rec Record) error {
	if rec.Metadata.Timestamp == "" {
		rec.Metadata.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	userHash := sha256.Sum256([]byte(rec.Metadata.UserID))
	dir := filepath.Join(w.root,
		hex.EncodeToString(userHash[:]),
		sanitize(rec.Metadata.ConversationID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create transcript directory: %w", err)
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}

	path := filepath.Join(dir, suid.New()+".json")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create transcript file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(raw); err != nil {
		return fmt.Errorf("failed to write transcript file: %w", err)
	}
	return nil
}

// sanitize keeps a path component inside the transcript root.
func sanitize(component string) string {
	component = strings.TrimLeft(component, "/\\")
	component = strings.ReplaceAll(component, "..", "")
	return filepath.Base(filepath.Clean(component))
}
