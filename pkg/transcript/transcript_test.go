package transcript

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteStoresRecordUnderHashedUser(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root)

	rec := Record{
		Metadata: Metadata{
			Provider:       "openai",
			Model:          "gpt-4",
			UserID:         "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa",
			ConversationID: "11111111-1111-4111-8111-111111111111",
		},
		RedactedQuery: "how do I restart a pod",
		QueryIsValid:  true,
		Response:      "kubectl delete pod ...",
	}
	require.NoError(t, w.Write(rec))

	hash := sha256.Sum256([]byte(rec.Metadata.UserID))
	dir := filepath.Join(root, hex.EncodeToString(hash[:]), rec.Metadata.ConversationID)
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, strings.HasSuffix(files[0].Name(), ".json"))

	raw, err := os.ReadFile(filepath.Join(dir, files[0].Name()))
	require.NoError(t, err)

	var got Record
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, rec.RedactedQuery, got.RedactedQuery)
	assert.Equal(t, rec.Response, got.Response)
	assert.NotEmpty(t, got.Metadata.Timestamp)
}

func TestWriteTwiceKeepsBothRecords(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root)

	rec := Record{Metadata: Metadata{UserID: "u", ConversationID: "c"}}
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Write(rec))

	hash := sha256.Sum256([]byte("u"))
	files, err := os.ReadDir(filepath.Join(root, hex.EncodeToString(hash[:]), "c"))
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestSanitizeBlocksTraversal(t *testing.T) {
	tests := map[string]string{
		"../../etc/passwd": "passwd",
		"/absolute":        "absolute",
		"plain":            "plain",
		"a/b":              "b",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitize(in), in)
	}
}

func TestWriteWithTraversalConversationID(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root)

	rec := Record{Metadata: Metadata{UserID: "u", ConversationID: "../../escape"}}
	require.NoError(t, w.Write(rec))

	// Nothing lands outside the root.
	_, err := os.Stat(filepath.Join(filepath.Dir(root), "escape"))
	assert.True(t, os.IsNotExist(err))
}
