package feedback

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveWritesOneFilePerRecord(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, true)

	rec := Record{
		UserID:         "u1",
		ConversationID: "c1",
		UserQuestion:   "how do I scale a deployment",
		LLMResponse:    "kubectl scale ...",
		Sentiment:      1,
		Categories:     []string{"helpful"},
	}
	require.NoError(t, s.Save(rec))
	require.NoError(t, s.Save(rec))

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)

	raw, err := os.ReadFile(filepath.Join(dir, files[0].Name()))
	require.NoError(t, err)

	var got Record
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, rec.UserQuestion, got.UserQuestion)
	assert.NotEmpty(t, got.Timestamp)
}

func TestEnabledFlag(t *testing.T) {
	s := NewStore(t.TempDir(), true)
	assert.True(t, s.Enabled())

	s.SetEnabled(false)
	assert.False(t, s.Enabled())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.SetEnabled(true)
		}()
		go func() {
			defer wg.Done()
			_ = s.Enabled()
		}()
	}
	wg.Wait()
	assert.True(t, s.Enabled())
}
