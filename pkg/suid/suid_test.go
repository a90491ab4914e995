package suid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewProducesValidSUID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := New()
		assert.True(t, Valid(id), "generated SUID should validate: %s", id)
		assert.False(t, seen[id], "SUIDs must not repeat")
		seen[id] = true
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"canonical", "123e4567-e89b-12d3-a456-426614174000", true},
		{"uppercase", "123E4567-E89B-12D3-A456-426614174000", true},
		{"empty", "", false},
		{"not_a_uuid", "not-a-uuid", false},
		{"missing_hyphens", "123e4567e89b12d3a456426614174000", false},
		{"braced", "{123e4567-e89b-12d3-a456-426614174000}", false},
		{"urn_prefix", "urn:uuid:123e4567-e89b-12d3-a456-426614174000", false},
		{"truncated", "123e4567-e89b-12d3-a456-42661417400", false},
		{"bad_hex", "123e4567-e89b-12d3-a456-42661417400g", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Valid(tt.input))
		})
	}
}
