// Package suid generates and validates session-unique identifiers.
//
// A SUID is an RFC 4122 version 4 UUID in canonical hyphenated form.
// Conversation IDs, agent IDs and transcript file names are all SUIDs.
package suid

import "github.com/google/uuid"

// New returns a fresh random SUID.
func New() string {
	return uuid.NewString()
}

// Valid reports whether s is a canonical hyphenated RFC 4122 UUID.
// It never panics on malformed input.
func Valid(s string) bool {
	// uuid.Parse also accepts urn: and braced forms; the wire format
	// only permits the 36-character canonical representation.
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
