// Package identity normalizes caller-supplied identity tokens into canonical
// UUIDs. Callers may address users, tasks, and conversations either by a
// well-formed UUID or by an arbitrary string (a username, a Telegram chat id,
// a test fixture name). Both forms must always map to the same internal
// identifier, so the derivation is pinned: RFC 4122 version-5 (SHA-1) UUIDs
// in the DNS namespace.
package identity

import (
	"strings"

	"github.com/google/uuid"
)

// Normalize returns the canonical UUID for an identity token.
// A token that already parses as a UUID passes through unchanged; anything
// else derives a stable v5 UUID, so repeated calls with the same string
// always target the same record set.
func Normalize(token string) uuid.UUID {
	token = strings.TrimSpace(token)
	if id, err := uuid.Parse(token); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(token))
}

// NormalizeString is Normalize with the string form of the result, for
// storage layers that key on TEXT columns.
func NormalizeString(token string) string {
	return Normalize(token).String()
}

// NewID generates a fresh random identifier for new records.
func NewID() string {
	return uuid.NewString()
}
