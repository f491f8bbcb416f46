// Package uuid wraps github.com/google/uuid with the identifier flavour used
// for every primary key: time-ordered UUIDv7 strings.
package uuid

import (
	googleuuid "github.com/google/uuid"
)

// New returns a new UUIDv7 string. Rows sort by creation time when ordered
// by id, which keeps execution history and journals index-friendly.
func New() string {
	id, err := googleuuid.NewV7()
	if err != nil {
		// The random source failed; a v4 id is still a valid key.
		return googleuuid.NewString()
	}
	return id.String()
}

// Parse validates s and returns it in canonical lower-case form.
func Parse(s string) (string, error) {
	parsed, err := googleuuid.Parse(s)
	if err != nil {
		return "", err
	}
	return parsed.String(), nil
}
