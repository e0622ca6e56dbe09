// Package uid issues identifiers for cycles, actions, events and requests.
package uid

import "github.com/google/uuid"

// New returns a random UUID string.
func New() string {
	return uuid.NewString()
}

// IsValid reports whether id parses as a UUID.
func IsValid(id string) bool {
	return uuid.Validate(id) == nil
}
