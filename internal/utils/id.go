package utils

import "github.com/google/uuid"

// NewID returns a random UUIDv4 string.
func NewID() string {
	return uuid.NewString()
}

// NewConnID returns an identifier for a single connection. It is shorter than a
// full UUID so it reads well in log lines.
func NewConnID() string {
	id := uuid.New()
	return "c-" + id.String()[:8]
}
