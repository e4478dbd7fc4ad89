package schema

import "github.com/google/uuid"

// NewID returns a new random identifier for workflows, comments, and
// execution log entries.
func NewID() string {
	return uuid.NewString()
}
