package core

import (
	"github.com/google/uuid"
)

// Identity names this node in logs and telemetry.
type Identity struct {
	ID string
}

// NewIdentity generates a fresh random identity.
func NewIdentity() *Identity {
	return &Identity{ID: uuid.NewString()}
}

// Short returns the first 8 characters of the identity.
func (i *Identity) Short() string {
	if len(i.ID) <= 8 {
		return i.ID
	}
	return i.ID[:8]
}
