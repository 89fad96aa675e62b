package models

import "github.com/google/uuid"

// IDGenerator produces identifiers for workflows, actions and executions.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator generates random UUIDv4 identifiers.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}
