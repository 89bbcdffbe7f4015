package common

import (
	"github.com/google/uuid"
)

// NewID generates a time-ordered 128-bit identifier (UUIDv7).
// Falls back to a random UUIDv4 only if the runtime's entropy source
// is unavailable, which uuid.NewV7 signals via a non-nil error.
func NewID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// NewEnvironmentID generates a new Environment identifier.
func NewEnvironmentID() uuid.UUID { return NewID() }

// NewEnvironmentResourceID generates a new EnvironmentResource identifier.
func NewEnvironmentResourceID() uuid.UUID { return NewID() }

// NewEnvironmentSchemaID generates a new EnvironmentSchema identifier.
func NewEnvironmentSchemaID() uuid.UUID { return NewID() }

// NewSchemaResourceID generates a new SchemaResource (slot) identifier.
func NewSchemaResourceID() uuid.UUID { return NewID() }

// NewJobID generates a new Job identifier.
func NewJobID() uuid.UUID { return NewID() }

// NewJobStepID generates a new JobStep identifier.
func NewJobStepID() uuid.UUID { return NewID() }

// NewJobRecordID generates a new JobRecord identifier.
func NewJobRecordID() uuid.UUID { return NewID() }

// NewJobStepRecordID generates a new JobStepRecord identifier.
func NewJobStepRecordID() uuid.UUID { return NewID() }

// NewJobStepResourceRecordID generates a new JobStepResourceRecord identifier.
func NewJobStepResourceRecordID() uuid.UUID { return NewID() }
