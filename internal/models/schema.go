package models

import "github.com/google/uuid"

// EnvironmentSchema is a named template enumerating the resource
// slots a job written against it can depend on.
type EnvironmentSchema struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// SchemaResource is one slot inside an EnvironmentSchema: an expected
// role, bound to a particular extension id. A Job's auto steps target
// a SchemaResource, not a concrete EnvironmentResource directly, so
// the same job definition can run against any Environment built from
// this schema.
type SchemaResource struct {
	ID          uuid.UUID `json:"id"`
	SchemaID    uuid.UUID `json:"schema_id"`
	Name        string    `json:"name"`
	ExtensionID string    `json:"extension_id"`
}
