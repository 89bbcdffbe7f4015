package models

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Environment is a concrete instantiation of an EnvironmentSchema: one
// EnvironmentResource per filled slot.
type Environment struct {
	ID                  uuid.UUID `json:"id"`
	EnvironmentSchemaID uuid.UUID `json:"environment_schema_id"`
	Name                string    `json:"name"`
	Remark              string    `json:"remark,omitempty"`
	CreatedBy           string    `json:"created_by,omitempty"`
	ModifiedBy          string    `json:"modified_by,omitempty"`
}

// EnvironmentResource is a concrete resource filling one
// SchemaResource slot, configured for a specific extension instance.
type EnvironmentResource struct {
	ID               uuid.UUID       `json:"id"`
	EnvironmentID    uuid.UUID       `json:"environment_id"`
	SchemaResourceID uuid.UUID       `json:"schema_resource_id"`
	Name             string          `json:"name"`
	ExtensionID      string          `json:"extension_id"`
	ExtensionConfig  json.RawMessage `json:"extension_configuration"`
}

// Identity implements the identity function the Aggregate Diff Engine
// (see internal/diff) needs to reconcile a desired resource list
// against the persisted one.
func (r EnvironmentResource) Identity() (uuid.UUID, bool) {
	return r.ID, r.ID != uuid.Nil
}
