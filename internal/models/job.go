package models

import (
	"encoding/json"

	"github.com/google/uuid"
)

// StepKind distinguishes an automatically dispatched step from a
// human confirmation gate.
type StepKind string

const (
	StepKindAuto   StepKind = "auto"
	StepKindManual StepKind = "manual"
)

// Job is a named, reusable workflow: an ordered sequence of steps
// written against one EnvironmentSchema.
type Job struct {
	ID                  uuid.UUID `json:"id"`
	EnvironmentSchemaID uuid.UUID `json:"environment_schema_id"`
	Name                string    `json:"name"`
	Remark              string    `json:"remark,omitempty"`
	CreatedBy           string    `json:"created_by,omitempty"`
	ModifiedBy          string    `json:"modified_by,omitempty"`
	Steps               []JobStep `json:"steps"`
}

// JobStep is one step of a Job, in the order given by Seq.
//
// For StepKindAuto: SchemaResourceID, OperationID, OperationName, and
// OperationParameter are populated, and OperationParameter must
// validate against the extension's declared parameter schema for
// OperationID before the job can be saved.
//
// For StepKindManual: Attachments and Remark may be populated;
// everything else is the zero value.
type JobStep struct {
	ID                 uuid.UUID       `json:"id"`
	JobID              uuid.UUID       `json:"job_id"`
	Seq                int             `json:"seq"`
	Kind               StepKind        `json:"kind"`
	SchemaResourceID   uuid.UUID       `json:"schema_resource_id,omitempty"`
	OperationID        string          `json:"operation_id,omitempty"`
	OperationName      string          `json:"operation_name,omitempty"`
	OperationParameter json.RawMessage `json:"operation_parameter,omitempty"`
	Attachments        json.RawMessage `json:"attachments,omitempty"`
	Remark             string          `json:"remark,omitempty"`
}

// Identity implements the identity function the Aggregate Diff Engine
// needs to reconcile a desired step list against the persisted one.
func (s JobStep) Identity() (uuid.UUID, bool) {
	return s.ID, s.ID != uuid.Nil
}
