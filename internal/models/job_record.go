package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobRecord is one execution of a Job against one Environment. It
// owns an ordered list of JobStepRecords materialised at run-start.
type JobRecord struct {
	ID            uuid.UUID `json:"id"`
	JobID         uuid.UUID `json:"job_id"`
	EnvironmentID uuid.UUID `json:"environment_id"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	ModifiedAt    time.Time `json:"modified_at"`
	CreatedBy     string    `json:"created_by,omitempty"`

	Steps []JobStepRecord `json:"steps,omitempty"`
}

// DeriveStatus computes this run's status from its step records'
// statuses, per the invariant: Running while any step is
// Pending/Running; Failure if any step is Failure; else Success.
func (r JobRecord) DeriveStatus() Status {
	sawFailure := false
	for _, step := range r.Steps {
		if !step.Status.IsTerminal() {
			return StatusRunning
		}
		if step.Status == StatusFailure {
			sawFailure = true
		}
	}
	if sawFailure {
		return StatusFailure
	}
	return StatusSuccess
}

// JobStepRecord is a snapshot of one JobStep at run-start, plus its
// own execution status. Operation identity and parameters are copied
// verbatim from the Job at StartRun time so a later edit to the job
// definition does not retroactively change run history.
type JobStepRecord struct {
	ID          uuid.UUID `json:"id"`
	JobRecordID uuid.UUID `json:"job_record_id"`
	JobStepSeq  int       `json:"job_step_seq"`
	Kind        StepKind  `json:"kind"`
	Status      Status    `json:"status"`

	ExtensionID        string          `json:"extension_id,omitempty"`
	OperationID        string          `json:"operation_id,omitempty"`
	OperationName      string          `json:"operation_name,omitempty"`
	OperationParameter json.RawMessage `json:"operation_parameter,omitempty"`

	Attachments json.RawMessage `json:"attachments,omitempty"`
	Remark      string          `json:"remark,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`

	Resources []JobStepResourceRecord `json:"resources,omitempty"`
}

// DeriveStatus computes an auto step's status from its resource
// records: Success iff all children are Success, Failure iff any
// child is Failure and none are still running, Running otherwise.
// Manual steps have no children and keep their own status as-is.
func (s JobStepRecord) DeriveStatus() Status {
	if s.Kind == StepKindManual {
		return s.Status
	}

	sawFailure := false
	for _, r := range s.Resources {
		if !r.Status.IsTerminal() {
			return StatusRunning
		}
		if r.Status == StatusFailure {
			sawFailure = true
		}
	}
	if sawFailure {
		return StatusFailure
	}
	return StatusSuccess
}

// JobStepResourceRecord is the execution of one auto step against one
// concrete EnvironmentResource. OutputFile names a staging log file
// while the resource task is Running; once terminal, OutputContent
// holds the consolidated JSON-array log and OutputFile is cleared.
type JobStepResourceRecord struct {
	ID                    uuid.UUID `json:"id"`
	JobStepRecordID       uuid.UUID `json:"job_step_record_id"`
	EnvironmentResourceID uuid.UUID `json:"environment_resource_id"`
	ResourceName          string    `json:"resource_name"`
	ExtensionConfig       json.RawMessage `json:"extension_configuration"`
	Status                Status    `json:"status"`
	OutputFile            string    `json:"output_file,omitempty"`
	OutputContent         string    `json:"output_content,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}
