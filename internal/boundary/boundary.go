// Package boundary implements the transport-agnostic public surface
// (§6): StartJob, ContinueJob, ReadJobRecord, SaveJob, SaveEnvironment.
// It has no HTTP framework of its own — HTTP transport, session
// middleware, and the OAuth2/OIDC handshake are explicitly out of
// scope and are expected to sit in front of this service.
package boundary

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ternarybob/forge/internal/forgeerr"
	"github.com/ternarybob/forge/internal/models"
)

// JobStore is the subset of the persistence adapter SaveJob needs.
type JobStore interface {
	SaveJob(ctx context.Context, orgID string, job models.Job, steps []models.JobStep, actorID string) (uuid.UUID, error)
}

// EnvironmentStore is the subset of the persistence adapter
// SaveEnvironment needs.
type EnvironmentStore interface {
	GetEnvironmentSchema(ctx context.Context, id uuid.UUID) (models.EnvironmentSchema, []models.SchemaResource, error)
	SaveEnvironment(ctx context.Context, orgID string, env models.Environment, resources []models.EnvironmentResource, actorID string) (uuid.UUID, error)
}

// RecordReader is the subset of the persistence adapter ReadJobRecord
// needs.
type RecordReader interface {
	ReadJobRecord(ctx context.Context, id uuid.UUID) (models.JobRecord, error)
}

// Descriptors is the subset of the Extension Registry used to look up
// configuration/parameter schemas during save validation.
type Descriptors interface {
	Descriptor(extensionID string) (models.Descriptor, bool)
}

// Validator is the subset of the Extension Host used to run a
// plugin's own parameter/configuration validation during save.
type Validator interface {
	ValidateOperationParameter(extensionID, operationID string, parameter json.RawMessage) error
}

// Runner is the subset of the Run Coordinator the boundary delegates
// StartJob/ContinueJob to.
type Runner interface {
	StartRun(ctx context.Context, orgID string, jobID, environmentID uuid.UUID, actorID string) (uuid.UUID, error)
	ContinueRun(ctx context.Context, jobRecordID, stepRecordID uuid.UUID, success bool) error
}

// Service implements the core's transport-agnostic public operations.
type Service struct {
	jobs         JobStore
	environments EnvironmentStore
	records      RecordReader
	registry     Descriptors
	validator    Validator
	runner       Runner
}

// New builds a boundary Service wired to its collaborators.
func New(jobs JobStore, environments EnvironmentStore, records RecordReader, registry Descriptors, validator Validator, runner Runner) *Service {
	return &Service{
		jobs:         jobs,
		environments: environments,
		records:      records,
		registry:     registry,
		validator:    validator,
		runner:       runner,
	}
}

// StartJob composes jobID against environmentID and starts a new run,
// returning its record id immediately; execution continues in the
// background.
func (s *Service) StartJob(ctx context.Context, orgID string, jobID, environmentID uuid.UUID, actorID string) (uuid.UUID, error) {
	return s.runner.StartRun(ctx, orgID, jobID, environmentID, actorID)
}

// ContinueJob resolves a parked manual step, succeeding or failing it,
// and resumes or terminates the run accordingly.
func (s *Service) ContinueJob(ctx context.Context, orgID string, jobRecordID, stepRecordID uuid.UUID, success bool) error {
	return s.runner.ContinueRun(ctx, jobRecordID, stepRecordID, success)
}

// ReadJobRecord returns one run's full hierarchical snapshot.
func (s *Service) ReadJobRecord(ctx context.Context, orgID string, jobRecordID uuid.UUID) (models.JobRecord, error) {
	return s.records.ReadJobRecord(ctx, jobRecordID)
}

// SaveJob validates every auto step's operation parameter — both
// shape (against the operation's declared ParameterSchema) and the
// extension's own ValidateOperationParameter — before persisting, so
// an invalid job definition is rejected without writing anything.
// actorID is attributed to the saved row for audit purposes only; it
// carries no authorization weight here (§1: authentication is out of
// scope).
func (s *Service) SaveJob(ctx context.Context, orgID string, job models.Job, steps []models.JobStep, actorID string) (uuid.UUID, error) {
	_, slots, err := s.environments.GetEnvironmentSchema(ctx, job.EnvironmentSchemaID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("save job: reading environment schema: %w", err)
	}
	slotsByID := make(map[uuid.UUID]models.SchemaResource, len(slots))
	for _, slot := range slots {
		slotsByID[slot.ID] = slot
	}

	for _, step := range steps {
		if step.Kind != models.StepKindAuto {
			continue
		}

		slot, ok := slotsByID[step.SchemaResourceID]
		if !ok {
			return uuid.Nil, fmt.Errorf("save job: step %s: %w", step.ID, forgeerr.ErrSlotMissing)
		}

		descriptor, ok := s.registry.Descriptor(slot.ExtensionID)
		if !ok {
			return uuid.Nil, fmt.Errorf("save job: step %s: %w", step.ID, forgeerr.ErrExtensionMissing)
		}

		op, ok := descriptor.Operation(step.OperationID)
		if !ok {
			return uuid.Nil, fmt.Errorf("save job: step %s: %w", step.ID, forgeerr.ErrOperationMissing)
		}

		if err := models.ValidateAttributes(op.ParameterSchema, step.OperationParameter); err != nil {
			return uuid.Nil, fmt.Errorf("save job: step %s: %w", step.ID, &forgeerr.InvalidParameter{Detail: err.Error()})
		}

		if err := s.validator.ValidateOperationParameter(slot.ExtensionID, op.ID, step.OperationParameter); err != nil {
			return uuid.Nil, fmt.Errorf("save job: step %s: %w", step.ID, &forgeerr.InvalidParameter{Detail: err.Error()})
		}
	}

	return s.jobs.SaveJob(ctx, orgID, job, steps, actorID)
}

// SaveEnvironment validates every resource's extension id against its
// slot and its extension_configuration against that extension's
// declared configuration schema before persisting. actorID is
// attributed to the saved row for audit purposes only.
func (s *Service) SaveEnvironment(ctx context.Context, orgID string, env models.Environment, resources []models.EnvironmentResource, actorID string) (uuid.UUID, error) {
	_, slots, err := s.environments.GetEnvironmentSchema(ctx, env.EnvironmentSchemaID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("save environment: reading environment schema: %w", err)
	}
	slotsByID := make(map[uuid.UUID]models.SchemaResource, len(slots))
	for _, slot := range slots {
		slotsByID[slot.ID] = slot
	}

	for _, resource := range resources {
		slot, ok := slotsByID[resource.SchemaResourceID]
		if !ok {
			return uuid.Nil, fmt.Errorf("save environment: resource %s: %w", resource.ID, forgeerr.ErrSlotMissing)
		}
		if resource.ExtensionID != slot.ExtensionID {
			return uuid.Nil, fmt.Errorf("save environment: resource %s: extension id %q does not match slot %q: %w",
				resource.ID, resource.ExtensionID, slot.ExtensionID, forgeerr.ErrInvalidConfiguration)
		}

		descriptor, ok := s.registry.Descriptor(resource.ExtensionID)
		if !ok {
			return uuid.Nil, fmt.Errorf("save environment: resource %s: %w", resource.ID, forgeerr.ErrExtensionMissing)
		}
		if err := descriptor.ValidateConfiguration(resource.ExtensionConfig); err != nil {
			return uuid.Nil, fmt.Errorf("save environment: resource %s: %s: %w", resource.ID, err, forgeerr.ErrInvalidConfiguration)
		}
	}

	return s.environments.SaveEnvironment(ctx, orgID, env, resources, actorID)
}
