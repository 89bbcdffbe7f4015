// Package compose implements the Job Composer: it resolves a Job
// definition against an Environment, validating every auto step's
// operation parameter against its extension's declared schema and
// producing the execution plan the Run Coordinator materialises.
package compose

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ternarybob/forge/internal/forgeerr"
	"github.com/ternarybob/forge/internal/models"
)

// StepKind distinguishes an execution-plan step's dispatch mode.
type StepKind int

const (
	StepAuto StepKind = iota
	StepManual
)

// ResourceTarget is one concrete EnvironmentResource an auto step will
// dispatch against.
type ResourceTarget struct {
	EnvironmentResourceID uuid.UUID
	Name                  string
	ExtensionConfig       json.RawMessage
}

// Step is one entry of a composed execution plan.
type Step struct {
	Kind StepKind

	JobStep models.JobStep

	// Populated for StepAuto only.
	ExtensionID   string
	OperationID   string
	OperationName string
	Resources     []ResourceTarget
}

// JobReader is the subset of the persistence adapter the composer
// needs to resolve a job against an environment.
type JobReader interface {
	GetJob(ctx context.Context, id uuid.UUID) (models.Job, error)
	GetEnvironmentSchema(ctx context.Context, id uuid.UUID) (models.EnvironmentSchema, []models.SchemaResource, error)
	GetEnvironment(ctx context.Context, id uuid.UUID) (models.Environment, []models.EnvironmentResource, error)
}

// Descriptors is the subset of the Extension Registry the composer
// needs: descriptor lookup by extension id.
type Descriptors interface {
	Descriptor(extensionID string) (models.Descriptor, bool)
}

// Validator is the subset of the Extension Host the composer needs:
// the plugin's own parameter validation, run in addition to the
// shape-level schema check every auto step's parameter already gets
// against its operation's declared ParameterSchema.
type Validator interface {
	ValidateOperationParameter(extensionID, operationID string, parameter json.RawMessage) error
}

// Composer resolves Job + Environment pairs into execution plans.
type Composer struct {
	store     JobReader
	registry  Descriptors
	validator Validator
}

// New builds a Composer.
func New(store JobReader, registry Descriptors, validator Validator) *Composer {
	return &Composer{store: store, registry: registry, validator: validator}
}

// Compose resolves jobID against environmentID and returns an ordered
// execution plan, or the first validation error encountered.
func (c *Composer) Compose(ctx context.Context, jobID, environmentID uuid.UUID) ([]Step, error) {
	job, err := c.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("compose: reading job: %w", err)
	}

	_, slots, err := c.store.GetEnvironmentSchema(ctx, job.EnvironmentSchemaID)
	if err != nil {
		return nil, fmt.Errorf("compose: reading environment schema: %w", err)
	}
	slotsByID := make(map[uuid.UUID]models.SchemaResource, len(slots))
	for _, slot := range slots {
		slotsByID[slot.ID] = slot
	}

	env, resources, err := c.store.GetEnvironment(ctx, environmentID)
	if err != nil {
		return nil, fmt.Errorf("compose: reading environment: %w", err)
	}
	if env.EnvironmentSchemaID != job.EnvironmentSchemaID {
		return nil, &forgeerr.InvalidParameter{Detail: "environment does not belong to the job's environment schema"}
	}

	resourcesBySlot := make(map[uuid.UUID][]models.EnvironmentResource, len(resources))
	for _, r := range resources {
		resourcesBySlot[r.SchemaResourceID] = append(resourcesBySlot[r.SchemaResourceID], r)
	}

	plan := make([]Step, 0, len(job.Steps))
	for _, jobStep := range job.Steps {
		if jobStep.Kind == models.StepKindManual {
			plan = append(plan, Step{Kind: StepManual, JobStep: jobStep})
			continue
		}

		step, err := c.composeAutoStep(jobStep, slotsByID, resourcesBySlot)
		if err != nil {
			return nil, err
		}
		plan = append(plan, step)
	}

	return plan, nil
}

func (c *Composer) composeAutoStep(
	jobStep models.JobStep,
	slotsByID map[uuid.UUID]models.SchemaResource,
	resourcesBySlot map[uuid.UUID][]models.EnvironmentResource,
) (Step, error) {
	slot, ok := slotsByID[jobStep.SchemaResourceID]
	if !ok {
		return Step{}, fmt.Errorf("compose: step %s: %w", jobStep.ID, forgeerr.ErrSlotMissing)
	}

	descriptor, ok := c.registry.Descriptor(slot.ExtensionID)
	if !ok {
		return Step{}, fmt.Errorf("compose: step %s: %w", jobStep.ID, forgeerr.ErrExtensionMissing)
	}

	op, ok := descriptor.Operation(jobStep.OperationID)
	if !ok {
		return Step{}, fmt.Errorf("compose: step %s: %w", jobStep.ID, forgeerr.ErrOperationMissing)
	}

	if err := models.ValidateAttributes(op.ParameterSchema, jobStep.OperationParameter); err != nil {
		return Step{}, fmt.Errorf("compose: step %s: %w", jobStep.ID, &forgeerr.InvalidParameter{Detail: err.Error()})
	}

	if err := c.validator.ValidateOperationParameter(slot.ExtensionID, op.ID, jobStep.OperationParameter); err != nil {
		return Step{}, fmt.Errorf("compose: step %s: %w", jobStep.ID, &forgeerr.InvalidParameter{Detail: err.Error()})
	}

	matched := resourcesBySlot[slot.ID]
	if len(matched) == 0 {
		return Step{}, fmt.Errorf("compose: step %s: %w", jobStep.ID, forgeerr.ErrNoMatchingResources)
	}

	targets := make([]ResourceTarget, 0, len(matched))
	for _, r := range matched {
		if r.ExtensionID != slot.ExtensionID {
			return Step{}, fmt.Errorf("compose: step %s, resource %s: %w", jobStep.ID, r.ID, forgeerr.ErrExtensionMismatch)
		}
		targets = append(targets, ResourceTarget{
			EnvironmentResourceID: r.ID,
			Name:                  r.Name,
			ExtensionConfig:       r.ExtensionConfig,
		})
	}

	return Step{
		Kind:          StepAuto,
		JobStep:       jobStep,
		ExtensionID:   slot.ExtensionID,
		OperationID:   op.ID,
		OperationName: op.Name,
		Resources:     targets,
	}, nil
}
