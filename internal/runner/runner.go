// Package runner implements the Run Coordinator (C5) and the Step
// Executor (C6): it turns a composed execution plan into a
// materialised JobRecord, drives its step-by-step state machine in a
// detached background goroutine, parks on manual steps, and resumes
// or fails them on ContinueRun.
package runner

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/forge/internal/common"
	"github.com/ternarybob/forge/internal/compose"
	"github.com/ternarybob/forge/internal/forgeerr"
	"github.com/ternarybob/forge/internal/models"
	"github.com/ternarybob/forge/internal/store"
)

// Composer is the subset of the Job Composer the coordinator needs to
// resolve a (job, environment) pair into an execution plan.
type Composer interface {
	Compose(ctx context.Context, jobID, environmentID uuid.UUID) ([]compose.Step, error)
}

// RecordStore is the subset of the persistence adapter the
// coordinator and executor need to materialise and drive a run.
type RecordStore interface {
	StartRun(ctx context.Context, orgID string, jobID, environmentID uuid.UUID, actorID string, steps []store.PlannedStep) (uuid.UUID, error)
	ReadJobRecord(ctx context.Context, id uuid.UUID) (models.JobRecord, error)
	SetJobStatus(ctx context.Context, id uuid.UUID, status models.Status) error
	SetStepStatus(ctx context.Context, id uuid.UUID, status models.Status) error
	GetStepRecord(ctx context.Context, id uuid.UUID) (models.JobStepRecord, error)
	ListStepResourceRecords(ctx context.Context, stepRecordID uuid.UUID) ([]models.JobStepResourceRecord, error)
	StartResourceTask(ctx context.Context, id uuid.UUID, outputFile string) error
	FinishResourceTask(ctx context.Context, id uuid.UUID, status models.Status, outputContent string) error
	RecoverInterrupted(ctx context.Context) (int, error)
}

// Coordinator drives job runs from creation through completion,
// parking at manual steps and resuming them on explicit continuation.
type Coordinator struct {
	composer Composer
	store    RecordStore
	executor *Executor
	logger   arbor.ILogger
}

// New builds a Coordinator wired to the composer, store, and step
// executor it needs to drive runs end to end.
func New(composer Composer, recordStore RecordStore, executor *Executor, logger arbor.ILogger) *Coordinator {
	return &Coordinator{composer: composer, store: recordStore, executor: executor, logger: logger}
}

// StartRun composes jobID against environmentID, materialises a
// JobRecord with every JobStepRecord and JobStepResourceRecord
// pre-created in Pending, and returns its id immediately. A detached
// goroutine then drives the run from its first step.
func (c *Coordinator) StartRun(ctx context.Context, orgID string, jobID, environmentID uuid.UUID, actorID string) (uuid.UUID, error) {
	plan, err := c.composer.Compose(ctx, jobID, environmentID)
	if err != nil {
		return uuid.Nil, err
	}

	planned := make([]store.PlannedStep, 0, len(plan))
	for _, step := range plan {
		planned = append(planned, toPlannedStep(step))
	}

	recordID, err := c.store.StartRun(ctx, orgID, jobID, environmentID, actorID, planned)
	if err != nil {
		return uuid.Nil, err
	}

	common.SafeGoWithContext(context.Background(), c.logger, "run-driver", func() {
		c.drive(context.Background(), recordID, 0)
	})

	return recordID, nil
}

// ContinueRun resolves the currently-parked manual step and, on
// success, resumes the driver at the next step; on failure it ends
// the run immediately. ErrAlreadyTerminal is reserved for a run that
// has as a whole already reached a terminal status; any other
// mismatch (wrong step, wrong job, or a manual step already resolved
// while the run itself is still in flight) is ErrNotParked, so a
// second immediate continue of the same step after it has already
// succeeded or failed is ErrNotParked, not ErrAlreadyTerminal.
func (c *Coordinator) ContinueRun(ctx context.Context, jobRecordID, stepRecordID uuid.UUID, success bool) error {
	record, err := c.store.ReadJobRecord(ctx, jobRecordID)
	if err != nil {
		return err
	}
	if record.Status.IsTerminal() {
		return forgeerr.ErrAlreadyTerminal
	}

	step, err := c.store.GetStepRecord(ctx, stepRecordID)
	if err != nil {
		return err
	}
	if step.JobRecordID != jobRecordID || step.Kind != models.StepKindManual || step.Status != models.StatusRunning {
		return forgeerr.ErrNotParked
	}

	next := models.StatusFailure
	if success {
		next = models.StatusSuccess
	}
	if err := c.transitionStepStatus(ctx, stepRecordID, step.Status, next); err != nil {
		return err
	}

	if !success {
		return c.transitionJobStatus(ctx, jobRecordID, record.Status, models.StatusFailure)
	}

	common.SafeGoWithContext(context.Background(), c.logger, "run-driver", func() {
		c.drive(context.Background(), jobRecordID, step.JobStepSeq+1)
	})

	return nil
}

// RecoverInterrupted is invoked once at startup to fail any run left
// Running with no parked manual step, per the crash-recovery policy
// in the spec's Open Question.
func (c *Coordinator) RecoverInterrupted(ctx context.Context) (int, error) {
	return c.store.RecoverInterrupted(ctx)
}

// drive runs the step-by-step state machine for recordID starting at
// fromSeq, committing every transition before it becomes observable.
// It returns when the run reaches a terminal status or parks on a
// manual step; it never blocks holding a goroutine across a park.
func (c *Coordinator) drive(ctx context.Context, recordID uuid.UUID, fromSeq int) {
	record, err := c.store.ReadJobRecord(ctx, recordID)
	if err != nil {
		c.logger.Error().Err(err).Str("job_record_id", recordID.String()).Msg("Run driver: failed to read job record")
		return
	}

	for _, step := range record.Steps {
		if step.JobStepSeq < fromSeq {
			continue
		}
		if step.Status.IsTerminal() {
			continue
		}

		if err := c.transitionStepStatus(ctx, step.ID, step.Status, models.StatusRunning); err != nil {
			c.logger.Error().Err(err).Str("job_step_record_id", step.ID.String()).Msg("Run driver: failed to mark step running")
			return
		}

		if step.Kind == models.StepKindManual {
			c.logger.Info().
				Str("job_record_id", recordID.String()).
				Str("job_step_record_id", step.ID.String()).
				Msg("Run driver: parked on manual step")
			return
		}

		status := c.runAutoStep(ctx, step)
		if err := c.transitionStepStatus(ctx, step.ID, models.StatusRunning, status); err != nil {
			c.logger.Error().Err(err).Str("job_step_record_id", step.ID.String()).Msg("Run driver: failed to finalize step")
			return
		}

		if status == models.StatusFailure {
			if err := c.transitionJobStatus(ctx, recordID, record.Status, models.StatusFailure); err != nil {
				c.logger.Error().Err(err).Str("job_record_id", recordID.String()).Msg("Run driver: failed to fail job record")
			}
			return
		}
	}

	if err := c.transitionJobStatus(ctx, recordID, record.Status, models.StatusSuccess); err != nil {
		c.logger.Error().Err(err).Str("job_record_id", recordID.String()).Msg("Run driver: failed to complete job record")
	}
}

// transitionStepStatus checks the step's current status can legally
// move to next before writing it, so the state machine's gate
// (models.Status.CanTransition) is enforced centrally rather than left
// implicit in each call site's own precondition checks.
func (c *Coordinator) transitionStepStatus(ctx context.Context, id uuid.UUID, current, next models.Status) error {
	if !current.CanTransition(next) {
		return fmt.Errorf("run driver: job step record %s: %s -> %s: %w", id, current, next, forgeerr.ErrIllegalTransition)
	}
	return c.store.SetStepStatus(ctx, id, next)
}

// transitionJobStatus is transitionStepStatus's counterpart for the
// job record's own status.
func (c *Coordinator) transitionJobStatus(ctx context.Context, id uuid.UUID, current, next models.Status) error {
	if !current.CanTransition(next) {
		return fmt.Errorf("run driver: job record %s: %s -> %s: %w", id, current, next, forgeerr.ErrIllegalTransition)
	}
	return c.store.SetJobStatus(ctx, id, next)
}

// runAutoStep fans the step's resources out through the Step
// Executor and derives the step's terminal status from the resulting
// resource records.
func (c *Coordinator) runAutoStep(ctx context.Context, step models.JobStepRecord) models.Status {
	resources, err := c.store.ListStepResourceRecords(ctx, step.ID)
	if err != nil {
		c.logger.Error().Err(err).Str("job_step_record_id", step.ID.String()).Msg("Run driver: failed to list resource records")
		return models.StatusFailure
	}

	c.executor.Run(ctx, step, resources)

	finished, err := c.store.ListStepResourceRecords(ctx, step.ID)
	if err != nil {
		c.logger.Error().Err(err).Str("job_step_record_id", step.ID.String()).Msg("Run driver: failed to re-read resource records")
		return models.StatusFailure
	}

	sawFailure := false
	for _, r := range finished {
		if r.Status == models.StatusFailure {
			sawFailure = true
		}
	}
	if sawFailure {
		return models.StatusFailure
	}
	return models.StatusSuccess
}

func toPlannedStep(step compose.Step) store.PlannedStep {
	if step.Kind == compose.StepManual {
		return store.PlannedStep{
			Kind:        models.StepKindManual,
			Attachments: step.JobStep.Attachments,
			Remark:      step.JobStep.Remark,
		}
	}

	resources := make([]store.PlannedResource, 0, len(step.Resources))
	for _, r := range step.Resources {
		resources = append(resources, store.PlannedResource{
			EnvironmentResourceID: r.EnvironmentResourceID,
			Name:                  r.Name,
			ExtensionConfig:       r.ExtensionConfig,
		})
	}

	return store.PlannedStep{
		Kind:               models.StepKindAuto,
		ExtensionID:        step.ExtensionID,
		OperationID:        step.OperationID,
		OperationName:      step.OperationName,
		OperationParameter: step.JobStep.OperationParameter,
		Resources:          resources,
	}
}
