package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ternarybob/forge/internal/common"
	"github.com/ternarybob/forge/internal/diff"
	"github.com/ternarybob/forge/internal/models"
)

// GetJob reads a job and its steps, ordered by seq.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (models.Job, error) {
	var job models.Job
	err := s.pool.QueryRow(ctx, `
		SELECT id, environment_schema_id, name, remark, created_by, modified_by
		FROM job WHERE id = $1`, id).
		Scan(&job.ID, &job.EnvironmentSchemaID, &job.Name, &job.Remark, &job.CreatedBy, &job.ModifiedBy)
	if err != nil {
		return models.Job{}, fmt.Errorf("store: reading job %s: %w", id, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, job_id, seq, kind, schema_resource_id, operation_id, operation_name,
		       operation_parameter, attachments, remark
		FROM job_step WHERE job_id = $1 ORDER BY seq`, id)
	if err != nil {
		return models.Job{}, fmt.Errorf("store: reading job steps: %w", err)
	}
	defer rows.Close()

	steps, err := scanJobSteps(rows)
	if err != nil {
		return models.Job{}, err
	}
	job.Steps = steps

	return job, nil
}

// SaveJob creates or updates a job and reconciles its steps against
// the desired list in one transaction, via the aggregate diff engine.
// Desired steps are renumbered densely by their position in the
// slice, regardless of any gaps a caller's Seq values may carry.
// actorID is recorded as created_by on insert and modified_by on
// every save, audit plumbing rather than an authorization check.
func (s *Store) SaveJob(ctx context.Context, orgID string, job models.Job, desiredSteps []models.JobStep, actorID string) (uuid.UUID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: beginning save job tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if job.ID == uuid.Nil {
		job.ID = common.NewJobID()
		if _, err := tx.Exec(ctx, `
			INSERT INTO job (id, org_id, environment_schema_id, name, remark, created_by, modified_by)
			VALUES ($1, $2, $3, $4, $5, $6, $6)`,
			job.ID, orgID, job.EnvironmentSchemaID, job.Name, job.Remark, actorID); err != nil {
			return uuid.Nil, fmt.Errorf("store: inserting job: %w", err)
		}
	} else {
		var current models.Job
		if err := tx.QueryRow(ctx, `
			SELECT name, remark FROM job WHERE id = $1 FOR UPDATE`, job.ID).
			Scan(&current.Name, &current.Remark); err != nil {
			return uuid.Nil, fmt.Errorf("store: locking job: %w", err)
		}
		if jobRowChanged(current, job) {
			if _, err := tx.Exec(ctx, `
				UPDATE job SET name = $2, remark = $3, modified_by = $4, modified_at = NOW() WHERE id = $1`,
				job.ID, job.Name, job.Remark, actorID); err != nil {
				return uuid.Nil, fmt.Errorf("store: updating job: %w", err)
			}
		}
	}

	rows, err := tx.Query(ctx, `
		SELECT id, job_id, seq, kind, schema_resource_id, operation_id, operation_name,
		       operation_parameter, attachments, remark
		FROM job_step WHERE job_id = $1 FOR UPDATE`, job.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: locking job steps: %w", err)
	}
	existing, err := scanJobSteps(rows)
	if err != nil {
		return uuid.Nil, err
	}

	for i := range desiredSteps {
		desiredSteps[i].JobID = job.ID
		desiredSteps[i].Seq = i
	}

	plan := diff.Reconcile(existing, desiredSteps,
		stepsEqual,
		common.NewJobStepID,
		func(step models.JobStep, id uuid.UUID) models.JobStep {
			step.ID = id
			return step
		},
	)

	for _, step := range plan.Adds {
		if err := insertJobStep(ctx, tx, step); err != nil {
			return uuid.Nil, err
		}
	}
	for _, step := range plan.Updates {
		if err := updateJobStep(ctx, tx, step); err != nil {
			return uuid.Nil, err
		}
	}
	for _, step := range plan.Deletes {
		if _, err := tx.Exec(ctx, `DELETE FROM job_step WHERE id = $1`, step.ID); err != nil {
			return uuid.Nil, fmt.Errorf("store: deleting job step: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("store: committing save job: %w", err)
	}

	return job.ID, nil
}

// jobRowChanged reports whether any of the job row's own mutable
// columns (excluding its steps, reconciled separately) differ from
// what's persisted, so SaveJob can elide a no-op UPDATE and leave
// modified_at/modified_by untouched when nothing actually changed.
func jobRowChanged(current, desired models.Job) bool {
	return current.Name != desired.Name || current.Remark != desired.Remark
}

func scanJobSteps(rows pgx.Rows) ([]models.JobStep, error) {
	defer rows.Close()

	var steps []models.JobStep
	for rows.Next() {
		var step models.JobStep
		var schemaResourceID *uuid.UUID
		var operationID, operationName *string
		if err := rows.Scan(&step.ID, &step.JobID, &step.Seq, &step.Kind, &schemaResourceID,
			&operationID, &operationName, &step.OperationParameter, &step.Attachments, &step.Remark); err != nil {
			return nil, fmt.Errorf("store: scanning job step: %w", err)
		}
		if schemaResourceID != nil {
			step.SchemaResourceID = *schemaResourceID
		}
		if operationID != nil {
			step.OperationID = *operationID
		}
		if operationName != nil {
			step.OperationName = *operationName
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func stepsEqual(a, b models.JobStep) bool {
	return a.Seq == b.Seq &&
		a.Kind == b.Kind &&
		a.SchemaResourceID == b.SchemaResourceID &&
		a.OperationID == b.OperationID &&
		a.OperationName == b.OperationName &&
		string(a.OperationParameter) == string(b.OperationParameter) &&
		string(a.Attachments) == string(b.Attachments) &&
		a.Remark == b.Remark
}

func insertJobStep(ctx context.Context, tx pgx.Tx, step models.JobStep) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO job_step (id, job_id, seq, kind, schema_resource_id, operation_id, operation_name,
		                      operation_parameter, attachments, remark)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		step.ID, step.JobID, step.Seq, step.Kind, nullUUID(step.SchemaResourceID),
		nullString(step.OperationID), nullString(step.OperationName),
		step.OperationParameter, step.Attachments, step.Remark)
	if err != nil {
		return fmt.Errorf("store: inserting job step: %w", err)
	}
	return nil
}

func updateJobStep(ctx context.Context, tx pgx.Tx, step models.JobStep) error {
	_, err := tx.Exec(ctx, `
		UPDATE job_step
		SET seq = $2, kind = $3, schema_resource_id = $4, operation_id = $5, operation_name = $6,
		    operation_parameter = $7, attachments = $8, remark = $9, modified_at = NOW()
		WHERE id = $1`,
		step.ID, step.Seq, step.Kind, nullUUID(step.SchemaResourceID),
		nullString(step.OperationID), nullString(step.OperationName),
		step.OperationParameter, step.Attachments, step.Remark)
	if err != nil {
		return fmt.Errorf("store: updating job step: %w", err)
	}
	return nil
}

func nullUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
