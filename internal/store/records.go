package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ternarybob/forge/internal/common"
	"github.com/ternarybob/forge/internal/forgeerr"
	"github.com/ternarybob/forge/internal/models"
)

// StartRun materialises a JobRecord with every JobStepRecord and (for
// auto steps) JobStepResourceRecord pre-created in Pending, inside one
// transaction.
func (s *Store) StartRun(ctx context.Context, orgID string, jobID, environmentID uuid.UUID, actorID string, steps []PlannedStep) (uuid.UUID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: beginning start run tx: %w", err)
	}
	defer tx.Rollback(ctx)

	recordID := common.NewJobRecordID()
	if _, err := tx.Exec(ctx, `
		INSERT INTO job_record (id, org_id, job_id, environment_id, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		recordID, orgID, jobID, environmentID, models.StatusRunning, actorID); err != nil {
		return uuid.Nil, fmt.Errorf("store: inserting job record: %w", err)
	}

	for i, step := range steps {
		stepRecordID := common.NewJobStepRecordID()
		if _, err := tx.Exec(ctx, `
			INSERT INTO job_step_record (id, job_record_id, job_step_seq, kind, status,
			                             extension_id, operation_id, operation_name, operation_parameter,
			                             attachments, remark)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			stepRecordID, recordID, i, step.Kind, models.StatusPending,
			nullString(step.ExtensionID), nullString(step.OperationID), nullString(step.OperationName),
			step.OperationParameter, step.Attachments, step.Remark); err != nil {
			return uuid.Nil, fmt.Errorf("store: inserting job step record: %w", err)
		}

		for _, res := range step.Resources {
			if _, err := tx.Exec(ctx, `
				INSERT INTO job_step_resource_record (id, job_step_record_id, environment_resource_id,
				                                      resource_name, extension_configuration, status)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				common.NewJobStepResourceRecordID(), stepRecordID, res.EnvironmentResourceID,
				res.Name, res.ExtensionConfig, models.StatusPending); err != nil {
				return uuid.Nil, fmt.Errorf("store: inserting job step resource record: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("store: committing start run: %w", err)
	}

	return recordID, nil
}

// PlannedStep is the per-step input StartRun needs from the Job
// Composer's output to materialise records.
type PlannedStep struct {
	Kind               models.StepKind
	ExtensionID        string
	OperationID        string
	OperationName      string
	OperationParameter []byte
	Attachments        []byte
	Remark             string
	Resources          []PlannedResource
}

// PlannedResource is one resolved resource target for an auto step.
type PlannedResource struct {
	EnvironmentResourceID uuid.UUID
	Name                  string
	ExtensionConfig       []byte
}

// ReadJobRecord fetches one run's full hierarchical snapshot.
func (s *Store) ReadJobRecord(ctx context.Context, id uuid.UUID) (models.JobRecord, error) {
	var record models.JobRecord
	err := s.pool.QueryRow(ctx, `
		SELECT id, job_id, environment_id, status, created_by, created_at, modified_at
		FROM job_record WHERE id = $1`, id).
		Scan(&record.ID, &record.JobID, &record.EnvironmentID, &record.Status, &record.CreatedBy,
			&record.CreatedAt, &record.ModifiedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return models.JobRecord{}, forgeerr.ErrNotFound
		}
		return models.JobRecord{}, fmt.Errorf("store: reading job record %s: %w", id, err)
	}

	stepRows, err := s.pool.Query(ctx, `
		SELECT id, job_record_id, job_step_seq, kind, status, extension_id, operation_id,
		       operation_name, operation_parameter, attachments, remark, created_at, modified_at
		FROM job_step_record WHERE job_record_id = $1 ORDER BY job_step_seq`, id)
	if err != nil {
		return models.JobRecord{}, fmt.Errorf("store: reading job step records: %w", err)
	}
	defer stepRows.Close()

	for stepRows.Next() {
		var step models.JobStepRecord
		var extensionID, operationID, operationName *string
		if err := stepRows.Scan(&step.ID, &step.JobRecordID, &step.JobStepSeq, &step.Kind, &step.Status,
			&extensionID, &operationID, &operationName, &step.OperationParameter, &step.Attachments,
			&step.Remark, &step.CreatedAt, &step.ModifiedAt); err != nil {
			return models.JobRecord{}, fmt.Errorf("store: scanning job step record: %w", err)
		}
		if extensionID != nil {
			step.ExtensionID = *extensionID
		}
		if operationID != nil {
			step.OperationID = *operationID
		}
		if operationName != nil {
			step.OperationName = *operationName
		}

		resources, err := s.readResourceRecords(ctx, step.ID)
		if err != nil {
			return models.JobRecord{}, err
		}
		step.Resources = resources

		record.Steps = append(record.Steps, step)
	}

	return record, nil
}

func (s *Store) readResourceRecords(ctx context.Context, stepRecordID uuid.UUID) ([]models.JobStepResourceRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, job_step_record_id, environment_resource_id, resource_name, extension_configuration,
		       status, COALESCE(output_file, ''), COALESCE(output_content, ''), created_at, modified_at
		FROM job_step_resource_record WHERE job_step_record_id = $1`, stepRecordID)
	if err != nil {
		return nil, fmt.Errorf("store: reading job step resource records: %w", err)
	}
	defer rows.Close()

	var resources []models.JobStepResourceRecord
	for rows.Next() {
		var r models.JobStepResourceRecord
		if err := rows.Scan(&r.ID, &r.JobStepRecordID, &r.EnvironmentResourceID, &r.ResourceName,
			&r.ExtensionConfig, &r.Status, &r.OutputFile, &r.OutputContent, &r.CreatedAt, &r.ModifiedAt); err != nil {
			return nil, fmt.Errorf("store: scanning job step resource record: %w", err)
		}
		resources = append(resources, r)
	}
	return resources, nil
}

// SetJobStatus updates a run's terminal/overall status.
func (s *Store) SetJobStatus(ctx context.Context, id uuid.UUID, status models.Status) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE job_record SET status = $2, modified_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("store: updating job record status: %w", err)
	}
	return nil
}

// SetStepStatus updates one step's status.
func (s *Store) SetStepStatus(ctx context.Context, id uuid.UUID, status models.Status) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE job_step_record SET status = $2, modified_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("store: updating job step record status: %w", err)
	}
	return nil
}

// GetStepRecord fetches one step record by id (without its resources).
func (s *Store) GetStepRecord(ctx context.Context, id uuid.UUID) (models.JobStepRecord, error) {
	var step models.JobStepRecord
	var extensionID, operationID, operationName *string
	err := s.pool.QueryRow(ctx, `
		SELECT id, job_record_id, job_step_seq, kind, status, extension_id, operation_id, operation_name,
		       operation_parameter, attachments, remark, created_at, modified_at
		FROM job_step_record WHERE id = $1`, id).
		Scan(&step.ID, &step.JobRecordID, &step.JobStepSeq, &step.Kind, &step.Status,
			&extensionID, &operationID, &operationName, &step.OperationParameter, &step.Attachments,
			&step.Remark, &step.CreatedAt, &step.ModifiedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return models.JobStepRecord{}, forgeerr.ErrNotFound
		}
		return models.JobStepRecord{}, fmt.Errorf("store: reading job step record %s: %w", id, err)
	}
	if extensionID != nil {
		step.ExtensionID = *extensionID
	}
	if operationID != nil {
		step.OperationID = *operationID
	}
	if operationName != nil {
		step.OperationName = *operationName
	}
	return step, nil
}

// StartResourceTask transitions one resource record to Running and
// records its staging log file path, committing before the plugin
// call is launched so crash inspectors can see in-flight work.
func (s *Store) StartResourceTask(ctx context.Context, id uuid.UUID, outputFile string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE job_step_resource_record
		SET status = $2, output_file = $3, modified_at = NOW()
		WHERE id = $1`, id, models.StatusRunning, outputFile)
	if err != nil {
		return fmt.Errorf("store: starting resource task: %w", err)
	}
	return nil
}

// FinishResourceTask consolidates a resource task's staged log into
// output_content and records its terminal status.
func (s *Store) FinishResourceTask(ctx context.Context, id uuid.UUID, status models.Status, outputContent string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE job_step_resource_record
		SET status = $2, output_file = NULL, output_content = $3, modified_at = NOW()
		WHERE id = $1`, id, status, outputContent)
	if err != nil {
		return fmt.Errorf("store: finishing resource task: %w", err)
	}
	return nil
}

// ListStepResourceRecords returns every resource record for a step,
// used by the Step Executor to fan out and by status aggregation.
func (s *Store) ListStepResourceRecords(ctx context.Context, stepRecordID uuid.UUID) ([]models.JobStepResourceRecord, error) {
	return s.readResourceRecords(ctx, stepRecordID)
}

// RecoverInterrupted marks as Failure every run left Running that has
// no manual step in Running status, together with its non-terminal
// steps and resource records; each such resource record's
// output_content is replaced by a single synthetic error entry. Runs
// with a manual step in Running status are left alone so a later
// ContinueRun can resume them.
func (s *Store) RecoverInterrupted(ctx context.Context) (int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM job_record WHERE status = $1`, models.StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("store: listing running job records: %w", err)
	}

	var runningIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("store: scanning running job record id: %w", err)
		}
		runningIDs = append(runningIDs, id)
	}
	rows.Close()

	recovered := 0
	for _, recordID := range runningIDs {
		record, err := s.ReadJobRecord(ctx, recordID)
		if err != nil {
			return recovered, err
		}

		parkedOnManual := false
		for _, step := range record.Steps {
			if step.Kind == models.StepKindManual && step.Status == models.StatusRunning {
				parkedOnManual = true
				break
			}
		}
		if parkedOnManual {
			continue
		}

		if err := s.failInterrupted(ctx, record); err != nil {
			return recovered, err
		}
		recovered++
	}

	return recovered, nil
}

func (s *Store) failInterrupted(ctx context.Context, record models.JobRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: beginning recovery tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, step := range record.Steps {
		if step.Status.IsTerminal() {
			continue
		}
		if _, err := tx.Exec(ctx, `
			UPDATE job_step_record SET status = $2, modified_at = NOW() WHERE id = $1`,
			step.ID, models.StatusFailure); err != nil {
			return fmt.Errorf("store: failing interrupted step record: %w", err)
		}
		for _, res := range step.Resources {
			if res.Status.IsTerminal() {
				continue
			}
			content := `[{"level":"error","content":"interrupted by process restart"}]`
			if _, err := tx.Exec(ctx, `
				UPDATE job_step_resource_record
				SET status = $2, output_file = NULL, output_content = $3, modified_at = NOW()
				WHERE id = $1`, res.ID, models.StatusFailure, content); err != nil {
				return fmt.Errorf("store: failing interrupted resource record: %w", err)
			}
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE job_record SET status = $2, modified_at = NOW() WHERE id = $1`,
		record.ID, models.StatusFailure); err != nil {
		return fmt.Errorf("store: failing interrupted job record: %w", err)
	}

	return tx.Commit(ctx)
}
