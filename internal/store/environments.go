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

// GetEnvironmentSchema reads a schema and its slots.
func (s *Store) GetEnvironmentSchema(ctx context.Context, id uuid.UUID) (models.EnvironmentSchema, []models.SchemaResource, error) {
	var schema models.EnvironmentSchema
	err := s.pool.QueryRow(ctx, `SELECT id, name FROM environment_schema WHERE id = $1`, id).
		Scan(&schema.ID, &schema.Name)
	if err != nil {
		if err == pgx.ErrNoRows {
			return models.EnvironmentSchema{}, nil, fmt.Errorf("environment schema %s: %w", id, err)
		}
		return models.EnvironmentSchema{}, nil, fmt.Errorf("store: reading environment schema: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, schema_id, name, extension_id
		FROM environment_schema_resource
		WHERE schema_id = $1
		ORDER BY seq`, id)
	if err != nil {
		return models.EnvironmentSchema{}, nil, fmt.Errorf("store: reading schema resources: %w", err)
	}
	defer rows.Close()

	var slots []models.SchemaResource
	for rows.Next() {
		var r models.SchemaResource
		if err := rows.Scan(&r.ID, &r.SchemaID, &r.Name, &r.ExtensionID); err != nil {
			return models.EnvironmentSchema{}, nil, fmt.Errorf("store: scanning schema resource: %w", err)
		}
		slots = append(slots, r)
	}

	return schema, slots, nil
}

// GetEnvironment reads an environment and its resources.
func (s *Store) GetEnvironment(ctx context.Context, id uuid.UUID) (models.Environment, []models.EnvironmentResource, error) {
	var env models.Environment
	err := s.pool.QueryRow(ctx, `
		SELECT id, environment_schema_id, name, remark, created_by, modified_by
		FROM environment WHERE id = $1`, id).
		Scan(&env.ID, &env.EnvironmentSchemaID, &env.Name, &env.Remark, &env.CreatedBy, &env.ModifiedBy)
	if err != nil {
		return models.Environment{}, nil, fmt.Errorf("store: reading environment %s: %w", id, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, environment_id, schema_resource_id, name, extension_id, extension_configuration
		FROM environment_resource
		WHERE environment_id = $1`, id)
	if err != nil {
		return models.Environment{}, nil, fmt.Errorf("store: reading environment resources: %w", err)
	}
	defer rows.Close()

	var resources []models.EnvironmentResource
	for rows.Next() {
		var r models.EnvironmentResource
		if err := rows.Scan(&r.ID, &r.EnvironmentID, &r.SchemaResourceID, &r.Name, &r.ExtensionID, &r.ExtensionConfig); err != nil {
			return models.Environment{}, nil, fmt.Errorf("store: scanning environment resource: %w", err)
		}
		resources = append(resources, r)
	}

	return env, resources, nil
}

// SaveEnvironment creates or updates an environment and reconciles its
// resources against the desired list in one transaction, via the
// aggregate diff engine (C7). actorID is recorded as created_by on
// insert and modified_by on every save, audit plumbing rather than an
// authorization check.
func (s *Store) SaveEnvironment(ctx context.Context, orgID string, env models.Environment, desired []models.EnvironmentResource, actorID string) (uuid.UUID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: beginning save environment tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if env.ID == uuid.Nil {
		env.ID = common.NewEnvironmentID()
		if _, err := tx.Exec(ctx, `
			INSERT INTO environment (id, org_id, environment_schema_id, name, remark, created_by, modified_by)
			VALUES ($1, $2, $3, $4, $5, $6, $6)`,
			env.ID, orgID, env.EnvironmentSchemaID, env.Name, env.Remark, actorID); err != nil {
			return uuid.Nil, fmt.Errorf("store: inserting environment: %w", err)
		}
	} else {
		var current models.Environment
		if err := tx.QueryRow(ctx, `
			SELECT name, remark FROM environment WHERE id = $1 FOR UPDATE`, env.ID).
			Scan(&current.Name, &current.Remark); err != nil {
			return uuid.Nil, fmt.Errorf("store: locking environment: %w", err)
		}
		if environmentRowChanged(current, env) {
			if _, err := tx.Exec(ctx, `
				UPDATE environment SET name = $2, remark = $3, modified_by = $4, modified_at = NOW()
				WHERE id = $1`, env.ID, env.Name, env.Remark, actorID); err != nil {
				return uuid.Nil, fmt.Errorf("store: updating environment: %w", err)
			}
		}
	}

	var existing []models.EnvironmentResource
	rows, err := tx.Query(ctx, `
		SELECT id, environment_id, schema_resource_id, name, extension_id, extension_configuration
		FROM environment_resource WHERE environment_id = $1 FOR UPDATE`, env.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: locking environment resources: %w", err)
	}
	for rows.Next() {
		var r models.EnvironmentResource
		if err := rows.Scan(&r.ID, &r.EnvironmentID, &r.SchemaResourceID, &r.Name, &r.ExtensionID, &r.ExtensionConfig); err != nil {
			rows.Close()
			return uuid.Nil, fmt.Errorf("store: scanning environment resource: %w", err)
		}
		existing = append(existing, r)
	}
	rows.Close()

	for i := range desired {
		desired[i].EnvironmentID = env.ID
	}

	plan := diff.Reconcile(existing, desired,
		func(a, b models.EnvironmentResource) bool {
			return a.Name == b.Name && a.ExtensionID == b.ExtensionID &&
				string(a.ExtensionConfig) == string(b.ExtensionConfig)
		},
		common.NewEnvironmentResourceID,
		func(r models.EnvironmentResource, id uuid.UUID) models.EnvironmentResource {
			r.ID = id
			return r
		},
	)

	for _, r := range plan.Adds {
		if _, err := tx.Exec(ctx, `
			INSERT INTO environment_resource (id, environment_id, schema_resource_id, name, extension_id, extension_configuration)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			r.ID, env.ID, r.SchemaResourceID, r.Name, r.ExtensionID, r.ExtensionConfig); err != nil {
			return uuid.Nil, fmt.Errorf("store: inserting environment resource: %w", err)
		}
	}
	for _, r := range plan.Updates {
		if _, err := tx.Exec(ctx, `
			UPDATE environment_resource
			SET name = $2, extension_id = $3, extension_configuration = $4, modified_at = NOW()
			WHERE id = $1`,
			r.ID, r.Name, r.ExtensionID, r.ExtensionConfig); err != nil {
			return uuid.Nil, fmt.Errorf("store: updating environment resource: %w", err)
		}
	}
	for _, r := range plan.Deletes {
		if _, err := tx.Exec(ctx, `DELETE FROM environment_resource WHERE id = $1`, r.ID); err != nil {
			return uuid.Nil, fmt.Errorf("store: deleting environment resource: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("store: committing save environment: %w", err)
	}

	return env.ID, nil
}

// environmentRowChanged reports whether any of the environment row's
// own mutable columns (excluding its resources, reconciled
// separately) differ from what's persisted, so SaveEnvironment can
// elide a no-op UPDATE and leave modified_at/modified_by untouched
// when nothing actually changed.
func environmentRowChanged(current, desired models.Environment) bool {
	return current.Name != desired.Name || current.Remark != desired.Remark
}
