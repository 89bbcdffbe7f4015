package compose

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/ternarybob/forge/internal/forgeerr"
	"github.com/ternarybob/forge/internal/models"
)

type fakeStore struct {
	job     models.Job
	schema  models.EnvironmentSchema
	slots   []models.SchemaResource
	env     models.Environment
	res     []models.EnvironmentResource
	jobErr  error
	envErr  error
}

func (f *fakeStore) GetJob(ctx context.Context, id uuid.UUID) (models.Job, error) {
	return f.job, f.jobErr
}

func (f *fakeStore) GetEnvironmentSchema(ctx context.Context, id uuid.UUID) (models.EnvironmentSchema, []models.SchemaResource, error) {
	return f.schema, f.slots, nil
}

func (f *fakeStore) GetEnvironment(ctx context.Context, id uuid.UUID) (models.Environment, []models.EnvironmentResource, error) {
	return f.env, f.res, f.envErr
}

type fakeDescriptors struct {
	descriptor models.Descriptor
	ok         bool
}

func (f *fakeDescriptors) Descriptor(extensionID string) (models.Descriptor, bool) {
	return f.descriptor, f.ok
}

type fakeValidator struct {
	err error
}

func (f *fakeValidator) ValidateOperationParameter(extensionID, operationID string, parameter json.RawMessage) error {
	return f.err
}

func newFixture() (*fakeStore, *fakeDescriptors, uuid.UUID, uuid.UUID, uuid.UUID) {
	schemaID := uuid.New()
	slotID := uuid.New()
	envID := uuid.New()

	descriptor := models.Descriptor{
		ID:   "slack",
		Name: "Slack",
		Operations: []models.Operation{
			{
				ID:   "post_message",
				Name: "Post Message",
				ParameterSchema: []models.Attribute{
					{ID: "channel", Name: "channel", Required: true, Type: models.AttributeType{Kind: models.AttributeKindString}},
				},
			},
		},
	}

	jobStep := models.JobStep{
		ID:                 uuid.New(),
		Kind:               models.StepKindAuto,
		SchemaResourceID:   slotID,
		OperationID:        "post_message",
		OperationParameter: json.RawMessage(`{"channel":"#general"}`),
	}

	store := &fakeStore{
		job: models.Job{EnvironmentSchemaID: schemaID, Steps: []models.JobStep{jobStep}},
		schema: models.EnvironmentSchema{ID: schemaID},
		slots:  []models.SchemaResource{{ID: slotID, SchemaID: schemaID, ExtensionID: "slack"}},
		env:    models.Environment{ID: envID, EnvironmentSchemaID: schemaID},
		res: []models.EnvironmentResource{
			{ID: uuid.New(), EnvironmentID: envID, SchemaResourceID: slotID, ExtensionID: "slack", Name: "prod-slack"},
		},
	}

	return store, &fakeDescriptors{descriptor: descriptor, ok: true}, schemaID, slotID, envID
}

func TestCompose_HappyPath(t *testing.T) {
	store, descriptors, _, _, envID := newFixture()
	composer := New(store, descriptors, &fakeValidator{})

	plan, err := composer.Compose(context.Background(), uuid.New(), envID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan) != 1 {
		t.Fatalf("expected one step, got %d", len(plan))
	}
	step := plan[0]
	if step.Kind != StepAuto {
		t.Fatalf("expected an auto step")
	}
	if step.ExtensionID != "slack" || step.OperationID != "post_message" {
		t.Fatalf("unexpected step identity: %+v", step)
	}
	if len(step.Resources) != 1 || step.Resources[0].Name != "prod-slack" {
		t.Fatalf("unexpected resolved resources: %+v", step.Resources)
	}
}

func TestCompose_ManualStepPassesThrough(t *testing.T) {
	store, descriptors, _, _, envID := newFixture()
	store.job.Steps = []models.JobStep{{ID: uuid.New(), Kind: models.StepKindManual, Remark: "approve before continuing"}}

	composer := New(store, descriptors, &fakeValidator{})
	plan, err := composer.Compose(context.Background(), uuid.New(), envID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan) != 1 || plan[0].Kind != StepManual {
		t.Fatalf("expected one manual step, got %+v", plan)
	}
}

func TestCompose_EnvironmentSchemaMismatch(t *testing.T) {
	store, descriptors, _, _, envID := newFixture()
	store.env.EnvironmentSchemaID = uuid.New() // different schema entirely

	composer := New(store, descriptors, &fakeValidator{})
	_, err := composer.Compose(context.Background(), uuid.New(), envID)
	if err == nil {
		t.Fatal("expected an error when the environment belongs to a different schema")
	}
	var invalid *forgeerr.InvalidParameter
	if !errors.As(err, &invalid) {
		t.Fatalf("expected *forgeerr.InvalidParameter, got %T", err)
	}
}

func TestCompose_SlotMissing(t *testing.T) {
	store, descriptors, _, _, envID := newFixture()
	store.slots = nil

	composer := New(store, descriptors, &fakeValidator{})
	_, err := composer.Compose(context.Background(), uuid.New(), envID)
	if !errors.Is(err, forgeerr.ErrSlotMissing) {
		t.Fatalf("expected ErrSlotMissing, got %v", err)
	}
}

func TestCompose_ExtensionMissing(t *testing.T) {
	store, descriptors, _, _, envID := newFixture()
	descriptors.ok = false

	composer := New(store, descriptors, &fakeValidator{})
	_, err := composer.Compose(context.Background(), uuid.New(), envID)
	if !errors.Is(err, forgeerr.ErrExtensionMissing) {
		t.Fatalf("expected ErrExtensionMissing, got %v", err)
	}
}

func TestCompose_OperationMissing(t *testing.T) {
	store, descriptors, _, _, envID := newFixture()
	store.job.Steps[0].OperationID = "unknown_op"

	composer := New(store, descriptors, &fakeValidator{})
	_, err := composer.Compose(context.Background(), uuid.New(), envID)
	if !errors.Is(err, forgeerr.ErrOperationMissing) {
		t.Fatalf("expected ErrOperationMissing, got %v", err)
	}
}

func TestCompose_ParameterShapeInvalid(t *testing.T) {
	store, descriptors, _, _, envID := newFixture()
	store.job.Steps[0].OperationParameter = json.RawMessage(`{}`) // missing required "channel"

	composer := New(store, descriptors, &fakeValidator{})
	_, err := composer.Compose(context.Background(), uuid.New(), envID)
	if !errors.Is(err, forgeerr.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestCompose_ExtensionOwnValidationRuns(t *testing.T) {
	store, descriptors, _, _, envID := newFixture()
	composer := New(store, descriptors, &fakeValidator{err: errors.New("channel must start with #")})

	_, err := composer.Compose(context.Background(), uuid.New(), envID)
	if !errors.Is(err, forgeerr.ErrInvalidParameter) {
		t.Fatalf("expected the extension's own validation failure to surface as ErrInvalidParameter, got %v", err)
	}
}

func TestCompose_NoMatchingResources(t *testing.T) {
	store, descriptors, _, _, envID := newFixture()
	store.res = nil

	composer := New(store, descriptors, &fakeValidator{})
	_, err := composer.Compose(context.Background(), uuid.New(), envID)
	if !errors.Is(err, forgeerr.ErrNoMatchingResources) {
		t.Fatalf("expected ErrNoMatchingResources, got %v", err)
	}
}

func TestCompose_ResourceExtensionMismatch(t *testing.T) {
	store, descriptors, _, slotID, envID := newFixture()
	store.res = []models.EnvironmentResource{
		{ID: uuid.New(), EnvironmentID: envID, SchemaResourceID: slotID, ExtensionID: "other-extension", Name: "mismatched"},
	}

	composer := New(store, descriptors, &fakeValidator{})
	_, err := composer.Compose(context.Background(), uuid.New(), envID)
	if !errors.Is(err, forgeerr.ErrExtensionMismatch) {
		t.Fatalf("expected ErrExtensionMismatch, got %v", err)
	}
}
