package runner

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/forge/internal/extension"
	"github.com/ternarybob/forge/internal/models"
)

type fakeHandler struct {
	mu    sync.Mutex
	calls int
	fn    func(extensionID, operationID string, resourceIndex int, sink extension.LogSink) error
}

func (f *fakeHandler) Handle(ctx context.Context, extensionID string, configuration json.RawMessage, operationID string, parameter json.RawMessage, sink extension.LogSink, resourceIndex int) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(extensionID, operationID, resourceIndex, sink)
}

type resourceOutcome struct {
	status  models.Status
	content string
}

type fakeResourceStore struct {
	mu        sync.Mutex
	started   map[uuid.UUID]string
	finished  map[uuid.UUID]resourceOutcome
}

func newFakeResourceStore() *fakeResourceStore {
	return &fakeResourceStore{started: map[uuid.UUID]string{}, finished: map[uuid.UUID]resourceOutcome{}}
}

func (f *fakeResourceStore) StartResourceTask(ctx context.Context, id uuid.UUID, outputFile string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started[id] = outputFile
	return nil
}

func (f *fakeResourceStore) FinishResourceTask(ctx context.Context, id uuid.UUID, status models.Status, outputContent string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished[id] = resourceOutcome{status: status, content: outputContent}
	return nil
}

func TestExecutor_Run_SuccessConsolidatesStagedLog(t *testing.T) {
	handler := &fakeHandler{fn: func(extensionID, operationID string, resourceIndex int, sink extension.LogSink) error {
		sink(extension.LogLevelInfo, "step started")
		sink(extension.LogLevelInfo, "step finished")
		return nil
	}}
	resourceStore := newFakeResourceStore()
	executor := NewExecutor(handler, resourceStore, t.TempDir(), arbor.NewLogger())

	res := models.JobStepResourceRecord{ID: uuid.New(), ResourceName: "prod"}
	step := models.JobStepRecord{ExtensionID: "slack", OperationID: "post_message"}

	executor.Run(context.Background(), step, []models.JobStepResourceRecord{res})

	outcome, ok := resourceStore.finished[res.ID]
	if !ok {
		t.Fatal("expected the resource to have a finished outcome")
	}
	if outcome.status != models.StatusSuccess {
		t.Fatalf("expected success, got %s", outcome.status)
	}

	var entries []map[string]any
	if err := json.Unmarshal([]byte(outcome.content), &entries); err != nil {
		t.Fatalf("expected output_content to be a valid JSON array, got %q: %v", outcome.content, err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected two staged log entries, got %d", len(entries))
	}
}

func TestExecutor_Run_FailureAppendsSyntheticEntry(t *testing.T) {
	handler := &fakeHandler{fn: func(extensionID, operationID string, resourceIndex int, sink extension.LogSink) error {
		sink(extension.LogLevelInfo, "about to fail")
		return errFake
	}}
	resourceStore := newFakeResourceStore()
	executor := NewExecutor(handler, resourceStore, t.TempDir(), arbor.NewLogger())

	res := models.JobStepResourceRecord{ID: uuid.New()}
	executor.Run(context.Background(), models.JobStepRecord{}, []models.JobStepResourceRecord{res})

	outcome := resourceStore.finished[res.ID]
	if outcome.status != models.StatusFailure {
		t.Fatalf("expected failure, got %s", outcome.status)
	}

	var entries []map[string]any
	if err := json.Unmarshal([]byte(outcome.content), &entries); err != nil {
		t.Fatalf("invalid output_content: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected the staged entry plus a synthetic failure entry, got %d", len(entries))
	}
	if entries[1]["level"] != string(extension.LogLevelError) {
		t.Fatalf("expected the last entry to be the synthetic error entry, got %+v", entries[1])
	}
}

func TestExecutor_Run_FansOutConcurrently(t *testing.T) {
	handler := &fakeHandler{fn: func(extensionID, operationID string, resourceIndex int, sink extension.LogSink) error {
		return nil
	}}
	resourceStore := newFakeResourceStore()
	executor := NewExecutor(handler, resourceStore, t.TempDir(), arbor.NewLogger())

	resources := []models.JobStepResourceRecord{{ID: uuid.New()}, {ID: uuid.New()}, {ID: uuid.New()}}
	executor.Run(context.Background(), models.JobStepRecord{}, resources)

	if handler.calls != len(resources) {
		t.Fatalf("expected one Handle call per resource, got %d", handler.calls)
	}
	for _, r := range resources {
		if _, ok := resourceStore.finished[r.ID]; !ok {
			t.Fatalf("expected resource %s to be finished", r.ID)
		}
	}
}

var errFake = fakeErr("operation failed")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }
