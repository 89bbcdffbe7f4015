package extension

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/forge/internal/models"
)

type stubExtension struct {
	descriptor models.Descriptor
}

func (s stubExtension) Descriptor() models.Descriptor { return s.descriptor }

func (s stubExtension) ValidateOperationParameter(operationID string, parameter json.RawMessage) error {
	return nil
}

func (s stubExtension) Handle(ctx context.Context, configuration json.RawMessage, operationID string, parameter json.RawMessage, host HostContext, sink LogSink, resourceIndex int) error {
	return nil
}

func TestNewRegistry_StartsEmpty(t *testing.T) {
	registry := NewRegistry(arbor.NewLogger())

	if _, ok := registry.Get("slack"); ok {
		t.Fatal("expected a brand new registry to have no extensions")
	}
	if list := registry.List(); len(list) != 0 {
		t.Fatalf("expected an empty list, got %+v", list)
	}
}

func TestRegistry_GetAndDescriptor_RoundTrip(t *testing.T) {
	registry := NewRegistry(arbor.NewLogger())
	impl := stubExtension{descriptor: models.Descriptor{ID: "slack", Name: "Slack"}}

	registry.extensions["slack"] = loadedExtension{descriptor: impl.descriptor, impl: impl}

	got, ok := registry.Get("slack")
	if !ok {
		t.Fatal("expected slack to be registered")
	}
	if got.Descriptor().ID != "slack" {
		t.Fatalf("unexpected extension returned: %+v", got.Descriptor())
	}

	descriptor, ok := registry.Descriptor("slack")
	if !ok || descriptor.Name != "Slack" {
		t.Fatalf("unexpected descriptor: %+v", descriptor)
	}
}

func TestRegistry_Get_MissingReturnsFalse(t *testing.T) {
	registry := NewRegistry(arbor.NewLogger())

	if _, ok := registry.Get("unknown"); ok {
		t.Fatal("expected Get to report false for an unregistered extension")
	}
	if _, ok := registry.Descriptor("unknown"); ok {
		t.Fatal("expected Descriptor to report false for an unregistered extension")
	}
}

func TestRegistry_List_SortedByID(t *testing.T) {
	registry := NewRegistry(arbor.NewLogger())
	registry.extensions["zeta"] = loadedExtension{descriptor: models.Descriptor{ID: "zeta"}}
	registry.extensions["alpha"] = loadedExtension{descriptor: models.Descriptor{ID: "alpha"}}
	registry.extensions["mid"] = loadedExtension{descriptor: models.Descriptor{ID: "mid"}}

	list := registry.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 descriptors, got %d", len(list))
	}
	if list[0].ID != "alpha" || list[1].ID != "mid" || list[2].ID != "zeta" {
		t.Fatalf("expected descriptors sorted by id, got %+v", list)
	}
}

func TestRegistry_Load_EmptyDirSucceeds(t *testing.T) {
	registry := NewRegistry(arbor.NewLogger())

	if err := registry.Load(t.TempDir()); err != nil {
		t.Fatalf("unexpected error loading an empty dir: %v", err)
	}
	if len(registry.List()) != 0 {
		t.Fatal("expected no extensions to be registered from an empty dir")
	}
}

func TestRegistry_Load_MissingDirLoadsNothing(t *testing.T) {
	registry := NewRegistry(arbor.NewLogger())

	err := registry.Load("/nonexistent/path/to/extensions")
	if err != nil {
		t.Fatalf("filepath.Glob does not error on a missing dir, expected nil, got %v", err)
	}
	if len(registry.List()) != 0 {
		t.Fatal("expected no extensions to be registered from a missing dir")
	}
}
