package extension

import (
	"fmt"
	"path/filepath"
	"plugin"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/forge/internal/models"
)

// Registry discovers native plugins on disk at startup and keeps them
// resident in memory for the process lifetime. It is read-only after
// Load returns; the mutex guards against a hypothetical future
// hot-reload rather than any write contention seen today.
type Registry struct {
	extensions map[string]loadedExtension
	logger     arbor.ILogger
	mu         sync.RWMutex
}

type loadedExtension struct {
	descriptor models.Descriptor
	impl       Extension
}

// NewRegistry creates an empty registry.
func NewRegistry(logger arbor.ILogger) *Registry {
	r := &Registry{
		extensions: make(map[string]loadedExtension),
		logger:     logger,
	}
	if logger != nil {
		logger.Info().Msg("Extension registry initialized")
	}
	return r
}

// Load scans dir for native shared libraries (".so"), opens each with
// Go's plugin package, looks up its `New func() extension.Extension`
// symbol, and registers the resulting extension by its descriptor id.
// A single bad plugin aborts the whole load: extension loading is a
// startup-time, fail-fast operation, not a best-effort one.
func (r *Registry) Load(dir string) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*.so"))
	if err != nil {
		return fmt.Errorf("extension registry: scanning %s: %w", dir, err)
	}

	for _, path := range matches {
		if err := r.loadOne(path); err != nil {
			return fmt.Errorf("extension registry: loading %s: %w", path, err)
		}
	}

	if r.logger != nil {
		r.logger.Info().Int("count", len(matches)).Str("dir", dir).Msg("Extensions loaded")
	}

	return nil
}

func (r *Registry) loadOne(path string) error {
	plug, err := plugin.Open(path)
	if err != nil {
		return err
	}

	sym, err := plug.Lookup("New")
	if err != nil {
		return err
	}

	factory, ok := sym.(func() Extension)
	if !ok {
		return fmt.Errorf("plugin does not export `New func() extension.Extension`")
	}

	impl := factory()
	descriptor := impl.Descriptor()
	if descriptor.ID == "" {
		return fmt.Errorf("plugin descriptor has empty id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.extensions[descriptor.ID]; exists {
		return fmt.Errorf("extension %s already registered", descriptor.ID)
	}

	r.extensions[descriptor.ID] = loadedExtension{descriptor: descriptor, impl: impl}

	if r.logger != nil {
		r.logger.Info().
			Str("extension_id", descriptor.ID).
			Str("name", descriptor.Name).
			Int("operations", len(descriptor.Operations)).
			Msg("Extension registered")
	}

	return nil
}

// Get returns the extension implementation for an id.
func (r *Registry) Get(extensionID string) (Extension, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.extensions[extensionID]
	if !ok {
		return nil, false
	}
	return entry.impl, true
}

// Descriptor returns the descriptor for an id.
func (r *Registry) Descriptor(extensionID string) (models.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.extensions[extensionID]
	if !ok {
		return models.Descriptor{}, false
	}
	return entry.descriptor, true
}

// List returns all loaded descriptors, sorted by id for deterministic
// display.
func (r *Registry) List() []models.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]models.Descriptor, 0, len(r.extensions))
	for _, entry := range r.extensions {
		descriptors = append(descriptors, entry.descriptor)
	}

	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].ID < descriptors[j].ID
	})

	return descriptors
}
