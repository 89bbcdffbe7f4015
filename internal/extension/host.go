package extension

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/forge/internal/common"
	"github.com/ternarybob/forge/internal/forgeerr"
	"github.com/ternarybob/forge/internal/workers"
)

// ObjectStore is the subset of the object-store client the host needs
// to satisfy HostContext.DownloadFile.
type ObjectStore interface {
	Download(ctx context.Context, key string) (string, error)
}

// Templater is the subset of the templating engine the host needs to
// satisfy HostContext.ModifyJSON / ModifyJSONCustom.
type Templater interface {
	Replace(target, path, valueJSON string) (string, error)
	ReplaceCustom(ctx context.Context, target, path, scriptSource string, resourceIndex int) (string, error)
}

// Host dispatches operations to loaded extensions and supplies the
// capability bundle (HostContext) each invocation receives.
type Host struct {
	registry  *Registry
	pool      *workers.Pool
	objects   ObjectStore
	templater Templater
	logger    arbor.ILogger
}

// NewHost builds a Host wired to the registry and ambient services an
// extension call may need.
func NewHost(registry *Registry, pool *workers.Pool, objects ObjectStore, templater Templater, logger arbor.ILogger) *Host {
	return &Host{
		registry:  registry,
		pool:      pool,
		objects:   objects,
		templater: templater,
		logger:    logger,
	}
}

// Handle invokes extensionID's operationID against one resource.
func (h *Host) Handle(ctx context.Context, extensionID string, configuration json.RawMessage, operationID string, parameter json.RawMessage, sink LogSink, resourceIndex int) error {
	impl, ok := h.registry.Get(extensionID)
	if !ok {
		return forgeerr.ErrPluginNotFound
	}

	hostCtx := &hostContext{host: h, resourceIndex: resourceIndex}

	if err := impl.Handle(ctx, configuration, operationID, parameter, hostCtx, sink, resourceIndex); err != nil {
		return &forgeerr.OperationFailed{Extension: extensionID, Operation: operationID, Detail: err.Error()}
	}

	return nil
}

// ValidateOperationParameter runs extensionID's own parameter
// validation for operationID. During composition it runs after the
// shape-level schema check models.ValidateAttributes performs.
func (h *Host) ValidateOperationParameter(extensionID, operationID string, parameter json.RawMessage) error {
	impl, ok := h.registry.Get(extensionID)
	if !ok {
		return forgeerr.ErrPluginNotFound
	}
	return impl.ValidateOperationParameter(operationID, parameter)
}

// hostContext is the per-call HostContext implementation handed to a
// plugin's Handle method.
type hostContext struct {
	host          *Host
	resourceIndex int
}

func (c *hostContext) SpawnBlocking(ctx context.Context, fn func() error) error {
	return c.host.pool.Submit(ctx, func(ctx context.Context) error {
		return fn()
	})
}

func (c *hostContext) SpawnFuture(fn func()) {
	common.SafeGo(c.host.logger, "extension-future", fn)
}

func (c *hostContext) DownloadFile(ctx context.Context, key string) (string, error) {
	if c.host.objects == nil {
		return "", fmt.Errorf("extension host: object store not configured")
	}
	return c.host.objects.Download(ctx, key)
}

func (c *hostContext) ModifyJSON(target, path, value string) (string, error) {
	return c.host.templater.Replace(target, path, value)
}

func (c *hostContext) ModifyJSONCustom(ctx context.Context, target, path, script string, resourceIndex int) (string, error) {
	return c.host.templater.ReplaceCustom(ctx, target, path, script, resourceIndex)
}
