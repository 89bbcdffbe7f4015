// Package extension defines the native plugin ABI (Extension,
// HostContext, LogSink), loads plugins from disk into a process-wide
// registry, and hosts operation dispatch against them.
package extension

import (
	"context"
	"encoding/json"

	"github.com/ternarybob/forge/internal/models"
)

// LogLevel mirrors the severity levels a plugin can emit through its
// LogSink.
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogSink is the callback an extension uses to emit structured log
// entries for the resource it is currently operating on. It is safe
// to call concurrently and from any goroutine.
type LogSink func(level LogLevel, message string)

// HostContext is the capability bundle an extension receives on every
// Handle call: offload of blocking work, fire-and-forget background
// work, blob download, and JSON templating.
type HostContext interface {
	// SpawnBlocking offloads a blocking closure to the bounded worker
	// pool and blocks until it completes, returning its error.
	SpawnBlocking(ctx context.Context, fn func() error) error

	// SpawnFuture schedules fn to run in the background without
	// blocking the caller. Panics inside fn are recovered and logged,
	// never crash the process.
	SpawnFuture(fn func())

	// DownloadFile fetches a blob from the object store by key into a
	// process-local temp file and returns that file's path. The caller
	// owns the file and must remove it.
	DownloadFile(ctx context.Context, key string) (string, error)

	// ModifyJSON replaces every JSON-path match in target with value.
	ModifyJSON(target, path, value string) (string, error)

	// ModifyJSONCustom replaces every JSON-path match in target with
	// the result of evaluating script against the match and
	// resourceIndex in a fresh sandbox.
	ModifyJSONCustom(ctx context.Context, target, path, script string, resourceIndex int) (string, error)
}

// Extension is the interface every native plugin must implement and
// export via a package-level `New func() extension.Extension` symbol,
// looked up with Go's plugin.Lookup.
type Extension interface {
	// Descriptor returns this extension's static identity,
	// configuration schema, and operation list. Called once at load
	// time; the result is assumed immutable for the process lifetime.
	Descriptor() models.Descriptor

	// ValidateOperationParameter performs the extension's own
	// validation of a parameter payload for one of its operations,
	// beyond the shape checking models.ValidateAttributes already
	// performs against the declared schema.
	ValidateOperationParameter(operationID string, parameter json.RawMessage) error

	// Handle executes one operation against one resource.
	// resourceIndex is this resource's zero-based position within the
	// step's resource list, passed through to templated parameters.
	Handle(ctx context.Context, configuration json.RawMessage, operationID string, parameter json.RawMessage, host HostContext, sink LogSink, resourceIndex int) error
}
