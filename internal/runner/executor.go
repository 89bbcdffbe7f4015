package runner

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/forge/internal/extension"
	"github.com/ternarybob/forge/internal/models"
)

// Handler is the subset of the Extension Host the Step Executor needs
// to dispatch one operation against one resource.
type Handler interface {
	Handle(ctx context.Context, extensionID string, configuration json.RawMessage, operationID string, parameter json.RawMessage, sink extension.LogSink, resourceIndex int) error
}

// ResourceStore is the subset of the persistence adapter the Step
// Executor needs to stage and consolidate a resource task's log.
type ResourceStore interface {
	StartResourceTask(ctx context.Context, id uuid.UUID, outputFile string) error
	FinishResourceTask(ctx context.Context, id uuid.UUID, status models.Status, outputContent string) error
}

// Executor fans an auto step's resources out one goroutine apiece,
// streaming each resource's log into a staging file before
// consolidating it into the resource record's OutputContent.
type Executor struct {
	host          Handler
	store         ResourceStore
	logStagingDir string
	logger        arbor.ILogger
}

// NewExecutor builds a Step Executor writing staging logs under dir.
func NewExecutor(host Handler, resourceStore ResourceStore, logStagingDir string, logger arbor.ILogger) *Executor {
	return &Executor{host: host, store: resourceStore, logStagingDir: logStagingDir, logger: logger}
}

// Run dispatches step's operation against every resource concurrently
// and blocks until every resource task has produced a terminal
// record. It does not return an aggregate error: callers derive the
// step's status by re-reading the resource records, per the spec's
// "terminal status not decided until every resource task terminates."
func (e *Executor) Run(ctx context.Context, step models.JobStepRecord, resources []models.JobStepResourceRecord) {
	var g errgroup.Group

	for i, res := range resources {
		i, res := i, res
		g.Go(func() error {
			e.runOne(ctx, step, res, i)
			return nil
		})
	}

	// g.Wait's own error is always nil here: runOne never returns one,
	// it records the outcome on the resource record instead.
	_ = g.Wait()
}

type logEntry struct {
	Time    time.Time          `json:"time"`
	Level   extension.LogLevel `json:"level"`
	Content string             `json:"content"`
}

// runOne executes one resource's operation end to end: stage a log
// file, dispatch through the host, consolidate the staged log (plus a
// synthetic failure entry if the call errored) into OutputContent,
// and remove the staging file.
func (e *Executor) runOne(ctx context.Context, step models.JobStepRecord, res models.JobStepResourceRecord, resourceIndex int) {
	logPath := filepath.Join(e.logStagingDir, uuid.New().String()+".log")

	if err := os.MkdirAll(e.logStagingDir, 0o755); err != nil {
		e.logger.Error().Err(err).Str("dir", e.logStagingDir).Msg("Step executor: failed to create log staging dir")
	}

	logFile, err := os.Create(logPath)
	if err != nil {
		e.logger.Error().Err(err).Str("path", logPath).Msg("Step executor: failed to create staging log file")
		e.finish(ctx, res.ID, models.StatusFailure, wrapStaged("", err))
		return
	}

	if err := e.store.StartResourceTask(ctx, res.ID, logPath); err != nil {
		e.logger.Error().Err(err).Str("job_step_resource_record_id", res.ID.String()).Msg("Step executor: failed to mark resource running")
		logFile.Close()
		os.Remove(logPath)
		e.finish(ctx, res.ID, models.StatusFailure, wrapStaged("", err))
		return
	}

	var mu sync.Mutex
	sink := func(level extension.LogLevel, message string) {
		mu.Lock()
		defer mu.Unlock()
		entry := logEntry{Time: time.Now(), Level: level, Content: message}
		if b, err := json.Marshal(entry); err == nil {
			logFile.Write(append(b, ','))
			logFile.Sync()
		}
	}

	handleErr := e.host.Handle(ctx, step.ExtensionID, res.ExtensionConfig, step.OperationID, step.OperationParameter, sink, resourceIndex)
	logFile.Close()

	staged, readErr := os.ReadFile(logPath)
	if readErr != nil {
		e.logger.Error().Err(readErr).Str("path", logPath).Msg("Step executor: failed to read back staging log file")
	}

	status := models.StatusSuccess
	if handleErr != nil {
		status = models.StatusFailure
	}

	e.finish(ctx, res.ID, status, wrapStaged(string(staged), handleErr))
	os.Remove(logPath)
}

func (e *Executor) finish(ctx context.Context, resourceID uuid.UUID, status models.Status, content string) {
	if err := e.store.FinishResourceTask(ctx, resourceID, status, content); err != nil {
		e.logger.Error().Err(err).Str("job_step_resource_record_id", resourceID.String()).Msg("Step executor: failed to finish resource task")
	}
}

// wrapStaged turns the raw staged log content (a comma-terminated run
// of JSON objects, or empty) into a parseable JSON array, appending a
// synthetic {level:error,content:...} entry before the closing
// bracket when handleErr is non-nil.
func wrapStaged(staged string, handleErr error) string {
	body := strings.TrimSuffix(strings.TrimSpace(staged), ",")

	if handleErr == nil {
		return "[" + body + "]"
	}

	errEntry, err := json.Marshal(logEntry{Time: time.Now(), Level: extension.LogLevelError, Content: handleErr.Error()})
	if err != nil {
		return "[" + body + "]"
	}

	if body == "" {
		return "[" + string(errEntry) + "]"
	}
	return "[" + body + "," + string(errEntry) + "]"
}
