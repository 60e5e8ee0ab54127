package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/islamelhosary/HistoFlow/pkg/config"
	"github.com/islamelhosary/HistoFlow/pkg/models"
	"github.com/islamelhosary/HistoFlow/pkg/storage"
	"github.com/pkg/errors"
)

// ErrNotReady signals a result read on a task that has not reached a
// terminal status yet.
var ErrNotReady = errors.New("task is still running")

// PipelineService ties submission, execution and status reads together.
// Submission validates synchronously, persists a queued record, and hands
// the task to the worker pool; everything after that is observable only by
// polling the store.
type PipelineService struct {
	store  storage.Store
	pool   *WorkerPool
	logger Logger
}

func NewPipelineService(ctx context.Context, store storage.Store, registry *Registry, logger Logger, workers int) *PipelineService {
	executor := NewExecutor(registry, logger)
	pool := NewWorkerPool(ctx, store, executor, logger)
	pool.Start(workers)
	return &PipelineService{
		store:  store,
		pool:   pool,
		logger: logger,
	}
}

// Stop drains the worker pool.
func (s *PipelineService) Stop() {
	s.pool.Stop()
}

// Submit merges and validates the configuration, persists the initial
// queued record and enqueues the run. A *config.ValidationError means no
// task was created. A store failure on the initial write fails the
// submission as well.
func (s *PipelineService) Submit(ctx context.Context, base config.Pipeline, overrides config.Overrides) (string, error) {
	merged := config.Merge(base, overrides)
	if err := merged.Validate(); err != nil {
		return "", err
	}

	snapshot, err := json.Marshal(merged)
	if err != nil {
		return "", errors.Wrap(err, "failed to snapshot pipeline config")
	}

	taskID := uuid.New().String()
	record := models.TaskRecord{
		TaskID:         taskID,
		Status:         models.QueuedTaskStatus,
		StartTime:      time.Now(),
		PipelineConfig: snapshot,
	}
	if err := s.store.PutTask(ctx, record); err != nil {
		s.logger.Errorf("Failed to store initial status for task %s: %v", taskID, err)
		return "", errors.Wrap(err, "failed to initialize task")
	}

	s.pool.Submit(record, merged)
	s.logger.Infof("Created new pipeline task: %s", taskID)
	return taskID, nil
}

// GetTask returns the current record for a task id.
func (s *PipelineService) GetTask(ctx context.Context, taskID string) (models.TaskRecord, error) {
	return s.store.GetTask(ctx, taskID)
}

// GetResult returns the full record only once the task is terminal;
// ErrNotReady otherwise, never a partial record.
func (s *PipelineService) GetResult(ctx context.Context, taskID string) (models.TaskRecord, error) {
	record, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return models.TaskRecord{}, err
	}
	if !record.Status.Terminal() {
		return models.TaskRecord{}, ErrNotReady
	}
	return record, nil
}

// ListTasks returns all known task identifiers. The set may be growing
// concurrently; enumeration is eventually consistent, not transactional.
func (s *PipelineService) ListTasks(ctx context.Context) ([]string, error) {
	return s.store.ListTaskIDs(ctx)
}

// Health reports store reachability.
func (s *PipelineService) Health(ctx context.Context) error {
	return s.store.Ping(ctx)
}
