package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/islamelhosary/HistoFlow/pkg/config"
	"github.com/islamelhosary/HistoFlow/pkg/models"
	"github.com/islamelhosary/HistoFlow/pkg/storage"
)

// taskRequest hands a queued task to a worker together with its resolved
// config snapshot.
type taskRequest struct {
	Record models.TaskRecord
	Cfg    config.Pipeline
}

// WorkerPool owns task lifecycles. Each submitted task is executed by
// exactly one worker end-to-end: transition to running, execute the stage
// chain, and always write a terminal status. Stage execution within a task
// is strictly sequential; only distinct tasks run concurrently.
type WorkerPool struct {
	store    storage.Store
	executor *Executor
	logger   Logger
	taskChan chan taskRequest
	wg       sync.WaitGroup
	ctx      context.Context
}

func NewWorkerPool(mainCtx context.Context, store storage.Store, executor *Executor, logger Logger) *WorkerPool {
	return &WorkerPool{
		store:    store,
		executor: executor,
		logger:   logger,
		ctx:      mainCtx,
	}
}

// Start begins the worker pool with the specified number of workers
func (wp *WorkerPool) Start(workers int) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	wp.taskChan = make(chan taskRequest, workers)
	for i := 0; i < workers; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
}

// Stop gracefully stops the worker pool, draining queued tasks first.
func (wp *WorkerPool) Stop() {
	close(wp.taskChan)
	wp.wg.Wait()
}

// Submit enqueues a task whose record has already been persisted as queued.
// It returns immediately; completion is observable only through the store.
func (wp *WorkerPool) Submit(record models.TaskRecord, cfg config.Pipeline) {
	wp.taskChan <- taskRequest{Record: record, Cfg: cfg}
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()
	for req := range wp.taskChan {
		wp.runTask(req)
	}
}

// runTask is the last line of defense: whatever escapes the executor,
// including panics, ends as a terminal failed status in the store.
func (wp *WorkerPool) runTask(req taskRequest) {
	record := req.Record

	defer func() {
		if r := recover(); r != nil {
			wp.logger.Errorf("Task %s panicked: %v", record.TaskID, r)
			wp.finish(record, nil, fmt.Errorf("internal error: %v", r))
		}
	}()

	record.Status = models.RunningTaskStatus
	wp.persist(record)
	wp.logger.Infof("Starting pipeline for task %s", record.TaskID)

	outputs, err := wp.executor.Run(wp.ctx, req.Cfg)
	wp.finish(record, outputs, err)
}

func (wp *WorkerPool) finish(record models.TaskRecord, outputs map[string]models.StageOutput, err error) {
	now := time.Now()
	record.EndTime = &now
	if err != nil {
		record.Status = models.FailedTaskStatus
		record.Error = err.Error()
		record.Results = nil
		wp.logger.Errorf("Pipeline failed for task %s: %v", record.TaskID, err)
	} else {
		record.Status = models.CompletedTaskStatus
		record.Error = ""
		record.Results = summarize(outputs)
		wp.logger.Infof("Pipeline completed successfully for task %s", record.TaskID)
	}
	wp.persist(record)
}

// persist writes the record best-effort: a store failure here is logged and
// the in-memory outcome for that write is lost, never a worker crash.
func (wp *WorkerPool) persist(record models.TaskRecord) {
	if err := wp.store.PutTask(wp.ctx, record); err != nil {
		wp.logger.Errorf("Failed to update status for task %s: %v", record.TaskID, err)
	}
}

func summarize(outputs map[string]models.StageOutput) *models.Results {
	results := &models.Results{
		Success: true,
		Stages:  make(map[string]models.StageSummary, len(outputs)),
	}
	for name, out := range outputs {
		results.Stages[name] = out.Summarize()
	}
	return results
}
