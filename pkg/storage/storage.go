package storage

import (
	"context"

	"github.com/islamelhosary/HistoFlow/pkg/models"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when no record exists for the requested task id.
var ErrNotFound = errors.New("task not found")

// Store defines the status persistence operations for HistoFlow.
// Writes are last-write-wins per key; no read-modify-write transaction is
// assumed, because exactly one runner ever writes a given task's record.
type Store interface {
	PutTask(ctx context.Context, record models.TaskRecord) error
	GetTask(ctx context.Context, taskID string) (models.TaskRecord, error)
	ListTaskIDs(ctx context.Context) ([]string, error)

	// Ping reports store reachability, for health checks and startup.
	Ping(ctx context.Context) error
	Close() error
}
