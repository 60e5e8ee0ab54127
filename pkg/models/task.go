package models

import (
	"encoding/json"
	"time"
)

type TaskStatus string

const (
	QueuedTaskStatus    TaskStatus = "queued"
	RunningTaskStatus   TaskStatus = "running"
	CompletedTaskStatus TaskStatus = "completed"
	FailedTaskStatus    TaskStatus = "failed"
)

// Terminal reports whether the status is final.
func (s TaskStatus) Terminal() bool {
	return s == CompletedTaskStatus || s == FailedTaskStatus
}

// TaskRecord is the persisted state of one submitted pipeline run.
// Transitions are one-directional: queued -> running -> completed/failed.
// Exactly one runner ever writes a given task's record.
type TaskRecord struct {
	TaskID    string     `json:"task_id"`              // Unique identifier (UUID), assigned at submission
	Status    TaskStatus `json:"status"`               // "queued", "running", "completed", "failed"
	StartTime time.Time  `json:"start_time"`           // Set at submission
	EndTime   *time.Time `json:"end_time,omitempty"`   // Set once a terminal status is reached
	Error     string     `json:"error,omitempty"`      // First unrecoverable stage error (failed only)
	Results   *Results   `json:"results,omitempty"`    // Success payload (completed only)

	// PipelineConfig is the merged configuration as resolved at submission
	// time. Stored raw so historical records stay readable after the
	// config schema evolves.
	PipelineConfig json.RawMessage `json:"pipeline_config,omitempty"`
}

// Results is the success payload of a completed task.
type Results struct {
	Success bool                    `json:"success"`
	Stages  map[string]StageSummary `json:"stages,omitempty"`
}

// StageSummary counts the per-item outcomes of one stage.
type StageSummary struct {
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}
