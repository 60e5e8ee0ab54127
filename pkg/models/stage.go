package models

import "time"

type ItemStatus string

const (
	SuccessItemStatus ItemStatus = "success"
	ErrorItemStatus   ItemStatus = "error"
	SkippedItemStatus ItemStatus = "skipped"
)

// StageItem is the per-slide record a stage emits for each processed item.
type StageItem struct {
	ID     string     `json:"id"`              // Slide name (file name without extension)
	Path   string     `json:"path,omitempty"`  // Artifact produced for this item, if any
	Status ItemStatus `json:"status"`          // "success", "error", "skipped"
	Error  string     `json:"error,omitempty"` // Why the item failed or was skipped
}

// StageOutput is the inter-stage contract: an ordered sequence of per-item
// records. Downstream stages must treat error/skipped items as
// non-actionable and propagate a skipped entry instead of failing.
type StageOutput []StageItem

// Summarize counts item outcomes for the task's result payload.
func (o StageOutput) Summarize() StageSummary {
	var s StageSummary
	for _, item := range o {
		switch item.Status {
		case SuccessItemStatus:
			s.Succeeded++
		case SkippedItemStatus:
			s.Skipped++
		default:
			s.Failed++
		}
	}
	return s
}

// RetryPolicy bounds the retries of a single stage. A stage is invoked at
// most MaxRetries+1 times, sleeping Delay between attempts.
type RetryPolicy struct {
	MaxRetries int           `json:"max_retries"`
	Delay      time.Duration `json:"delay"`
}
