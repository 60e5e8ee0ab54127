package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/islamelhosary/HistoFlow/pkg/config"
	"github.com/islamelhosary/HistoFlow/pkg/models"
	"github.com/islamelhosary/HistoFlow/pkg/service"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type testLogger struct{}

func (testLogger) Infof(format string, args ...interface{})  {}
func (testLogger) Warnf(format string, args ...interface{})  {}
func (testLogger) Errorf(format string, args ...interface{}) {}

func countingStage(calls *int, out models.StageOutput, failUntil int) service.StageFunc {
	return func(ctx context.Context, cfg config.Pipeline, upstream map[string]models.StageOutput) (models.StageOutput, error) {
		*calls++
		if *calls <= failUntil {
			return nil, errors.New("transient failure")
		}
		return out, nil
	}
}

func TestExecutorRunsChainInOrder(t *testing.T) {
	var invoked []string
	record := func(name string, items models.StageOutput) service.StageFunc {
		return func(ctx context.Context, cfg config.Pipeline, upstream map[string]models.StageOutput) (models.StageOutput, error) {
			invoked = append(invoked, name)
			return items, nil
		}
	}

	r := service.NewRegistry()
	assert.NoError(t, r.Register(service.StageDef{Name: "first", Run: record("first", models.StageOutput{{ID: "x", Status: models.SuccessItemStatus}})}))
	assert.NoError(t, r.Register(service.StageDef{
		Name: "second",
		Deps: []string{"first"},
		Run: func(ctx context.Context, cfg config.Pipeline, upstream map[string]models.StageOutput) (models.StageOutput, error) {
			invoked = append(invoked, "second")
			// upstream outputs of declared deps must be visible
			assert.Len(t, upstream["first"], 1)
			return upstream["first"], nil
		},
	}))

	executor := service.NewExecutor(r, testLogger{})
	outputs, err := executor.Run(context.Background(), config.Pipeline{})
	assert.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, invoked)
	assert.Len(t, outputs, 2)
	assert.Equal(t, "x", outputs["second"][0].ID)
}

func TestExecutorRetriesThenSucceeds(t *testing.T) {
	calls := 0
	r := service.NewRegistry()
	assert.NoError(t, r.Register(service.StageDef{
		Name:   "flaky",
		Policy: models.RetryPolicy{MaxRetries: 2, Delay: time.Millisecond},
		Run:    countingStage(&calls, models.StageOutput{{ID: "ok", Status: models.SuccessItemStatus}}, 1),
	}))

	executor := service.NewExecutor(r, testLogger{})
	outputs, err := executor.Run(context.Background(), config.Pipeline{})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "ok", outputs["flaky"][0].ID)
}

func TestExecutorExhaustsRetriesAndAborts(t *testing.T) {
	stage1Calls, stage2Calls, stage3Calls := 0, 0, 0

	r := service.NewRegistry()
	assert.NoError(t, r.Register(service.StageDef{
		Name: "stage1",
		Run:  countingStage(&stage1Calls, models.StageOutput{{ID: "a", Status: models.SuccessItemStatus}}, 0),
	}))
	assert.NoError(t, r.Register(service.StageDef{
		Name:   "stage2",
		Deps:   []string{"stage1"},
		Policy: models.RetryPolicy{MaxRetries: 2, Delay: time.Millisecond},
		Run: func(ctx context.Context, cfg config.Pipeline, upstream map[string]models.StageOutput) (models.StageOutput, error) {
			stage2Calls++
			return nil, errors.New("disk full")
		},
	}))
	assert.NoError(t, r.Register(service.StageDef{
		Name: "stage3",
		Deps: []string{"stage2"},
		Run:  countingStage(&stage3Calls, models.StageOutput{}, 0),
	}))

	executor := service.NewExecutor(r, testLogger{})
	outputs, err := executor.Run(context.Background(), config.Pipeline{})

	// max_retries=2 means exactly 3 invocations, and downstream never runs
	assert.Equal(t, 3, stage2Calls)
	assert.Equal(t, 0, stage3Calls)

	assert.Error(t, err)
	var stageErr *service.StageError
	assert.True(t, errors.As(err, &stageErr))
	assert.Equal(t, "stage2", stageErr.Stage)
	assert.Equal(t, 3, stageErr.Attempts)
	assert.Contains(t, err.Error(), "disk full")

	// stage1's output is retained, the failed stage produced none
	assert.Contains(t, outputs, "stage1")
	assert.NotContains(t, outputs, "stage2")
	assert.NotContains(t, outputs, "stage3")
}

func TestExecutorZeroRetriesFailsImmediately(t *testing.T) {
	calls := 0
	r := service.NewRegistry()
	assert.NoError(t, r.Register(service.StageDef{
		Name: "once",
		Run: func(ctx context.Context, cfg config.Pipeline, upstream map[string]models.StageOutput) (models.StageOutput, error) {
			calls++
			return nil, errors.New("boom")
		},
	}))

	executor := service.NewExecutor(r, testLogger{})
	_, err := executor.Run(context.Background(), config.Pipeline{})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
