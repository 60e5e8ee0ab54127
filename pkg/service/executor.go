package service

import (
	"context"
	"fmt"
	"time"

	"github.com/islamelhosary/HistoFlow/pkg/config"
	"github.com/islamelhosary/HistoFlow/pkg/models"
)

// StageError is the terminal failure cause of a pipeline run: a stage that
// kept failing after its retry budget was spent.
type StageError struct {
	Stage    string
	Attempts int
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage '%s' failed after %d attempt(s): %v", e.Stage, e.Attempts, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Executor runs the stage chain for one task: dependency order, per-stage
// retries, terminal outcome. Stages of a single task run strictly
// sequentially; each stage blocks the owning worker for its duration.
type Executor struct {
	registry *Registry
	logger   Logger

	// sleep is swapped out in tests; production uses time.Sleep.
	sleep func(time.Duration)
}

func NewExecutor(registry *Registry, logger Logger) *Executor {
	return &Executor{registry: registry, logger: logger, sleep: time.Sleep}
}

// Run executes every stage in topological order. On success it returns the
// outputs of all stages keyed by name. On retry exhaustion it returns a
// *StageError and the outputs collected so far; stages downstream of the
// failure are never invoked.
func (e *Executor) Run(ctx context.Context, cfg config.Pipeline) (map[string]models.StageOutput, error) {
	if err := e.registry.Finalize(); err != nil {
		return nil, err
	}

	outputs := make(map[string]models.StageOutput, len(e.registry.Order()))
	for _, name := range e.registry.Order() {
		def, _ := e.registry.Stage(name)

		upstream := make(map[string]models.StageOutput, len(def.Deps))
		for _, dep := range def.Deps {
			upstream[dep] = outputs[dep]
		}

		out, err := e.runStage(ctx, def, cfg, upstream)
		if err != nil {
			return outputs, err
		}
		outputs[name] = out
	}
	return outputs, nil
}

// runStage invokes one stage, retrying per its policy. Every retry is a
// full re-invocation; partial output of a failed attempt is discarded.
func (e *Executor) runStage(ctx context.Context, def StageDef, cfg config.Pipeline, upstream map[string]models.StageOutput) (models.StageOutput, error) {
	var lastErr error
	for attempt := 0; attempt <= def.Policy.MaxRetries; attempt++ {
		e.logger.Infof("Starting stage '%s' attempt %d", def.Name, attempt+1)
		out, err := def.Run(ctx, cfg, upstream)
		if err == nil {
			e.logger.Infof("Stage '%s' completed with %d item(s)", def.Name, len(out))
			return out, nil
		}
		lastErr = err
		if attempt < def.Policy.MaxRetries {
			e.logger.Warnf("Retrying stage '%s' (attempt %d/%d) after error: %v",
				def.Name, attempt+1, def.Policy.MaxRetries, err)
			e.sleep(def.Policy.Delay)
		}
	}
	e.logger.Errorf("Stage '%s' exhausted %d retries: %v", def.Name, def.Policy.MaxRetries, lastErr)
	return nil, &StageError{Stage: def.Name, Attempts: def.Policy.MaxRetries + 1, Err: lastErr}
}
