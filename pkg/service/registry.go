package service

import (
	"context"
	"fmt"

	"github.com/islamelhosary/HistoFlow/pkg/config"
	"github.com/islamelhosary/HistoFlow/pkg/models"
	"github.com/pkg/errors"
)

// Logger defines the logging interface for the service layer
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// StageFunc is one unit of work in the chain. It receives the resolved
// config and the outputs of its declared dependencies, keyed by stage name.
// Stage functions must be safe to re-run for the same task: a retry is a
// complete re-invocation, so artifacts must be written overwrite-on-write.
type StageFunc func(ctx context.Context, cfg config.Pipeline, upstream map[string]models.StageOutput) (models.StageOutput, error)

// StageDef declares a stage: its upstream dependencies and retry policy.
type StageDef struct {
	Name   string
	Deps   []string
	Policy models.RetryPolicy
	Run    StageFunc
}

// Registry holds the stage definitions and their execution order. The
// shipped chain is linear, but the registry accepts an arbitrary DAG:
// Finalize computes a topological order and rejects cycles up front.
type Registry struct {
	stages    map[string]StageDef
	names     []string // registration order, for deterministic sorting
	order     []string
	finalized bool
}

func NewRegistry() *Registry {
	return &Registry{stages: make(map[string]StageDef)}
}

// Register adds a stage definition. Duplicate names are rejected.
func (r *Registry) Register(def StageDef) error {
	if r.finalized {
		return errors.New("registry already finalized")
	}
	if def.Name == "" {
		return errors.New("empty stage name")
	}
	if def.Run == nil {
		return fmt.Errorf("stage '%s' has no function", def.Name)
	}
	if def.Policy.MaxRetries < 0 {
		return fmt.Errorf("stage '%s' has negative max retries", def.Name)
	}
	if _, exists := r.stages[def.Name]; exists {
		return fmt.Errorf("stage '%s' already registered", def.Name)
	}
	r.stages[def.Name] = def
	r.names = append(r.names, def.Name)
	return nil
}

// Finalize validates dependencies and computes the execution order using
// Kahn's algorithm. Unknown dependencies and cycles are registration-time
// errors, not run-time ones.
func (r *Registry) Finalize() error {
	if r.finalized {
		return nil
	}

	inDegree := make(map[string]int, len(r.stages))
	dependents := make(map[string][]string, len(r.stages))
	for _, name := range r.names {
		def := r.stages[name]
		inDegree[name] = len(def.Deps)
		for _, dep := range def.Deps {
			if _, ok := r.stages[dep]; !ok {
				return fmt.Errorf("dependency '%s' for stage '%s' not registered", dep, name)
			}
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var queue []string
	for _, name := range r.names {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	var sorted []string
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		sorted = append(sorted, curr)
		for _, next := range dependents[curr] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if len(sorted) != len(r.stages) {
		return errors.New("cycle detected in stage dependencies")
	}

	r.order = sorted
	r.finalized = true
	return nil
}

// Order returns the topological execution order. Finalize must have run.
func (r *Registry) Order() []string {
	return r.order
}

// Stage returns the definition for a stage name.
func (r *Registry) Stage(name string) (StageDef, bool) {
	def, ok := r.stages[name]
	return def, ok
}
