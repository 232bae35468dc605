// Package tasks holds the named-task (skill) registry backing
// `run-named-task` (spec §4.8, §6): host-registered functions of
// {name, description?, inputs?, run(context)} that execute synchronously
// on the Go side (not inside a goja worker) but race against an
// independent per-task timer with the same cancellation semantics as a
// sandboxed run (spec §5 "Named tasks wrap execution in a race against an
// independent timer with the same semantics").
package tasks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dev-console/agentsandbox/internal/model"
)

// DefaultTaskTimeoutMs is used when a task has no TimeoutMs of its own and
// the caller did not request an override.
const DefaultTaskTimeoutMs = model.DefaultTimeoutMs

// Registry holds named tasks for the lifetime of the process.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]model.NamedTask
}

// New constructs an empty named-task registry.
func New() *Registry {
	return &Registry{tasks: make(map[string]model.NamedTask)}
}

// Register adds task, idempotently (re-registration overwrites).
func (r *Registry) Register(task model.NamedTask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[task.Name] = task
}

// Get resolves a task by name.
func (r *Registry) Get(name string) (model.NamedTask, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[name]
	return t, ok
}

// Enumerate returns all registered tasks sorted by name.
func (r *Registry) Enumerate() []model.NamedTask {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.NamedTask, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count reports the number of registered named tasks.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// ErrNotFound is returned by Run when name has no registered task.
type ErrNotFound struct{ Name string }

func (e ErrNotFound) Error() string { return fmt.Sprintf("named task %q is not registered", e.Name) }

// Run resolves name and executes it, racing against timeoutMs (or the
// task's own TimeoutMs if timeoutMs is 0). A task that does not return
// before the timer fires resolves as model.ErrKindTimeout, matching a
// worker run's timeout semantics; the task's own goroutine is abandoned
// (Go has no cooperative preemption point to interrupt it, the same way a
// terminated worker abandons its pending adapter calls).
func Run(ctx context.Context, task model.NamedTask, inputs map[string]any, catalog model.AdapterCatalog, timeoutMs int) model.ExecutionResult {
	start := time.Now()

	effectiveTimeout := timeoutMs
	if effectiveTimeout <= 0 {
		effectiveTimeout = task.TimeoutMs
	}
	if effectiveTimeout <= 0 {
		effectiveTimeout = DefaultTaskTimeoutMs
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(effectiveTimeout)*time.Millisecond)
	defer cancel()

	resultCh := make(chan model.ExecutionResult, 1)
	go func() {
		resultCh <- runOnce(task, inputs, catalog, start)
	}()

	select {
	case res := <-resultCh:
		return res
	case <-runCtx.Done():
		return model.ExecutionResult{
			Success:         false,
			Error:           &model.ExecutionError{Name: model.ErrKindTimeout, Message: "named task timed out"},
			ExecutionTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
		}
	}
}

func runOnce(task model.NamedTask, inputs map[string]any, catalog model.AdapterCatalog, start time.Time) (result model.ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			result = model.ExecutionResult{
				Success:         false,
				Error:           &model.ExecutionError{Name: model.ErrKindWorker, Message: fmt.Sprintf("named task panicked: %v", r)},
				ExecutionTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
			}
		}
	}()

	value, err := task.Run(model.TaskContext{Inputs: inputs, Adapters: catalog})
	if err != nil {
		return model.ExecutionResult{
			Success:         false,
			Error:           &model.ExecutionError{Name: model.ErrKindRuntime, Message: err.Error()},
			ExecutionTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
		}
	}
	return model.ExecutionResult{
		Success:         true,
		Value:           value,
		ExecutionTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
	}
}
