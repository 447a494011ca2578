// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ingest

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// Runner executes ingestion runs asynchronously on a worker pool and
// keeps a cancellation registry so running tasks can be cancelled from
// the request path.
type Runner struct {
	orchestrator *Orchestrator
	pool         *ants.Pool
	logger       *slog.Logger

	mu      sync.Mutex
	active  map[string]context.CancelFunc
	closed  bool
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner) error

// WithPoolSize sets the worker pool size for concurrent runs.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) RunnerOption {
	return func(r *Runner) error {
		if size < 1 {
			size = 1
		}

		if r.pool != nil {
			r.pool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		r.pool = pool
		return nil
	}
}

// WithRunnerLogger sets a custom logger.
// Default is slog.Default().
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewRunner creates a runner around an orchestrator.
func NewRunner(orchestrator *Orchestrator, opts ...RunnerOption) (*Runner, error) {
	if orchestrator == nil {
		return nil, ErrOrchestratorRequired
	}

	r := &Runner{
		orchestrator: orchestrator,
		logger:       slog.Default().With("component", "ingest-runner"),
		active:       make(map[string]context.CancelFunc),
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	if r.pool == nil {
		size := runtime.NumCPU() / 2
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return nil, err
		}
		r.pool = pool
	}

	return r, nil
}

// Submit schedules an ingestion run for the task. The call returns as
// soon as the run is queued; progress is observable through the task
// row.
func (r *Runner) Submit(taskID string) error {
	ctx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		cancel()
		return ErrRunnerClosed
	}
	r.active[taskID] = cancel
	r.mu.Unlock()

	err := r.pool.Submit(func() {
		defer r.forget(taskID)
		if err := r.orchestrator.Run(ctx, taskID); err != nil {
			r.logger.Error("ingestion run failed", "task_id", taskID, "err", err)
		}
	})
	if err != nil {
		r.forget(taskID)
		return err
	}

	return nil
}

// Cancel requests cancellation of a running task. The run observes the
// cancel at the next document boundary. Returns ErrTaskNotRunning when
// the task is not currently executing.
func (r *Runner) Cancel(taskID string) error {
	r.mu.Lock()
	cancel, ok := r.active[taskID]
	r.mu.Unlock()

	if !ok {
		return ErrTaskNotRunning
	}
	cancel()
	return nil
}

// Running reports whether a task currently executes on the pool.
func (r *Runner) Running(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[taskID]
	return ok
}

// Close stops accepting submissions, cancels in-flight runs and
// releases the pool.
func (r *Runner) Close() {
	r.mu.Lock()
	r.closed = true
	for _, cancel := range r.active {
		cancel()
	}
	r.mu.Unlock()

	r.pool.Release()
}

func (r *Runner) forget(taskID string) {
	r.mu.Lock()
	if cancel, ok := r.active[taskID]; ok {
		cancel()
		delete(r.active, taskID)
	}
	r.mu.Unlock()
}
