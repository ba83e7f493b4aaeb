package mirror

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Task is a sync pass in flight. Its lifetime is bound to the context it was started with.
type Task struct {
	ID        string
	SchoolID  string
	StartedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	phases map[string]Phase
	report Report
	err    error
}

func newTask(parent context.Context, schoolID string, timeout time.Duration) *Task {
	var ctx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	return &Task{
		ID:        uuid.New().String(),
		SchoolID:  schoolID,
		StartedAt: nowFunc().UTC(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		phases:    make(map[string]Phase),
	}
}

// Done is closed once the pass has ended, whatever its outcome.
func (t *Task) Done() <-chan struct{} { return t.done }

// Cancel stops the pass. Tables not yet upserted are reported as failed;
// an upsert in progress is rolled back by the store.
func (t *Task) Cancel() { t.cancel() }

// Wait blocks until the pass ends or ctx is done.
// Giving up on waiting does not cancel the pass: use Cancel for that.
func (t *Task) Wait(ctx context.Context) (Report, error) {
	select {
	case <-t.done:
		return t.Result()
	case <-ctx.Done():
		return Report{}, ctx.Err()
	}
}

// Result returns the report of a finished pass (zero Report while running).
func (t *Task) Result() (Report, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.report, t.err
}

// Phase returns where the pass stands for the given table.
func (t *Task) Phase(table string) Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	if phase, ok := t.phases[table]; ok {
		return phase
	}
	return PhaseIdle
}

func (t *Task) setPhase(table string, phase Phase) {
	t.mu.Lock()
	t.phases[table] = phase
	t.mu.Unlock()
}

func (t *Task) finish(report Report, err error) {
	t.mu.Lock()
	t.report = report
	t.err = err
	t.mu.Unlock()
	t.cancel() // release timer resources
	close(t.done)
}
