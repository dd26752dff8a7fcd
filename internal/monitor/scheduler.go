package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a repeating job armed by Every. Runs never overlap: each run
// happens on the task's own goroutine and the next tick waits for it.
type Task struct {
	Name     string
	Interval time.Duration

	run    func(ctx context.Context) error
	logger *zap.Logger

	// State
	lastRun    time.Time
	nextRun    time.Time
	lastError  error
	errorCount int
	runs       int
	running    bool
	mu         sync.RWMutex

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// TaskStatus represents the status of a task.
type TaskStatus struct {
	Name       string        `json:"name"`
	Interval   time.Duration `json:"interval"`
	LastRun    time.Time     `json:"last_run"`
	NextRun    time.Time     `json:"next_run"`
	LastError  string        `json:"last_error,omitempty"`
	ErrorCount int           `json:"error_count"`
	Runs       int           `json:"runs"`
	Running    bool          `json:"running"`
}

// Every arms run to fire every interval, starting one interval from now.
// ctx is handed to each run; Stop ends the schedule without cancelling it,
// so a run in progress completes normally.
func Every(ctx context.Context, name string, interval time.Duration, logger *zap.Logger, run func(ctx context.Context) error) *Task {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Task{
		Name:     name,
		Interval: interval,
		run:      run,
		logger:   logger,
		nextRun:  time.Now().Add(interval),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go t.loop(ctx)
	return t
}

func (t *Task) loop(ctx context.Context) {
	defer close(t.done)

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Stop may race with the tick; honour it first
			select {
			case <-t.stop:
				return
			default:
			}
			t.runOnce(ctx)
		}
	}
}

func (t *Task) runOnce(ctx context.Context) {
	t.mu.Lock()
	t.running = true
	t.lastRun = time.Now()
	t.mu.Unlock()

	t.logger.Debug("task_run", zap.String("task", t.Name))

	err := t.run(ctx)

	t.mu.Lock()
	t.running = false
	t.runs++
	t.nextRun = time.Now().Add(t.Interval)
	if err != nil {
		t.lastError = err
		t.errorCount++
		t.logger.Warn("task_failed", zap.String("task", t.Name), zap.Error(err))
	} else {
		t.lastError = nil
	}
	t.mu.Unlock()
}

// Stop cancels future runs and waits for a run in progress to return.
// It must not be called from inside the task's own run function.
func (t *Task) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
	<-t.done
}

// Status returns a snapshot of the task state.
func (t *Task) Status() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	status := TaskStatus{
		Name:       t.Name,
		Interval:   t.Interval,
		LastRun:    t.lastRun,
		NextRun:    t.nextRun,
		ErrorCount: t.errorCount,
		Runs:       t.runs,
		Running:    t.running,
	}
	if t.lastError != nil {
		status.LastError = t.lastError.Error()
	}
	return status
}
