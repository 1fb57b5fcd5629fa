// Package scheduler runs periodic ticks such as dispatcher passes and
// outcome scans.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bissquit/eventrelay/internal/pkg/ctxlog"
)

// ErrUnknownTask is returned by RunOnce for a task name that is not registered.
var ErrUnknownTask = errors.New("unknown task")

// Task is one periodic unit of work.
type Task struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single run. Zero means Interval.
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Scheduler runs each task on its own goroutine. Runs of the same task never
// overlap within a process.
type Scheduler struct {
	tasks map[string]Task

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a scheduler for tasks.
func New(tasks ...Task) (*Scheduler, error) {
	s := &Scheduler{
		tasks:  make(map[string]Task, len(tasks)),
		stopCh: make(chan struct{}),
	}
	for _, t := range tasks {
		if t.Name == "" || t.Run == nil {
			return nil, fmt.Errorf("scheduler: task %q is incomplete", t.Name)
		}
		if t.Interval <= 0 {
			return nil, fmt.Errorf("scheduler: task %q needs a positive interval", t.Name)
		}
		if _, dup := s.tasks[t.Name]; dup {
			return nil, fmt.Errorf("scheduler: duplicate task %q", t.Name)
		}
		if t.Timeout <= 0 {
			t.Timeout = t.Interval
		}
		s.tasks[t.Name] = t
	}
	return s, nil
}

// Names returns the registered task names in sorted order.
func (s *Scheduler) Names() []string {
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start launches one goroutine per task. The first run happens after one
// interval.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("starting scheduler", "tasks", s.Names())
	for _, t := range s.tasks {
		s.wg.Add(1)
		go s.loop(ctx, t)
	}
}

// Stop waits for running ticks to finish and stops the scheduler.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	slog.Info("scheduler stopped")
}

// RunOnce runs the named task a single time, for use from an external cron.
func (s *Scheduler) RunOnce(ctx context.Context, name string) error {
	t, ok := s.tasks[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return s.run(ctx, t)
}

func (s *Scheduler) loop(ctx context.Context, t Task) {
	defer s.wg.Done()

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.run(ctx, t); err != nil {
				slog.Error("scheduled task failed", "task", t.Name, "error", err)
			}
		}
	}
}

func (s *Scheduler) run(ctx context.Context, t Task) (err error) {
	runCtx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()
	runCtx, _ = ctxlog.With(runCtx, "task", t.Name)

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", t.Name, r)
		}
		recordRun(t.Name, time.Since(start), err)
	}()

	return t.Run(runCtx)
}
