// Package schedule runs background jobs on cron expressions, evaluated in the
// configured timezone.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"

	"groupbot/internal/metrics"
)

type Task struct {
	Name string
	Expr *cronexpr.Expression
	Run  func(ctx context.Context)

	nextRun time.Time
}

type Scheduler struct {
	tasks    []*Task
	loc      *time.Location
	metrics  *metrics.Collector
	logger   *slog.Logger
	mu       sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
}

func New(loc *time.Location, collector *metrics.Collector, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		loc:     loc,
		metrics: collector,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

// Add registers a job under a cron expression ("0 8 * * *"). Call before
// Start.
func (s *Scheduler) Add(name, expr string, run func(ctx context.Context)) error {
	parsed, err := cronexpr.Parse(expr)
	if err != nil {
		return fmt.Errorf("cron expression %q for task %s: %w", expr, name, err)
	}
	task := &Task{Name: name, Expr: parsed, Run: run}
	task.nextRun = parsed.Next(time.Now().In(s.loc))
	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()
	s.logger.Info("scheduled task added", "task", name, "expr", expr, "next_run", task.nextRun)
	return nil
}

// Start ticks once a second and fires due tasks. Blocks until ctx is
// cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("scheduler started", "tasks", len(s.tasks), "timezone", s.loc.String())
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.fireDue(ctx, now.In(s.loc))
		}
	}
}

// Stop halts the scheduler. Safe to call multiple times.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

func (s *Scheduler) fireDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, task := range s.tasks {
		if task.nextRun.IsZero() || now.Before(task.nextRun) {
			continue
		}
		task.nextRun = task.Expr.Next(now)
		s.logger.Info("executing scheduled task", "task", task.Name, "next_run", task.nextRun)
		go s.runTask(ctx, task)
	}
}

// runTask isolates one job execution: a panicking job is counted and logged,
// never fatal to the scheduler.
func (s *Scheduler) runTask(ctx context.Context, task *Task) {
	defer func() {
		if rec := recover(); rec != nil {
			s.metrics.Errors.Inc()
			s.logger.Error("scheduled task panicked", "task", task.Name, "panic", rec)
		}
	}()

	start := time.Now()
	task.Run(ctx)
	s.logger.Info("scheduled task finished", "task", task.Name, "elapsed", time.Since(start))
}
