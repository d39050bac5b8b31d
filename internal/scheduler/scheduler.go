// Package scheduler starts and stops the watcher on cron schedules, so
// monitoring can run only around announced sale windows.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Runner is the engine lifecycle the scheduler drives.
type Runner interface {
	Start(ctx context.Context) bool
	Stop() bool
}

// Action is what a job does when it fires.
type Action string

const (
	ActionStart Action = "start"
	ActionStop  Action = "stop"
)

// Scheduler fires start/stop actions on cron expressions.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   map[Action][]cron.EntryID
	runner Runner
	ctx    context.Context
	logger *slog.Logger
}

// New creates a scheduler that drives runner.
func New(runner Runner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:   cron.New(),
		jobs:   make(map[Action][]cron.EntryID),
		runner: runner,
		ctx:    context.Background(),
		logger: logger,
	}
}

// Run starts the cron loop and blocks until ctx is cancelled. Start
// actions launch the runner under ctx.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", s.JobCount())
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

// Add registers action on a standard 5-field cron expression or a
// descriptor such as "@every 1h". An empty expression is ignored.
func (s *Scheduler) Add(action Action, expr string) error {
	if expr == "" {
		return nil
	}
	if action != ActionStart && action != ActionStop {
		return fmt.Errorf("scheduler: unknown action %q", action)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(expr, func() { s.fire(action) })
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q: %w", expr, err)
	}
	s.jobs[action] = append(s.jobs[action], id)
	s.logger.Info("schedule registered", "action", action, "schedule", expr)
	return nil
}

// Window registers a start and a stop schedule together.
func (s *Scheduler) Window(startExpr, stopExpr string) error {
	if err := s.Add(ActionStart, startExpr); err != nil {
		return err
	}
	return s.Add(ActionStop, stopExpr)
}

func (s *Scheduler) fire(action Action) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	var changed bool
	switch action {
	case ActionStart:
		changed = s.runner.Start(ctx)
	case ActionStop:
		changed = s.runner.Stop()
	}
	s.logger.Info("schedule fired", "action", action, "changed", changed)
}

// Clear removes every registered job.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ids := range s.jobs {
		for _, id := range ids {
			s.cron.Remove(id)
		}
	}
	clear(s.jobs)
}

// JobCount returns the number of registered jobs.
func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, ids := range s.jobs {
		total += len(ids)
	}
	return total
}
