// Package heartbeat drives the periodic background tick that reconciles,
// coalesces, and executes queued tasks (spec's "Scheduler/Heartbeat"),
// grounded on internal/tasks.Scheduler's config-struct+ticker+semaphore
// idiom. This is distinct from Runner in runner.go, which is a live-run
// typing-indicator/presence signal, not a task dequeuer.
package heartbeat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nexuscore/agentcore/internal/orchestrator"
	"github.com/nexuscore/agentcore/internal/tasks"
	"github.com/nexuscore/agentcore/pkg/models"
)

const scheduledTitlePrefix = "[Scheduled] "

// TaskSchedulerConfig configures the task-dequeue tick.
type TaskSchedulerConfig struct {
	// TickInterval is how often the heartbeat fires. Defaults to 1800s.
	TickInterval time.Duration

	// MaxAge is how long an in-progress task may go without an updated_at
	// refresh before it is reconciled to failed. Defaults to 3600s.
	MaxAge time.Duration

	// ScheduledMaxAge is the shorter max age applied to tasks whose title
	// carries the scheduled-task prefix. Defaults to 900s.
	ScheduledMaxAge time.Duration

	// ReadyLimit caps how many dependency-satisfied pending tasks a single
	// tick will consider for execution. Defaults to 3.
	ReadyLimit int

	// OrchestratorConfig is cloned into a fresh *orchestrator.Orchestrator
	// per executed task; each gets its own session "task_<task_id>".
	OrchestratorConfig orchestrator.Config

	Logger *slog.Logger
}

// DefaultTaskSchedulerConfig returns a TaskSchedulerConfig with the spec's default
// tick cadence and max-age values.
func DefaultTaskSchedulerConfig() TaskSchedulerConfig {
	return TaskSchedulerConfig{
		TickInterval:    1800 * time.Second,
		MaxAge:          3600 * time.Second,
		ScheduledMaxAge: 900 * time.Second,
		ReadyLimit:      3,
	}
}

// TaskScheduler runs the periodic reconcile/coalesce/execute tick over a
// tasks.Queue.
type TaskScheduler struct {
	queue  tasks.Queue
	cfg    TaskSchedulerConfig
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTaskScheduler builds a TaskScheduler bound to queue.
func NewTaskScheduler(queue tasks.Queue, cfg TaskSchedulerConfig) *TaskScheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 1800 * time.Second
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 3600 * time.Second
	}
	if cfg.ScheduledMaxAge <= 0 {
		cfg.ScheduledMaxAge = 900 * time.Second
	}
	if cfg.ReadyLimit <= 0 {
		cfg.ReadyLimit = 3
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "heartbeat-scheduler")
	}
	return &TaskScheduler{queue: queue, cfg: cfg, logger: logger}
}

// Start begins the tick loop in the background. Stop to shut it down.
func (s *TaskScheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.TickInterval)
		defer ticker.Stop()

		s.Tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Stop cancels the tick loop and waits for the in-flight tick to finish.
func (s *TaskScheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Tick performs one reconcile → coalesce → execute pass. Exported so
// callers (and tests) can drive it deterministically instead of waiting
// on the ticker.
func (s *TaskScheduler) Tick(ctx context.Context) {
	s.reconcileStaleInProgress(ctx)
	s.coalesceDuplicateScheduled(ctx)
	s.runReadyTasks(ctx)
}

func (s *TaskScheduler) isScheduled(title string) bool {
	return len(title) >= len(scheduledTitlePrefix) && title[:len(scheduledTitlePrefix)] == scheduledTitlePrefix
}

// reconcileStaleInProgress fails any in-progress task whose updated_at is
// older than its max age.
func (s *TaskScheduler) reconcileStaleInProgress(ctx context.Context) {
	active, err := s.queue.ListActive(ctx)
	if err != nil {
		s.logger.Error("list active tasks", "error", err)
		return
	}
	now := time.Now()
	for _, t := range active {
		maxAge := s.cfg.MaxAge
		if s.isScheduled(t.Title) {
			maxAge = s.cfg.ScheduledMaxAge
		}
		if now.Sub(t.UpdatedAt) <= maxAge {
			continue
		}
		t.Status = models.TaskFailed
		t.Result = "stale: exceeded max age without progress"
		if err := s.queue.Update(ctx, t); err != nil {
			s.logger.Error("reconcile stale task", "task_id", t.ID, "error", err)
			continue
		}
		s.logger.Warn("reconciled stale in-progress task", "task_id", t.ID, "title", t.Title)
	}
}

// coalesceDuplicateScheduled groups active scheduled tasks by (title,
// description) and keeps only the oldest survivor per group.
func (s *TaskScheduler) coalesceDuplicateScheduled(ctx context.Context) {
	all, err := s.queue.List(ctx)
	if err != nil {
		s.logger.Error("list tasks", "error", err)
		return
	}

	type key struct{ title, description string }
	groups := make(map[key][]*models.Task)
	for _, t := range all {
		if !s.isScheduled(t.Title) {
			continue
		}
		if t.Status != models.TaskPending && t.Status != models.TaskInProgress {
			continue
		}
		k := key{t.Title, t.Description}
		groups[k] = append(groups[k], t)
	}

	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		survivor := pickSurvivor(group)
		for _, t := range group {
			if t.ID == survivor.ID {
				continue
			}
			t.Status = models.TaskFailed
			t.Result = "Duplicate scheduled task coalesced"
			if err := s.queue.Update(ctx, t); err != nil {
				s.logger.Error("coalesce duplicate scheduled task", "task_id", t.ID, "error", err)
				continue
			}
			s.logger.Info("coalesced duplicate scheduled task", "task_id", t.ID, "survivor_id", survivor.ID)
		}
	}
}

// pickSurvivor keeps the oldest in-progress task if one exists, else the
// oldest pending task.
func pickSurvivor(group []*models.Task) *models.Task {
	var oldestInProgress, oldestPending *models.Task
	for _, t := range group {
		switch t.Status {
		case models.TaskInProgress:
			if oldestInProgress == nil || t.CreatedAt.Before(oldestInProgress.CreatedAt) {
				oldestInProgress = t
			}
		case models.TaskPending:
			if oldestPending == nil || t.CreatedAt.Before(oldestPending.CreatedAt) {
				oldestPending = t
			}
		}
	}
	if oldestInProgress != nil {
		return oldestInProgress
	}
	return oldestPending
}

// runReadyTasks computes dependency-satisfied pending tasks (limit
// ReadyLimit) and executes them: concurrently if at least two are
// parallelizable, otherwise only the head.
func (s *TaskScheduler) runReadyTasks(ctx context.Context) {
	pending, err := s.queue.ListPending(ctx)
	if err != nil {
		s.logger.Error("list pending tasks", "error", err)
		return
	}
	all, err := s.queue.List(ctx)
	if err != nil {
		s.logger.Error("list tasks", "error", err)
		return
	}
	byID := make(map[string]*models.Task, len(all))
	for _, t := range all {
		byID[t.ID] = t
	}

	var ready []readyTask
	for _, t := range pending {
		if len(ready) >= s.cfg.ReadyLimit {
			break
		}
		meta, plain, err := tasks.DecodePlanMeta(t.Description)
		if err != nil {
			s.logger.Error("decode plan metadata", "task_id", t.ID, "error", err)
			continue
		}
		if !dependenciesSatisfied(meta, byID) {
			continue
		}
		ready = append(ready, readyTask{task: t, prompt: plain, parallelizable: meta != nil && meta.Parallelizable})
	}
	if len(ready) == 0 {
		return
	}

	var parallel, serial []readyTask
	for _, r := range ready {
		if r.parallelizable {
			parallel = append(parallel, r)
		} else {
			serial = append(serial, r)
		}
	}

	if len(parallel) >= 2 {
		var wg sync.WaitGroup
		for _, r := range parallel {
			wg.Add(1)
			go func(r readyTask) {
				defer wg.Done()
				s.execute(ctx, r)
			}(r)
		}
		wg.Wait()
		for _, r := range serial {
			s.execute(ctx, r)
		}
		return
	}

	s.execute(ctx, ready[0])
}

type readyTask struct {
	task           *models.Task
	prompt         string
	parallelizable bool
}

func dependenciesSatisfied(meta *tasks.PlanMeta, byID map[string]*models.Task) bool {
	if meta == nil {
		return true
	}
	for _, depID := range meta.DependsOn {
		dep, ok := byID[depID]
		if !ok || dep.Status != models.TaskCompleted {
			return false
		}
	}
	return true
}

// execute runs one task through a fresh orchestrator instance against its
// own session, then persists the outcome.
func (s *TaskScheduler) execute(ctx context.Context, r readyTask) {
	t := r.task
	t.Status = models.TaskInProgress
	if err := s.queue.Update(ctx, t); err != nil {
		s.logger.Error("mark task in-progress", "task_id", t.ID, "error", err)
		return
	}

	o := orchestrator.New(s.cfg.OrchestratorConfig)
	resp := o.Run(ctx, orchestrator.Request{
		SessionID:           "task_" + t.ID,
		Prompt:              r.prompt,
		SourceChannel:       "scheduler",
		IsBackgroundSession: true,
	})

	t.Status = models.TaskCompleted
	t.Result = resp.Response
	if err := s.queue.Update(ctx, t); err != nil {
		s.logger.Error("complete task", "task_id", t.ID, "error", err)
		return
	}
	s.logger.Info("executed task", "task_id", t.ID, "title", t.Title)
}
