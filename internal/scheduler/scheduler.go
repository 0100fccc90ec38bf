// Package scheduler runs the periodic sweeps on cron schedules.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"visadesk/internal/config"
)

// TaskHandler is one schedulable unit of background work.
type TaskHandler interface {
	Name() string
	Execute(ctx context.Context) error
}

// ScheduledTask tracks one registered task and its run statistics.
type ScheduledTask struct {
	ID          string
	Name        string
	Schedule    string
	Handler     TaskHandler
	Enabled     bool
	LastRun     time.Time
	NextRun     time.Time
	RunCount    int64
	ErrorCount  int64
	cronEntryID cron.EntryID
}

// Scheduler registers sweep tasks with a cron runner. Schedules use
// six-field expressions with a leading seconds column.
type Scheduler struct {
	config     *config.SchedulerConfig
	logger     *zap.Logger
	cron       *cron.Cron
	tasks      map[string]*ScheduledTask
	tasksMutex sync.RWMutex
}

// New creates a scheduler.
func New(cfg *config.SchedulerConfig, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		config: cfg,
		logger: logger.Named("scheduler"),
		cron:   cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
		tasks:  make(map[string]*ScheduledTask),
	}
}

// Register adds a task. Disabled tasks are kept for manual runs but never
// scheduled.
func (s *Scheduler) Register(id, schedule string, enabled bool, handler TaskHandler) error {
	s.tasksMutex.Lock()
	defer s.tasksMutex.Unlock()

	if _, exists := s.tasks[id]; exists {
		return errors.Errorf("task %s already registered", id)
	}

	task := &ScheduledTask{
		ID:       id,
		Name:     handler.Name(),
		Schedule: schedule,
		Handler:  handler,
		Enabled:  enabled,
	}
	s.tasks[id] = task

	if !enabled {
		s.logger.Info("Task registered but disabled", zap.String("task_id", id))
		return nil
	}

	entryID, err := s.cron.AddFunc(schedule, func() { s.executeTask(task) })
	if err != nil {
		delete(s.tasks, id)
		return errors.Wrapf(err, "failed to schedule task %s", id)
	}
	task.cronEntryID = entryID

	s.logger.Info("Task scheduled",
		zap.String("task_id", id),
		zap.String("schedule", schedule))
	return nil
}

// Start begins running scheduled tasks.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started", zap.Int("tasks", len(s.tasks)))
}

// Stop halts scheduling and waits for running tasks to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

// ExecuteTaskNow runs a task immediately, outside its schedule. Used by
// the on-demand sweep endpoints.
func (s *Scheduler) ExecuteTaskNow(taskID string) error {
	s.tasksMutex.RLock()
	task, exists := s.tasks[taskID]
	s.tasksMutex.RUnlock()

	if !exists {
		return errors.Errorf("task %s not found", taskID)
	}
	go s.executeTask(task)
	return nil
}

// Stats returns run statistics for every registered task.
func (s *Scheduler) Stats() []map[string]interface{} {
	s.tasksMutex.RLock()
	defer s.tasksMutex.RUnlock()

	stats := make([]map[string]interface{}, 0, len(s.tasks))
	for _, task := range s.tasks {
		next := task.NextRun
		if task.cronEntryID != 0 {
			next = s.cron.Entry(task.cronEntryID).Next
		}
		stats = append(stats, map[string]interface{}{
			"id":         task.ID,
			"name":       task.Name,
			"schedule":   task.Schedule,
			"enabled":    task.Enabled,
			"lastRun":    task.LastRun,
			"nextRun":    next,
			"runCount":   task.RunCount,
			"errorCount": task.ErrorCount,
		})
	}
	return stats
}

func (s *Scheduler) executeTask(task *ScheduledTask) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	start := time.Now()
	// Stats reads the counters under RLock; take the write lock here.
	s.tasksMutex.Lock()
	task.LastRun = start
	task.RunCount++
	s.tasksMutex.Unlock()

	s.logger.Debug("Executing task", zap.String("task_id", task.ID))

	if err := task.Handler.Execute(ctx); err != nil {
		s.tasksMutex.Lock()
		task.ErrorCount++
		s.tasksMutex.Unlock()
		s.logger.Error("Task failed",
			zap.String("task_id", task.ID),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return
	}

	s.logger.Debug("Task completed",
		zap.String("task_id", task.ID),
		zap.Duration("duration", time.Since(start)))
}
