package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prudhvinik1/accountpurge/internal/models"
	"github.com/prudhvinik1/accountpurge/internal/purge"
	"github.com/prudhvinik1/accountpurge/internal/repositories"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var (
	ErrUnknownTask   = errors.New("unknown task")
	ErrDuplicateTask = errors.New("task already registered")
	ErrTaskLocked    = errors.New("task is already running")
	ErrTaskCompleted = errors.New("one-time task already completed")
)

const DefaultLockTTL = 30 * time.Minute

type entry struct {
	task     purge.Task
	schedule string
	oneTime  bool
	id       cron.EntryID
}

// TaskStatus describes a registered task for reporting.
type TaskStatus struct {
	Key       string          `json:"key"`
	Name      string          `json:"name"`
	Schedule  string          `json:"schedule"`
	OneTime   bool            `json:"one_time"`
	Completed bool            `json:"completed"`
	NextRun   *time.Time      `json:"next_run,omitempty"`
	LastRun   *models.TaskRun `json:"last_run,omitempty"`
}

// Scheduler runs purge tasks on cron schedules. Every run holds a lock in
// the run store, so overlapping runs of one task are skipped even across
// processes.
type Scheduler struct {
	cron    *cron.Cron
	runs    repositories.TaskRunRepository
	clock   clockwork.Clock
	logger  *zap.Logger
	lockTTL time.Duration

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	baseCtx context.Context
}

type Option func(*Scheduler)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Scheduler) { s.clock = clock }
}

func WithLockTTL(ttl time.Duration) Option {
	return func(s *Scheduler) { s.lockTTL = ttl }
}

func New(runs repositories.TaskRunRepository, logger *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		runs:    runs,
		clock:   clockwork.NewRealClock(),
		logger:  logger,
		lockTTL: DefaultLockTTL,
		entries: make(map[string]*entry),
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}

	cl := cronLogger{logger: logger.Sugar()}
	s.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return s
}

// AddRecurring runs task on every tick of the standard cron spec.
func (s *Scheduler) AddRecurring(spec string, task purge.Task) error {
	return s.add(spec, task, false)
}

// AddOneTime polls task on spec until one run succeeds, then retires it.
// Completion is persisted, so a restarted process does not run it again.
func (s *Scheduler) AddOneTime(spec string, task purge.Task) error {
	return s.add(spec, task, true)
}

func (s *Scheduler) add(spec string, task purge.Task, oneTime bool) error {
	key := task.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, key)
	}

	id, err := s.cron.AddFunc(spec, func() { s.runScheduled(key) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for task %s: %w", spec, key, err)
	}

	s.entries[key] = &entry{task: task, schedule: spec, oneTime: oneTime, id: id}
	s.order = append(s.order, key)
	return nil
}

// Start begins running scheduled tasks; ctx is passed to every run.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", zap.Strings("tasks", s.keys()))
}

// Stop halts scheduling. The returned context is done once running tasks
// have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runScheduled(key string) {
	s.mu.RLock()
	ctx := s.baseCtx
	s.mu.RUnlock()

	run, err := s.RunNow(ctx, key)
	switch {
	case err == nil:
	case errors.Is(err, ErrTaskCompleted):
		s.logger.Debug("one-time task already completed", zap.String("task", key))
	case errors.Is(err, ErrTaskLocked):
		s.logger.Info("task skipped, another run holds the lock", zap.String("task", key))
	case run == nil:
		// The task never started; failed runs are logged by RunNow.
		s.logger.Error("scheduled run aborted", zap.String("task", key), zap.Error(err))
	}
}

// RunNow runs a task immediately and records the run.
func (s *Scheduler) RunNow(ctx context.Context, key string) (*models.TaskRun, error) {
	e, ok := s.entry(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, key)
	}

	if err := s.checkCompleted(ctx, e); err != nil {
		return nil, err
	}

	token, ok, err := s.runs.AcquireLock(ctx, key, s.lockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTaskLocked
	}
	defer func() {
		// Released with a fresh context so a cancelled run still unlocks.
		if err := s.runs.ReleaseLock(context.WithoutCancel(ctx), key, token); err != nil {
			s.logger.Warn("failed to release task lock", zap.String("task", key), zap.Error(err))
		}
	}()

	// Another replica may have completed the task while we waited for the lock
	if err := s.checkCompleted(ctx, e); err != nil {
		return nil, err
	}

	run := &models.TaskRun{Key: key, Name: e.task.Name(), StartedAt: s.clock.Now()}
	report, runErr := e.task.Run(ctx)
	run.FinishedAt = s.clock.Now()

	switch {
	case runErr != nil:
		run.Error = runErr.Error()
	case report.Failed():
		run.Report = report.String()
		run.Error = report.Err.Error()
	default:
		run.Report = report.String()
	}

	if err := s.runs.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Warn("failed to record task run", zap.String("task", key), zap.Error(err))
	}

	fields := []zap.Field{
		zap.String("task", key),
		zap.String("report", run.Report),
		zap.Duration("duration", run.FinishedAt.Sub(run.StartedAt)),
	}
	if runErr != nil {
		s.logger.Error("task failed", append(fields, zap.Error(runErr))...)
		return run, fmt.Errorf("task %s failed: %w", key, runErr)
	}
	if report.Failed() {
		s.logger.Warn("task finished with errors", fields...)
	} else {
		s.logger.Info("task finished", fields...)
	}

	if e.oneTime && run.Succeeded() {
		if err := s.runs.MarkCompleted(context.WithoutCancel(ctx), key, run.FinishedAt); err != nil {
			s.logger.Warn("failed to mark one-time task completed", zap.String("task", key), zap.Error(err))
		} else {
			s.cron.Remove(e.id)
		}
	}

	return run, nil
}

// Tasks reports every registered task in registration order.
func (s *Scheduler) Tasks(ctx context.Context) ([]TaskStatus, error) {
	var out []TaskStatus
	for _, key := range s.keys() {
		e, _ := s.entry(key)

		status := TaskStatus{
			Key:      key,
			Name:     e.task.Name(),
			Schedule: e.schedule,
			OneTime:  e.oneTime,
		}

		if e.oneTime {
			done, err := s.runs.IsCompleted(ctx, key)
			if err != nil {
				return nil, err
			}
			status.Completed = done
		}

		if next := s.cron.Entry(e.id).Next; !next.IsZero() && !status.Completed {
			status.NextRun = &next
		}

		last, err := s.runs.LastRun(ctx, key)
		switch {
		case errors.Is(err, repositories.ErrNotFound):
		case err != nil:
			return nil, err
		default:
			status.LastRun = last
		}

		out = append(out, status)
	}
	return out, nil
}

func (s *Scheduler) entry(key string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

func (s *Scheduler) keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// checkCompleted returns ErrTaskCompleted for a one-time task that already
// finished.
func (s *Scheduler) checkCompleted(ctx context.Context, e *entry) error {
	if !e.oneTime {
		return nil
	}
	done, err := s.runs.IsCompleted(ctx, e.task.Key())
	if err != nil {
		return err
	}
	if done {
		return ErrTaskCompleted
	}
	return nil
}

// cronLogger routes cron's own logging into zap. Schedule chatter goes to
// debug.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
