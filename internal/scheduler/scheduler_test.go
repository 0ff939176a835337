package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prudhvinik1/accountpurge/internal/models"
	"github.com/prudhvinik1/accountpurge/internal/purge"
	"github.com/prudhvinik1/accountpurge/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryRunStore struct {
	mu        sync.Mutex
	runs      map[string]*models.TaskRun
	completed map[string]time.Time
	locks     map[string]string
	lockErr   error
	// onAcquire runs after a lock is granted, while the store is unlocked.
	onAcquire func(key string)
}

func newMemoryRunStore() *memoryRunStore {
	return &memoryRunStore{
		runs:      map[string]*models.TaskRun{},
		completed: map[string]time.Time{},
		locks:     map[string]string{},
	}
}

func (m *memoryRunStore) SaveRun(_ context.Context, run *models.TaskRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.runs[run.Key] = &cp
	return nil
}

func (m *memoryRunStore) LastRun(_ context.Context, key string) (*models.TaskRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[key]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return run, nil
}

func (m *memoryRunStore) MarkCompleted(_ context.Context, key string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed[key] = at
	return nil
}

func (m *memoryRunStore) IsCompleted(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.completed[key]
	return ok, nil
}

func (m *memoryRunStore) AcquireLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lockErr != nil {
		return "", false, m.lockErr
	}
	if _, held := m.locks[key]; held {
		return "", false, nil
	}
	m.locks[key] = "token-" + key
	token := m.locks[key]
	if m.onAcquire != nil {
		m.mu.Unlock()
		m.onAcquire(key)
		m.mu.Lock()
	}
	return token, true, nil
}

func (m *memoryRunStore) ReleaseLock(_ context.Context, key string, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] == token {
		delete(m.locks, key)
	}
	return nil
}

type fakeTask struct {
	key    string
	report purge.Report
	err    error
	calls  int
}

func (f *fakeTask) Key() string  { return f.key }
func (f *fakeTask) Name() string { return "task " + f.key }

func (f *fakeTask) Run(context.Context) (purge.Report, error) {
	f.calls++
	return f.report, f.err
}

var testNow = time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC)

func newTestScheduler(store *memoryRunStore) *Scheduler {
	return New(store, zap.NewNop(), WithClock(clockwork.NewFakeClockAt(testNow)))
}

func TestRunNow_Recurring(t *testing.T) {
	store := newMemoryRunStore()
	s := newTestScheduler(store)
	task := &fakeTask{key: "stale_login", report: purge.Report{Deleted: 4}}
	require.NoError(t, s.AddRecurring("0 3 * * *", task))

	for i := 0; i < 2; i++ {
		run, err := s.RunNow(context.Background(), "stale_login")
		require.NoError(t, err)
		assert.Equal(t, "Deleted 4 accounts.", run.Report)
		assert.True(t, run.Succeeded())
	}

	assert.Equal(t, 2, task.calls, "recurring tasks never retire")
	assert.Empty(t, store.locks, "lock released after each run")
	assert.Equal(t, "Deleted 4 accounts.", store.runs["stale_login"].Report)
	assert.Equal(t, testNow, store.runs["stale_login"].StartedAt)
}

func TestRunNow_OneTimeCompletes(t *testing.T) {
	store := newMemoryRunStore()
	s := newTestScheduler(store)
	task := &fakeTask{key: "never_active"}
	require.NoError(t, s.AddOneTime("@every 1h", task))

	run, err := s.RunNow(context.Background(), "never_active")
	require.NoError(t, err)
	assert.Equal(t, "No accounts to delete.", run.Report)
	assert.Contains(t, store.completed, "never_active")

	_, err = s.RunNow(context.Background(), "never_active")
	assert.ErrorIs(t, err, ErrTaskCompleted)
	assert.Equal(t, 1, task.calls)
}

func TestRunNow_OneTimeRetriesAfterQueryFailure(t *testing.T) {
	store := newMemoryRunStore()
	s := newTestScheduler(store)
	task := &fakeTask{key: "never_active", report: purge.Report{Err: errors.New("db offline")}}
	require.NoError(t, s.AddOneTime("@every 1h", task))

	run, err := s.RunNow(context.Background(), "never_active")
	require.NoError(t, err)
	assert.Equal(t, "Error: db offline", run.Report)
	assert.Equal(t, "db offline", run.Error)
	assert.NotContains(t, store.completed, "never_active")

	task.report = purge.Report{Deleted: 2}
	run, err = s.RunNow(context.Background(), "never_active")
	require.NoError(t, err)
	assert.Equal(t, "Deleted 2 accounts.", run.Report)
	assert.Contains(t, store.completed, "never_active")
}

func TestRunNow_TaskError(t *testing.T) {
	store := newMemoryRunStore()
	s := newTestScheduler(store)
	task := &fakeTask{key: "never_active", err: errors.New("failed to delete account 3: boom")}
	require.NoError(t, s.AddOneTime("@every 1h", task))

	run, err := s.RunNow(context.Background(), "never_active")
	require.Error(t, err)
	require.NotNil(t, run)
	assert.False(t, run.Succeeded())
	assert.Equal(t, "failed to delete account 3: boom", store.runs["never_active"].Error)
	assert.NotContains(t, store.completed, "never_active")
	assert.Empty(t, store.locks)
}

func TestRunNow_Locked(t *testing.T) {
	store := newMemoryRunStore()
	s := newTestScheduler(store)
	task := &fakeTask{key: "stale_login"}
	require.NoError(t, s.AddRecurring("0 3 * * *", task))
	store.locks["stale_login"] = "other-process"

	_, err := s.RunNow(context.Background(), "stale_login")
	assert.ErrorIs(t, err, ErrTaskLocked)
	assert.Zero(t, task.calls)
	assert.Equal(t, "other-process", store.locks["stale_login"])
}

func TestRunNow_OneTimeCompletedWhileWaitingForLock(t *testing.T) {
	store := newMemoryRunStore()
	s := newTestScheduler(store)
	task := &fakeTask{key: "never_active", report: purge.Report{Deleted: 2}}
	require.NoError(t, s.AddOneTime("@every 1h", task))

	// Another replica finishes the task between the first check and the lock
	earlier := &models.TaskRun{Key: "never_active", Report: "Deleted 2 accounts."}
	store.onAcquire = func(key string) {
		require.NoError(t, store.SaveRun(context.Background(), earlier))
		require.NoError(t, store.MarkCompleted(context.Background(), key, testNow))
	}

	// ACT
	run, err := s.RunNow(context.Background(), "never_active")

	// ASSERT: the task is not run again and the earlier report survives
	assert.ErrorIs(t, err, ErrTaskCompleted)
	assert.Nil(t, run)
	assert.Zero(t, task.calls)
	assert.Empty(t, store.locks, "lock must be released")

	last, err := store.LastRun(context.Background(), "never_active")
	require.NoError(t, err)
	assert.Equal(t, "Deleted 2 accounts.", last.Report)
}

func TestRunNow_LockStoreFailure(t *testing.T) {
	store := newMemoryRunStore()
	store.lockErr = errors.New("redis unavailable")
	s := newTestScheduler(store)
	task := &fakeTask{key: "stale_login"}
	require.NoError(t, s.AddRecurring("0 3 * * *", task))

	run, err := s.RunNow(context.Background(), "stale_login")
	assert.Nil(t, run)
	assert.ErrorContains(t, err, "redis unavailable")
	assert.Zero(t, task.calls)
}

func TestRunNow_UnknownTask(t *testing.T) {
	s := newTestScheduler(newMemoryRunStore())

	_, err := s.RunNow(context.Background(), "everyone")
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestAdd_Validation(t *testing.T) {
	s := newTestScheduler(newMemoryRunStore())

	assert.Error(t, s.AddRecurring("not a schedule", &fakeTask{key: "a"}))

	require.NoError(t, s.AddRecurring("@daily", &fakeTask{key: "b"}))
	assert.ErrorIs(t, s.AddOneTime("@hourly", &fakeTask{key: "b"}), ErrDuplicateTask)
}

func TestTasks(t *testing.T) {
	store := newMemoryRunStore()
	s := newTestScheduler(store)
	require.NoError(t, s.AddRecurring("0 3 * * *", &fakeTask{key: "stale_login", report: purge.Report{Deleted: 1}}))
	require.NoError(t, s.AddOneTime("@every 1h", &fakeTask{key: "never_active"}))

	_, err := s.RunNow(context.Background(), "never_active")
	require.NoError(t, err)

	tasks, err := s.Tasks(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	assert.Equal(t, "stale_login", tasks[0].Key)
	assert.Equal(t, "0 3 * * *", tasks[0].Schedule)
	assert.False(t, tasks[0].OneTime)
	assert.Nil(t, tasks[0].LastRun)

	assert.Equal(t, "never_active", tasks[1].Key)
	assert.True(t, tasks[1].OneTime)
	assert.True(t, tasks[1].Completed)
	require.NotNil(t, tasks[1].LastRun)
	assert.Equal(t, "No accounts to delete.", tasks[1].LastRun.Report)
}

func TestStartStop(t *testing.T) {
	s := newTestScheduler(newMemoryRunStore())
	require.NoError(t, s.AddRecurring("@every 1h", &fakeTask{key: "stale_login"}))

	s.Start(context.Background())

	tasks, err := s.Tasks(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.NotNil(t, tasks[0].NextRun)

	select {
	case <-s.Stop().Done():
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
