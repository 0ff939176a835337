package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/accountpurge/internal/models"
	"github.com/redis/go-redis/v9"
)

const taskKeyPrefix = "task:"

// Deletes the lock only if it still holds the caller's token.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisTaskRunRepository keeps scheduler bookkeeping: the last run of each
// task, completion markers for one-time tasks and run locks.
type RedisTaskRunRepository struct {
	client *redis.Client
}

func NewRedisTaskRunRepository(client *redis.Client) *RedisTaskRunRepository {
	return &RedisTaskRunRepository{client: client}
}

func (r *RedisTaskRunRepository) SaveRun(ctx context.Context, run *models.TaskRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal task run: %w", err)
	}

	if err := r.client.Set(ctx, taskKey(run.Key, "last"), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save task run: %w", err)
	}
	return nil
}

func (r *RedisTaskRunRepository) LastRun(ctx context.Context, key string) (*models.TaskRun, error) {
	data, err := r.client.Get(ctx, taskKey(key, "last")).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task run: %w", err)
	}

	var run models.TaskRun
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task run: %w", err)
	}
	return &run, nil
}

func (r *RedisTaskRunRepository) MarkCompleted(ctx context.Context, key string, at time.Time) error {
	err := r.client.Set(ctx, taskKey(key, "completed"), at.UTC().Format(time.RFC3339), 0).Err()
	if err != nil {
		return fmt.Errorf("failed to mark task completed: %w", err)
	}
	return nil
}

func (r *RedisTaskRunRepository) IsCompleted(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, taskKey(key, "completed")).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check task completion: %w", err)
	}
	return n > 0, nil
}

// AcquireLock takes the run lock for a task. The returned token must be
// passed to ReleaseLock; ok is false when another run holds the lock.
func (r *RedisTaskRunRepository) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, taskKey(key, "lock"), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire task lock: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (r *RedisTaskRunRepository) ReleaseLock(ctx context.Context, key string, token string) error {
	err := releaseLockScript.Run(ctx, r.client, []string{taskKey(key, "lock")}, token).Err()
	if err != nil {
		return fmt.Errorf("failed to release task lock: %w", err)
	}
	return nil
}

func taskKey(key, suffix string) string {
	return taskKeyPrefix + key + ":" + suffix
}
