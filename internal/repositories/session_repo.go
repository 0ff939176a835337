package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prudhvinik1/accountpurge/internal/models"
	"github.com/redis/go-redis/v9"
)

const sessionPrefix = "session:"
const accountSessionsPrefix = "account:%d:sessions"

type RedisSessionRepository struct {
	client *redis.Client
}

func NewRedisSessionRepository(client *redis.Client) *RedisSessionRepository {
	return &RedisSessionRepository{client: client}
}

func (r *RedisSessionRepository) Create(ctx context.Context, session *models.Session) error {
	jsonData, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired", session.ID)
	}

	err = r.client.Set(ctx, sessionKey(session.ID), jsonData, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}

	// Secondary index so all sessions of an account can be killed at once
	err = r.client.SAdd(ctx, accountSessionsKey(session.AccountID), session.ID).Err()
	if err != nil {
		return fmt.Errorf("failed to add session to account sessions: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	jsonData, err := r.client.Get(ctx, sessionKey(id)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal([]byte(jsonData), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// ListByAccountID returns live sessions and drops expired ids from the index.
func (r *RedisSessionRepository) ListByAccountID(ctx context.Context, accountID int64) ([]*models.Session, error) {
	accountKey := accountSessionsKey(accountID)
	sessionIDs, err := r.client.SMembers(ctx, accountKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get account sessions: %w", err)
	}

	var sessions []*models.Session
	var expiredIDs []interface{}

	for _, id := range sessionIDs {
		session, err := r.GetByID(ctx, id)
		if errors.Is(err, ErrNotFound) {
			expiredIDs = append(expiredIDs, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	if len(expiredIDs) > 0 {
		if err := r.client.SRem(ctx, accountKey, expiredIDs...).Err(); err != nil {
			return nil, fmt.Errorf("failed to remove expired sessions: %w", err)
		}
	}
	return sessions, nil
}

// DeleteAllForAccount kills every session of the account, including ids
// whose session key already expired, then removes the index itself.
func (r *RedisSessionRepository) DeleteAllForAccount(ctx context.Context, accountID int64) error {
	accountKey := accountSessionsKey(accountID)
	sessionIDs, err := r.client.SMembers(ctx, accountKey).Result()
	if err != nil {
		return fmt.Errorf("failed to get account sessions: %w", err)
	}

	keys := make([]string, 0, len(sessionIDs)+1)
	for _, id := range sessionIDs {
		keys = append(keys, sessionKey(id))
	}
	keys = append(keys, accountKey)

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete account sessions: %w", err)
	}
	return nil
}

func sessionKey(id string) string {
	return sessionPrefix + id
}

func accountSessionsKey(accountID int64) string {
	return fmt.Sprintf(accountSessionsPrefix, accountID)
}
