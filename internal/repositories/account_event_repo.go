package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/accountpurge/internal/models"
)

type PostgresAccountEventRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresAccountEventRepository(pool *pgxpool.Pool) *PostgresAccountEventRepository {
	return &PostgresAccountEventRepository{pool: pool}
}

// rowQuerier is satisfied by both the pool and a transaction.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertAccountEvent(ctx context.Context, q rowQuerier, event *models.AccountEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	payload := event.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	query := `INSERT INTO account_events (id, account_id, event_type, payload)
	          VALUES ($1, $2, $3, $4)
	          RETURNING created_at`

	err := q.QueryRow(ctx, query, event.ID, event.AccountID, event.EventType, string(payload)).
		Scan(&event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append account event: %w", err)
	}
	event.Payload = payload
	return nil
}

func (r *PostgresAccountEventRepository) GetByAccountID(ctx context.Context, accountID int64) ([]*models.AccountEvent, error) {
	query := `SELECT id, account_id, event_type, payload, created_at
	          FROM account_events
	          WHERE account_id = $1
	          ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query account events: %w", err)
	}
	defer rows.Close()

	var events []*models.AccountEvent
	for rows.Next() {
		var event models.AccountEvent
		var payload []byte
		if err := rows.Scan(&event.ID, &event.AccountID, &event.EventType, &payload, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account event: %w", err)
		}
		event.Payload = payload
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account events: %w", err)
	}

	return events, nil
}
