package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/accountpurge/internal/models"
)

var ErrNotFound = errors.New("not found")

type PostgresAccountRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresAccountRepository(pool *pgxpool.Pool) *PostgresAccountRepository {
	return &PostgresAccountRepository{pool: pool}
}

func (r *PostgresAccountRepository) Create(ctx context.Context, account *models.Account) error {
	if account.CreatedAt == 0 {
		account.CreatedAt = time.Now().Unix()
	}
	account.UpdatedAt = account.CreatedAt

	query := `INSERT INTO accounts (username, email, last_login, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING id`

	err := r.pool.QueryRow(ctx, query,
		account.Username,
		account.Email,
		account.LastLogin,
		account.CreatedAt,
		account.UpdatedAt,
	).Scan(&account.ID)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetByID returns the account whether or not it is flagged deleted.
func (r *PostgresAccountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT id, username, email, last_login, created_at, updated_at, deleted FROM accounts WHERE id = $1`

	var account models.Account
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&account.LastLogin,
		&account.CreatedAt,
		&account.UpdatedAt,
		&account.Deleted,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

func (r *PostgresAccountRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return exists, nil
}

// ListStaleLogin returns ids of live accounts that have logged in at least
// once, last before the given unix time.
func (r *PostgresAccountRepository) ListStaleLogin(ctx context.Context, lastLoginBefore int64) ([]int64, error) {
	query := `SELECT id FROM accounts
	          WHERE last_login != 0 AND last_login < $1 AND NOT deleted
	          ORDER BY id ASC`

	return r.listIDs(ctx, query, lastLoginBefore)
}

// ListNeverActive returns ids of live accounts that never logged in and were
// created before the given unix time, skipping excludeID.
func (r *PostgresAccountRepository) ListNeverActive(ctx context.Context, createdBefore int64, excludeID int64) ([]int64, error) {
	query := `SELECT id FROM accounts
	          WHERE last_login = 0 AND created_at < $1 AND id != $2 AND NOT deleted
	          ORDER BY id ASC`

	return r.listIDs(ctx, query, createdBefore, excludeID)
}

func (r *PostgresAccountRepository) listIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan account ids: %w", err)
	}
	return ids, nil
}

// SoftDelete flags the account deleted, replaces its identifying fields and
// records the event in the same transaction. ErrNotFound means the account is
// missing or was already deleted; nothing is written in that case.
func (r *PostgresAccountRepository) SoftDelete(ctx context.Context, id int64, username, email string, at int64, event *models.AccountEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `UPDATE accounts
	          SET deleted = TRUE, username = $1, email = $2, updated_at = $3
	          WHERE id = $4 AND NOT deleted`

	result, err := tx.Exec(ctx, query, username, email, at, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	if event != nil {
		if err := insertAccountEvent(ctx, tx, event); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit account deletion: %w", err)
	}
	return nil
}
