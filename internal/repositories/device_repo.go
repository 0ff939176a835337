package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/accountpurge/internal/models"
)

type PostgresDeviceRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresDeviceRepository(pool *pgxpool.Pool) *PostgresDeviceRepository {
	return &PostgresDeviceRepository{pool: pool}
}

func (r *PostgresDeviceRepository) Create(ctx context.Context, device *models.Device) error {
	if device.ID == uuid.Nil {
		device.ID = uuid.New()
	}

	query := `INSERT INTO devices (id, account_id, name, device_type)
	          VALUES ($1, $2, $3, $4)
	          RETURNING created_at`

	err := r.pool.QueryRow(ctx, query,
		device.ID,
		device.AccountID,
		device.Name,
		device.DeviceType,
	).Scan(&device.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}
	return nil
}

func (r *PostgresDeviceRepository) GetDevicesByAccountID(ctx context.Context, accountID int64) ([]*models.Device, error) {
	query := `SELECT id, account_id, name, device_type, last_seen_at, revoked_at, created_at
	          FROM devices
	          WHERE account_id = $1
	          ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []*models.Device
	for rows.Next() {
		var device models.Device
		err := rows.Scan(
			&device.ID,
			&device.AccountID,
			&device.Name,
			&device.DeviceType,
			&device.LastSeenAt,
			&device.RevokedAt,
			&device.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, &device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating devices: %w", err)
	}

	return devices, nil
}

// RevokeAllForAccount revokes every device of the account that is not
// revoked yet and returns how many were touched.
func (r *PostgresDeviceRepository) RevokeAllForAccount(ctx context.Context, accountID int64) (int64, error) {
	query := `UPDATE devices
	          SET revoked_at = $1
	          WHERE account_id = $2 AND revoked_at IS NULL`

	result, err := r.pool.Exec(ctx, query, time.Now(), accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke devices: %w", err)
	}
	return result.RowsAffected(), nil
}
