package repositories

import (
	"context"
	"time"

	"github.com/prudhvinik1/accountpurge/internal/models"
)

type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	ListStaleLogin(ctx context.Context, lastLoginBefore int64) ([]int64, error)
	ListNeverActive(ctx context.Context, createdBefore int64, excludeID int64) ([]int64, error)
	SoftDelete(ctx context.Context, id int64, username, email string, at int64, event *models.AccountEvent) error
}

type DeviceRepository interface {
	Create(ctx context.Context, device *models.Device) error
	GetDevicesByAccountID(ctx context.Context, accountID int64) ([]*models.Device, error)
	RevokeAllForAccount(ctx context.Context, accountID int64) (int64, error)
}

type AccountEventRepository interface {
	GetByAccountID(ctx context.Context, accountID int64) ([]*models.AccountEvent, error)
}

type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	ListByAccountID(ctx context.Context, accountID int64) ([]*models.Session, error)
	DeleteAllForAccount(ctx context.Context, accountID int64) error
}

type TaskRunRepository interface {
	SaveRun(ctx context.Context, run *models.TaskRun) error
	LastRun(ctx context.Context, key string) (*models.TaskRun, error)
	MarkCompleted(ctx context.Context, key string, at time.Time) error
	IsCompleted(ctx context.Context, key string) (bool, error)
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key string, token string) error
}
