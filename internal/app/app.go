package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prudhvinik1/accountpurge/internal/config"
	"github.com/prudhvinik1/accountpurge/internal/database"
	"github.com/prudhvinik1/accountpurge/internal/purge"
	"github.com/prudhvinik1/accountpurge/internal/repositories"
	"github.com/prudhvinik1/accountpurge/internal/scheduler"
	"github.com/prudhvinik1/accountpurge/internal/services"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// App holds the wired purge stack shared by the daemon and the CLI.
type App struct {
	Postgres  *pgxpool.Pool
	Redis     *redis.Client
	Scheduler *scheduler.Scheduler
	Accounts  *services.AccountService
	Auth      *services.AdminAuth
}

func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if cfg.RunMigrations {
		if err := database.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
			pool.Close()
			return nil, err
		}
	}

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	clock := clockwork.NewRealClock()

	accountRepo := repositories.NewPostgresAccountRepository(pool)
	accounts := services.NewAccountService(
		accountRepo,
		repositories.NewPostgresDeviceRepository(pool),
		repositories.NewRedisSessionRepository(redisClient),
		repositories.NewPostgresAccountEventRepository(pool),
		clock,
		log.Named("accounts"),
	)

	newPurger := func(policy purge.Policy) *purge.Purger {
		return purge.New(policy, accountRepo, accounts,
			purge.WithRootAccountID(cfg.RootAccountID),
			purge.WithClock(clock),
			purge.WithLogger(log.Named("purge")),
		)
	}

	sched := scheduler.New(
		repositories.NewRedisTaskRunRepository(redisClient),
		log.Named("scheduler"),
		scheduler.WithClock(clock),
		scheduler.WithLockTTL(cfg.TaskLockTTL),
	)
	if err := sched.AddRecurring(cfg.StaleLoginSchedule, newPurger(purge.StaleLogin)); err != nil {
		redisClient.Close()
		pool.Close()
		return nil, err
	}
	if err := sched.AddOneTime(cfg.NeverActiveSchedule, newPurger(purge.NeverActive)); err != nil {
		redisClient.Close()
		pool.Close()
		return nil, err
	}

	return &App{
		Postgres:  pool,
		Redis:     redisClient,
		Scheduler: sched,
		Accounts:  accounts,
		Auth:      services.NewAdminAuth(cfg.AdminJWTSecret),
	}, nil
}

func (a *App) Close() {
	a.Redis.Close()
	a.Postgres.Close()
}
