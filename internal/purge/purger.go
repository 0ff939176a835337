package purge

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/prudhvinik1/accountpurge/internal/models"
	"github.com/prudhvinik1/accountpurge/internal/repositories"
	"go.uber.org/zap"
)

// DefaultRootAccountID is the administrative account NeverActive skips.
const DefaultRootAccountID int64 = 1

// AccountStore is the data access a purge run needs. GetByID returns
// repositories.ErrNotFound for missing accounts.
type AccountStore interface {
	ListStaleLogin(ctx context.Context, lastLoginBefore int64) ([]int64, error)
	ListNeverActive(ctx context.Context, createdBefore int64, excludeID int64) ([]int64, error)
	GetByID(ctx context.Context, id int64) (*models.Account, error)
}

// AccountDeleter performs the actual account deletion, related-data cleanup
// included.
type AccountDeleter interface {
	DeleteAccount(ctx context.Context, account *models.Account) error
}

// Task is a named unit of scheduled work.
type Task interface {
	Key() string
	Name() string
	Run(ctx context.Context) (Report, error)
}

type Purger struct {
	policy        Policy
	store         AccountStore
	deleter       AccountDeleter
	rootAccountID int64
	clock         clockwork.Clock
	logger        *zap.Logger
}

type Option func(*Purger)

func WithRootAccountID(id int64) Option {
	return func(p *Purger) { p.rootAccountID = id }
}

func WithClock(clock clockwork.Clock) Option {
	return func(p *Purger) { p.clock = clock }
}

func WithLogger(logger *zap.Logger) Option {
	return func(p *Purger) { p.logger = logger }
}

func New(policy Policy, store AccountStore, deleter AccountDeleter, opts ...Option) *Purger {
	p := &Purger{
		policy:        policy,
		store:         store,
		deleter:       deleter,
		rootAccountID: DefaultRootAccountID,
		clock:         clockwork.NewRealClock(),
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("policy", policy.Key()))
	return p
}

func (p *Purger) Key() string {
	return p.policy.Key()
}

func (p *Purger) Name() string {
	return p.policy.Name()
}

// Run deletes every account matching the policy. Failures while selecting or
// re-reading accounts end the run with a failed Report and a nil error.
// Deletion failures are returned as errors; accounts deleted before the
// failure stay deleted.
func (p *Purger) Run(ctx context.Context) (Report, error) {
	report := Report{Policy: p.policy}
	cutoff := p.policy.Cutoff(p.clock.Now())

	ids, err := p.policy.candidates(ctx, p.store, cutoff, p.rootAccountID)
	if err != nil {
		p.logger.Warn("candidate query failed", zap.Error(err))
		report.Err = err
		return report, nil
	}

	p.logger.Debug("purge candidates selected",
		zap.Int("count", len(ids)),
		zap.Time("cutoff", cutoff),
	)

	for _, id := range ids {
		// The row may have changed since the query ran.
		account, err := p.store.GetByID(ctx, id)
		if errors.Is(err, repositories.ErrNotFound) {
			continue
		}
		if err != nil {
			p.logger.Warn("account lookup failed", zap.Int64("account_id", id), zap.Error(err))
			report.Err = err
			return report, nil
		}

		if err := p.deleter.DeleteAccount(ctx, account); err != nil {
			return report, fmt.Errorf("failed to delete account %d: %w", id, err)
		}
	}

	// Counts every selected candidate, including ones skipped above.
	report.Deleted = len(ids)
	return report, nil
}
