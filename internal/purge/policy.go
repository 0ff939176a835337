package purge

import (
	"context"
	"fmt"
	"time"

	"github.com/prudhvinik1/accountpurge/internal/models"
)

// Policy selects which accounts a purge run deletes.
type Policy int

const (
	// StaleLogin matches accounts whose last login is more than three
	// calendar years old. Accounts that never logged in are not matched.
	StaleLogin Policy = iota + 1
	// NeverActive matches accounts that never logged in and were created
	// more than six 30-day months ago. The root account is never matched.
	NeverActive
)

// sixMonths approximates six months as 180 days.
const sixMonths = 6 * 30 * 24 * time.Hour

func (p Policy) Key() string {
	switch p {
	case StaleLogin:
		return "stale_login"
	case NeverActive:
		return "never_active"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

func (p Policy) Name() string {
	switch p {
	case StaleLogin:
		return "Purge accounts inactive for over three years"
	case NeverActive:
		return "Purge never-used accounts older than six months"
	default:
		return p.Key()
	}
}

func (p Policy) String() string {
	return p.Key()
}

// Cutoff returns the instant before which an account is old enough to purge.
func (p Policy) Cutoff(now time.Time) time.Time {
	switch p {
	case StaleLogin:
		return now.AddDate(-3, 0, 0)
	case NeverActive:
		return now.Add(-sixMonths)
	default:
		return now
	}
}

// Matches evaluates the policy predicate against a single account. It is
// the reference for the SQL the account store runs.
func (p Policy) Matches(a *models.Account, cutoff time.Time, rootAccountID int64) bool {
	if a == nil || a.Deleted {
		return false
	}
	switch p {
	case StaleLogin:
		return a.LastLogin != 0 && a.LastLogin < cutoff.Unix()
	case NeverActive:
		return a.LastLogin == 0 && a.CreatedAt < cutoff.Unix() && a.ID != rootAccountID
	default:
		return false
	}
}

func (p Policy) candidates(ctx context.Context, store AccountStore, cutoff time.Time, rootAccountID int64) ([]int64, error) {
	switch p {
	case StaleLogin:
		return store.ListStaleLogin(ctx, cutoff.Unix())
	case NeverActive:
		return store.ListNeverActive(ctx, cutoff.Unix(), rootAccountID)
	default:
		return nil, fmt.Errorf("unknown purge policy %d", int(p))
	}
}

// ParsePolicy maps a policy key back to its Policy.
func ParsePolicy(key string) (Policy, error) {
	for _, p := range []Policy{StaleLogin, NeverActive} {
		if p.Key() == key {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown purge policy %q", key)
}
