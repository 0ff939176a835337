package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jonboulle/clockwork"
	"github.com/prudhvinik1/accountpurge/internal/models"
	"github.com/prudhvinik1/accountpurge/internal/repositories"
	"go.uber.org/zap"
)

// maxUsernameAttempts bounds the search for a free tombstone username.
const maxUsernameAttempts = 100

// AccountService owns account deletion and the ops view of an account.
type AccountService struct {
	accountRepo repositories.AccountRepository
	deviceRepo  repositories.DeviceRepository
	sessionRepo repositories.SessionRepository
	eventRepo   repositories.AccountEventRepository
	clock       clockwork.Clock
	logger      *zap.Logger
}

func NewAccountService(
	accountRepo repositories.AccountRepository,
	deviceRepo repositories.DeviceRepository,
	sessionRepo repositories.SessionRepository,
	eventRepo repositories.AccountEventRepository,
	clock clockwork.Clock,
	logger *zap.Logger,
) *AccountService {
	return &AccountService{
		accountRepo: accountRepo,
		deviceRepo:  deviceRepo,
		sessionRepo: sessionRepo,
		eventRepo:   eventRepo,
		clock:       clock,
		logger:      logger,
	}
}

// DeleteAccount revokes the account's devices, kills its sessions, then
// soft-deletes it and records the deletion event in one transaction. A failure
// before the soft-delete leaves the account live so a later run retries it.
// Accounts that are already deleted, including ones deleted concurrently by
// another run, are left untouched.
func (s *AccountService) DeleteAccount(ctx context.Context, account *models.Account) error {
	if account == nil {
		return errors.New("account is nil")
	}
	if account.Deleted {
		s.logger.Debug("account already deleted", zap.Int64("account_id", account.ID))
		return nil
	}

	now := s.clock.Now().Unix()

	tombstone, err := s.tombstoneUsername(ctx, account, now)
	if err != nil {
		return err
	}

	revoked, err := s.deviceRepo.RevokeAllForAccount(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("failed to revoke devices of account %d: %w", account.ID, err)
	}

	if err := s.sessionRepo.DeleteAllForAccount(ctx, account.ID); err != nil {
		return fmt.Errorf("failed to kill sessions of account %d: %w", account.ID, err)
	}

	payload, err := json.Marshal(models.AccountDeletedPayload{
		AccountID: account.ID,
		Username:  account.Username,
		Email:     account.Email,
		DeletedAt: now,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal deletion event: %w", err)
	}

	event := &models.AccountEvent{
		AccountID: account.ID,
		EventType: models.EventAccountDeleted,
		Payload:   payload,
	}
	err = s.accountRepo.SoftDelete(ctx, account.ID, tombstone, md5Hex(account.Username), now, event)
	if errors.Is(err, repositories.ErrNotFound) {
		s.logger.Debug("account deleted concurrently", zap.Int64("account_id", account.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to soft-delete account %d: %w", account.ID, err)
	}

	s.logger.Info("account deleted",
		zap.Int64("account_id", account.ID),
		zap.Int64("devices_revoked", revoked),
	)
	return nil
}

// GetAccountDetails gathers an account with its devices, live sessions and
// audit events.
func (s *AccountService) GetAccountDetails(ctx context.Context, id int64) (*models.AccountDetails, error) {
	account, err := s.accountRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	devices, err := s.deviceRepo.GetDevicesByAccountID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices of account %d: %w", id, err)
	}

	sessions, err := s.sessionRepo.ListByAccountID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions of account %d: %w", id, err)
	}

	events, err := s.eventRepo.GetByAccountID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list events of account %d: %w", id, err)
	}

	details := &models.AccountDetails{
		Account:       account,
		NeverLoggedIn: account.NeverLoggedIn(),
		Devices:       devices,
		Sessions:      sessions,
		Events:        events,
	}
	if details.Devices == nil {
		details.Devices = []*models.Device{}
	}
	if details.Sessions == nil {
		details.Sessions = []*models.Session{}
	}
	if details.Events == nil {
		details.Events = []*models.AccountEvent{}
	}
	return details, nil
}

// tombstoneUsername frees the username by replacing it with
// "<email>.<unix time>", bumping the time suffix until it is unused.
func (s *AccountService) tombstoneUsername(ctx context.Context, account *models.Account, now int64) (string, error) {
	for i := int64(0); i < maxUsernameAttempts; i++ {
		candidate := account.Email + "." + strconv.FormatInt(now+i, 10)
		exists, err := s.accountRepo.UsernameExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to pick tombstone username for account %d: %w", account.ID, err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free tombstone username for account %d", account.ID)
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
