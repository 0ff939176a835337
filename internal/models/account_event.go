package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const EventAccountDeleted = "account_deleted"

// AccountEvent is an append-only audit record about an account.
type AccountEvent struct {
	ID        uuid.UUID       `json:"id"`
	AccountID int64           `json:"account_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// AccountDeletedPayload snapshots the identifying fields an account had
// before deletion scrambled them.
type AccountDeletedPayload struct {
	AccountID int64  `json:"account_id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	DeletedAt int64  `json:"deleted_at"`
}
