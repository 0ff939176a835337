package models

// Account timestamps are unix seconds. LastLogin is 0 when the account has
// never logged in.
type Account struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	LastLogin int64  `json:"last_login"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
	Deleted   bool   `json:"deleted"`
}

// NeverLoggedIn reports whether the last-login sentinel is still unset.
func (a *Account) NeverLoggedIn() bool {
	return a.LastLogin == 0
}

// AccountDetails is the ops view of an account and the data its deletion
// cleans up.
type AccountDetails struct {
	Account       *Account        `json:"account"`
	NeverLoggedIn bool            `json:"never_logged_in"`
	Devices       []*Device       `json:"devices"`
	Sessions      []*Session      `json:"sessions"`
	Events        []*AccountEvent `json:"events"`
}
