package models

import "time"

// RefreshToken is the rotation unit of a session: a long-lived, single-use
// bearer secret. Revoked is monotonic — once true the row never becomes
// active again and its token value must never authorize a new session.
// Revoked rows are kept for audit; logout deletes a user's rows instead.
type RefreshToken struct {
	ID        string
	Token     string
	UserID    string
	Revoked   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
