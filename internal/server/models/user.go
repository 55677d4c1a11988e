// Package models defines the persistent records of the credential service.
package models

import (
	"encoding/json"
	"time"
)

// RoleGeneralUser is the role assigned to every self-registered account.
const RoleGeneralUser = "general_user"

// User is the identity record of one account within an audience (tenant).
//
// ConfirmationToken is set while the account is pending activation and is
// cleared exactly once, when the account is confirmed. ConfirmedAt being
// non-nil means the account is activated.
type User struct {
	ID                 string
	Aud                string
	Email              string
	Role               string
	EncryptedPassword  string
	RawUserMetaData    json.RawMessage
	ConfirmationToken  *string
	ConfirmationSentAt *time.Time
	ConfirmedAt        *time.Time
	InvitedAt          *time.Time
	LastSignInAt       *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsConfirmed reports whether the account has been activated.
func (u *User) IsConfirmed() bool {
	return u.ConfirmedAt != nil
}
