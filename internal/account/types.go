package account

import "time"

// Role determines both what a session can do and who workflow tasks are
// routed to. Immutable after assignment except through an admin update.
type Role string

const (
	RoleUser  Role = "User"
	RoleAdmin Role = "Admin"
)

// Status is the account lifecycle state. Only Active accounts can
// authenticate.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusActive   Status = "Active"
	StatusInactive Status = "Inactive"
)

// Account is the identity root. It owns refresh tokens and, when linked, a
// single employee record.
type Account struct {
	ID                string
	Title             string
	FirstName         string
	LastName          string
	Email             string
	PasswordHash      string
	Role              Role
	Status            Status
	VerificationToken *string
	VerifiedAt        *time.Time
	ResetToken        *string
	ResetTokenExpires *time.Time
	PasswordResetAt   *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Verified reports whether the account confirmed its email address.
func (a *Account) Verified() bool {
	return a.VerifiedAt != nil
}

// RefreshToken is a persisted, single-use credential forming a linked
// revocation chain: rotating a token revokes it and records its successor in
// the same transaction. A superseded token is never mutated again.
type RefreshToken struct {
	Token           string
	AccountID       string
	ExpiresAt       time.Time
	CreatedAt       time.Time
	CreatedByIP     string
	RevokedAt       *time.Time
	RevokedByIP     *string
	ReplacedByToken *string
}

// Active reports whether the token may still be used: not revoked and not
// expired.
func (t *RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// Identity is the claim set carried by access tokens. The workflow engine
// trusts it verbatim.
type Identity struct {
	ID    string
	Email string
	Role  Role
}

// IsAdmin reports whether the identity carries the Admin role.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// AuthResult is returned by Authenticate and Refresh.
type AuthResult struct {
	Identity        Identity
	AccessToken     string
	AccessExpiresAt time.Time
	RefreshToken    string
	RefreshExpires  time.Time
}
