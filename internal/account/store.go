package account

import (
	"context"
	"time"
)

// Store describes persistence operations required by the account subsystem.
type Store interface {
	Accounts(ctx context.Context) AccountStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
}

// AccountStore manages account records. Create and Update map unique-email
// violations to ErrDuplicateEmail; lookups map missing rows to ErrNotFound.
type AccountStore interface {
	Create(ctx context.Context, a *Account) error
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByVerificationToken(ctx context.Context, token string) (*Account, error)
	// FindByResetToken only matches tokens whose expiry is after now.
	FindByResetToken(ctx context.Context, token string, now time.Time) (*Account, error)
	Update(ctx context.Context, a *Account) error
	List(ctx context.Context) ([]*Account, error)
	// ListAvailable returns Active accounts not yet linked to an employee.
	ListAvailable(ctx context.Context) ([]*Account, error)
}

// RefreshTokenStore manages the refresh token rotation chain.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	Find(ctx context.Context, token string) (*RefreshToken, error)
	// Rotate atomically revokes the active token and inserts its successor,
	// linking old to new. Exactly one of two concurrent rotations of the same
	// token succeeds; the loser observes ErrInvalidToken. The successor's
	// AccountID is filled from the rotated row.
	Rotate(ctx context.Context, token string, successor *RefreshToken, ip string, now time.Time) (*RefreshToken, error)
	// Revoke marks an active token revoked; ErrInvalidToken when the token is
	// missing, expired or already revoked.
	Revoke(ctx context.Context, token, ip string, now time.Time) error
}
