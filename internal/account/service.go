package account

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"hrdesk.org/internal/email"
	"hrdesk.org/internal/ids"
	"hrdesk.org/internal/obs"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
	defaultResetTTL   = 24 * time.Hour
)

// dummyHash absorbs a bcrypt comparison when the email is unknown so the
// failure path costs the same as a wrong password.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Service is the session manager: credential verification, token issuance and
// the account lifecycle around them.
type Service struct {
	store  Store
	sender email.Sender
	signer tokenSigner
	now    func() time.Time

	accessTTL  time.Duration
	refreshTTL time.Duration
	resetTTL   time.Duration
	origin     string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithResetTokenTTL configures the password reset window.
func WithResetTokenTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.resetTTL = ttl
		}
	}
}

// WithOrigin sets the frontend origin embedded in verification and reset
// links. Without it emails fall back to raw tokens.
func WithOrigin(origin string) ServiceOption {
	return func(s *Service) { s.origin = strings.TrimSpace(origin) }
}

// WithIssuer overrides the access token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) { s.signer.issuer = strings.TrimSpace(issuer) }
}

// NewService constructs the session manager. The token secret signs HS256
// access tokens; sender delivers lifecycle emails best-effort.
func NewService(store Store, tokenSecret string, sender email.Sender, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("account: store is required")
	}
	if strings.TrimSpace(tokenSecret) == "" {
		return nil, errors.New("account: token secret is required")
	}
	if sender == nil {
		sender = email.LogSender{}
	}
	s := &Service{
		store:      store,
		sender:     sender,
		now:        time.Now,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		resetTTL:   defaultResetTTL,
	}
	s.signer = tokenSigner{secret: []byte(tokenSecret), issuer: "hrdesk"}
	for _, opt := range opts {
		opt(s)
	}
	s.signer.now = s.now
	return s, nil
}

// Authenticate verifies credentials and issues an access token plus a fresh
// refresh token tagged with the client IP. A Pending account never
// authenticates, even with the correct password.
func (s *Service) Authenticate(ctx context.Context, emailAddr, password, ip string) (AuthResult, error) {
	acc, err := s.store.Accounts(ctx).FindByEmail(ctx, strings.TrimSpace(emailAddr))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = VerifyPassword(dummyHash, password)
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}
	if err := VerifyPassword(acc.PasswordHash, password); err != nil {
		return AuthResult{}, ErrInvalidCredentials
	}
	switch acc.Status {
	case StatusPending:
		return AuthResult{}, ErrNotVerified
	case StatusInactive:
		return AuthResult{}, ErrDeactivated
	}

	return s.issueTokens(ctx, acc, ip)
}

// Refresh rotates a refresh token: the old token is revoked and linked to its
// successor in one transaction, and a new access token is minted. A second
// use of an already-rotated token fails with ErrInvalidToken.
func (s *Service) Refresh(ctx context.Context, token, ip string) (AuthResult, error) {
	successor, err := s.newRefreshToken("", ip)
	if err != nil {
		return AuthResult{}, err
	}
	old, err := s.store.RefreshTokens(ctx).Rotate(ctx, token, successor, ip, s.now().UTC())
	if err != nil {
		return AuthResult{}, err
	}
	acc, err := s.store.Accounts(ctx).FindByID(ctx, old.AccountID)
	if err != nil {
		return AuthResult{}, err
	}
	identity := identityOf(acc)
	access, exp, err := s.signer.sign(identity, s.accessTTL)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{
		Identity:        identity,
		AccessToken:     access,
		AccessExpiresAt: exp,
		RefreshToken:    successor.Token,
		RefreshExpires:  successor.ExpiresAt,
	}, nil
}

// Revoke marks a refresh token revoked. Revoking an inactive token is an
// error, not a no-op.
func (s *Service) Revoke(ctx context.Context, token, ip string) error {
	return s.store.RefreshTokens(ctx).Revoke(ctx, token, ip, s.now().UTC())
}

// FindRefreshToken returns the stored token record. Used by handlers to
// expose rotation chains to admins.
func (s *Service) FindRefreshToken(ctx context.Context, token string) (*RefreshToken, error) {
	return s.store.RefreshTokens(ctx).Find(ctx, token)
}

// ParseAccessToken verifies a bearer token and returns the identity it
// carries.
func (s *Service) ParseAccessToken(raw string) (Identity, error) {
	return s.signer.parse(raw)
}

// RegisterParams is the self-registration payload.
type RegisterParams struct {
	Title     string
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// Register creates a Pending account with a single-use verification token and
// dispatches the verification email. Duplicate emails get a notice email and
// ErrDuplicateEmail.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*Account, error) {
	addr := strings.TrimSpace(params.Email)
	if addr == "" || params.Password == "" {
		return nil, fmt.Errorf("account: email and password are required")
	}
	accounts := s.store.Accounts(ctx)
	if _, err := accounts.FindByEmail(ctx, addr); err == nil {
		s.sendAlreadyRegistered(ctx, addr)
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := HashPassword(params.Password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	token := randomTokenString()
	acc := &Account{
		ID:                ids.New(),
		Title:             params.Title,
		FirstName:         params.FirstName,
		LastName:          params.LastName,
		Email:             addr,
		PasswordHash:      hash,
		Role:              RoleUser,
		Status:            StatusPending,
		VerificationToken: &token,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := accounts.Create(ctx, acc); err != nil {
		return nil, err
	}
	s.sendVerification(ctx, acc)
	return acc, nil
}

// VerifyEmail flips a Pending account to Active and consumes the token.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	accounts := s.store.Accounts(ctx)
	acc, err := accounts.FindByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	now := s.now().UTC()
	acc.VerifiedAt = &now
	acc.VerificationToken = nil
	acc.Status = StatusActive
	acc.UpdatedAt = now
	return accounts.Update(ctx, acc)
}

// ForgotPassword sets a reset token valid for the reset window and emails the
// link. Unknown emails are a silent no-op so the endpoint does not leak which
// addresses exist.
func (s *Service) ForgotPassword(ctx context.Context, emailAddr string) error {
	accounts := s.store.Accounts(ctx)
	acc, err := accounts.FindByEmail(ctx, strings.TrimSpace(emailAddr))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	now := s.now().UTC()
	token := randomTokenString()
	expires := now.Add(s.resetTTL)
	acc.ResetToken = &token
	acc.ResetTokenExpires = &expires
	acc.UpdatedAt = now
	if err := accounts.Update(ctx, acc); err != nil {
		return err
	}
	s.sendPasswordReset(ctx, acc)
	return nil
}

// ValidateResetToken returns the account holding an unexpired reset token.
func (s *Service) ValidateResetToken(ctx context.Context, token string) (*Account, error) {
	acc, err := s.store.Accounts(ctx).FindByResetToken(ctx, token, s.now().UTC())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return acc, nil
}

// ResetPassword consumes a valid reset token and replaces the password hash.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	acc, err := s.ValidateResetToken(ctx, token)
	if err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	acc.PasswordHash = hash
	acc.PasswordResetAt = &now
	acc.ResetToken = nil
	acc.ResetTokenExpires = nil
	acc.UpdatedAt = now
	return s.store.Accounts(ctx).Update(ctx, acc)
}

// Get returns one account by id.
func (s *Service) Get(ctx context.Context, id string) (*Account, error) {
	return s.store.Accounts(ctx).FindByID(ctx, id)
}

// List returns all accounts.
func (s *Service) List(ctx context.Context) ([]*Account, error) {
	return s.store.Accounts(ctx).List(ctx)
}

// Available returns Active accounts not yet linked to an employee record.
func (s *Service) Available(ctx context.Context) ([]*Account, error) {
	return s.store.Accounts(ctx).ListAvailable(ctx)
}

// CreateParams is the admin account-creation payload.
type CreateParams struct {
	Title     string
	FirstName string
	LastName  string
	Email     string
	Password  string
	Role      Role
	Status    Status
}

// Create is the admin path: the account comes out verified, with role and
// status taken as provided.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Account, error) {
	addr := strings.TrimSpace(params.Email)
	accounts := s.store.Accounts(ctx)
	if _, err := accounts.FindByEmail(ctx, addr); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	hash, err := HashPassword(params.Password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	role := params.Role
	if role == "" {
		role = RoleUser
	}
	status := params.Status
	if status == "" {
		status = StatusActive
	}
	acc := &Account{
		ID:           ids.New(),
		Title:        params.Title,
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		Email:        addr,
		PasswordHash: hash,
		Role:         role,
		Status:       status,
		VerifiedAt:   &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := accounts.Create(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// UpdateParams carries optional account changes; nil means "leave as is".
type UpdateParams struct {
	Title     *string
	FirstName *string
	LastName  *string
	Email     *string
	Password  *string
	Role      *Role
	Status    *Status
}

// Update applies an account update. Email changes re-check uniqueness; a new
// password is rehashed; role changes reach here only through admin handlers.
func (s *Service) Update(ctx context.Context, id string, params UpdateParams) (*Account, error) {
	accounts := s.store.Accounts(ctx)
	acc, err := accounts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if params.Email != nil {
		addr := strings.TrimSpace(*params.Email)
		if addr != acc.Email {
			if _, err := accounts.FindByEmail(ctx, addr); err == nil {
				return nil, ErrDuplicateEmail
			} else if !errors.Is(err, ErrNotFound) {
				return nil, err
			}
			acc.Email = addr
		}
	}
	if params.Password != nil && *params.Password != "" {
		hash, err := HashPassword(*params.Password)
		if err != nil {
			return nil, err
		}
		acc.PasswordHash = hash
	}
	if params.Title != nil {
		acc.Title = *params.Title
	}
	if params.FirstName != nil {
		acc.FirstName = *params.FirstName
	}
	if params.LastName != nil {
		acc.LastName = *params.LastName
	}
	if params.Role != nil {
		acc.Role = *params.Role
	}
	if params.Status != nil {
		acc.Status = *params.Status
	}
	acc.UpdatedAt = s.now().UTC()
	if err := accounts.Update(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

func (s *Service) issueTokens(ctx context.Context, acc *Account, ip string) (AuthResult, error) {
	identity := identityOf(acc)
	access, exp, err := s.signer.sign(identity, s.accessTTL)
	if err != nil {
		return AuthResult{}, err
	}
	refresh, err := s.newRefreshToken(acc.ID, ip)
	if err != nil {
		return AuthResult{}, err
	}
	if err := s.store.RefreshTokens(ctx).Create(ctx, refresh); err != nil {
		return AuthResult{}, err
	}
	return AuthResult{
		Identity:        identity,
		AccessToken:     access,
		AccessExpiresAt: exp,
		RefreshToken:    refresh.Token,
		RefreshExpires:  refresh.ExpiresAt,
	}, nil
}

func (s *Service) newRefreshToken(accountID, ip string) (*RefreshToken, error) {
	now := s.now().UTC()
	return &RefreshToken{
		Token:       randomTokenString(),
		AccountID:   accountID,
		ExpiresAt:   now.Add(s.refreshTTL),
		CreatedAt:   now,
		CreatedByIP: ip,
	}, nil
}

func identityOf(acc *Account) Identity {
	return Identity{ID: acc.ID, Email: acc.Email, Role: acc.Role}
}

// randomTokenString returns 320 bits of hex-encoded randomness; used for
// refresh, verification and reset tokens.
func randomTokenString() string {
	buf := make([]byte, 40)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("account: crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(buf)
}

// --- lifecycle emails (best-effort, never propagated) ---

func (s *Service) sendVerification(ctx context.Context, acc *Account) {
	token := ""
	if acc.VerificationToken != nil {
		token = *acc.VerificationToken
	}
	var body string
	if s.origin != "" {
		url := fmt.Sprintf("%s/account/verify-email?token=%s", s.origin, token)
		body = fmt.Sprintf(`<h4>Hi %s,</h4><p>Thank you for registering. Please verify your email address:</p><p><a href=%q>%s</a></p>`, acc.FirstName, url, url)
	} else {
		body = fmt.Sprintf(`<h4>Verify Email</h4><p>Use this token with the <code>/accounts/verify-email</code> API:</p><p><code>%s</code></p>`, token)
	}
	if err := s.sender.Send(ctx, acc.Email, "Verify Your Email", body); err != nil {
		obs.LogError("account", "verification email failed", err)
	}
}

func (s *Service) sendAlreadyRegistered(ctx context.Context, addr string) {
	var body string
	if s.origin != "" {
		body = fmt.Sprintf(`<h4>Email Already Registered</h4><p>Your email <strong>%s</strong> is already registered. If you forgot your password visit <a href="%s/account/forgot-password">forgot password</a>.</p>`, addr, s.origin)
	} else {
		body = fmt.Sprintf(`<h4>Email Already Registered</h4><p>Your email <strong>%s</strong> is already registered. You can reset your password via the <code>/accounts/forgot-password</code> API.</p>`, addr)
	}
	if err := s.sender.Send(ctx, addr, "Email Already Registered", body); err != nil {
		obs.LogError("account", "already-registered email failed", err)
	}
}

func (s *Service) sendPasswordReset(ctx context.Context, acc *Account) {
	token := ""
	if acc.ResetToken != nil {
		token = *acc.ResetToken
	}
	var body string
	if s.origin != "" {
		url := fmt.Sprintf("%s/account/reset-password?token=%s", s.origin, token)
		body = fmt.Sprintf(`<h4>Reset Password</h4><p>Click the link to reset your password (valid 1 day):</p><p><a href=%q>%s</a></p>`, url, url)
	} else {
		body = fmt.Sprintf(`<h4>Reset Password</h4><p>Use this token with the <code>/accounts/reset-password</code> API:</p><p><code>%s</code></p>`, token)
	}
	if err := s.sender.Send(ctx, acc.Email, "Reset Password", body); err != nil {
		obs.LogError("account", "password reset email failed", err)
	}
}
