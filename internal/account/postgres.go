package account

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Accounts(context.Context) AccountStore {
	return &accountStore{db: s.db}
}

func (s *PGStore) RefreshTokens(context.Context) RefreshTokenStore {
	return &refreshTokenStore{db: s.db}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Account store ------------------------------------------------------------

type accountStore struct{ db *sql.DB }

const accountColumns = `id, title, first_name, last_name, email, password_hash, role, status,
	verification_token, verified_at, reset_token, reset_token_expires, password_reset_at,
	created_at, updated_at`

func (s *accountStore) Create(ctx context.Context, a *Account) error {
	_, err := s.db.ExecContext(ctx,
		`insert into accounts(id, title, first_name, last_name, email, password_hash, role, status,
			verification_token, verified_at, created_at, updated_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		a.ID, a.Title, a.FirstName, a.LastName, a.Email, a.PasswordHash, a.Role, a.Status,
		a.VerificationToken, a.VerifiedAt, a.CreatedAt, a.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

func scanAccount(row interface{ Scan(...any) error }) (*Account, error) {
	var a Account
	err := row.Scan(
		&a.ID, &a.Title, &a.FirstName, &a.LastName, &a.Email, &a.PasswordHash, &a.Role, &a.Status,
		&a.VerificationToken, &a.VerifiedAt, &a.ResetToken, &a.ResetTokenExpires, &a.PasswordResetAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *accountStore) FindByID(ctx context.Context, id string) (*Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where id=$1`, id))
}

func (s *accountStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where email=$1`, email))
}

func (s *accountStore) FindByVerificationToken(ctx context.Context, token string) (*Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where verification_token=$1`, token))
}

func (s *accountStore) FindByResetToken(ctx context.Context, token string, now time.Time) (*Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where reset_token=$1 and reset_token_expires > $2`,
		token, now))
}

func (s *accountStore) Update(ctx context.Context, a *Account) error {
	res, err := s.db.ExecContext(ctx,
		`update accounts set title=$2, first_name=$3, last_name=$4, email=$5, password_hash=$6,
			role=$7, status=$8, verification_token=$9, verified_at=$10, reset_token=$11,
			reset_token_expires=$12, password_reset_at=$13, updated_at=$14
		 where id=$1`,
		a.ID, a.Title, a.FirstName, a.LastName, a.Email, a.PasswordHash,
		a.Role, a.Status, a.VerificationToken, a.VerifiedAt, a.ResetToken,
		a.ResetTokenExpires, a.PasswordResetAt, a.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *accountStore) List(ctx context.Context) ([]*Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+accountColumns+` from accounts order by created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func (s *accountStore) ListAvailable(ctx context.Context) ([]*Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+accountColumns+` from accounts a
		 where a.status='Active'
		   and not exists (select 1 from employees e where e.account_id = a.id)
		 order by a.created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func collectAccounts(rows *sql.Rows) ([]*Account, error) {
	var res []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// Refresh token store ------------------------------------------------------

type refreshTokenStore struct{ db *sql.DB }

const refreshTokenColumns = `token, account_id, expires_at, created_at, created_by_ip,
	revoked_at, revoked_by_ip, replaced_by_token`

func (s *refreshTokenStore) Create(ctx context.Context, tok *RefreshToken) error {
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(token, account_id, expires_at, created_at, created_by_ip)
		 values($1,$2,$3,$4,$5)`,
		tok.Token, tok.AccountID, tok.ExpiresAt, tok.CreatedAt, tok.CreatedByIP,
	)
	return err
}

func scanRefreshToken(row interface{ Scan(...any) error }) (*RefreshToken, error) {
	var t RefreshToken
	err := row.Scan(
		&t.Token, &t.AccountID, &t.ExpiresAt, &t.CreatedAt, &t.CreatedByIP,
		&t.RevokedAt, &t.RevokedByIP, &t.ReplacedByToken,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *refreshTokenStore) Find(ctx context.Context, token string) (*RefreshToken, error) {
	return scanRefreshToken(s.db.QueryRowContext(ctx,
		`select `+refreshTokenColumns+` from refresh_tokens where token=$1`, token))
}

// Rotate revokes the active token and inserts its successor in one
// transaction. The row lock taken by the select serializes concurrent
// rotations of the same token; the guarded update is the backstop that makes
// the loser fail instead of double-rotating.
func (s *refreshTokenStore) Rotate(ctx context.Context, token string, successor *RefreshToken, ip string, now time.Time) (*RefreshToken, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	old, err := scanRefreshToken(tx.QueryRowContext(ctx,
		`select `+refreshTokenColumns+` from refresh_tokens where token=$1 for update`, token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !old.Active(now) {
		return nil, ErrInvalidToken
	}

	successor.AccountID = old.AccountID
	if _, err := tx.ExecContext(ctx,
		`insert into refresh_tokens(token, account_id, expires_at, created_at, created_by_ip)
		 values($1,$2,$3,$4,$5)`,
		successor.Token, successor.AccountID, successor.ExpiresAt, successor.CreatedAt, successor.CreatedByIP,
	); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx,
		`update refresh_tokens
		 set revoked_at=$2, revoked_by_ip=$3, replaced_by_token=$4
		 where token=$1 and revoked_at is null`,
		token, now, ip, successor.Token,
	)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrInvalidToken
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	old.RevokedAt = &now
	old.RevokedByIP = &ip
	old.ReplacedByToken = &successor.Token
	return old, nil
}

func (s *refreshTokenStore) Revoke(ctx context.Context, token, ip string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update refresh_tokens
		 set revoked_at=$2, revoked_by_ip=$3
		 where token=$1 and revoked_at is null and expires_at > $2`,
		token, now, ip,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInvalidToken
	}
	return nil
}
