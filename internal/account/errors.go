package account

import "errors"

var (
	ErrInvalidCredentials = errors.New("account: email or password is incorrect")
	ErrNotVerified        = errors.New("account: email is not verified")
	ErrDeactivated        = errors.New("account: account is deactivated")
	ErrInvalidToken       = errors.New("account: invalid token")
	ErrDuplicateEmail     = errors.New("account: email is already registered")
	ErrNotFound           = errors.New("account: not found")
)
