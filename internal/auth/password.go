package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrBadCredentials = errors.New("invalid username or password")

// Admin checks the configured administrator account. With no hash configured
// nobody can sign in as administrator.
type Admin struct {
	Username     string
	PasswordHash string
}

// Check compares the supplied credentials against the configured account.
func (a Admin) Check(username, password string) error {
	if a.PasswordHash == "" || username != a.Username {
		return ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return ErrBadCredentials
	}
	return nil
}

// HashPassword produces a hash suitable for ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(b), err
}
