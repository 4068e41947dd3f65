package authn

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/AfshinJalili/rentabili/services/api/internal/security"
	"github.com/AfshinJalili/rentabili/services/api/internal/storage"
	"github.com/google/uuid"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Authenticator resolves an email/password pair to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*storage.User, error)
}

type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*storage.User, error)
}

// PasswordAuthenticator checks argon2id hashes stored with each user.
type PasswordAuthenticator struct {
	Users UserStore
}

func NewPasswordAuthenticator(users UserStore) *PasswordAuthenticator {
	return &PasswordAuthenticator{Users: users}
}

func (a *PasswordAuthenticator) Authenticate(ctx context.Context, email, password string) (*storage.User, error) {
	user, err := a.Users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// StaticAuthenticator accepts a single configured account. It exists for
// local development and demos.
type StaticAuthenticator struct {
	User     storage.User
	Password string
}

func NewStaticAuthenticator(id uuid.UUID, email, name, password string) *StaticAuthenticator {
	return &StaticAuthenticator{
		User:     storage.User{ID: id, Email: strings.ToLower(email), Name: name},
		Password: password,
	}
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, email, password string) (*storage.User, error) {
	emailOK := subtle.ConstantTimeCompare([]byte(strings.ToLower(strings.TrimSpace(email))), []byte(a.User.Email))
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.Password))
	if emailOK&passOK != 1 || a.Password == "" {
		return nil, ErrInvalidCredentials
	}
	user := a.User
	return &user, nil
}
