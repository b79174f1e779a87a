package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"netpulseserver/internal/auth"
	"netpulseserver/internal/domain"
)

type UsersStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (domain.User, error)
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
	GetUserByLogin(ctx context.Context, username string) (domain.UserWithPassword, error)
	SetStatus(ctx context.Context, userID string, status domain.PresenceStatus, when time.Time) error
}

type ExternalAccountsStore interface {
	GetByProvider(ctx context.Context, provider, providerID string) (domain.ExternalAccount, error)
	CreateExternalAccount(ctx context.Context, userID, provider, providerID, email string) (domain.ExternalAccount, error)
}

// TokenCodec issues and checks the bearer tokens returned by register and
// login on both the socket and REST surfaces.
type TokenCodec interface {
	Issue(userID string) (string, error)
	Verify(token string) (string, bool)
}

const (
	minUsernameLen = 3
	maxUsernameLen = 50
	minPasswordLen = 6
)

type AuthService struct {
	Users    UsersStore
	External ExternalAccountsStore
	Tokens   TokenCodec
}

func usernameProblem(username string) string {
	if n := len([]rune(username)); n < minUsernameLen || n > maxUsernameLen {
		return "must be 3 to 50 characters"
	}
	return ""
}

func (s *AuthService) Register(ctx context.Context, username, password string) (domain.User, string, error) {
	username = strings.TrimSpace(username)

	fields := map[string]string{}
	if problem := usernameProblem(username); problem != "" {
		fields["username"] = problem
	}
	if len(password) < minPasswordLen {
		fields["password"] = "must be at least 6 characters"
	}
	if len(fields) > 0 {
		return domain.User{}, "", domain.NewValidationError(fields)
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", err
	}

	u, err := s.Users.CreateUser(ctx, username, passwordHash)
	if err != nil {
		return domain.User{}, "", err
	}

	token, err := s.Tokens.Issue(u.ID)
	if err != nil {
		return domain.User{}, "", err
	}
	return u, token, nil
}

func (s *AuthService) Login(ctx context.Context, username, password string) (domain.User, string, error) {
	username = strings.TrimSpace(username)

	u, err := s.Users.GetUserByLogin(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, "", domain.ErrInvalidCredentials
		}
		return domain.User{}, "", err
	}
	// External-only accounts have no password hash and cannot log in this
	// way.
	if u.PasswordHash == "" {
		return domain.User{}, "", domain.ErrInvalidCredentials
	}

	ok, err := auth.VerifyPassword(u.PasswordHash, password)
	if err != nil {
		return domain.User{}, "", err
	}
	if !ok {
		return domain.User{}, "", domain.ErrInvalidCredentials
	}

	token, err := s.Tokens.Issue(u.ID)
	if err != nil {
		return domain.User{}, "", err
	}
	return u.User, token, nil
}

// LoginWithToken re-authenticates a reconnecting client from a still-valid
// token and hands back a fresh one.
func (s *AuthService) LoginWithToken(ctx context.Context, token string) (domain.User, string, error) {
	userID, ok := s.Tokens.Verify(token)
	if !ok {
		return domain.User{}, "", domain.ErrInvalidCredentials
	}

	u, err := s.Users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, "", domain.ErrInvalidCredentials
		}
		return domain.User{}, "", err
	}

	fresh, err := s.Tokens.Issue(u.ID)
	if err != nil {
		return domain.User{}, "", err
	}
	return u, fresh, nil
}

// LoginExternal signs a user in from a verified identity-provider claim,
// creating the account on first contact. A brand-new identity needs a
// username; without one the caller gets ErrUsernameRequired so the client
// can prompt and retry. The returned bool reports whether a user was
// created.
func (s *AuthService) LoginExternal(ctx context.Context, provider, providerID, email, username string) (domain.User, string, bool, error) {
	acct, err := s.External.GetByProvider(ctx, provider, providerID)
	switch {
	case err == nil:
		u, err := s.Users.GetUserByID(ctx, acct.UserID)
		if err != nil {
			return domain.User{}, "", false, err
		}
		token, err := s.Tokens.Issue(u.ID)
		if err != nil {
			return domain.User{}, "", false, err
		}
		return u, token, false, nil
	case errors.Is(err, domain.ErrNotFound):
		// First contact: fall through and create the account.
	default:
		return domain.User{}, "", false, err
	}

	username = strings.TrimSpace(username)
	if username == "" {
		return domain.User{}, "", false, domain.ErrUsernameRequired
	}
	if problem := usernameProblem(username); problem != "" {
		return domain.User{}, "", false, domain.NewValidationError(map[string]string{"username": problem})
	}

	u, err := s.Users.CreateUser(ctx, username, "")
	if err != nil {
		return domain.User{}, "", false, err
	}
	if _, err := s.External.CreateExternalAccount(ctx, u.ID, provider, providerID, email); err != nil {
		return domain.User{}, "", false, err
	}

	token, err := s.Tokens.Issue(u.ID)
	if err != nil {
		return domain.User{}, "", false, err
	}
	return u, token, true, nil
}
