package app

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"libralend/internal/util"
	"libralend/internal/validate"
	"libralend/pkg/auth"
	"libralend/pkg/domain"
)

// Register creates a new account. Email format and the password policy
// are enforced before anything touches the store.
func (a *App) Register(ctx context.Context, firstName, lastName, email, password string, isAdmin bool) (domain.User, error) {
	logger := util.LoggerFromContext(ctx)
	email = strings.TrimSpace(strings.ToLower(email))

	if !validate.Email(email) {
		return domain.User{}, ErrInvalidCredentials
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}

	exists, err := a.store.HasUserEmail(ctx, email)
	if err != nil {
		logger.Error("check email", "err", err)
		return domain.User{}, ErrInternal
	}
	if exists {
		return domain.User{}, ErrEmailAlreadyExists
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		logger.Error("hash password", "err", err)
		return domain.User{}, ErrPasswordHash
	}

	now := a.now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		Email:        email,
		PasswordHash: hash,
		IsAdmin:      isAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(ctx, user); err != nil {
		logger.Error("save user", "err", err)
		return domain.User{}, ErrUserCreation
	}
	return user, nil
}

// Login verifies credentials and issues a session token. Every failure
// mode collapses to ErrInvalidCredentials so responses do not reveal
// whether the email is registered.
func (a *App) Login(ctx context.Context, email, password string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	user, ok, err := a.store.GetUserByEmail(ctx, email)
	if err != nil || !ok {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if user.IsDeleted {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}

	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		util.LoggerFromContext(ctx).Error("issue session", "err", err)
		return domain.User{}, "", ErrInternal
	}
	return user, token, nil
}

// Logout revokes the session token until its natural expiry.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}

// UserFromToken resolves a live user from a session token.
func (a *App) UserFromToken(ctx context.Context, token string) (domain.User, bool) {
	uid, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, false
	}
	user, found, err := a.store.GetUserByID(ctx, uid)
	if err != nil || !found || user.IsDeleted {
		return domain.User{}, false
	}
	return user, true
}
