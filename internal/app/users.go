package app

import (
	"context"

	"libralend/internal/util"
	"libralend/pkg/domain"
)

// ListUsers returns all users, deleted included. Admin use only.
func (a *App) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := a.store.ListUsers(ctx)
	if err != nil {
		return nil, ErrInternal
	}
	return users, nil
}

// DeleteUser soft-deletes the account; the row stays so historical
// loans remain resolvable.
func (a *App) DeleteUser(ctx context.Context, userID string) error {
	n, err := a.store.SoftDeleteUser(ctx, userID)
	if err != nil {
		util.LoggerFromContext(ctx).Error("soft delete user", "user_id", userID, "err", err)
		return ErrInternal
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
