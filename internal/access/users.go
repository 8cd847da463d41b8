package access

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/wolfeidau/polyglot/internal/models"
	"github.com/wolfeidau/polyglot/internal/store"
	"go.opentelemetry.io/otel/attribute"
)

// Users registers the accounts that principals refer to. Authentication is
// handled elsewhere.
type Users struct {
	*core
}

func (u *Users) Create(ctx context.Context, username, name string) (*models.UserAccount, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidUser)
	}

	user := &models.UserAccount{
		UserID:    newID(),
		Username:  username,
		Name:      strings.TrimSpace(name),
		CreatedAt: u.now(),
	}

	err := u.mutate(ctx, "access.CreateUser", func(ctx context.Context, tx store.Repositories) error {
		return tx.Users().Create(ctx, user)
	}, attribute.String("username", username))
	if err != nil {
		return nil, err
	}

	u.logger(ctx).Info().
		Str("user_id", user.UserID.String()).
		Str("username", user.Username).
		Msg("Created user")

	return user, nil
}

func (u *Users) Get(ctx context.Context, userID uuid.UUID) (*models.UserAccount, error) {
	var user *models.UserAccount
	err := u.view(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		user, err = repos.Users().Get(ctx, userID)
		return err
	})
	return user, err
}

func (u *Users) GetByUsername(ctx context.Context, username string) (*models.UserAccount, error) {
	var user *models.UserAccount
	err := u.view(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		user, err = repos.Users().GetByUsername(ctx, username)
		return err
	})
	return user, err
}
