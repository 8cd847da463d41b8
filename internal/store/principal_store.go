package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/polyglot/internal/models"
)

// Errors
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrUserAlreadyExists   = errors.New("user already exists")
	ErrAPIKeyNotFound      = errors.New("api key not found")
	ErrAPIKeyAlreadyExists = errors.New("api key already exists")
)

// UserStore manages user accounts. Registration lives outside this module; the
// store exists so principals can be referenced and looked up.
type UserStore interface {
	// Create creates a new user. Returns ErrUserAlreadyExists on a duplicate ID or username.
	Create(ctx context.Context, user *models.UserAccount) error

	// Get retrieves a user by ID.
	Get(ctx context.Context, userID uuid.UUID) (*models.UserAccount, error)

	// GetByUsername retrieves a user by username.
	GetByUsername(ctx context.Context, username string) (*models.UserAccount, error)
}

// APIKeyStore manages project scoped API keys.
type APIKeyStore interface {
	// Create stores a new key. Returns ErrAPIKeyAlreadyExists on a duplicate ID or hash.
	Create(ctx context.Context, key *models.APIKey) error

	// Get retrieves a key by ID.
	Get(ctx context.Context, keyID uuid.UUID) (*models.APIKey, error)

	// GetByHash retrieves a key by the hash of its secret.
	GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error)

	// Update stores key if its Version matches, then bumps key.Version.
	Update(ctx context.Context, key *models.APIKey) error

	// Delete deletes a key. Returns ErrAPIKeyNotFound if absent.
	Delete(ctx context.Context, keyID uuid.UUID) error

	// ListByProject returns the keys scoped to a project.
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.APIKey, error)

	// ListByUser returns the keys owned by a user.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error)

	// DeleteByProject deletes every key scoped to a project and returns how many were removed.
	DeleteByProject(ctx context.Context, projectID uuid.UUID) (int, error)
}
