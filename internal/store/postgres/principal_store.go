package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/polyglot/internal/models"
	"github.com/wolfeidau/polyglot/internal/store"
)

// UserStore implements store.UserStore using PostgreSQL.
type UserStore struct {
	q querier
}

// Create creates a new user account.
func (s *UserStore) Create(ctx context.Context, user *models.UserAccount) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO users (user_id, username, name, created_at) VALUES ($1, $2, $3, $4)`,
		user.UserID, user.Username, user.Name, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("user_id", user.UserID.String()).
		Str("username", user.Username).
		Msg("Created user")

	return nil
}

// Get retrieves a user account by ID.
func (s *UserStore) Get(ctx context.Context, userID uuid.UUID) (*models.UserAccount, error) {
	var user models.UserAccount
	err := s.q.QueryRow(ctx,
		`SELECT user_id, username, name, created_at FROM users WHERE user_id = $1`, userID,
	).Scan(&user.UserID, &user.Username, &user.Name, &user.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err, store.ErrUserNotFound, "get user")
	}
	return &user, nil
}

// GetByUsername retrieves a user account by username.
func (s *UserStore) GetByUsername(ctx context.Context, username string) (*models.UserAccount, error) {
	var user models.UserAccount
	err := s.q.QueryRow(ctx,
		`SELECT user_id, username, name, created_at FROM users WHERE username = $1`, username,
	).Scan(&user.UserID, &user.Username, &user.Name, &user.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err, store.ErrUserNotFound, "get user by username")
	}
	return &user, nil
}

const apiKeyColumns = `key_id, user_id, project_id, description, ceiling, key_prefix, key_hash,
	version, created_at, updated_at, expires_at, last_used_at`

// APIKeyStore implements store.APIKeyStore using PostgreSQL.
type APIKeyStore struct {
	q querier
}

// Create stores a new API key. Only the hash of the secret is persisted.
func (s *APIKeyStore) Create(ctx context.Context, key *models.APIKey) error {
	query := `
		INSERT INTO api_keys (
			key_id, user_id, project_id, description, ceiling, key_prefix, key_hash,
			version, created_at, updated_at, expires_at, last_used_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, 1, $8, $9, $10, $11
		)
	`

	_, err := s.q.Exec(ctx, query,
		key.KeyID,
		key.UserID,
		key.ProjectID,
		key.Description,
		levelPtrString(key.Ceiling),
		key.KeyPrefix,
		key.KeyHash,
		key.CreatedAt,
		key.UpdatedAt,
		key.ExpiresAt,
		key.LastUsedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create api key: %w", mapPostgresError(err))
	}

	key.Version = 1

	log.Debug().
		Str("key_id", key.KeyID.String()).
		Str("project_id", key.ProjectID.String()).
		Str("key_prefix", key.KeyPrefix).
		Msg("Created API key")

	return nil
}

// Get retrieves an API key by ID.
func (s *APIKeyStore) Get(ctx context.Context, keyID uuid.UUID) (*models.APIKey, error) {
	key, err := scanAPIKey(s.q.QueryRow(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_id = $1`, keyID))
	if err != nil {
		return nil, notFoundOr(err, store.ErrAPIKeyNotFound, "get api key")
	}
	return key, nil
}

// GetByHash retrieves an API key by the hash of its secret.
func (s *APIKeyStore) GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	key, err := scanAPIKey(s.q.QueryRow(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = $1`, keyHash))
	if err != nil {
		return nil, notFoundOr(err, store.ErrAPIKeyNotFound, "get api key by hash")
	}
	return key, nil
}

// Update replaces the mutable fields of an API key if key.Version is current.
func (s *APIKeyStore) Update(ctx context.Context, key *models.APIKey) error {
	query := `
		UPDATE api_keys SET
			description = $2,
			ceiling = $3,
			expires_at = $4,
			last_used_at = $5,
			version = version + 1,
			updated_at = now()
		WHERE key_id = $1 AND version = $6
		RETURNING version, updated_at
	`

	err := s.q.QueryRow(ctx, query,
		key.KeyID,
		key.Description,
		levelPtrString(key.Ceiling),
		key.ExpiresAt,
		key.LastUsedAt,
		key.Version,
	).Scan(&key.Version, &key.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return missingOrConflict(ctx, s.q, "api_keys", "key_id", key.KeyID, store.ErrAPIKeyNotFound)
		}
		return fmt.Errorf("failed to update api key: %w", mapPostgresError(err))
	}

	return nil
}

// Delete removes an API key.
func (s *APIKeyStore) Delete(ctx context.Context, keyID uuid.UUID) error {
	result, err := s.q.Exec(ctx, `DELETE FROM api_keys WHERE key_id = $1`, keyID)
	if err != nil {
		return fmt.Errorf("failed to delete api key: %w", mapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return store.ErrAPIKeyNotFound
	}

	log.Debug().Str("key_id", keyID.String()).Msg("Deleted API key")

	return nil
}

// ListByProject returns the keys targeting a project, oldest first.
func (s *APIKeyStore) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.APIKey, error) {
	return s.list(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE project_id = $1 ORDER BY created_at, key_id`, projectID)
}

// ListByUser returns the keys owned by a user, oldest first.
func (s *APIKeyStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	return s.list(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE user_id = $1 ORDER BY created_at, key_id`, userID)
}

// DeleteByProject removes every key targeting a project.
func (s *APIKeyStore) DeleteByProject(ctx context.Context, projectID uuid.UUID) (int, error) {
	result, err := s.q.Exec(ctx, `DELETE FROM api_keys WHERE project_id = $1`, projectID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete api keys: %w", mapPostgresError(err))
	}
	return int(result.RowsAffected()), nil
}

func (s *APIKeyStore) list(ctx context.Context, query string, id uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.q.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", mapPostgresError(err))
	}

	keys, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.APIKey, error) {
		return scanAPIKey(row)
	})
	if err != nil {
		return nil, fmt.Errorf("error iterating api keys: %w", err)
	}

	return keys, nil
}

func scanAPIKey(row pgx.Row) (*models.APIKey, error) {
	var (
		key     models.APIKey
		ceiling *string
	)
	err := row.Scan(
		&key.KeyID,
		&key.UserID,
		&key.ProjectID,
		&key.Description,
		&ceiling,
		&key.KeyPrefix,
		&key.KeyHash,
		&key.Version,
		&key.CreatedAt,
		&key.UpdatedAt,
		&key.ExpiresAt,
		&key.LastUsedAt,
	)
	if err != nil {
		return nil, err
	}

	if key.Ceiling, err = parseLevelPtr(ceiling); err != nil {
		return nil, err
	}

	return &key, nil
}
