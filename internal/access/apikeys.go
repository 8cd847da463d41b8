package access

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/wolfeidau/polyglot/internal/models"
	"github.com/wolfeidau/polyglot/internal/store"
	"github.com/wolfeidau/polyglot/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

const (
	apiKeySecretPrefix = "pgk_"
	apiKeySecretBytes  = 32
	apiKeyDisplayChars = 8
)

// KeyScoper issues API keys that act for a user on one project, optionally
// capped by a ceiling below the user's own level.
type KeyScoper struct {
	*core

	// defaultTTL is applied when a key is created without an expiry. Zero
	// means keys never expire.
	defaultTTL time.Duration
}

// CreateAPIKeyInput describes a new key.
type CreateAPIKeyInput struct {
	UserID      uuid.UUID
	ProjectID   uuid.UUID
	Ceiling     *models.PermissionLevel
	Description string
	ExpiresAt   *time.Time
}

// CreatedAPIKey carries the plaintext secret, which is never stored and cannot
// be recovered later.
type CreatedAPIKey struct {
	Key    *models.APIKey
	Secret string
}

// Create issues a key for a user who resolves to at least VIEW on the project.
// A ceiling above the user's current level fails with
// ErrInsufficientPermission because a key cannot grant access its user lacks.
func (k *KeyScoper) Create(ctx context.Context, in CreateAPIKeyInput) (*CreatedAPIKey, error) {
	if in.Ceiling != nil && !in.Ceiling.Valid() {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPermission, models.ErrInvalidPermissionLevel)
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, err
	}

	expiresAt := in.ExpiresAt
	if expiresAt == nil && k.defaultTTL > 0 {
		t := k.now().Add(k.defaultTTL)
		expiresAt = &t
	}

	var key *models.APIKey
	err = k.mutate(ctx, "access.CreateAPIKey", func(ctx context.Context, tx store.Repositories) error {
		if _, err := tx.Users().Get(ctx, in.UserID); err != nil {
			return err
		}
		project, err := tx.Projects().GetForUpdate(ctx, in.ProjectID)
		if err != nil {
			return err
		}

		if err := k.checkCeiling(ctx, tx, in.UserID, project, in.Ceiling); err != nil {
			return err
		}

		now := k.now()
		key = &models.APIKey{
			KeyID:       newID(),
			UserID:      in.UserID,
			ProjectID:   in.ProjectID,
			Description: in.Description,
			Ceiling:     in.Ceiling,
			KeyPrefix:   secret[:apiKeyDisplayChars],
			KeyHash:     hashSecret(secret),
			CreatedAt:   now,
			UpdatedAt:   now,
			ExpiresAt:   expiresAt,
		}
		return tx.APIKeys().Create(ctx, key)
	}, attribute.String("user_id", in.UserID.String()), attribute.String("project_id", in.ProjectID.String()))
	if err != nil {
		if errors.Is(err, ErrInsufficientPermission) {
			k.logger(ctx).Warn().
				Str("user_id", in.UserID.String()).
				Str("project_id", in.ProjectID.String()).
				Err(err).
				Msg("Rejected API key")
		}
		return nil, err
	}

	telemetry.GetMetrics().APIKeysCreatedTotal.Add(ctx, 1)

	k.logger(ctx).Info().
		Str("key_id", key.KeyID.String()).
		Str("user_id", key.UserID.String()).
		Str("project_id", key.ProjectID.String()).
		Str("key_prefix", key.KeyPrefix).
		Str("ceiling", ceilingString(key.Ceiling)).
		Msg("Created API key")

	return &CreatedAPIKey{Key: key, Secret: secret}, nil
}

// SetCeiling changes or clears (nil) the ceiling of a key. The new ceiling is
// checked against the user's level at the time of the change.
func (k *KeyScoper) SetCeiling(ctx context.Context, keyID uuid.UUID, ceiling *models.PermissionLevel) (*models.APIKey, error) {
	if ceiling != nil && !ceiling.Valid() {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPermission, models.ErrInvalidPermissionLevel)
	}

	var key *models.APIKey
	err := k.mutate(ctx, "access.SetAPIKeyCeiling", func(ctx context.Context, tx store.Repositories) error {
		var err error
		key, err = tx.APIKeys().Get(ctx, keyID)
		if err != nil {
			return err
		}
		project, err := tx.Projects().GetForUpdate(ctx, key.ProjectID)
		if err != nil {
			return err
		}

		if err := k.checkCeiling(ctx, tx, key.UserID, project, ceiling); err != nil {
			return err
		}

		key.Ceiling = ceiling
		return tx.APIKeys().Update(ctx, key)
	}, attribute.String("key_id", keyID.String()))
	if err != nil {
		return nil, err
	}

	k.logger(ctx).Info().
		Str("key_id", keyID.String()).
		Str("ceiling", ceilingString(ceiling)).
		Msg("Changed API key ceiling")

	return key, nil
}

// Revoke deletes a key and any permission granted to it.
func (k *KeyScoper) Revoke(ctx context.Context, keyID uuid.UUID) error {
	err := k.mutate(ctx, "access.RevokeAPIKey", func(ctx context.Context, tx store.Repositories) error {
		_, err := deleteAPIKeyIn(ctx, tx, keyID)
		return err
	}, attribute.String("key_id", keyID.String()))
	if err != nil {
		return err
	}

	telemetry.GetMetrics().APIKeysRevokedTotal.Add(ctx, 1)

	k.logger(ctx).Info().Str("key_id", keyID.String()).Msg("Revoked API key")

	return nil
}

// Lookup finds the key for a plaintext secret and records its use. Unknown
// and expired keys both report ErrNotFound.
func (k *KeyScoper) Lookup(ctx context.Context, secret string) (*models.APIKey, error) {
	if !strings.HasPrefix(secret, apiKeySecretPrefix) {
		return nil, fmt.Errorf("%w: malformed api key", ErrNotFound)
	}
	hash := hashSecret(secret)

	var key *models.APIKey
	err := k.store.WithTx(ctx, func(ctx context.Context, tx store.Repositories) error {
		var err error
		key, err = tx.APIKeys().GetByHash(ctx, hash)
		if err != nil {
			return err
		}
		if key.IsExpired(k.now()) {
			return fmt.Errorf("%w: api key %s expired", ErrNotFound, key.KeyPrefix)
		}

		now := k.now()
		key.LastUsedAt = &now
		err = tx.APIKeys().Update(ctx, key)
		if errors.Is(err, store.ErrVersionConflict) {
			// A concurrent lookup already recorded the use.
			return nil
		}
		return err
	})
	if err != nil {
		return nil, translate(err)
	}

	return key, nil
}

// Get returns a key by ID.
func (k *KeyScoper) Get(ctx context.Context, keyID uuid.UUID) (*models.APIKey, error) {
	var key *models.APIKey
	err := k.view(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		key, err = repos.APIKeys().Get(ctx, keyID)
		return err
	})
	return key, err
}

// ListForProject returns the keys targeting a project, oldest first.
func (k *KeyScoper) ListForProject(ctx context.Context, projectID uuid.UUID) ([]*models.APIKey, error) {
	var keys []*models.APIKey
	err := k.view(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		keys, err = repos.APIKeys().ListByProject(ctx, projectID)
		return err
	})
	return keys, err
}

// ListForUser returns the keys of a user, oldest first.
func (k *KeyScoper) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	var keys []*models.APIKey
	err := k.view(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		keys, err = repos.APIKeys().ListByUser(ctx, userID)
		return err
	})
	return keys, err
}

// checkCeiling requires the user to resolve to at least VIEW and the ceiling,
// when set, to not exceed the user's level.
func (k *KeyScoper) checkCeiling(ctx context.Context, tx store.Repositories, userID uuid.UUID, project *models.Project, ceiling *models.PermissionLevel) error {
	res, err := k.resolver.resolveUser(ctx, tx, userID, project)
	if err != nil {
		return err
	}

	if !res.Level.AtLeast(models.LevelView) {
		return fmt.Errorf("%w: user %s has %s on project %s, needs at least %s",
			ErrInsufficientPermission, userID, res.Level, project.ProjectID, models.LevelView)
	}
	if ceiling != nil && *ceiling > res.Level {
		return fmt.Errorf("%w: ceiling %s exceeds user level %s on project %s",
			ErrInsufficientPermission, *ceiling, res.Level, project.ProjectID)
	}
	return nil
}

func generateSecret() (string, error) {
	buf := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate api key secret: %w", err)
	}
	return apiKeySecretPrefix + base58.Encode(buf), nil
}

// hashSecret is the Base58-encoded SHA256 of the secret.
func hashSecret(secret string) string {
	hash := sha256.Sum256([]byte(secret))
	return base58.Encode(hash[:])
}

func ceilingString(ceiling *models.PermissionLevel) string {
	if ceiling == nil {
		return "inherit"
	}
	return ceiling.String()
}
