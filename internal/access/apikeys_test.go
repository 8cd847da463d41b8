package access

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/polyglot/internal/models"
)

func TestKeyScoper_Create(t *testing.T) {
	f := newFixture(t)
	admin := f.user("admin@acme.test")
	u := f.user("u@acme.test")
	stranger := f.user("stranger@example.com")
	acme := f.org("acme", models.LevelNone, admin)
	projectID := f.orgProject(acme, "website")
	f.member(acme, u, levelPtr(models.LevelTranslate))

	tests := []struct {
		name    string
		userID  uuid.UUID
		ceiling *models.PermissionLevel
		wantErr error
	}{
		{name: "ceiling below user level", userID: u, ceiling: levelPtr(models.LevelView)},
		{name: "ceiling equal to user level", userID: u, ceiling: levelPtr(models.LevelTranslate)},
		{name: "no ceiling", userID: u},
		{name: "ceiling above user level", userID: u, ceiling: levelPtr(models.LevelEdit), wantErr: ErrInsufficientPermission},
		{name: "user without access", userID: stranger, wantErr: ErrInsufficientPermission},
		{name: "invalid ceiling", userID: u, ceiling: levelPtr(99), wantErr: ErrInvalidPermission},
		{name: "unknown user", userID: uuid.Must(uuid.NewV7()), wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			created, err := f.svc.APIKeys().Create(f.ctx, CreateAPIKeyInput{
				UserID:      tt.userID,
				ProjectID:   projectID,
				Ceiling:     tt.ceiling,
				Description: tt.name,
			})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			assert.True(t, strings.HasPrefix(created.Secret, apiKeySecretPrefix))
			assert.Equal(t, created.Secret[:apiKeyDisplayChars], created.Key.KeyPrefix)
			assert.Equal(t, hashSecret(created.Secret), created.Key.KeyHash)
			assert.NotContains(t, created.Key.KeyHash, created.Secret)
			assert.Nil(t, created.Key.ExpiresAt)
		})
	}

	t.Run("user without access creates no key", func(t *testing.T) {
		keys, err := f.svc.APIKeys().ListForUser(f.ctx, stranger)
		require.NoError(t, err)
		require.Empty(t, keys)
	})
}

func TestKeyScoper_DefaultTTL(t *testing.T) {
	f := newFixture(t, Config{APIKeyTTL: 24 * time.Hour})
	alice := f.user("alice@example.com")
	projectID := f.personalProject(alice, "notes")

	created, err := f.svc.APIKeys().Create(f.ctx, CreateAPIKeyInput{UserID: alice, ProjectID: projectID})
	require.NoError(t, err)
	require.NotNil(t, created.Key.ExpiresAt)
	require.Equal(t, f.now.Add(24*time.Hour), *created.Key.ExpiresAt)

	explicit := f.now.Add(time.Hour)
	created, err = f.svc.APIKeys().Create(f.ctx, CreateAPIKeyInput{UserID: alice, ProjectID: projectID, ExpiresAt: &explicit})
	require.NoError(t, err)
	require.Equal(t, explicit, *created.Key.ExpiresAt)
}

func TestKeyScoper_SetCeiling(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice@example.com")
	bob := f.user("bob@example.com")
	projectID := f.personalProject(alice, "notes")
	scope := models.ProjectScope(projectID)

	f.grant(models.UserPrincipal(bob), scope, models.LevelEdit)
	created, err := f.svc.CreateAPIKey(f.ctx, models.UserPrincipal(bob), projectID, levelPtr(models.LevelView))
	require.NoError(t, err)
	keyID := created.Key.KeyID

	key, err := f.svc.APIKeys().SetCeiling(f.ctx, keyID, levelPtr(models.LevelEdit))
	require.NoError(t, err)
	require.Equal(t, models.LevelEdit, *key.Ceiling)

	// The user's level is read at adjustment time.
	_, err = f.svc.Registry().SetLevel(f.ctx, models.UserPrincipal(bob), scope, models.LevelTranslate)
	require.NoError(t, err)

	_, err = f.svc.APIKeys().SetCeiling(f.ctx, keyID, levelPtr(models.LevelReview))
	require.ErrorIs(t, err, ErrInsufficientPermission)

	key, err = f.svc.APIKeys().SetCeiling(f.ctx, keyID, levelPtr(models.LevelTranslate))
	require.NoError(t, err)
	require.Equal(t, models.LevelTranslate, *key.Ceiling)

	key, err = f.svc.APIKeys().SetCeiling(f.ctx, keyID, nil)
	require.NoError(t, err)
	require.Nil(t, key.Ceiling)
	require.Equal(t, models.LevelTranslate, f.level(models.APIKeyPrincipal(keyID), projectID))
}

func TestKeyScoper_Revoke(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice@example.com")
	projectID := f.personalProject(alice, "notes")

	created, err := f.svc.CreateAPIKey(f.ctx, models.UserPrincipal(alice), projectID, nil)
	require.NoError(t, err)
	key := models.APIKeyPrincipal(created.Key.KeyID)
	f.grant(key, models.ProjectScope(projectID), models.LevelView)

	require.NoError(t, f.svc.APIKeys().Revoke(f.ctx, created.Key.KeyID))

	perms, err := f.svc.Registry().ListForPrincipal(f.ctx, key)
	require.NoError(t, err)
	require.Empty(t, perms)

	err = f.svc.APIKeys().Revoke(f.ctx, created.Key.KeyID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.APIKeys().Lookup(f.ctx, created.Secret)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestKeyScoper_Lookup(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice@example.com")
	projectID := f.personalProject(alice, "notes")

	expires := f.now.Add(time.Hour)
	created, err := f.svc.APIKeys().Create(f.ctx, CreateAPIKeyInput{UserID: alice, ProjectID: projectID, ExpiresAt: &expires})
	require.NoError(t, err)

	t.Run("records use", func(t *testing.T) {
		key, err := f.svc.APIKeys().Lookup(f.ctx, created.Secret)
		require.NoError(t, err)
		require.Equal(t, created.Key.KeyID, key.KeyID)
		require.NotNil(t, key.LastUsedAt)
		require.Equal(t, f.now, *key.LastUsedAt)
	})

	t.Run("malformed secret", func(t *testing.T) {
		_, err := f.svc.APIKeys().Lookup(f.ctx, "not-a-key")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unknown secret", func(t *testing.T) {
		_, err := f.svc.APIKeys().Lookup(f.ctx, apiKeySecretPrefix+"unknown")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("expired", func(t *testing.T) {
		f.now = expires
		_, err := f.svc.APIKeys().Lookup(f.ctx, created.Secret)
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestKeyScoper_List(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice@example.com")
	notes := f.personalProject(alice, "notes")
	docs := f.personalProject(alice, "docs")

	for _, projectID := range []uuid.UUID{notes, notes, docs} {
		_, err := f.svc.CreateAPIKey(f.ctx, models.UserPrincipal(alice), projectID, nil)
		require.NoError(t, err)
		f.now = f.now.Add(time.Second)
	}

	keys, err := f.svc.APIKeys().ListForProject(f.ctx, notes)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	require.True(t, keys[0].CreatedAt.Before(keys[1].CreatedAt))

	keys, err = f.svc.APIKeys().ListForUser(f.ctx, alice)
	require.NoError(t, err)
	require.Len(t, keys, 3)
}
