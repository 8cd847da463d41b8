package access

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/polyglot/internal/models"
	"github.com/wolfeidau/polyglot/internal/store"
)

func TestResolver_AcmeScenario(t *testing.T) {
	f := newFixture(t)
	admin := f.user("admin@acme.test")
	u := f.user("u@acme.test")
	acme := f.org("acme", models.LevelTranslate, admin)
	projectID := f.orgProject(acme, "website")
	f.member(acme, u, nil)

	principal := models.UserPrincipal(u)
	scope := models.ProjectScope(projectID)

	require.Equal(t, models.LevelTranslate, f.level(principal, projectID))

	f.grant(principal, scope, models.LevelView)
	require.Equal(t, models.LevelView, f.level(principal, projectID))

	require.NoError(t, f.svc.RevokePermission(f.ctx, principal, scope))
	require.Equal(t, models.LevelTranslate, f.level(principal, projectID))
}

func TestResolver_PersonalOwner(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice@example.com")
	projectID := f.personalProject(alice, "notes")

	require.Equal(t, models.LevelManage, f.level(models.UserPrincipal(alice), projectID))

	// An explicit lower grant never reduces the owner.
	f.grant(models.UserPrincipal(alice), models.ProjectScope(projectID), models.LevelView)
	require.Equal(t, models.LevelManage, f.level(models.UserPrincipal(alice), projectID))

	res, err := f.svc.Resolver().Explain(f.ctx, models.UserPrincipal(alice), projectID, nil)
	require.NoError(t, err)
	require.Equal(t, SourceOwner, res.Source)
	require.Nil(t, res.Governing)
}

func TestResolver_OrganizationLevel(t *testing.T) {
	for _, level := range models.PermissionLevels() {
		t.Run(level.String(), func(t *testing.T) {
			f := newFixture(t)
			admin := f.user("admin@acme.test")
			u := f.user("u@acme.test")
			acme := f.org("acme", models.LevelView, admin)
			projectID := f.orgProject(acme, "website")

			f.member(acme, u, &level)
			require.Equal(t, level, f.level(models.UserPrincipal(u), projectID))
		})
	}
}

func TestResolver_ProjectOverride(t *testing.T) {
	tests := []struct {
		name    string
		org     models.PermissionLevel
		project models.PermissionLevel
	}{
		{name: "lowers organization level", org: models.LevelEdit, project: models.LevelView},
		{name: "raises organization level", org: models.LevelView, project: models.LevelManage},
		{name: "explicit none denies", org: models.LevelReview, project: models.LevelNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			admin := f.user("admin@acme.test")
			u := f.user("u@acme.test")
			acme := f.org("acme", models.LevelTranslate, admin)
			projectID := f.orgProject(acme, "website")
			otherID := f.orgProject(acme, "mobile")

			f.member(acme, u, &tt.org)
			f.grant(models.UserPrincipal(u), models.ProjectScope(projectID), tt.project)

			require.Equal(t, tt.project, f.level(models.UserPrincipal(u), projectID))
			require.Equal(t, tt.org, f.level(models.UserPrincipal(u), otherID))

			res, err := f.svc.Resolver().Explain(f.ctx, models.UserPrincipal(u), projectID, nil)
			require.NoError(t, err)
			require.Equal(t, SourceProject, res.Source)
			require.NotNil(t, res.Governing)
		})
	}
}

func TestResolver_ExplicitOrganizationGrantBeatsBase(t *testing.T) {
	f := newFixture(t)
	admin := f.user("admin@acme.test")
	u := f.user("u@acme.test")
	acme := f.org("acme", models.LevelEdit, admin)
	projectID := f.orgProject(acme, "website")

	f.member(acme, u, levelPtr(models.LevelView))

	res, err := f.svc.Resolver().Explain(f.ctx, models.UserPrincipal(u), projectID, nil)
	require.NoError(t, err)
	require.Equal(t, models.LevelView, res.Level)
	require.Equal(t, SourceOrganization, res.Source)
}

func TestResolver_NoRelationship(t *testing.T) {
	f := newFixture(t)
	admin := f.user("admin@acme.test")
	stranger := f.user("stranger@example.com")
	acme := f.org("acme", models.LevelManage, admin)
	projectID := f.orgProject(acme, "website")
	personalID := f.personalProject(admin, "notes")

	t.Run("organization project", func(t *testing.T) {
		res, err := f.svc.Resolver().Explain(f.ctx, models.UserPrincipal(stranger), projectID, nil)
		require.NoError(t, err)
		require.Equal(t, models.LevelNone, res.Level)
		require.Equal(t, SourceNone, res.Source)
	})

	t.Run("personal project", func(t *testing.T) {
		require.Equal(t, models.LevelNone, f.level(models.UserPrincipal(stranger), personalID))
	})

	t.Run("missing project", func(t *testing.T) {
		require.Equal(t, models.LevelNone, f.level(models.UserPrincipal(admin), uuid.Must(uuid.NewV7())))
	})

	t.Run("zero principal", func(t *testing.T) {
		require.Equal(t, models.LevelNone, f.level(models.Principal{}, projectID))
	})
}

func TestResolver_OrphanedProjectGrant(t *testing.T) {
	f := newFixture(t)
	admin := f.user("admin@acme.test")
	u := f.user("u@acme.test")
	acme := f.org("acme", models.LevelView, admin)
	projectID := f.orgProject(acme, "website")

	// A project grant applies without membership.
	f.grant(models.UserPrincipal(u), models.ProjectScope(projectID), models.LevelReview)
	require.Equal(t, models.LevelReview, f.level(models.UserPrincipal(u), projectID))
}

func TestResolver_LanguageRestriction(t *testing.T) {
	f := newFixture(t)
	admin := f.user("admin@acme.test")
	u := f.user("u@acme.test")
	acme := f.org("acme", models.LevelView, admin)
	projectID := f.orgProject(acme, "website")

	de, err := f.svc.Languages().Add(f.ctx, AddLanguageInput{ProjectID: projectID, Abbreviation: "de", Name: "German"})
	require.NoError(t, err)
	fr, err := f.svc.Languages().Add(f.ctx, AddLanguageInput{ProjectID: projectID, Abbreviation: "fr", Name: "French"})
	require.NoError(t, err)

	f.grant(models.UserPrincipal(u), models.ProjectScope(projectID), models.LevelTranslate, de.LanguageID)

	level, err := f.svc.Resolver().ResolveLanguage(f.ctx, models.UserPrincipal(u), projectID, de.LanguageID)
	require.NoError(t, err)
	require.Equal(t, models.LevelTranslate, level)

	res, err := f.svc.Resolver().Explain(f.ctx, models.UserPrincipal(u), projectID, &fr.LanguageID)
	require.NoError(t, err)
	require.Equal(t, models.LevelNone, res.Level)
	require.True(t, res.LanguageDenied)

	// Operations that target no language see the granted level.
	require.Equal(t, models.LevelTranslate, f.level(models.UserPrincipal(u), projectID))
}

func TestResolver_APIKey(t *testing.T) {
	f := newFixture(t)
	admin := f.user("admin@acme.test")
	u := f.user("u@acme.test")
	acme := f.org("acme", models.LevelView, admin)
	projectID := f.orgProject(acme, "website")
	otherID := f.orgProject(acme, "mobile")
	f.member(acme, u, levelPtr(models.LevelEdit))

	t.Run("ceiling clamps the user level", func(t *testing.T) {
		created, err := f.svc.CreateAPIKey(f.ctx, models.UserPrincipal(u), projectID, levelPtr(models.LevelView))
		require.NoError(t, err)

		key := models.APIKeyPrincipal(created.Key.KeyID)
		res, err := f.svc.Resolver().Explain(f.ctx, key, projectID, nil)
		require.NoError(t, err)
		require.Equal(t, models.LevelView, res.Level)
		require.Equal(t, models.LevelEdit, *res.UserLevel)
		require.Equal(t, models.LevelView, *res.Ceiling)
	})

	t.Run("no ceiling inherits the user level", func(t *testing.T) {
		created, err := f.svc.CreateAPIKey(f.ctx, models.UserPrincipal(u), projectID, nil)
		require.NoError(t, err)
		require.Equal(t, models.LevelEdit, f.level(models.APIKeyPrincipal(created.Key.KeyID), projectID))
	})

	t.Run("other project resolves to none", func(t *testing.T) {
		created, err := f.svc.CreateAPIKey(f.ctx, models.UserPrincipal(u), projectID, nil)
		require.NoError(t, err)
		require.Equal(t, models.LevelNone, f.level(models.APIKeyPrincipal(created.Key.KeyID), otherID))
	})

	t.Run("key grant never exceeds the user", func(t *testing.T) {
		created, err := f.svc.CreateAPIKey(f.ctx, models.UserPrincipal(u), projectID, nil)
		require.NoError(t, err)
		key := models.APIKeyPrincipal(created.Key.KeyID)

		f.grant(key, models.ProjectScope(projectID), models.LevelManage)
		res, err := f.svc.Resolver().Explain(f.ctx, key, projectID, nil)
		require.NoError(t, err)
		require.Equal(t, models.LevelEdit, res.Level)
		require.Equal(t, SourceAPIKey, res.Source)

		_, err = f.svc.Registry().SetLevel(f.ctx, key, models.ProjectScope(projectID), models.LevelTranslate)
		require.NoError(t, err)
		require.Equal(t, models.LevelTranslate, f.level(key, projectID))
	})

	t.Run("expired key resolves to none", func(t *testing.T) {
		expires := f.now.Add(time.Hour)
		created, err := f.svc.APIKeys().Create(f.ctx, CreateAPIKeyInput{UserID: u, ProjectID: projectID, ExpiresAt: &expires})
		require.NoError(t, err)
		key := models.APIKeyPrincipal(created.Key.KeyID)
		require.Equal(t, models.LevelEdit, f.level(key, projectID))

		f.now = f.now.Add(2 * time.Hour)
		t.Cleanup(func() { f.now = f.now.Add(-2 * time.Hour) })
		require.Equal(t, models.LevelNone, f.level(key, projectID))
	})

	t.Run("unknown key resolves to none", func(t *testing.T) {
		require.Equal(t, models.LevelNone, f.level(models.APIKeyPrincipal(uuid.Must(uuid.NewV7())), projectID))
	})
}

func TestResolver_Require(t *testing.T) {
	f := newFixture(t)
	admin := f.user("admin@acme.test")
	u := f.user("u@acme.test")
	acme := f.org("acme", models.LevelTranslate, admin)
	projectID := f.orgProject(acme, "website")
	f.member(acme, u, nil)

	require.NoError(t, f.svc.Resolver().Require(f.ctx, models.UserPrincipal(u), projectID, models.LevelView))
	require.NoError(t, f.svc.Resolver().Require(f.ctx, models.UserPrincipal(u), projectID, models.LevelTranslate))

	err := f.svc.Resolver().Require(f.ctx, models.UserPrincipal(u), projectID, models.LevelReview)
	require.ErrorIs(t, err, ErrInsufficientPermission)
}

func TestResolver_Cache(t *testing.T) {
	f := newFixture(t, Config{CacheSize: 100, CacheTTL: time.Minute})
	admin := f.user("admin@acme.test")
	u := f.user("u@acme.test")
	acme := f.org("acme", models.LevelTranslate, admin)
	projectID := f.orgProject(acme, "website")
	f.member(acme, u, nil)

	principal := models.UserPrincipal(u)
	require.Equal(t, models.LevelTranslate, f.level(principal, projectID))

	t.Run("mutations through the service purge the cache", func(t *testing.T) {
		f.grant(principal, models.ProjectScope(projectID), models.LevelManage)
		require.Equal(t, models.LevelManage, f.level(principal, projectID))
	})

	t.Run("writes made behind the service are served stale until invalidated", func(t *testing.T) {
		err := f.store.WithTx(f.ctx, func(ctx context.Context, tx store.Repositories) error {
			perm, err := tx.Permissions().Find(ctx, principal, models.ProjectScope(projectID))
			if err != nil {
				return err
			}
			return tx.Permissions().Delete(ctx, perm.PermissionID)
		})
		require.NoError(t, err)
		require.Equal(t, models.LevelManage, f.level(principal, projectID))

		f.svc.Resolver().Invalidate()
		require.Equal(t, models.LevelTranslate, f.level(principal, projectID))
	})
}

// stallingStore holds the next View after it has read, until resumed.
type stallingStore struct {
	store.Store
	armed  atomic.Bool
	read   chan struct{}
	resume chan struct{}
}

func (s *stallingStore) View(ctx context.Context, fn func(ctx context.Context, r store.Repositories) error) error {
	err := s.Store.View(ctx, fn)
	if s.armed.CompareAndSwap(true, false) {
		close(s.read)
		<-s.resume
	}
	return err
}

func TestResolver_CacheInvalidatedDuringResolve(t *testing.T) {
	cfg := Config{CacheSize: 100, CacheTTL: time.Hour}
	f := newFixture(t, cfg)
	admin := f.user("admin@acme.test")
	u := f.user("u@acme.test")
	acme := f.org("acme", models.LevelTranslate, admin)
	projectID := f.orgProject(acme, "website")
	f.member(acme, u, nil)

	st := &stallingStore{Store: f.store, read: make(chan struct{}), resume: make(chan struct{})}
	svc := NewService(st, cfg, zerolog.Nop(), WithServiceClock(func() time.Time { return f.now }))
	principal := models.UserPrincipal(u)

	st.armed.Store(true)
	resolved := make(chan models.PermissionLevel, 1)
	go func() {
		level, err := svc.ResolvePermission(context.Background(), principal, projectID)
		assert.NoError(t, err)
		resolved <- level
	}()

	<-st.read
	_, err := svc.GrantPermission(f.ctx, principal, models.ProjectScope(projectID), models.LevelView)
	require.NoError(t, err)
	close(st.resume)

	require.Equal(t, models.LevelTranslate, <-resolved, "read before the grant committed")

	level, err := svc.ResolvePermission(f.ctx, principal, projectID)
	require.NoError(t, err)
	require.Equal(t, models.LevelView, level)
}

func TestResolver_CachedAPIKeyExpires(t *testing.T) {
	f := newFixture(t, Config{CacheSize: 100, CacheTTL: time.Hour})
	u := f.user("u@example.com")
	projectID := f.personalProject(u, "notes")

	expiresAt := f.now.Add(time.Minute)
	created, err := f.svc.APIKeys().Create(f.ctx, CreateAPIKeyInput{UserID: u, ProjectID: projectID, ExpiresAt: &expiresAt})
	require.NoError(t, err)

	key := models.APIKeyPrincipal(created.Key.KeyID)
	require.Equal(t, models.LevelManage, f.level(key, projectID))

	f.now = f.now.Add(2 * time.Minute)
	require.Equal(t, models.LevelNone, f.level(key, projectID))
}

func TestResolver_ConcurrentResolve(t *testing.T) {
	f := newFixture(t)
	admin := f.user("admin@acme.test")
	acme := f.org("acme", models.LevelView, admin)
	projectID := f.orgProject(acme, "website")

	users := make([]uuid.UUID, 8)
	for i := range users {
		users[i] = f.user(uuid.NewString() + "@acme.test")
		f.member(acme, users[i], nil)
	}

	done := make(chan models.PermissionLevel, len(users)*10)
	for range 10 {
		for _, u := range users {
			go func() {
				level, err := f.svc.Resolver().Resolve(context.Background(), models.UserPrincipal(u), projectID)
				if err != nil {
					level = -1
				}
				done <- level
			}()
		}
	}

	for range len(users) * 10 {
		require.Equal(t, models.LevelView, <-done)
	}
}
