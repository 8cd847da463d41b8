package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/polyglot/internal/models"
	"github.com/wolfeidau/polyglot/internal/store"
)

func newOrg(slug string) *models.Organization {
	return &models.Organization{
		OrgID:          uuid.Must(uuid.NewV7()),
		Name:           slug,
		Slug:           slug,
		BasePermission: models.LevelView,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
}

func TestStore_WithTx(t *testing.T) {
	t.Run("commits all writes", func(t *testing.T) {
		st := NewStore()
		ctx := context.Background()
		org := newOrg("acme")
		userID := uuid.Must(uuid.NewV7())

		err := st.WithTx(ctx, func(ctx context.Context, tx store.Repositories) error {
			if err := tx.Organizations().Create(ctx, org); err != nil {
				return err
			}
			return tx.Memberships().Add(ctx, &models.Membership{OrgID: org.OrgID, UserID: userID, CreatedAt: time.Now()})
		})
		require.NoError(t, err)

		got, err := st.Organizations().Get(ctx, org.OrgID)
		require.NoError(t, err)
		require.Equal(t, "acme", got.Slug)

		member, err := st.Memberships().IsMember(ctx, org.OrgID, userID)
		require.NoError(t, err)
		require.True(t, member)
	})

	t.Run("rolls back every write on error", func(t *testing.T) {
		st := NewStore()
		ctx := context.Background()
		existing := newOrg("existing")
		require.NoError(t, st.Organizations().Create(ctx, existing))

		org := newOrg("acme")
		boom := errors.New("boom")

		err := st.WithTx(ctx, func(ctx context.Context, tx store.Repositories) error {
			require.NoError(t, tx.Organizations().Create(ctx, org))
			require.NoError(t, tx.Organizations().Delete(ctx, existing.OrgID))
			return boom
		})
		require.ErrorIs(t, err, boom)

		_, err = st.Organizations().Get(ctx, org.OrgID)
		require.ErrorIs(t, err, store.ErrOrganizationNotFound)

		_, err = st.Organizations().Get(ctx, existing.OrgID)
		require.NoError(t, err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		st := NewStore()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		called := false
		err := st.WithTx(ctx, func(ctx context.Context, tx store.Repositories) error {
			called = true
			return nil
		})
		require.ErrorIs(t, err, context.Canceled)
		require.False(t, called)
	})
}

func TestStore_View(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	org := newOrg("acme")
	require.NoError(t, st.Organizations().Create(ctx, org))

	err := st.View(ctx, func(ctx context.Context, r store.Repositories) error {
		got, err := r.Organizations().Get(ctx, org.OrgID)
		require.NoError(t, err)
		require.Equal(t, org.OrgID, got.OrgID)

		return r.Organizations().Create(ctx, newOrg("other"))
	})
	require.ErrorIs(t, err, store.ErrReadOnly)
}

func TestOrganizationStore_Update(t *testing.T) {
	t.Run("bumps version", func(t *testing.T) {
		st := NewStore()
		ctx := context.Background()
		org := newOrg("acme")
		require.NoError(t, st.Organizations().Create(ctx, org))
		require.Equal(t, int64(1), org.Version)

		org.BasePermission = models.LevelTranslate
		require.NoError(t, st.Organizations().Update(ctx, org))
		require.Equal(t, int64(2), org.Version)

		got, err := st.Organizations().Get(ctx, org.OrgID)
		require.NoError(t, err)
		require.Equal(t, models.LevelTranslate, got.BasePermission)
		require.Equal(t, int64(2), got.Version)
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		st := NewStore()
		ctx := context.Background()
		org := newOrg("acme")
		require.NoError(t, st.Organizations().Create(ctx, org))

		first, err := st.Organizations().Get(ctx, org.OrgID)
		require.NoError(t, err)
		second, err := st.Organizations().Get(ctx, org.OrgID)
		require.NoError(t, err)

		first.Name = "first"
		require.NoError(t, st.Organizations().Update(ctx, first))

		second.Name = "second"
		err = st.Organizations().Update(ctx, second)
		require.ErrorIs(t, err, store.ErrVersionConflict)
	})

	t.Run("slug must stay unique", func(t *testing.T) {
		st := NewStore()
		ctx := context.Background()
		a := newOrg("alpha")
		b := newOrg("beta")
		require.NoError(t, st.Organizations().Create(ctx, a))
		require.NoError(t, st.Organizations().Create(ctx, b))

		b.Slug = "alpha"
		require.ErrorIs(t, st.Organizations().Update(ctx, b), store.ErrSlugTaken)
	})
}

func TestOrganizationStore_Isolation(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	org := newOrg("acme")
	require.NoError(t, st.Organizations().Create(ctx, org))

	org.Name = "mutated"
	got, err := st.Organizations().Get(ctx, org.OrgID)
	require.NoError(t, err)
	require.Equal(t, "acme", got.Name)

	got.Name = "mutated again"
	again, err := st.Organizations().Get(ctx, org.OrgID)
	require.NoError(t, err)
	require.Equal(t, "acme", again.Name)
}

func TestMembershipStore(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	orgID := uuid.Must(uuid.NewV7())
	alice := uuid.Must(uuid.NewV7())
	bob := uuid.Must(uuid.NewV7())
	now := time.Now()

	require.NoError(t, st.Memberships().Add(ctx, &models.Membership{OrgID: orgID, UserID: alice, CreatedAt: now}))
	require.NoError(t, st.Memberships().Add(ctx, &models.Membership{OrgID: orgID, UserID: bob, CreatedAt: now.Add(time.Second)}))

	err := st.Memberships().Add(ctx, &models.Membership{OrgID: orgID, UserID: alice, CreatedAt: now})
	require.ErrorIs(t, err, store.ErrMembershipAlreadyExists)

	members, err := st.Memberships().ListMembers(ctx, orgID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	require.Equal(t, alice, members[0].UserID)

	require.NoError(t, st.Memberships().Remove(ctx, orgID, alice))
	require.ErrorIs(t, st.Memberships().Remove(ctx, orgID, alice), store.ErrMembershipNotFound)

	require.NoError(t, st.Memberships().DeleteByOrganization(ctx, orgID))
	member, err := st.Memberships().IsMember(ctx, orgID, bob)
	require.NoError(t, err)
	require.False(t, member)
}

func TestProjectStore(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	userID := uuid.Must(uuid.NewV7())
	orgID := uuid.Must(uuid.NewV7())

	personal := &models.Project{ProjectID: uuid.Must(uuid.NewV7()), Name: "Web", Slug: "web", Owner: models.UserOwner(userID)}
	shared := &models.Project{ProjectID: uuid.Must(uuid.NewV7()), Name: "App", Slug: "app", Owner: models.OrganizationOwner(orgID)}
	require.NoError(t, st.Projects().Create(ctx, personal))
	require.NoError(t, st.Projects().Create(ctx, shared))

	dup := &models.Project{ProjectID: uuid.Must(uuid.NewV7()), Name: "Web", Slug: "web", Owner: models.UserOwner(userID)}
	require.ErrorIs(t, st.Projects().Create(ctx, dup), store.ErrSlugTaken)

	owned, err := st.Projects().ListByOwner(ctx, models.UserOwner(userID))
	require.NoError(t, err)
	require.Len(t, owned, 1)
	require.Equal(t, personal.ProjectID, owned[0].ProjectID)

	bySlug, err := st.Projects().GetBySlug(ctx, "app")
	require.NoError(t, err)
	require.Equal(t, models.OrganizationOwner(orgID), bySlug.Owner)

	require.NoError(t, st.Projects().Delete(ctx, personal.ProjectID))
	_, err = st.Projects().Get(ctx, personal.ProjectID)
	require.ErrorIs(t, err, store.ErrProjectNotFound)
}

func TestLanguageStore(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	projectID := uuid.Must(uuid.NewV7())

	de := &models.Language{LanguageID: uuid.Must(uuid.NewV7()), ProjectID: projectID, Abbreviation: "de", Name: "German"}
	en := &models.Language{LanguageID: uuid.Must(uuid.NewV7()), ProjectID: projectID, Abbreviation: "en", Name: "English"}
	require.NoError(t, st.Languages().Create(ctx, en))
	require.NoError(t, st.Languages().Create(ctx, de))

	dup := &models.Language{LanguageID: uuid.Must(uuid.NewV7()), ProjectID: projectID, Abbreviation: "EN"}
	require.ErrorIs(t, st.Languages().Create(ctx, dup), store.ErrLanguageAlreadyExists)

	langs, err := st.Languages().ListByProject(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, langs, 2)
	require.Equal(t, "de", langs[0].Abbreviation)

	n, err := st.Languages().DeleteByProject(ctx, projectID)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestPermissionStore(t *testing.T) {
	t.Run("one permission per principal and scope", func(t *testing.T) {
		st := NewStore()
		ctx := context.Background()
		principal := models.UserPrincipal(uuid.Must(uuid.NewV7()))
		scope := models.ProjectScope(uuid.Must(uuid.NewV7()))

		first := &models.Permission{PermissionID: uuid.Must(uuid.NewV7()), Principal: principal, Scope: scope, Level: models.LevelEdit}
		second := &models.Permission{PermissionID: uuid.Must(uuid.NewV7()), Principal: principal, Scope: scope, Level: models.LevelView}

		require.NoError(t, st.Permissions().Create(ctx, first))
		require.ErrorIs(t, st.Permissions().Create(ctx, second), store.ErrPermissionAlreadyExists)

		got, err := st.Permissions().Find(ctx, principal, scope)
		require.NoError(t, err)
		require.Equal(t, models.LevelEdit, got.Level)
	})

	t.Run("language restriction is copied", func(t *testing.T) {
		st := NewStore()
		ctx := context.Background()
		principal := models.UserPrincipal(uuid.Must(uuid.NewV7()))
		scope := models.ProjectScope(uuid.Must(uuid.NewV7()))
		langID := uuid.Must(uuid.NewV7())

		perm := &models.Permission{
			PermissionID: uuid.Must(uuid.NewV7()),
			Principal:    principal,
			Scope:        scope,
			Level:        models.LevelTranslate,
			LanguageIDs:  []uuid.UUID{langID},
		}
		require.NoError(t, st.Permissions().Create(ctx, perm))
		perm.LanguageIDs[0] = uuid.Nil

		got, err := st.Permissions().Find(ctx, principal, scope)
		require.NoError(t, err)
		require.Equal(t, []uuid.UUID{langID}, got.LanguageIDs)
	})

	t.Run("update keeps principal and scope", func(t *testing.T) {
		st := NewStore()
		ctx := context.Background()
		principal := models.UserPrincipal(uuid.Must(uuid.NewV7()))
		scope := models.OrganizationScope(uuid.Must(uuid.NewV7()))

		perm := &models.Permission{PermissionID: uuid.Must(uuid.NewV7()), Principal: principal, Scope: scope, Level: models.LevelView}
		require.NoError(t, st.Permissions().Create(ctx, perm))

		perm.Level = models.LevelManage
		perm.Scope = models.ProjectScope(uuid.Must(uuid.NewV7()))
		require.NoError(t, st.Permissions().Update(ctx, perm))
		require.Equal(t, scope, perm.Scope)

		listed, err := st.Permissions().ListByPrincipal(ctx, principal)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		require.Equal(t, models.LevelManage, listed[0].Level)
	})

	t.Run("delete by scope and principal", func(t *testing.T) {
		st := NewStore()
		ctx := context.Background()
		alice := models.UserPrincipal(uuid.Must(uuid.NewV7()))
		bob := models.UserPrincipal(uuid.Must(uuid.NewV7()))
		scope := models.ProjectScope(uuid.Must(uuid.NewV7()))
		other := models.ProjectScope(uuid.Must(uuid.NewV7()))

		for _, p := range []models.Principal{alice, bob} {
			require.NoError(t, st.Permissions().Create(ctx, &models.Permission{PermissionID: uuid.Must(uuid.NewV7()), Principal: p, Scope: scope, Level: models.LevelView}))
		}
		require.NoError(t, st.Permissions().Create(ctx, &models.Permission{PermissionID: uuid.Must(uuid.NewV7()), Principal: alice, Scope: other, Level: models.LevelView}))

		n, err := st.Permissions().DeleteByScope(ctx, scope)
		require.NoError(t, err)
		require.Equal(t, 2, n)

		n, err = st.Permissions().DeleteByPrincipal(ctx, alice)
		require.NoError(t, err)
		require.Equal(t, 1, n)

		_, err = st.Permissions().Find(ctx, bob, scope)
		require.ErrorIs(t, err, store.ErrPermissionNotFound)
		require.NoError(t, st.Permissions().Create(ctx, &models.Permission{PermissionID: uuid.Must(uuid.NewV7()), Principal: alice, Scope: other, Level: models.LevelEdit}))
	})

	t.Run("lookup follows rollback", func(t *testing.T) {
		st := NewStore()
		ctx := context.Background()
		principal := models.UserPrincipal(uuid.Must(uuid.NewV7()))
		kept := models.ProjectScope(uuid.Must(uuid.NewV7()))
		added := models.ProjectScope(uuid.Must(uuid.NewV7()))

		perm := &models.Permission{PermissionID: uuid.Must(uuid.NewV7()), Principal: principal, Scope: kept, Level: models.LevelView}
		require.NoError(t, st.Permissions().Create(ctx, perm))

		boom := errors.New("boom")
		err := st.WithTx(ctx, func(ctx context.Context, tx store.Repositories) error {
			require.NoError(t, tx.Permissions().Delete(ctx, perm.PermissionID))
			require.NoError(t, tx.Permissions().Create(ctx, &models.Permission{PermissionID: uuid.Must(uuid.NewV7()), Principal: principal, Scope: added, Level: models.LevelEdit}))
			return boom
		})
		require.ErrorIs(t, err, boom)

		got, err := st.Permissions().Find(ctx, principal, kept)
		require.NoError(t, err)
		require.Equal(t, perm.PermissionID, got.PermissionID)

		_, err = st.Permissions().Find(ctx, principal, added)
		require.ErrorIs(t, err, store.ErrPermissionNotFound)
	})
}

func TestAPIKeyStore(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	userID := uuid.Must(uuid.NewV7())
	projectID := uuid.Must(uuid.NewV7())
	ceiling := models.LevelTranslate

	key := &models.APIKey{
		KeyID:     uuid.Must(uuid.NewV7()),
		UserID:    userID,
		ProjectID: projectID,
		Ceiling:   &ceiling,
		KeyPrefix: "pgk_abcd",
		KeyHash:   "hash-1",
		CreatedAt: time.Now(),
	}
	require.NoError(t, st.APIKeys().Create(ctx, key))

	dup := key.Clone()
	dup.KeyID = uuid.Must(uuid.NewV7())
	require.ErrorIs(t, st.APIKeys().Create(ctx, dup), store.ErrAPIKeyAlreadyExists)

	ceiling = models.LevelManage
	got, err := st.APIKeys().GetByHash(ctx, "hash-1")
	require.NoError(t, err)
	require.Equal(t, models.LevelTranslate, *got.Ceiling)

	got.Ceiling = nil
	require.NoError(t, st.APIKeys().Update(ctx, got))

	byUser, err := st.APIKeys().ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	require.Nil(t, byUser[0].Ceiling)

	n, err := st.APIKeys().DeleteByProject(ctx, projectID)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = st.APIKeys().Get(ctx, key.KeyID)
	require.ErrorIs(t, err, store.ErrAPIKeyNotFound)
}
