package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestOwnerFromRefs(t *testing.T) {
	userID := uuid.New()
	orgID := uuid.New()

	t.Run("user owner", func(t *testing.T) {
		owner, err := OwnerFromRefs(&userID, nil)
		require.NoError(t, err)
		require.Equal(t, OwnerKindUser, owner.Kind())
		id, ok := owner.UserID()
		require.True(t, ok)
		require.Equal(t, userID, id)
		_, ok = owner.OrganizationID()
		require.False(t, ok)
	})

	t.Run("organization owner", func(t *testing.T) {
		owner, err := OwnerFromRefs(nil, &orgID)
		require.NoError(t, err)
		require.Equal(t, OwnerKindOrganization, owner.Kind())
		user, org := owner.Refs()
		require.Nil(t, user)
		require.Equal(t, orgID, *org)
	})

	t.Run("both set is rejected", func(t *testing.T) {
		_, err := OwnerFromRefs(&userID, &orgID)
		require.ErrorIs(t, err, ErrAmbiguousReference)
	})

	t.Run("neither set is rejected", func(t *testing.T) {
		_, err := OwnerFromRefs(nil, nil)
		require.ErrorIs(t, err, ErrNoReference)
	})
}

func TestOwnerValidate(t *testing.T) {
	require.ErrorIs(t, Owner{}.Validate(), ErrNoReference)
	require.ErrorIs(t, UserOwner(uuid.Nil).Validate(), ErrNoReference)
	require.NoError(t, OrganizationOwner(uuid.New()).Validate())
}

func TestScopeFromRefs(t *testing.T) {
	orgID := uuid.New()
	projectID := uuid.New()

	scope, err := ScopeFromRefs(&orgID, nil)
	require.NoError(t, err)
	require.True(t, scope.IsOrganization())

	scope, err = ScopeFromRefs(nil, &projectID)
	require.NoError(t, err)
	require.True(t, scope.IsProject())
	require.Equal(t, projectID, scope.ID())

	_, err = ScopeFromRefs(&orgID, &projectID)
	require.ErrorIs(t, err, ErrAmbiguousReference)

	_, err = ScopeFromRefs(nil, nil)
	require.ErrorIs(t, err, ErrNoReference)

	require.ErrorIs(t, Scope{}.Validate(), ErrNoReference)
}

func TestPrincipal(t *testing.T) {
	id := uuid.New()

	p := APIKeyPrincipal(id)
	require.True(t, p.IsAPIKey())
	require.Equal(t, "api_key:"+id.String(), p.String())

	rebuilt, err := NewPrincipal(PrincipalKindUser, id)
	require.NoError(t, err)
	require.Equal(t, UserPrincipal(id), rebuilt)

	_, err = NewPrincipal("robot", id)
	require.Error(t, err)

	_, err = NewPrincipal(PrincipalKindUser, uuid.Nil)
	require.Error(t, err)
	require.True(t, Principal{}.IsZero())
}

func TestPermissionAllowsLanguage(t *testing.T) {
	en := uuid.New()
	de := uuid.New()

	unrestricted := &Permission{Level: LevelTranslate}
	require.True(t, unrestricted.AllowsLanguage(en))

	restricted := &Permission{Level: LevelTranslate, LanguageIDs: []uuid.UUID{en}}
	require.True(t, restricted.AllowsLanguage(en))
	require.False(t, restricted.AllowsLanguage(de))

	clone := restricted.Clone()
	clone.LanguageIDs[0] = de
	require.Equal(t, en, restricted.LanguageIDs[0])
}
