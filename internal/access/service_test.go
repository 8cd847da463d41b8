package access

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/polyglot/internal/models"
	"github.com/wolfeidau/polyglot/internal/store"
	"github.com/wolfeidau/polyglot/internal/store/memory"
)

// fixture wires a Service to an in-memory store with a controllable clock.
type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *memory.Store
	svc   *Service
	now   time.Time
}

func newFixture(t *testing.T, cfgs ...Config) *fixture {
	t.Helper()

	cfg := Config{}
	if len(cfgs) > 0 {
		cfg = cfgs[0]
	}

	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		store: memory.NewStore(),
		now:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.store, cfg, zerolog.Nop(), WithServiceClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) user(username string) uuid.UUID {
	f.t.Helper()
	u, err := f.svc.Users().Create(f.ctx, username, username)
	require.NoError(f.t, err)
	return u.UserID
}

func (f *fixture) org(slug string, base models.PermissionLevel, creator uuid.UUID) uuid.UUID {
	f.t.Helper()
	org, err := f.svc.Organizations().Create(f.ctx, CreateOrganizationInput{
		Name:           slug,
		Slug:           slug,
		BasePermission: base,
		CreatorID:      creator,
	})
	require.NoError(f.t, err)
	return org.OrgID
}

func (f *fixture) orgProject(orgID uuid.UUID, slug string) uuid.UUID {
	f.t.Helper()
	p, err := f.svc.Projects().Create(f.ctx, CreateProjectInput{Name: slug, Slug: slug, OrganizationOwner: &orgID})
	require.NoError(f.t, err)
	return p.ProjectID
}

func (f *fixture) personalProject(userID uuid.UUID, slug string) uuid.UUID {
	f.t.Helper()
	p, err := f.svc.Projects().Create(f.ctx, CreateProjectInput{Name: slug, Slug: slug, UserOwner: &userID})
	require.NoError(f.t, err)
	return p.ProjectID
}

func (f *fixture) member(orgID, userID uuid.UUID, level *models.PermissionLevel) {
	f.t.Helper()
	f.now = f.now.Add(time.Second)
	require.NoError(f.t, f.svc.Organizations().AddMember(f.ctx, orgID, userID, level))
}

func (f *fixture) grant(principal models.Principal, scope models.Scope, level models.PermissionLevel, languageIDs ...uuid.UUID) *models.Permission {
	f.t.Helper()
	perm, err := f.svc.Registry().Grant(f.ctx, principal, scope, level, languageIDs...)
	require.NoError(f.t, err)
	return perm
}

func (f *fixture) level(principal models.Principal, projectID uuid.UUID) models.PermissionLevel {
	f.t.Helper()
	level, err := f.svc.ResolvePermission(f.ctx, principal, projectID)
	require.NoError(f.t, err)
	return level
}

func levelPtr(l models.PermissionLevel) *models.PermissionLevel {
	return &l
}

func TestService_ValidateOwnership(t *testing.T) {
	f := newFixture(t)

	err := f.svc.ValidateOwnership(f.ctx, &models.Project{Name: "web"})
	require.ErrorIs(t, err, ErrInvalidOwnership)

	err = f.svc.ValidateOwnership(f.ctx, &models.Project{Name: "web", Owner: models.UserOwner(uuid.Must(uuid.NewV7()))})
	require.NoError(t, err)
}

func TestService_GrantPermission(t *testing.T) {
	f := newFixture(t)
	owner := f.user("owner@example.com")
	alice := f.user("alice@example.com")
	orgID := f.org("acme", models.LevelView, owner)
	projectID := f.orgProject(orgID, "website")

	scope := models.ProjectScope(projectID)
	perm, err := f.svc.GrantPermission(f.ctx, models.UserPrincipal(alice), scope, models.LevelEdit)
	require.NoError(t, err)
	require.Equal(t, models.LevelEdit, perm.Level)

	_, err = f.svc.GrantPermission(f.ctx, models.UserPrincipal(alice), scope, models.LevelView)
	require.ErrorIs(t, err, ErrDuplicatePermission)

	require.Equal(t, models.LevelEdit, f.level(models.UserPrincipal(alice), projectID))
}

func TestService_RevokePermission(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice@example.com")
	projectID := f.personalProject(alice, "notes")
	bob := f.user("bob@example.com")

	err := f.svc.RevokePermission(f.ctx, models.UserPrincipal(bob), models.ProjectScope(projectID))
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, err, store.ErrPermissionNotFound)

	f.grant(models.UserPrincipal(bob), models.ProjectScope(projectID), models.LevelReview)
	require.NoError(t, f.svc.RevokePermission(f.ctx, models.UserPrincipal(bob), models.ProjectScope(projectID)))
	require.Equal(t, models.LevelNone, f.level(models.UserPrincipal(bob), projectID))
}

func TestService_CreateAPIKey(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice@example.com")
	projectID := f.personalProject(alice, "notes")

	created, err := f.svc.CreateAPIKey(f.ctx, models.UserPrincipal(alice), projectID, levelPtr(models.LevelView))
	require.NoError(t, err)
	require.Equal(t, alice, created.Key.UserID)

	_, err = f.svc.CreateAPIKey(f.ctx, models.APIKeyPrincipal(created.Key.KeyID), projectID, nil)
	require.ErrorIs(t, err, ErrInvalidPermission)
}

func TestService_LogsThroughInjectedLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()
	svc := NewService(memory.NewStore(), Config{}, zerolog.New(&buf))

	owner, err := svc.Users().Create(ctx, "owner@example.com", "Owner")
	require.NoError(t, err)
	alice, err := svc.Users().Create(ctx, "alice@example.com", "Alice")
	require.NoError(t, err)
	project, err := svc.Projects().Create(ctx, CreateProjectInput{Name: "notes", Slug: "notes", UserOwner: &owner.UserID})
	require.NoError(t, err)

	_, err = svc.GrantPermission(ctx, models.UserPrincipal(alice.UserID), models.ProjectScope(project.ProjectID), models.LevelView)
	require.NoError(t, err)

	entries := map[string]map[string]any{}
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		if msg, ok := entry["message"].(string); ok {
			entries[msg] = entry
		}
	}
	require.NoError(t, scanner.Err())

	require.Contains(t, entries, "Created project")
	require.NotContains(t, entries["Created project"], "operation")

	require.Contains(t, entries, "Granted permission")
	require.Equal(t, "GrantPermission", entries["Granted permission"]["operation"])
}
