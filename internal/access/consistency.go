package access

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/wolfeidau/polyglot/internal/models"
	"github.com/wolfeidau/polyglot/internal/store"
	"github.com/wolfeidau/polyglot/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// core is shared by the access services: the store, the resolver whose cache
// every mutation purges, the clock and the logger.
type core struct {
	store    store.Store
	resolver *Resolver
	now      func() time.Time
	log      zerolog.Logger
}

func (c *core) logger(ctx context.Context) *zerolog.Logger {
	return contextLogger(ctx, &c.log)
}

// contextLogger prefers the logger carried by ctx, which Operations.Track
// tags with the operation name, over fallback.
func contextLogger(ctx context.Context, fallback *zerolog.Logger) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return fallback
}

// mutate runs fn in a store transaction inside a span. fn may run more than
// once when the store retries, so it must not keep state outside the
// variables it assigns.
func (c *core) mutate(ctx context.Context, name string, fn func(ctx context.Context, tx store.Repositories) error, attrs ...attribute.KeyValue) error {
	ctx, span := telemetry.Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
	defer span.End()

	if err := c.store.WithTx(ctx, fn); err != nil {
		err = translate(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	c.resolver.Invalidate()
	return nil
}

// view runs fn against a consistent read only snapshot.
func (c *core) view(ctx context.Context, fn func(ctx context.Context, r store.Repositories) error) error {
	return translate(c.store.View(ctx, fn))
}

func newID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// cascade counts what a mutation removed as a side effect.
type cascade struct {
	permissions int
	languages   int
	apiKeys     int
}

func (c cascade) total() int {
	return c.permissions + c.languages + c.apiKeys
}

func (c cascade) record(ctx context.Context, entity string) {
	if c.total() > 0 {
		telemetry.GetMetrics().CascadeDeletesTotal.Add(ctx, int64(c.total()),
			metric.WithAttributes(attribute.String("entity", entity)))
	}
	if c.apiKeys > 0 {
		telemetry.GetMetrics().APIKeysRevokedTotal.Add(ctx, int64(c.apiKeys))
	}
}

// deleteAPIKeyIn removes a key together with the permissions granted to it.
func deleteAPIKeyIn(ctx context.Context, tx store.Repositories, keyID uuid.UUID) (int, error) {
	n, err := tx.Permissions().DeleteByPrincipal(ctx, models.APIKeyPrincipal(keyID))
	if err != nil {
		return 0, fmt.Errorf("failed to delete api key permissions: %w", err)
	}
	if err := tx.APIKeys().Delete(ctx, keyID); err != nil {
		return 0, err
	}
	return n, nil
}

// revokeOrphanedKeys deletes the API keys of a user, limited to projects
// accepted by inScope, whose user no longer resolves above NONE on the key's
// project. An API key never outlives the access it was created from.
func (c *core) revokeOrphanedKeys(ctx context.Context, tx store.Repositories, userID uuid.UUID, inScope func(projectID uuid.UUID) bool) (cascade, error) {
	var removed cascade

	keys, err := tx.APIKeys().ListByUser(ctx, userID)
	if err != nil {
		return removed, fmt.Errorf("failed to list api keys: %w", err)
	}

	for _, key := range keys {
		if !inScope(key.ProjectID) {
			continue
		}

		project, err := tx.Projects().Get(ctx, key.ProjectID)
		if err != nil {
			return removed, err
		}

		res, err := c.resolver.resolveUser(ctx, tx, userID, project)
		if err != nil {
			return removed, err
		}
		if res.Level > models.LevelNone {
			continue
		}

		n, err := deleteAPIKeyIn(ctx, tx, key.KeyID)
		if err != nil {
			return removed, err
		}
		removed.permissions += n
		removed.apiKeys++

		c.logger(ctx).Info().
			Str("key_id", key.KeyID.String()).
			Str("user_id", userID.String()).
			Str("project_id", key.ProjectID.String()).
			Msg("Revoked API key after loss of access")
	}

	return removed, nil
}

// revokeOrphanedProjectKeys checks every key targeting one project, used when
// the project changes owner.
func (c *core) revokeOrphanedProjectKeys(ctx context.Context, tx store.Repositories, projectID uuid.UUID) (cascade, error) {
	var removed cascade

	keys, err := tx.APIKeys().ListByProject(ctx, projectID)
	if err != nil {
		return removed, fmt.Errorf("failed to list api keys: %w", err)
	}

	users := lo.Uniq(lo.Map(keys, func(k *models.APIKey, _ int) uuid.UUID { return k.UserID }))
	onProject := func(id uuid.UUID) bool { return id == projectID }

	for _, userID := range users {
		n, err := c.revokeOrphanedKeys(ctx, tx, userID, onProject)
		if err != nil {
			return removed, err
		}
		removed.permissions += n.permissions
		removed.apiKeys += n.apiKeys
	}

	return removed, nil
}

// organizationProjects returns a membership test for the projects an
// organization owns.
func organizationProjects(ctx context.Context, tx store.Repositories, orgID uuid.UUID) (func(uuid.UUID) bool, error) {
	projects, err := tx.Projects().ListByOwner(ctx, models.OrganizationOwner(orgID))
	if err != nil {
		return nil, fmt.Errorf("failed to list organization projects: %w", err)
	}

	ids := lo.SliceToMap(projects, func(p *models.Project) (uuid.UUID, struct{}) {
		return p.ProjectID, struct{}{}
	})

	return func(id uuid.UUID) bool {
		_, ok := ids[id]
		return ok
	}, nil
}

// deleteProjectIn removes a project and everything that belongs to it:
// API keys and their grants, project grants and languages.
func deleteProjectIn(ctx context.Context, tx store.Repositories, projectID uuid.UUID) (cascade, error) {
	var removed cascade

	keys, err := tx.APIKeys().ListByProject(ctx, projectID)
	if err != nil {
		return removed, fmt.Errorf("failed to list api keys: %w", err)
	}
	for _, key := range keys {
		n, err := deleteAPIKeyIn(ctx, tx, key.KeyID)
		if err != nil {
			return removed, err
		}
		removed.permissions += n
		removed.apiKeys++
	}

	n, err := tx.Permissions().DeleteByScope(ctx, models.ProjectScope(projectID))
	if err != nil {
		return removed, fmt.Errorf("failed to delete project permissions: %w", err)
	}
	removed.permissions += n

	if removed.languages, err = tx.Languages().DeleteByProject(ctx, projectID); err != nil {
		return removed, fmt.Errorf("failed to delete languages: %w", err)
	}

	if err := tx.Projects().Delete(ctx, projectID); err != nil {
		return removed, err
	}

	return removed, nil
}

// organizationMembers lists the members of org with their organization level:
// the explicit organization grant when there is one, else the base permission.
func organizationMembers(ctx context.Context, repos store.Repositories, org *models.Organization) ([]Member, error) {
	memberships, err := repos.Memberships().ListMembers(ctx, org.OrgID)
	if err != nil {
		return nil, err
	}

	grants, err := repos.Permissions().ListByScope(ctx, models.OrganizationScope(org.OrgID))
	if err != nil {
		return nil, err
	}
	explicit := make(map[uuid.UUID]models.PermissionLevel, len(grants))
	for _, g := range grants {
		explicit[g.Principal.ID()] = g.Level
	}

	members := make([]Member, 0, len(memberships))
	for _, m := range memberships {
		member := Member{UserID: m.UserID, Level: org.BasePermission}
		if level, ok := explicit[m.UserID]; ok {
			member.Level = level
			member.Explicit = true
		}
		members = append(members, member)
	}
	return members, nil
}

// keepManager runs change and fails with ErrLastManager when change leaves an
// organization that had a MANAGE member without any. Callers run it inside a
// transaction so the failed change is rolled back.
func keepManager(ctx context.Context, tx store.Repositories, orgID uuid.UUID, change func() error) error {
	before, err := countManagers(ctx, tx, orgID)
	if err != nil {
		return err
	}
	if err := change(); err != nil {
		return err
	}
	if before == 0 {
		return nil
	}

	after, err := countManagers(ctx, tx, orgID)
	if err != nil {
		return err
	}
	if after == 0 {
		return fmt.Errorf("%w: organization %s", ErrLastManager, orgID)
	}
	return nil
}

func countManagers(ctx context.Context, repos store.Repositories, orgID uuid.UUID) (int, error) {
	org, err := repos.Organizations().Get(ctx, orgID)
	if err != nil {
		return 0, err
	}
	members, err := organizationMembers(ctx, repos, org)
	if err != nil {
		return 0, err
	}
	return lo.CountBy(members, func(m Member) bool { return m.Level == models.LevelManage }), nil
}
