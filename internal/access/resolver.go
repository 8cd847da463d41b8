package access

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/polyglot/internal/models"
	"github.com/wolfeidau/polyglot/internal/store"
	"github.com/wolfeidau/polyglot/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Source names the rule that decided a resolution.
type Source string

const (
	SourceOwner        Source = "owner"        // personal owner of the project
	SourceProject      Source = "project"      // explicit project grant
	SourceOrganization Source = "organization" // explicit organization grant
	SourceBase         Source = "base"         // organization base permission via membership
	SourceAPIKey       Source = "api_key"      // the key's own project grant
	SourceNone         Source = "none"
)

// Resolution explains how an effective level was computed.
type Resolution struct {
	Level  models.PermissionLevel
	Source Source

	// Governing is the permission record whose level was used, nil for the
	// owner, base and none sources.
	Governing *models.Permission

	// UserLevel is the level of the key's user; set for API key principals only.
	UserLevel *models.PermissionLevel

	// Ceiling is the API key ceiling that was applied, if any.
	Ceiling *models.PermissionLevel

	// LanguageDenied is set when a language restriction forced the level to NONE.
	LanguageDenied bool

	// restrictions are the records whose language lists apply to this resolution.
	restrictions []*models.Permission

	// expiresAt is the expiry of the API key the resolution went through.
	expiresAt *time.Time
}

// expired reports whether the API key behind a cached resolution has expired
// since it was cached.
func (r Resolution) expired(now time.Time) bool {
	return r.expiresAt != nil && !now.Before(*r.expiresAt)
}

func (r Resolution) clone() Resolution {
	if r.Governing != nil {
		r.Governing = r.Governing.Clone()
	}
	return r
}

type cacheKey struct {
	principal models.Principal
	projectID uuid.UUID
	language  uuid.UUID
}

// Resolver computes the effective permission level of a principal on a
// project. It never mutates state; every resolution reads one consistent
// snapshot through Store.View.
type Resolver struct {
	store store.Store
	cache *expirable.LRU[cacheKey, Resolution]
	now   func() time.Time
	log   zerolog.Logger

	// epoch counts invalidations. A resolution is only kept in the cache when
	// no invalidation happened while it was computed.
	epoch atomic.Uint64
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCache keeps up to size resolutions for ttl. The cache is purged by every
// mutation made through the access services, so it only serves stale results
// for changes made by other processes. A zero ttl or size disables it.
func WithCache(size int, ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		if size > 0 && ttl > 0 {
			r.cache = expirable.NewLRU[cacheKey, Resolution](size, nil, ttl)
		}
	}
}

// WithLogger sets the logger used when ctx carries none.
func WithLogger(log zerolog.Logger) ResolverOption {
	return func(r *Resolver) { r.log = log }
}

// WithClock overrides the clock used for API key expiry.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

func NewResolver(st store.Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{store: st, now: time.Now, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the effective level of principal on the project. A missing
// project or an unrelated principal resolves to NONE; only infrastructure
// failures are returned as errors.
func (r *Resolver) Resolve(ctx context.Context, principal models.Principal, projectID uuid.UUID) (models.PermissionLevel, error) {
	res, err := r.Explain(ctx, principal, projectID, nil)
	return res.Level, err
}

// ResolveLanguage is Resolve for an operation that targets one language of the
// project. A language restriction that excludes it yields NONE.
func (r *Resolver) ResolveLanguage(ctx context.Context, principal models.Principal, projectID, languageID uuid.UUID) (models.PermissionLevel, error) {
	res, err := r.Explain(ctx, principal, projectID, &languageID)
	return res.Level, err
}

// Require returns ErrInsufficientPermission unless principal resolves to at
// least level on the project.
func (r *Resolver) Require(ctx context.Context, principal models.Principal, projectID uuid.UUID, level models.PermissionLevel) error {
	got, err := r.Resolve(ctx, principal, projectID)
	if err != nil {
		return err
	}
	if !got.AtLeast(level) {
		return fmt.Errorf("%w: %s has %s on project %s, needs %s", ErrInsufficientPermission, principal, got, projectID, level)
	}
	return nil
}

// Explain resolves like Resolve and reports which rule decided the result.
// languageID may be nil when the operation does not target a language.
func (r *Resolver) Explain(ctx context.Context, principal models.Principal, projectID uuid.UUID, languageID *uuid.UUID) (Resolution, error) {
	key := cacheKey{principal: principal, projectID: projectID}
	if languageID != nil {
		key.language = *languageID
	}

	if r.cache != nil {
		if res, ok := r.cache.Get(key); ok && !res.expired(r.now()) {
			telemetry.GetMetrics().ResolutionCacheHits.Add(ctx, 1)
			return res.clone(), nil
		}
	}

	epoch := r.epoch.Load()
	started := time.Now()

	var res Resolution
	err := r.store.View(ctx, func(ctx context.Context, repos store.Repositories) error {
		project, err := repos.Projects().Get(ctx, projectID)
		if err != nil {
			if errors.Is(err, store.ErrProjectNotFound) {
				res = none()
				return nil
			}
			return err
		}

		res, err = r.resolveIn(ctx, repos, principal, project, languageID)
		return err
	})
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to resolve permission: %w", err)
	}

	telemetry.GetMetrics().ResolutionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("level", res.Level.String()),
		attribute.String("source", string(res.Source)),
	))
	telemetry.GetMetrics().ResolutionDuration.Record(ctx, float64(time.Since(started).Microseconds())/1000)

	r.logger(ctx).Debug().
		Str("principal", principal.String()).
		Str("project_id", projectID.String()).
		Str("level", res.Level.String()).
		Str("source", string(res.Source)).
		Msg("Resolved permission")

	if r.cache != nil {
		r.cache.Add(key, res.clone())
		// An invalidation that raced the read may have purged before the add.
		if r.epoch.Load() != epoch {
			r.cache.Remove(key)
		}
	}

	return res, nil
}

// Invalidate drops every cached resolution, including resolutions in flight
// that read the store before the invalidation.
func (r *Resolver) Invalidate() {
	r.epoch.Add(1)
	if r.cache != nil {
		r.cache.Purge()
	}
}

func (r *Resolver) logger(ctx context.Context) *zerolog.Logger {
	return contextLogger(ctx, &r.log)
}

// resolveIn resolves against repos, which may be a read only view or the
// transaction of a mutation that needs the post-mutation level.
func (r *Resolver) resolveIn(ctx context.Context, repos store.Repositories, principal models.Principal, project *models.Project, languageID *uuid.UUID) (Resolution, error) {
	var (
		res Resolution
		err error
	)

	switch {
	case principal.IsUser():
		res, err = r.resolveUser(ctx, repos, principal.ID(), project)
	case principal.IsAPIKey():
		res, err = r.resolveAPIKey(ctx, repos, principal.ID(), project)
	default:
		return none(), nil
	}
	if err != nil {
		return Resolution{}, err
	}

	if languageID != nil {
		for _, perm := range res.restrictions {
			if !perm.AllowsLanguage(*languageID) {
				res.Level = models.LevelNone
				res.LanguageDenied = true
				break
			}
		}
	}

	return res, nil
}

// resolveUser applies, in order: personal ownership, the organization level
// (explicit grant, else base permission for members), then the project grant
// which overrides the organization level in both directions.
func (r *Resolver) resolveUser(ctx context.Context, repos store.Repositories, userID uuid.UUID, project *models.Project) (Resolution, error) {
	if project.IsPersonalOwner(userID) {
		return Resolution{Level: models.LevelManage, Source: SourceOwner}, nil
	}

	principal := models.UserPrincipal(userID)
	res := none()

	if orgID, ok := project.OrganizationID(); ok {
		orgRes, err := r.organizationLevel(ctx, repos, principal, orgID)
		if err != nil {
			return Resolution{}, err
		}
		res = orgRes
	}

	projectPerm, err := findPermission(ctx, repos, principal, models.ProjectScope(project.ProjectID))
	if err != nil {
		return Resolution{}, err
	}
	if projectPerm != nil {
		res = governed(projectPerm, SourceProject)
	}

	return res, nil
}

// organizationLevel is the explicit organization grant if there is one, else
// the base permission when the user is a member, else NONE.
func (r *Resolver) organizationLevel(ctx context.Context, repos store.Repositories, principal models.Principal, orgID uuid.UUID) (Resolution, error) {
	orgPerm, err := findPermission(ctx, repos, principal, models.OrganizationScope(orgID))
	if err != nil {
		return Resolution{}, err
	}
	if orgPerm != nil {
		return governed(orgPerm, SourceOrganization), nil
	}

	member, err := repos.Memberships().IsMember(ctx, orgID, principal.ID())
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to check membership: %w", err)
	}
	if !member {
		return none(), nil
	}

	org, err := repos.Organizations().Get(ctx, orgID)
	if err != nil {
		if errors.Is(err, store.ErrOrganizationNotFound) {
			return none(), nil
		}
		return Resolution{}, err
	}

	return Resolution{Level: org.BasePermission, Source: SourceBase}, nil
}

// resolveAPIKey resolves a key on the one project it targets. The key's own
// project grant replaces the user's level but never exceeds it, then the
// ceiling clamps the result.
func (r *Resolver) resolveAPIKey(ctx context.Context, repos store.Repositories, keyID uuid.UUID, project *models.Project) (Resolution, error) {
	key, err := repos.APIKeys().Get(ctx, keyID)
	if err != nil {
		if errors.Is(err, store.ErrAPIKeyNotFound) {
			return none(), nil
		}
		return Resolution{}, err
	}

	if key.ProjectID != project.ProjectID || key.IsExpired(r.now()) {
		return none(), nil
	}

	userRes, err := r.resolveUser(ctx, repos, key.UserID, project)
	if err != nil {
		return Resolution{}, err
	}

	res := userRes
	res.expiresAt = key.ExpiresAt
	userLevel := userRes.Level
	res.UserLevel = &userLevel

	keyPerm, err := findPermission(ctx, repos, models.APIKeyPrincipal(keyID), models.ProjectScope(project.ProjectID))
	if err != nil {
		return Resolution{}, err
	}
	if keyPerm != nil {
		res.Level = keyPerm.Level.Min(userLevel)
		res.Source = SourceAPIKey
		res.Governing = keyPerm
		if keyPerm.Restricted() {
			res.restrictions = append(res.restrictions, keyPerm)
		}
	}

	if key.Ceiling != nil {
		ceiling := *key.Ceiling
		res.Level = res.Level.Min(ceiling)
		res.Ceiling = &ceiling
	}

	return res, nil
}

func findPermission(ctx context.Context, repos store.Repositories, principal models.Principal, scope models.Scope) (*models.Permission, error) {
	perm, err := repos.Permissions().Find(ctx, principal, scope)
	if err != nil {
		if errors.Is(err, store.ErrPermissionNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find permission: %w", err)
	}
	return perm, nil
}

func governed(perm *models.Permission, source Source) Resolution {
	res := Resolution{Level: perm.Level, Source: source, Governing: perm}
	if perm.Restricted() {
		res.restrictions = []*models.Permission{perm}
	}
	return res
}

func none() Resolution {
	return Resolution{Level: models.LevelNone, Source: SourceNone}
}
