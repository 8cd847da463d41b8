package access

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/polyglot/internal/logger"
	"github.com/wolfeidau/polyglot/internal/models"
	"github.com/wolfeidau/polyglot/internal/store"
)

// Config holds the access service options.
type Config struct {
	CacheSize int           `help:"Maximum cached permission resolutions" default:"10000" env:"POLYGLOT_CACHE_SIZE"`
	CacheTTL  time.Duration `help:"Resolution cache TTL, 0 disables the cache" default:"0s" env:"POLYGLOT_CACHE_TTL"`
	APIKeyTTL time.Duration `help:"Default expiry of new API keys, 0 never expires" default:"0s" env:"POLYGLOT_API_KEY_TTL"`
}

// Service is the entry point used by the API layer. It exposes the ownership
// and permission operations directly and the remaining component services
// through accessors.
type Service struct {
	ops *logger.Operations

	resolver      *Resolver
	registry      *Registry
	keys          *KeyScoper
	users         *Users
	organizations *Organizations
	projects      *Projects
	languages     *Languages
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	now func() time.Time
}

// WithServiceClock overrides the clock used for timestamps and API key expiry.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(o *serviceOptions) { o.now = now }
}

func NewService(st store.Store, cfg Config, log zerolog.Logger, opts ...ServiceOption) *Service {
	options := serviceOptions{now: time.Now}
	for _, opt := range opts {
		opt(&options)
	}

	resolver := NewResolver(st, WithCache(cfg.CacheSize, cfg.CacheTTL), WithClock(options.now), WithLogger(log))
	c := &core{store: st, resolver: resolver, now: options.now, log: log}

	return &Service{
		ops:           logger.NewOperations(log, IsCallerError),
		resolver:      resolver,
		registry:      &Registry{core: c},
		keys:          &KeyScoper{core: c, defaultTTL: cfg.APIKeyTTL},
		users:         &Users{core: c},
		organizations: &Organizations{core: c},
		projects:      &Projects{core: c},
		languages:     &Languages{core: c},
	}
}

func (s *Service) Resolver() *Resolver           { return s.resolver }
func (s *Service) Registry() *Registry           { return s.registry }
func (s *Service) APIKeys() *KeyScoper           { return s.keys }
func (s *Service) Users() *Users                 { return s.users }
func (s *Service) Organizations() *Organizations { return s.organizations }
func (s *Service) Projects() *Projects           { return s.projects }
func (s *Service) Languages() *Languages         { return s.languages }

// ValidateOwnership checks a candidate project state without persisting it.
func (s *Service) ValidateOwnership(ctx context.Context, project *models.Project) error {
	return s.ops.Track(ctx, "ValidateOwnership", func(ctx context.Context) error {
		return ValidateOwnership(project)
	})
}

// ResolvePermission returns the effective level of principal on a project.
func (s *Service) ResolvePermission(ctx context.Context, principal models.Principal, projectID uuid.UUID) (models.PermissionLevel, error) {
	var level models.PermissionLevel
	err := s.ops.Track(ctx, "ResolvePermission", func(ctx context.Context) error {
		var err error
		level, err = s.resolver.Resolve(ctx, principal, projectID)
		return err
	})
	return level, err
}

// GrantPermission creates the permission of principal on scope. A duplicate
// fails with ErrDuplicatePermission.
func (s *Service) GrantPermission(ctx context.Context, principal models.Principal, scope models.Scope, level models.PermissionLevel) (*models.Permission, error) {
	var perm *models.Permission
	err := s.ops.Track(ctx, "GrantPermission", func(ctx context.Context) error {
		var err error
		perm, err = s.registry.Grant(ctx, principal, scope, level)
		return err
	})
	return perm, err
}

// RevokePermission deletes the permission of principal on scope, failing with
// ErrNotFound when there is none.
func (s *Service) RevokePermission(ctx context.Context, principal models.Principal, scope models.Scope) error {
	return s.ops.Track(ctx, "RevokePermission", func(ctx context.Context) error {
		return s.registry.Revoke(ctx, principal, scope)
	})
}

// CreateAPIKey issues a key acting for a user principal on one project.
func (s *Service) CreateAPIKey(ctx context.Context, principal models.Principal, projectID uuid.UUID, ceiling *models.PermissionLevel) (*CreatedAPIKey, error) {
	var created *CreatedAPIKey
	err := s.ops.Track(ctx, "CreateAPIKey", func(ctx context.Context) error {
		if !principal.IsUser() {
			return fmt.Errorf("%w: api keys are created for users, got %s", ErrInvalidPermission, principal)
		}

		var err error
		created, err = s.keys.Create(ctx, CreateAPIKeyInput{
			UserID:    principal.ID(),
			ProjectID: projectID,
			Ceiling:   ceiling,
		})
		return err
	})
	return created, err
}
