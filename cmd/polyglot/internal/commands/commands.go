package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/polyglot/internal/access"
	"github.com/wolfeidau/polyglot/internal/logger"
	"github.com/wolfeidau/polyglot/internal/models"
	"github.com/wolfeidau/polyglot/internal/seed"
	"github.com/wolfeidau/polyglot/internal/store"
	memorystore "github.com/wolfeidau/polyglot/internal/store/memory"
	postgresstore "github.com/wolfeidau/polyglot/internal/store/postgres"
	"github.com/wolfeidau/polyglot/internal/telemetry"
)

type Globals struct {
	Debug   bool
	Tracing bool
	Version string
	Store   StoreFlags
	Access  access.Config
}

// StoreFlags selects and configures the entity store.
type StoreFlags struct {
	StoreType string                    `help:"store type (memory or postgres)" default:"memory" env:"POLYGLOT_STORE_TYPE" enum:"memory,postgres"`
	Postgres  postgresstore.StoreConfig `embed:"" prefix:"postgres-"`

	// The memory store starts empty on every run, so commands against it
	// usually need a fixture to act on.
	Seed string `help:"YAML fixture applied before the command runs" type:"existingfile" env:"POLYGLOT_SEED"`
}

// session is an opened store with the access service on top.
type session struct {
	svc   *access.Service
	store store.Store
}

// open configures logging and telemetry, opens the store and applies the seed
// fixture. The returned func releases everything.
func open(ctx context.Context, globals *Globals) (*session, func(), error) {
	log.Logger = logger.Setup(globals.Debug)

	shutdown := func(context.Context) error { return nil }
	if globals.Tracing {
		var err error
		shutdown, err = telemetry.InitTelemetry(ctx, telemetry.Config{ServiceName: "polyglot", Version: globals.Version})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without it")
			shutdown = func(context.Context) error { return nil }
		}
	}

	var st store.Store
	switch globals.Store.StoreType {
	case "postgres":
		cfg := globals.Store.Postgres
		pg, err := postgresstore.NewStore(ctx, &cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		st = pg
		log.Debug().Msg("Using PostgreSQL store")
	default:
		st = memorystore.NewStore()
		log.Debug().Msg("Using in-memory store")
	}

	closeFn := func() {
		st.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown telemetry")
		}
	}

	s := &session{
		svc:   access.NewService(st, globals.Access, log.Logger),
		store: st,
	}

	if globals.Store.Seed != "" {
		fixture, err := seed.Load(globals.Store.Seed)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		if _, err := seed.Apply(ctx, s.svc, fixture); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("failed to apply seed fixture: %w", err)
		}
	}

	return s, closeFn, nil
}

// userID accepts a user id or a username.
func (s *session) userID(ctx context.Context, ref string) (uuid.UUID, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return id, nil
	}
	user, err := s.svc.Users().GetByUsername(ctx, ref)
	if err != nil {
		return uuid.Nil, fmt.Errorf("user %q: %w", ref, err)
	}
	return user.UserID, nil
}

// orgID accepts an organization id or slug.
func (s *session) orgID(ctx context.Context, ref string) (uuid.UUID, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return id, nil
	}
	org, err := s.svc.Organizations().GetBySlug(ctx, ref)
	if err != nil {
		return uuid.Nil, fmt.Errorf("organization %q: %w", ref, err)
	}
	return org.OrgID, nil
}

// projectID accepts a project id or slug.
func (s *session) projectID(ctx context.Context, ref string) (uuid.UUID, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return id, nil
	}
	project, err := s.svc.Projects().GetBySlug(ctx, ref)
	if err != nil {
		return uuid.Nil, fmt.Errorf("project %q: %w", ref, err)
	}
	return project.ProjectID, nil
}

// languageIDs maps abbreviations of a project's languages to their ids.
func (s *session) languageIDs(ctx context.Context, projectID uuid.UUID, abbreviations []string) ([]uuid.UUID, error) {
	if len(abbreviations) == 0 {
		return nil, nil
	}

	langs, err := s.svc.Languages().List(ctx, projectID)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(abbreviations))
	for _, abbr := range abbreviations {
		found := false
		for _, l := range langs {
			if strings.EqualFold(l.Abbreviation, abbr) {
				ids = append(ids, l.LanguageID)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("language %q: %w", abbr, access.ErrNotFound)
		}
	}
	return ids, nil
}

// principal parses "user:<id|username>" or "key:<id>". A bare reference is a user.
func (s *session) principal(ctx context.Context, ref string) (models.Principal, error) {
	kind, value, ok := strings.Cut(ref, ":")
	if !ok {
		kind, value = "user", ref
	}

	switch kind {
	case "user":
		id, err := s.userID(ctx, value)
		if err != nil {
			return models.Principal{}, err
		}
		return models.UserPrincipal(id), nil
	case "key", "apikey":
		id, err := uuid.Parse(value)
		if err != nil {
			return models.Principal{}, fmt.Errorf("api key id %q: %w", value, err)
		}
		return models.APIKeyPrincipal(id), nil
	default:
		return models.Principal{}, fmt.Errorf("unknown principal kind %q, expected user or key", kind)
	}
}

// ScopeFlags name exactly one of an organization or a project.
type ScopeFlags struct {
	Org     string `help:"Organization id or slug" xor:"scope" required:""`
	Project string `help:"Project id or slug" xor:"scope" required:""`
}

func (f ScopeFlags) scope(ctx context.Context, s *session) (models.Scope, error) {
	var orgRef, projectRef *uuid.UUID
	if f.Org != "" {
		id, err := s.orgID(ctx, f.Org)
		if err != nil {
			return models.Scope{}, err
		}
		orgRef = &id
	}
	if f.Project != "" {
		id, err := s.projectID(ctx, f.Project)
		if err != nil {
			return models.Scope{}, err
		}
		projectRef = &id
	}
	return access.NewScope(orgRef, projectRef)
}

func parseLevel(s string) (models.PermissionLevel, error) {
	return models.ParsePermissionLevel(s)
}

// parseOptionalLevel returns nil for an empty string.
func parseOptionalLevel(s string) (*models.PermissionLevel, error) {
	if s == "" {
		return nil, nil
	}
	level, err := models.ParsePermissionLevel(s)
	if err != nil {
		return nil, err
	}
	return &level, nil
}

var errPostgresOnly = errors.New("this command needs --store-type=postgres")
