// Package seed loads YAML fixtures describing users, organizations, projects
// and grants, and applies them through the access services so every
// ownership and permission rule is enforced on the way in.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/wolfeidau/polyglot/internal/access"
	"github.com/wolfeidau/polyglot/internal/models"
	"gopkg.in/yaml.v3"
)

var ErrUnknownReference = errors.New("fixture references an unknown entry")

type Fixture struct {
	Users         []User         `yaml:"users"`
	Organizations []Organization `yaml:"organizations"`
	Projects      []Project      `yaml:"projects"`
}

type User struct {
	Username string `yaml:"username"`
	Name     string `yaml:"name"`
}

type Organization struct {
	Slug           string                 `yaml:"slug"`
	Name           string                 `yaml:"name"`
	Description    string                 `yaml:"description"`
	BasePermission models.PermissionLevel `yaml:"base_permission"`
	Creator        string                 `yaml:"creator"`
	Members        []Member               `yaml:"members"`
}

type Member struct {
	User  string                  `yaml:"user"`
	Level *models.PermissionLevel `yaml:"level"`
}

// Project is owned by either User or Organization. Setting both or neither
// is rejected when the fixture is applied.
type Project struct {
	Slug         string     `yaml:"slug"`
	Name         string     `yaml:"name"`
	Description  string     `yaml:"description"`
	User         string     `yaml:"user"`
	Organization string     `yaml:"organization"`
	Languages    []Language `yaml:"languages"`
	Grants       []Grant    `yaml:"grants"`
	APIKeys      []APIKey   `yaml:"api_keys"`
}

type Language struct {
	Abbreviation string `yaml:"abbreviation"`
	Name         string `yaml:"name"`
	OriginalName string `yaml:"original_name"`
	FlagEmoji    string `yaml:"flag_emoji"`
}

// Grant is a project scoped grant to a user, or to an API key of the same
// project when APIKey names one.
type Grant struct {
	User      string                 `yaml:"user"`
	APIKey    string                 `yaml:"api_key"`
	Level     models.PermissionLevel `yaml:"level"`
	Languages []string               `yaml:"languages"`
}

type APIKey struct {
	Name        string                  `yaml:"name"`
	User        string                  `yaml:"user"`
	Ceiling     *models.PermissionLevel `yaml:"ceiling"`
	Description string                  `yaml:"description"`
}

// Result maps fixture names to the identifiers created for them.
type Result struct {
	Users         map[string]uuid.UUID
	Organizations map[string]uuid.UUID
	Projects      map[string]uuid.UUID
	APIKeys       []CreatedKey
}

// CreatedKey carries the one time secret of a seeded key.
type CreatedKey struct {
	Name    string
	Project string
	KeyID   uuid.UUID
	Secret  string
}

// Load reads and parses a fixture file.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML fixture and checks that names are unique.
func Parse(data []byte) (*Fixture, error) {
	var fixture Fixture
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return nil, fmt.Errorf("failed to parse YAML fixture: %w", err)
	}

	if dup := lo.FindDuplicatesBy(fixture.Users, func(u User) string { return u.Username }); len(dup) > 0 {
		return nil, fmt.Errorf("duplicate user %q in fixture", dup[0].Username)
	}
	if dup := lo.FindDuplicatesBy(fixture.Organizations, func(o Organization) string { return o.Slug }); len(dup) > 0 {
		return nil, fmt.Errorf("duplicate organization %q in fixture", dup[0].Slug)
	}
	if dup := lo.FindDuplicatesBy(fixture.Projects, func(p Project) string { return p.Slug }); len(dup) > 0 {
		return nil, fmt.Errorf("duplicate project %q in fixture", dup[0].Slug)
	}

	return &fixture, nil
}

// Apply creates everything in the fixture, in dependency order. It stops at
// the first error; entries created before it are kept.
func Apply(ctx context.Context, svc *access.Service, fixture *Fixture) (*Result, error) {
	res := &Result{
		Users:         make(map[string]uuid.UUID, len(fixture.Users)),
		Organizations: make(map[string]uuid.UUID, len(fixture.Organizations)),
		Projects:      make(map[string]uuid.UUID, len(fixture.Projects)),
	}

	for _, u := range fixture.Users {
		user, err := svc.Users().Create(ctx, u.Username, u.Name)
		if err != nil {
			return res, fmt.Errorf("user %s: %w", u.Username, err)
		}
		res.Users[u.Username] = user.UserID
	}

	for _, o := range fixture.Organizations {
		if err := applyOrganization(ctx, svc, res, o); err != nil {
			return res, fmt.Errorf("organization %s: %w", o.Slug, err)
		}
	}

	for _, p := range fixture.Projects {
		if err := applyProject(ctx, svc, res, p); err != nil {
			return res, fmt.Errorf("project %s: %w", p.Slug, err)
		}
	}

	log.Info().
		Int("users", len(res.Users)).
		Int("organizations", len(res.Organizations)).
		Int("projects", len(res.Projects)).
		Int("api_keys", len(res.APIKeys)).
		Msg("Applied fixture")

	return res, nil
}

func applyOrganization(ctx context.Context, svc *access.Service, res *Result, o Organization) error {
	creator, err := lookup(res.Users, "user", o.Creator)
	if err != nil {
		return err
	}

	org, err := svc.Organizations().Create(ctx, access.CreateOrganizationInput{
		Name:           o.Name,
		Slug:           o.Slug,
		Description:    o.Description,
		BasePermission: o.BasePermission,
		CreatorID:      creator,
	})
	if err != nil {
		return err
	}
	res.Organizations[o.Slug] = org.OrgID

	for _, m := range o.Members {
		userID, err := lookup(res.Users, "user", m.User)
		if err != nil {
			return err
		}
		if err := svc.Organizations().AddMember(ctx, org.OrgID, userID, m.Level); err != nil {
			return fmt.Errorf("member %s: %w", m.User, err)
		}
	}
	return nil
}

func applyProject(ctx context.Context, svc *access.Service, res *Result, p Project) error {
	in := access.CreateProjectInput{Name: p.Name, Slug: p.Slug, Description: p.Description}
	if p.User != "" {
		userID, err := lookup(res.Users, "user", p.User)
		if err != nil {
			return err
		}
		in.UserOwner = &userID
	}
	if p.Organization != "" {
		orgID, err := lookup(res.Organizations, "organization", p.Organization)
		if err != nil {
			return err
		}
		in.OrganizationOwner = &orgID
	}

	project, err := svc.Projects().Create(ctx, in)
	if err != nil {
		return err
	}
	res.Projects[project.Slug] = project.ProjectID

	languages := make(map[string]uuid.UUID, len(p.Languages))
	for _, l := range p.Languages {
		lang, err := svc.Languages().Add(ctx, access.AddLanguageInput{
			ProjectID:    project.ProjectID,
			Abbreviation: l.Abbreviation,
			Name:         l.Name,
			OriginalName: l.OriginalName,
			FlagEmoji:    l.FlagEmoji,
		})
		if err != nil {
			return fmt.Errorf("language %s: %w", l.Abbreviation, err)
		}
		languages[l.Abbreviation] = lang.LanguageID
	}

	// User grants come before keys so key creation sees the granted level.
	keys := make(map[string]uuid.UUID, len(p.APIKeys))
	userGrants, keyGrants := lo.FilterReject(p.Grants, func(g Grant, _ int) bool { return g.APIKey == "" })

	for _, g := range userGrants {
		userID, err := lookup(res.Users, "user", g.User)
		if err != nil {
			return err
		}
		if err := grant(ctx, svc, models.UserPrincipal(userID), project.ProjectID, g, languages); err != nil {
			return fmt.Errorf("grant for %s: %w", g.User, err)
		}
	}

	for _, k := range p.APIKeys {
		userID, err := lookup(res.Users, "user", k.User)
		if err != nil {
			return err
		}
		created, err := svc.APIKeys().Create(ctx, access.CreateAPIKeyInput{
			UserID:      userID,
			ProjectID:   project.ProjectID,
			Ceiling:     k.Ceiling,
			Description: k.Description,
		})
		if err != nil {
			return fmt.Errorf("api key %s: %w", k.Name, err)
		}
		keys[k.Name] = created.Key.KeyID
		res.APIKeys = append(res.APIKeys, CreatedKey{
			Name:    k.Name,
			Project: project.Slug,
			KeyID:   created.Key.KeyID,
			Secret:  created.Secret,
		})
	}

	for _, g := range keyGrants {
		keyID, err := lookup(keys, "api key", g.APIKey)
		if err != nil {
			return err
		}
		if err := grant(ctx, svc, models.APIKeyPrincipal(keyID), project.ProjectID, g, languages); err != nil {
			return fmt.Errorf("grant for api key %s: %w", g.APIKey, err)
		}
	}

	return nil
}

func grant(ctx context.Context, svc *access.Service, principal models.Principal, projectID uuid.UUID, g Grant, languages map[string]uuid.UUID) error {
	languageIDs := make([]uuid.UUID, 0, len(g.Languages))
	for _, abbr := range g.Languages {
		id, err := lookup(languages, "language", abbr)
		if err != nil {
			return err
		}
		languageIDs = append(languageIDs, id)
	}

	_, err := svc.Registry().Grant(ctx, principal, models.ProjectScope(projectID), g.Level, languageIDs...)
	return err
}

func lookup(ids map[string]uuid.UUID, kind, name string) (uuid.UUID, error) {
	id, ok := ids[name]
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: %s %q", ErrUnknownReference, kind, name)
	}
	return id, nil
}
