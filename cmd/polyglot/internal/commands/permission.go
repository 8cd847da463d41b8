package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/wolfeidau/polyglot/internal/models"
)

type PermissionCmd struct {
	Grant  PermissionGrantCmd  `cmd:"" help:"Grant a principal a level on an organization or project"`
	Set    PermissionSetCmd    `cmd:"" help:"Change the level of an existing grant"`
	Revoke PermissionRevokeCmd `cmd:"" help:"Revoke a grant"`
	List   PermissionListCmd   `cmd:"" help:"List the grants on an organization or project"`
}

type PermissionGrantCmd struct {
	Principal string     `arg:"" help:"user:<id|username> or key:<id>"`
	Level     string     `arg:"" help:"NONE, VIEW, TRANSLATE, REVIEW, EDIT or MANAGE"`
	Scope     ScopeFlags `embed:""`
	Languages []string   `help:"Restrict language targeted operations to these language tags (project scope only)"`
}

func (c *PermissionGrantCmd) Run(ctx context.Context, globals *Globals) error {
	level, err := parseLevel(c.Level)
	if err != nil {
		return err
	}

	s, closeFn, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer closeFn()

	principal, scope, languageIDs, err := grantTarget(ctx, s, c.Principal, c.Scope, c.Languages)
	if err != nil {
		return err
	}

	perm, err := s.svc.Registry().Grant(ctx, principal, scope, level, languageIDs...)
	if err != nil {
		return fmt.Errorf("failed to grant permission: %w", err)
	}

	fmt.Printf("Granted %s %s on %s (%s)\n", principal, perm.Level, scope, perm.PermissionID)
	return nil
}

type PermissionSetCmd struct {
	Principal string     `arg:"" help:"user:<id|username> or key:<id>"`
	Level     string     `arg:"" help:"NONE, VIEW, TRANSLATE, REVIEW, EDIT or MANAGE"`
	Scope     ScopeFlags `embed:""`
	Languages []string   `help:"Replace the language restriction, omit to clear it"`
}

func (c *PermissionSetCmd) Run(ctx context.Context, globals *Globals) error {
	level, err := parseLevel(c.Level)
	if err != nil {
		return err
	}

	s, closeFn, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer closeFn()

	principal, scope, languageIDs, err := grantTarget(ctx, s, c.Principal, c.Scope, c.Languages)
	if err != nil {
		return err
	}

	perm, err := s.svc.Registry().SetLevel(ctx, principal, scope, level, languageIDs...)
	if err != nil {
		return fmt.Errorf("failed to change permission: %w", err)
	}

	fmt.Printf("%s now has %s on %s\n", principal, perm.Level, scope)
	return nil
}

type PermissionRevokeCmd struct {
	Principal string     `arg:"" help:"user:<id|username> or key:<id>"`
	Scope     ScopeFlags `embed:""`
}

func (c *PermissionRevokeCmd) Run(ctx context.Context, globals *Globals) error {
	s, closeFn, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer closeFn()

	principal, scope, _, err := grantTarget(ctx, s, c.Principal, c.Scope, nil)
	if err != nil {
		return err
	}

	if err := s.svc.RevokePermission(ctx, principal, scope); err != nil {
		return fmt.Errorf("failed to revoke permission: %w", err)
	}

	fmt.Printf("Revoked %s on %s\n", principal, scope)
	return nil
}

type PermissionListCmd struct {
	Scope ScopeFlags `embed:""`
}

func (c *PermissionListCmd) Run(ctx context.Context, globals *Globals) error {
	s, closeFn, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer closeFn()

	scope, err := c.Scope.scope(ctx, s)
	if err != nil {
		return err
	}

	perms, err := s.svc.Registry().ListForScope(ctx, scope)
	if err != nil {
		return fmt.Errorf("failed to list permissions: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRINCIPAL\tLEVEL\tLANGUAGES")
	for _, p := range perms {
		languages := "all"
		if p.Restricted() {
			languages = strings.Join(uuidStrings(p.LanguageIDs), ",")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.Principal, p.Level, languages)
	}
	return w.Flush()
}

func grantTarget(ctx context.Context, s *session, principalRef string, flags ScopeFlags, languages []string) (models.Principal, models.Scope, []uuid.UUID, error) {
	principal, err := s.principal(ctx, principalRef)
	if err != nil {
		return models.Principal{}, models.Scope{}, nil, err
	}
	scope, err := flags.scope(ctx, s)
	if err != nil {
		return models.Principal{}, models.Scope{}, nil, err
	}

	var languageIDs []uuid.UUID
	if len(languages) > 0 {
		if !scope.IsProject() {
			return models.Principal{}, models.Scope{}, nil, fmt.Errorf("--languages requires --project")
		}
		languageIDs, err = s.languageIDs(ctx, scope.ID(), languages)
		if err != nil {
			return models.Principal{}, models.Scope{}, nil, err
		}
	}

	return principal, scope, languageIDs, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
