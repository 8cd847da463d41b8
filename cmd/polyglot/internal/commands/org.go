package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/wolfeidau/polyglot/internal/access"
)

type OrgCmd struct {
	Create       OrgCreateCmd       `cmd:"" help:"Create an organization"`
	Delete       OrgDeleteCmd       `cmd:"" help:"Delete an organization"`
	AddMember    OrgAddMemberCmd    `cmd:"" help:"Add a member to an organization"`
	RemoveMember OrgRemoveMemberCmd `cmd:"" help:"Remove a member from an organization"`
	Members      OrgMembersCmd      `cmd:"" help:"List members with their organization level"`
}

type OrgCreateCmd struct {
	Name           string `arg:"" help:"Organization name"`
	Slug           string `help:"URL slug, derived from the name when empty"`
	Description    string `help:"Description"`
	BasePermission string `help:"Level every member gets by default" default:"VIEW"`
	Creator        string `help:"Creating user id or username, becomes the first manager" required:""`
}

func (c *OrgCreateCmd) Run(ctx context.Context, globals *Globals) error {
	base, err := parseLevel(c.BasePermission)
	if err != nil {
		return err
	}

	s, closeFn, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer closeFn()

	creator, err := s.userID(ctx, c.Creator)
	if err != nil {
		return err
	}

	org, err := s.svc.Organizations().Create(ctx, access.CreateOrganizationInput{
		Name:           c.Name,
		Slug:           c.Slug,
		Description:    c.Description,
		BasePermission: base,
		CreatorID:      creator,
	})
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}

	fmt.Printf("Created organization %s (%s) with base permission %s\n", org.Slug, org.OrgID, org.BasePermission)
	return nil
}

type OrgDeleteCmd struct {
	Org   string `arg:"" help:"Organization id or slug"`
	Force bool   `help:"Also delete every project the organization owns"`
}

func (c *OrgDeleteCmd) Run(ctx context.Context, globals *Globals) error {
	s, closeFn, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer closeFn()

	orgID, err := s.orgID(ctx, c.Org)
	if err != nil {
		return err
	}

	if err := s.svc.Organizations().Delete(ctx, orgID, c.Force); err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}

	fmt.Printf("Deleted organization %s\n", c.Org)
	return nil
}

type OrgAddMemberCmd struct {
	Org   string `arg:"" help:"Organization id or slug"`
	User  string `arg:"" help:"User id or username"`
	Level string `help:"Explicit organization level, base permission applies when empty"`
}

func (c *OrgAddMemberCmd) Run(ctx context.Context, globals *Globals) error {
	level, err := parseOptionalLevel(c.Level)
	if err != nil {
		return err
	}

	s, closeFn, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer closeFn()

	orgID, err := s.orgID(ctx, c.Org)
	if err != nil {
		return err
	}
	userID, err := s.userID(ctx, c.User)
	if err != nil {
		return err
	}

	if err := s.svc.Organizations().AddMember(ctx, orgID, userID, level); err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}

	fmt.Printf("Added %s to %s\n", c.User, c.Org)
	return nil
}

type OrgRemoveMemberCmd struct {
	Org  string `arg:"" help:"Organization id or slug"`
	User string `arg:"" help:"User id or username"`
}

func (c *OrgRemoveMemberCmd) Run(ctx context.Context, globals *Globals) error {
	s, closeFn, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer closeFn()

	orgID, err := s.orgID(ctx, c.Org)
	if err != nil {
		return err
	}
	userID, err := s.userID(ctx, c.User)
	if err != nil {
		return err
	}

	if err := s.svc.Organizations().RemoveMember(ctx, orgID, userID); err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	fmt.Printf("Removed %s from %s\n", c.User, c.Org)
	return nil
}

type OrgMembersCmd struct {
	Org string `arg:"" help:"Organization id or slug"`
}

func (c *OrgMembersCmd) Run(ctx context.Context, globals *Globals) error {
	s, closeFn, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer closeFn()

	orgID, err := s.orgID(ctx, c.Org)
	if err != nil {
		return err
	}

	members, err := s.svc.Organizations().Members(ctx, orgID)
	if err != nil {
		return fmt.Errorf("failed to list members: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USER ID\tLEVEL\tSOURCE")
	for _, m := range members {
		source := "base"
		if m.Explicit {
			source = "grant"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", m.UserID, m.Level, source)
	}
	return w.Flush()
}
