package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/wolfeidau/polyglot/internal/access"
)

type ProjectCmd struct {
	Create   ProjectCreateCmd   `cmd:"" help:"Create a project owned by a user or an organization"`
	Transfer ProjectTransferCmd `cmd:"" help:"Transfer a project to another owner"`
	Delete   ProjectDeleteCmd   `cmd:"" help:"Delete a project with its languages, grants and API keys"`
}

// OwnerFlags name the owner of a project. Exactly one must be set, which the
// ownership validator enforces.
type OwnerFlags struct {
	User string `help:"Owning user id or username"`
	Org  string `help:"Owning organization id or slug"`
}

func (f OwnerFlags) refs(ctx context.Context, s *session) (userOwner, orgOwner *uuid.UUID, err error) {
	if f.User != "" {
		id, err := s.userID(ctx, f.User)
		if err != nil {
			return nil, nil, err
		}
		userOwner = &id
	}
	if f.Org != "" {
		id, err := s.orgID(ctx, f.Org)
		if err != nil {
			return nil, nil, err
		}
		orgOwner = &id
	}
	return userOwner, orgOwner, nil
}

type ProjectCreateCmd struct {
	Name        string     `arg:"" help:"Project name"`
	Slug        string     `help:"URL slug, derived from the name when empty"`
	Description string     `help:"Description"`
	Owner       OwnerFlags `embed:"" prefix:"owner-"`
}

func (c *ProjectCreateCmd) Run(ctx context.Context, globals *Globals) error {
	s, closeFn, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer closeFn()

	userOwner, orgOwner, err := c.Owner.refs(ctx, s)
	if err != nil {
		return err
	}

	project, err := s.svc.Projects().Create(ctx, access.CreateProjectInput{
		Name:              c.Name,
		Slug:              c.Slug,
		Description:       c.Description,
		UserOwner:         userOwner,
		OrganizationOwner: orgOwner,
	})
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	fmt.Printf("Created project %s (%s) owned by %s\n", project.Slug, project.ProjectID, project.Owner)
	return nil
}

type ProjectTransferCmd struct {
	Project string     `arg:"" help:"Project id or slug"`
	Owner   OwnerFlags `embed:"" prefix:"to-"`
}

func (c *ProjectTransferCmd) Run(ctx context.Context, globals *Globals) error {
	s, closeFn, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer closeFn()

	projectID, err := s.projectID(ctx, c.Project)
	if err != nil {
		return err
	}
	userOwner, orgOwner, err := c.Owner.refs(ctx, s)
	if err != nil {
		return err
	}
	owner, err := access.NewOwner(userOwner, orgOwner)
	if err != nil {
		return err
	}

	project, err := s.svc.Projects().TransferOwnership(ctx, projectID, owner)
	if err != nil {
		return fmt.Errorf("failed to transfer project: %w", err)
	}

	fmt.Printf("Project %s is now owned by %s\n", project.Slug, project.Owner)
	return nil
}

type ProjectDeleteCmd struct {
	Project string `arg:"" help:"Project id or slug"`
}

func (c *ProjectDeleteCmd) Run(ctx context.Context, globals *Globals) error {
	s, closeFn, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer closeFn()

	projectID, err := s.projectID(ctx, c.Project)
	if err != nil {
		return err
	}

	if err := s.svc.Projects().Delete(ctx, projectID); err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}

	fmt.Printf("Deleted project %s\n", c.Project)
	return nil
}
