package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wolfeidau/polyglot/internal/models"
	"github.com/wolfeidau/polyglot/internal/store"
	"github.com/wolfeidau/polyglot/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Projects creates, changes and deletes projects. Every candidate state is
// validated before it is written and each operation is one transaction.
type Projects struct {
	*core
}

// CreateProjectInput carries the owner as the two nullable references of the
// request payload; exactly one must be set.
type CreateProjectInput struct {
	Name              string
	Description       string
	Slug              string // derived from Name when empty
	UserOwner         *uuid.UUID
	OrganizationOwner *uuid.UUID
}

// UpdateProjectInput changes the fields that are set.
type UpdateProjectInput struct {
	ProjectID   uuid.UUID
	Name        *string
	Description *string
	Slug        *string
}

// Create validates and stores a new project. A personal owner needs no grant:
// ownership alone resolves to MANAGE.
func (p *Projects) Create(ctx context.Context, in CreateProjectInput) (*models.Project, error) {
	owner, err := NewOwner(in.UserOwner, in.OrganizationOwner)
	if err != nil {
		p.rejected(ctx, "create", err)
		return nil, err
	}

	slug := in.Slug
	if slug == "" {
		slug = DeriveSlug(in.Name)
	}

	now := p.now()
	project := &models.Project{
		ProjectID:   newID(),
		Name:        in.Name,
		Description: in.Description,
		Slug:        slug,
		Owner:       owner,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := ValidateProject(project); err != nil {
		p.rejected(ctx, "create", err)
		return nil, err
	}

	err = p.mutate(ctx, "access.CreateProject", func(ctx context.Context, tx store.Repositories) error {
		if err := ownerExists(ctx, tx, owner); err != nil {
			return err
		}
		return tx.Projects().Create(ctx, project)
	}, attribute.String("owner", owner.String()))
	if err != nil {
		return nil, err
	}

	p.logger(ctx).Info().
		Str("project_id", project.ProjectID.String()).
		Str("slug", project.Slug).
		Str("owner", owner.String()).
		Msg("Created project")

	return project, nil
}

// Update changes name, description or slug.
func (p *Projects) Update(ctx context.Context, in UpdateProjectInput) (*models.Project, error) {
	var project *models.Project
	err := p.mutate(ctx, "access.UpdateProject", func(ctx context.Context, tx store.Repositories) error {
		var err error
		project, err = tx.Projects().GetForUpdate(ctx, in.ProjectID)
		if err != nil {
			return err
		}

		if in.Name != nil {
			project.Name = *in.Name
		}
		if in.Description != nil {
			project.Description = *in.Description
		}
		if in.Slug != nil {
			project.Slug = *in.Slug
		}

		if err := ValidateProject(project); err != nil {
			return err
		}
		return tx.Projects().Update(ctx, project)
	}, attribute.String("project_id", in.ProjectID.String()))
	if err != nil {
		return nil, err
	}

	p.logger(ctx).Info().
		Str("project_id", project.ProjectID.String()).
		Int64("version", project.Version).
		Msg("Updated project")

	return project, nil
}

// TransferOwnership swaps the owner of a project in one step, so no reader
// ever sees a project with no owner or two. Existing grants are kept; API keys
// whose user no longer resolves above NONE are revoked in the same transaction.
func (p *Projects) TransferOwnership(ctx context.Context, projectID uuid.UUID, newOwner models.Owner) (*models.Project, error) {
	if err := newOwner.Validate(); err != nil {
		err = fmt.Errorf("%w: %w", ErrInvalidOwnership, err)
		p.rejected(ctx, "transfer", err)
		return nil, err
	}

	var (
		project  *models.Project
		previous models.Owner
		removed  cascade
	)
	err := p.mutate(ctx, "access.TransferOwnership", func(ctx context.Context, tx store.Repositories) error {
		var err error
		project, err = tx.Projects().GetForUpdate(ctx, projectID)
		if err != nil {
			return err
		}
		if err := ownerExists(ctx, tx, newOwner); err != nil {
			return err
		}

		previous = project.Owner
		project.Owner = newOwner
		if err := ValidateOwnership(project); err != nil {
			return err
		}
		if err := tx.Projects().Update(ctx, project); err != nil {
			return err
		}

		removed, err = p.revokeOrphanedProjectKeys(ctx, tx, projectID)
		return err
	}, attribute.String("project_id", projectID.String()), attribute.String("owner", newOwner.String()))
	if err != nil {
		return nil, err
	}

	telemetry.GetMetrics().OwnershipTransfersTotal.Add(ctx, 1)
	removed.record(ctx, "project")

	p.logger(ctx).Info().
		Str("project_id", projectID.String()).
		Str("from", previous.String()).
		Str("to", newOwner.String()).
		Int("api_keys_revoked", removed.apiKeys).
		Msg("Transferred project ownership")

	return project, nil
}

// Delete removes a project with its permissions, languages and API keys.
func (p *Projects) Delete(ctx context.Context, projectID uuid.UUID) error {
	var removed cascade
	err := p.mutate(ctx, "access.DeleteProject", func(ctx context.Context, tx store.Repositories) error {
		if _, err := tx.Projects().GetForUpdate(ctx, projectID); err != nil {
			return err
		}
		var err error
		removed, err = deleteProjectIn(ctx, tx, projectID)
		return err
	}, attribute.String("project_id", projectID.String()))
	if err != nil {
		return err
	}

	removed.record(ctx, "project")

	p.logger(ctx).Info().
		Str("project_id", projectID.String()).
		Int("permissions", removed.permissions).
		Int("languages", removed.languages).
		Int("api_keys", removed.apiKeys).
		Msg("Deleted project")

	return nil
}

// Get returns a project by ID.
func (p *Projects) Get(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	var project *models.Project
	err := p.view(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		project, err = repos.Projects().Get(ctx, projectID)
		return err
	})
	return project, err
}

// GetBySlug returns a project by slug.
func (p *Projects) GetBySlug(ctx context.Context, slug string) (*models.Project, error) {
	var project *models.Project
	err := p.view(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		project, err = repos.Projects().GetBySlug(ctx, slug)
		return err
	})
	return project, err
}

// ListForOrganization returns the projects an organization owns.
func (p *Projects) ListForOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.Project, error) {
	return p.listByOwner(ctx, models.OrganizationOwner(orgID))
}

// ListForUser returns the personal projects of a user.
func (p *Projects) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Project, error) {
	return p.listByOwner(ctx, models.UserOwner(userID))
}

func (p *Projects) listByOwner(ctx context.Context, owner models.Owner) ([]*models.Project, error) {
	var projects []*models.Project
	err := p.view(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		projects, err = repos.Projects().ListByOwner(ctx, owner)
		return err
	})
	return projects, err
}

func (p *Projects) rejected(ctx context.Context, op string, err error) {
	if errors.Is(err, ErrInvalidOwnership) {
		telemetry.GetMetrics().OwnershipViolationsTotal.Add(ctx, 1)
	}
	p.logger(ctx).Warn().Str("op", op).Err(err).Msg("Rejected project mutation")
}

func ownerExists(ctx context.Context, tx store.Repositories, owner models.Owner) error {
	if userID, ok := owner.UserID(); ok {
		_, err := tx.Users().Get(ctx, userID)
		return err
	}
	orgID, _ := owner.OrganizationID()
	_, err := tx.Organizations().Get(ctx, orgID)
	return err
}
