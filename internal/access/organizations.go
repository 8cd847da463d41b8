package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/wolfeidau/polyglot/internal/models"
	"github.com/wolfeidau/polyglot/internal/store"
	"go.opentelemetry.io/otel/attribute"
)

// Organizations manages organizations and their members.
type Organizations struct {
	*core
}

// CreateOrganizationInput describes a new organization. The creator becomes
// its first member with an explicit MANAGE grant.
type CreateOrganizationInput struct {
	Name           string
	Slug           string // derived from Name when empty
	Description    string
	BasePermission models.PermissionLevel
	CreatorID      uuid.UUID
}

// UpdateOrganizationInput changes the fields that are set.
type UpdateOrganizationInput struct {
	OrgID          uuid.UUID
	Name           *string
	Slug           *string
	Description    *string
	BasePermission *models.PermissionLevel
}

// Member is a membership with the member's organization level.
type Member struct {
	UserID   uuid.UUID
	Level    models.PermissionLevel
	Explicit bool // level comes from an organization grant rather than the base
}

func (o *Organizations) Create(ctx context.Context, in CreateOrganizationInput) (*models.Organization, error) {
	slug := in.Slug
	if slug == "" {
		slug = DeriveSlug(in.Name)
	}

	now := o.now()
	org := &models.Organization{
		OrgID:          newID(),
		Name:           in.Name,
		Slug:           slug,
		Description:    in.Description,
		BasePermission: in.BasePermission,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := ValidateOrganization(org); err != nil {
		return nil, err
	}

	err := o.mutate(ctx, "access.CreateOrganization", func(ctx context.Context, tx store.Repositories) error {
		if _, err := tx.Users().Get(ctx, in.CreatorID); err != nil {
			return err
		}
		if err := tx.Organizations().Create(ctx, org); err != nil {
			return err
		}
		if err := tx.Memberships().Add(ctx, &models.Membership{OrgID: org.OrgID, UserID: in.CreatorID, CreatedAt: now}); err != nil {
			return err
		}
		return tx.Permissions().Create(ctx, &models.Permission{
			PermissionID: newID(),
			Principal:    models.UserPrincipal(in.CreatorID),
			Scope:        models.OrganizationScope(org.OrgID),
			Level:        models.LevelManage,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}, attribute.String("slug", slug))
	if err != nil {
		return nil, err
	}

	o.logger(ctx).Info().
		Str("org_id", org.OrgID.String()).
		Str("slug", org.Slug).
		Str("base_permission", org.BasePermission.String()).
		Str("creator_id", in.CreatorID.String()).
		Msg("Created organization")

	return org, nil
}

// Update changes the fields set in in. Lowering the base permission revokes
// API keys of members who drop to NONE.
func (o *Organizations) Update(ctx context.Context, in UpdateOrganizationInput) (*models.Organization, error) {
	var (
		org     *models.Organization
		removed cascade
	)
	err := o.mutate(ctx, "access.UpdateOrganization", func(ctx context.Context, tx store.Repositories) error {
		var err error
		org, err = tx.Organizations().Get(ctx, in.OrgID)
		if err != nil {
			return err
		}
		lowered := in.BasePermission != nil && *in.BasePermission < org.BasePermission

		if in.Name != nil {
			org.Name = *in.Name
		}
		if in.Slug != nil {
			org.Slug = *in.Slug
		}
		if in.Description != nil {
			org.Description = *in.Description
		}
		if in.BasePermission != nil {
			org.BasePermission = *in.BasePermission
		}

		if err := ValidateOrganization(org); err != nil {
			return err
		}
		err = keepManager(ctx, tx, org.OrgID, func() error {
			return tx.Organizations().Update(ctx, org)
		})
		if err != nil {
			return err
		}

		removed = cascade{}
		if !lowered {
			return nil
		}

		inOrg, err := organizationProjects(ctx, tx, org.OrgID)
		if err != nil {
			return err
		}
		members, err := tx.Memberships().ListMembers(ctx, org.OrgID)
		if err != nil {
			return err
		}
		for _, m := range members {
			n, err := o.revokeOrphanedKeys(ctx, tx, m.UserID, inOrg)
			if err != nil {
				return err
			}
			removed.permissions += n.permissions
			removed.apiKeys += n.apiKeys
		}
		return nil
	}, attribute.String("org_id", in.OrgID.String()))
	if err != nil {
		return nil, err
	}

	removed.record(ctx, "organization")

	o.logger(ctx).Info().
		Str("org_id", org.OrgID.String()).
		Int64("version", org.Version).
		Str("base_permission", org.BasePermission.String()).
		Msg("Updated organization")

	return org, nil
}

// Delete removes an organization, its memberships and its organization grants.
// It fails with ErrOrganizationHasProjects while the organization owns
// projects, unless force is set, in which case those projects are deleted
// first with all their dependents.
func (o *Organizations) Delete(ctx context.Context, orgID uuid.UUID, force bool) error {
	var (
		removed  cascade
		projects int
	)
	err := o.mutate(ctx, "access.DeleteOrganization", func(ctx context.Context, tx store.Repositories) error {
		if _, err := tx.Organizations().Get(ctx, orgID); err != nil {
			return err
		}

		owned, err := tx.Projects().ListByOwner(ctx, models.OrganizationOwner(orgID))
		if err != nil {
			return err
		}
		if len(owned) > 0 && !force {
			return fmt.Errorf("%w: %d projects", ErrOrganizationHasProjects, len(owned))
		}

		removed, projects = cascade{}, len(owned)
		for _, project := range owned {
			n, err := deleteProjectIn(ctx, tx, project.ProjectID)
			if err != nil {
				return err
			}
			removed.permissions += n.permissions
			removed.languages += n.languages
			removed.apiKeys += n.apiKeys
		}

		n, err := tx.Permissions().DeleteByScope(ctx, models.OrganizationScope(orgID))
		if err != nil {
			return err
		}
		removed.permissions += n

		if err := tx.Memberships().DeleteByOrganization(ctx, orgID); err != nil {
			return err
		}
		return tx.Organizations().Delete(ctx, orgID)
	}, attribute.String("org_id", orgID.String()), attribute.Bool("force", force))
	if err != nil {
		return err
	}

	removed.record(ctx, "organization")

	o.logger(ctx).Info().
		Str("org_id", orgID.String()).
		Int("projects", projects).
		Int("permissions", removed.permissions).
		Int("api_keys", removed.apiKeys).
		Msg("Deleted organization")

	return nil
}

// AddMember adds a user to an organization. With a level the member also gets
// an explicit organization grant; without one the base permission applies.
func (o *Organizations) AddMember(ctx context.Context, orgID, userID uuid.UUID, level *models.PermissionLevel) error {
	if level != nil && !level.Valid() {
		return fmt.Errorf("%w: %w", ErrInvalidPermission, models.ErrInvalidPermissionLevel)
	}

	err := o.mutate(ctx, "access.AddMember", func(ctx context.Context, tx store.Repositories) error {
		if _, err := tx.Organizations().Get(ctx, orgID); err != nil {
			return err
		}
		if _, err := tx.Users().Get(ctx, userID); err != nil {
			return err
		}

		now := o.now()
		if err := tx.Memberships().Add(ctx, &models.Membership{OrgID: orgID, UserID: userID, CreatedAt: now}); err != nil {
			return err
		}
		if level == nil {
			return nil
		}
		return tx.Permissions().Create(ctx, &models.Permission{
			PermissionID: newID(),
			Principal:    models.UserPrincipal(userID),
			Scope:        models.OrganizationScope(orgID),
			Level:        *level,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}, attribute.String("org_id", orgID.String()), attribute.String("user_id", userID.String()))
	if err != nil {
		return err
	}

	o.logger(ctx).Info().
		Str("org_id", orgID.String()).
		Str("user_id", userID.String()).
		Msg("Added organization member")

	return nil
}

// RemoveMember removes a user's membership and organization grant. Project
// grants the user holds in the organization's projects are kept. API keys the
// user can no longer back are revoked.
func (o *Organizations) RemoveMember(ctx context.Context, orgID, userID uuid.UUID) error {
	return o.removeMember(ctx, "access.RemoveMember", orgID, userID)
}

// LeaveOrganization is RemoveMember initiated by the member.
func (o *Organizations) LeaveOrganization(ctx context.Context, orgID, userID uuid.UUID) error {
	return o.removeMember(ctx, "access.LeaveOrganization", orgID, userID)
}

// removeMember refuses to remove the last member who manages the organization.
func (o *Organizations) removeMember(ctx context.Context, name string, orgID, userID uuid.UUID) error {
	var removed cascade
	err := o.mutate(ctx, name, func(ctx context.Context, tx store.Repositories) error {
		org, err := tx.Organizations().Get(ctx, orgID)
		if err != nil {
			return err
		}

		members, err := organizationMembers(ctx, tx, org)
		if err != nil {
			return err
		}

		if !lo.ContainsBy(members, func(m Member) bool { return m.UserID == userID }) {
			return fmt.Errorf("%w: user %s is not a member of %s", ErrNotFound, userID, org.Slug)
		}

		removed = cascade{}
		err = keepManager(ctx, tx, orgID, func() error {
			if err := tx.Memberships().Remove(ctx, orgID, userID); err != nil {
				return err
			}
			perm, err := findPermission(ctx, tx, models.UserPrincipal(userID), models.OrganizationScope(orgID))
			if err != nil {
				return err
			}
			if perm != nil {
				if err := tx.Permissions().Delete(ctx, perm.PermissionID); err != nil {
					return err
				}
				removed.permissions++
			}
			return nil
		})
		if err != nil {
			return err
		}

		inOrg, err := organizationProjects(ctx, tx, orgID)
		if err != nil {
			return err
		}
		n, err := o.revokeOrphanedKeys(ctx, tx, userID, inOrg)
		if err != nil {
			return err
		}
		removed.permissions += n.permissions
		removed.apiKeys += n.apiKeys
		return nil
	}, attribute.String("org_id", orgID.String()), attribute.String("user_id", userID.String()))
	if err != nil {
		if errors.Is(err, ErrLastManager) {
			o.logger(ctx).Warn().Str("org_id", orgID.String()).Str("user_id", userID.String()).Msg("Refused to remove last manager")
		}
		return err
	}

	removed.record(ctx, "membership")

	o.logger(ctx).Info().
		Str("org_id", orgID.String()).
		Str("user_id", userID.String()).
		Int("api_keys_revoked", removed.apiKeys).
		Msg("Removed organization member")

	return nil
}

// Members lists the members of an organization with their organization level.
func (o *Organizations) Members(ctx context.Context, orgID uuid.UUID) ([]Member, error) {
	var members []Member
	err := o.view(ctx, func(ctx context.Context, repos store.Repositories) error {
		org, err := repos.Organizations().Get(ctx, orgID)
		if err != nil {
			return err
		}
		members, err = organizationMembers(ctx, repos, org)
		return err
	})
	return members, err
}

// Get returns an organization by ID.
func (o *Organizations) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	var org *models.Organization
	err := o.view(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		org, err = repos.Organizations().Get(ctx, orgID)
		return err
	})
	return org, err
}

// GetBySlug returns an organization by slug.
func (o *Organizations) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	var org *models.Organization
	err := o.view(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		org, err = repos.Organizations().GetBySlug(ctx, slug)
		return err
	})
	return org, err
}

// List returns every organization ordered by slug.
func (o *Organizations) List(ctx context.Context) ([]*models.Organization, error) {
	var orgs []*models.Organization
	err := o.view(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		orgs, err = repos.Organizations().List(ctx)
		return err
	})
	return orgs, err
}
