package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/polyglot/internal/models"
	"github.com/wolfeidau/polyglot/internal/store"
)

const organizationColumns = `org_id, name, slug, description, base_permission, version, created_at, updated_at`

// OrganizationStore implements store.OrganizationStore using PostgreSQL.
type OrganizationStore struct {
	q querier
}

// Create creates a new organization in the database.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	query := `
		INSERT INTO organizations (
			org_id, name, slug, description, base_permission, version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, 1, $6, $7
		)
	`

	_, err := s.q.Exec(ctx, query,
		org.OrgID,
		org.Name,
		org.Slug,
		org.Description,
		org.BasePermission.String(),
		org.CreatedAt,
		org.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", mapPostgresError(err))
	}

	org.Version = 1

	log.Debug().
		Str("org_id", org.OrgID.String()).
		Str("slug", org.Slug).
		Msg("Created organization")

	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE org_id = $1`

	org, err := scanOrganization(s.q.QueryRow(ctx, query, orgID))
	if err != nil {
		return nil, notFoundOr(err, store.ErrOrganizationNotFound, "get organization")
	}
	return org, nil
}

// GetBySlug retrieves an organization by slug.
func (s *OrganizationStore) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE slug = $1`

	org, err := scanOrganization(s.q.QueryRow(ctx, query, slug))
	if err != nil {
		return nil, notFoundOr(err, store.ErrOrganizationNotFound, "get organization by slug")
	}
	return org, nil
}

// Update updates an existing organization if org.Version is current.
func (s *OrganizationStore) Update(ctx context.Context, org *models.Organization) error {
	query := `
		UPDATE organizations SET
			name = $2,
			slug = $3,
			description = $4,
			base_permission = $5,
			version = version + 1,
			updated_at = now()
		WHERE org_id = $1 AND version = $6
		RETURNING version, updated_at
	`

	err := s.q.QueryRow(ctx, query,
		org.OrgID,
		org.Name,
		org.Slug,
		org.Description,
		org.BasePermission.String(),
		org.Version,
	).Scan(&org.Version, &org.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return missingOrConflict(ctx, s.q, "organizations", "org_id", org.OrgID, store.ErrOrganizationNotFound)
		}
		return fmt.Errorf("failed to update organization: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("org_id", org.OrgID.String()).
		Int64("version", org.Version).
		Msg("Updated organization")

	return nil
}

// Delete deletes an organization by ID. Memberships, projects and permissions
// must be removed first.
func (s *OrganizationStore) Delete(ctx context.Context, orgID uuid.UUID) error {
	result, err := s.q.Exec(ctx, `DELETE FROM organizations WHERE org_id = $1`, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	log.Debug().
		Str("org_id", orgID.String()).
		Msg("Deleted organization")

	return nil
}

// List returns all organizations ordered by slug.
func (s *OrganizationStore) List(ctx context.Context) ([]*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations ORDER BY slug`

	rows, err := s.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", mapPostgresError(err))
	}

	orgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Organization, error) {
		return scanOrganization(row)
	})
	if err != nil {
		return nil, fmt.Errorf("error iterating organizations: %w", err)
	}

	return orgs, nil
}

func scanOrganization(row pgx.Row) (*models.Organization, error) {
	var (
		org  models.Organization
		base string
	)
	err := row.Scan(
		&org.OrgID,
		&org.Name,
		&org.Slug,
		&org.Description,
		&base,
		&org.Version,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if org.BasePermission, err = models.ParsePermissionLevel(base); err != nil {
		return nil, err
	}

	return &org, nil
}

// MembershipStore implements store.MembershipStore using PostgreSQL.
type MembershipStore struct {
	q querier
}

// Add adds a user to an organization.
func (s *MembershipStore) Add(ctx context.Context, m *models.Membership) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO memberships (org_id, user_id, created_at) VALUES ($1, $2, $3)`,
		m.OrgID, m.UserID, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add membership: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("org_id", m.OrgID.String()).
		Str("user_id", m.UserID.String()).
		Msg("Added organization member")

	return nil
}

// Remove removes a user from an organization.
func (s *MembershipStore) Remove(ctx context.Context, orgID, userID uuid.UUID) error {
	result, err := s.q.Exec(ctx, `DELETE FROM memberships WHERE org_id = $1 AND user_id = $2`, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove membership: %w", mapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return store.ErrMembershipNotFound
	}
	return nil
}

// IsMember reports whether the user belongs to the organization.
func (s *MembershipStore) IsMember(ctx context.Context, orgID, userID uuid.UUID) (bool, error) {
	var member bool
	err := s.q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM memberships WHERE org_id = $1 AND user_id = $2)`,
		orgID, userID,
	).Scan(&member)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", mapPostgresError(err))
	}
	return member, nil
}

// ListMembers returns the members of an organization ordered by join time.
func (s *MembershipStore) ListMembers(ctx context.Context, orgID uuid.UUID) ([]*models.Membership, error) {
	rows, err := s.q.Query(ctx,
		`SELECT org_id, user_id, created_at FROM memberships WHERE org_id = $1 ORDER BY created_at, user_id`,
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", mapPostgresError(err))
	}

	members, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Membership, error) {
		var m models.Membership
		if err := row.Scan(&m.OrgID, &m.UserID, &m.CreatedAt); err != nil {
			return nil, err
		}
		return &m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("error iterating members: %w", err)
	}

	return members, nil
}

// DeleteByOrganization removes every membership of an organization.
func (s *MembershipStore) DeleteByOrganization(ctx context.Context, orgID uuid.UUID) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM memberships WHERE org_id = $1`, orgID); err != nil {
		return fmt.Errorf("failed to delete memberships: %w", mapPostgresError(err))
	}
	return nil
}
