package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/polyglot/internal/models"
)

// Sentinel errors for organization store operations
var (
	ErrOrganizationNotFound      = errors.New("organization not found")
	ErrOrganizationAlreadyExists = errors.New("organization already exists")
	ErrMembershipNotFound        = errors.New("membership not found")
	ErrMembershipAlreadyExists   = errors.New("membership already exists")
)

// OrganizationStore defines the interface for organization storage operations.
type OrganizationStore interface {
	// Create creates a new organization.
	// Returns ErrOrganizationAlreadyExists if the ID exists, ErrSlugTaken if the slug is in use.
	Create(ctx context.Context, org *models.Organization) error

	// Get retrieves an organization by ID.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error)

	// GetBySlug retrieves an organization by its slug.
	GetBySlug(ctx context.Context, slug string) (*models.Organization, error)

	// Update stores org if its Version matches the stored version, then bumps org.Version.
	// Returns ErrVersionConflict on a stale version, ErrSlugTaken if the new slug is in use.
	Update(ctx context.Context, org *models.Organization) error

	// Delete deletes an organization by ID. It does not cascade; callers remove
	// projects, memberships and permissions first.
	Delete(ctx context.Context, orgID uuid.UUID) error

	// List returns all organizations ordered by slug.
	List(ctx context.Context) ([]*models.Organization, error)
}

// MembershipStore records which users belong to which organization.
type MembershipStore interface {
	// Add adds a user to an organization.
	// Returns ErrMembershipAlreadyExists if the user is already a member.
	Add(ctx context.Context, m *models.Membership) error

	// Remove removes a user from an organization.
	// Returns ErrMembershipNotFound if the user is not a member.
	Remove(ctx context.Context, orgID, userID uuid.UUID) error

	// IsMember reports whether the user belongs to the organization.
	IsMember(ctx context.Context, orgID, userID uuid.UUID) (bool, error)

	// ListMembers returns the members of an organization.
	ListMembers(ctx context.Context, orgID uuid.UUID) ([]*models.Membership, error)

	// DeleteByOrganization removes every membership of an organization.
	DeleteByOrganization(ctx context.Context, orgID uuid.UUID) error
}
