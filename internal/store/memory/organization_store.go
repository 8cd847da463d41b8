package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/polyglot/internal/models"
	"github.com/wolfeidau/polyglot/internal/store"
)

// OrganizationStore implements store.OrganizationStore using in-memory storage.
type OrganizationStore struct {
	v *view
}

// Create creates a new organization in memory.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	return s.v.write(func(st *state) error {
		if _, exists := st.organizations[org.OrgID]; exists {
			return store.ErrOrganizationAlreadyExists
		}
		if orgSlugTaken(st, org.Slug, org.OrgID) {
			return store.ErrSlugTaken
		}

		org.Version = 1

		// Clone to avoid external modifications
		clone := *org
		st.organizations[org.OrgID] = &clone

		return nil
	})
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	var result *models.Organization
	err := s.v.read(func(st *state) error {
		org, exists := st.organizations[orgID]
		if !exists {
			return store.ErrOrganizationNotFound
		}
		clone := *org
		result = &clone
		return nil
	})
	return result, err
}

// GetBySlug retrieves an organization by slug.
func (s *OrganizationStore) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	var result *models.Organization
	err := s.v.read(func(st *state) error {
		for _, org := range st.organizations {
			if org.Slug == slug {
				clone := *org
				result = &clone
				return nil
			}
		}
		return store.ErrOrganizationNotFound
	})
	return result, err
}

// Update updates an existing organization.
func (s *OrganizationStore) Update(ctx context.Context, org *models.Organization) error {
	return s.v.write(func(st *state) error {
		existing, exists := st.organizations[org.OrgID]
		if !exists {
			return store.ErrOrganizationNotFound
		}
		if existing.Version != org.Version {
			return store.ErrVersionConflict
		}
		if orgSlugTaken(st, org.Slug, org.OrgID) {
			return store.ErrSlugTaken
		}

		org.Version++
		org.UpdatedAt = time.Now()

		clone := *org
		st.organizations[org.OrgID] = &clone

		return nil
	})
}

// Delete deletes an organization by ID.
// Note: In-memory implementation doesn't cascade, matching the postgres store.
func (s *OrganizationStore) Delete(ctx context.Context, orgID uuid.UUID) error {
	return s.v.write(func(st *state) error {
		if _, exists := st.organizations[orgID]; !exists {
			return store.ErrOrganizationNotFound
		}
		delete(st.organizations, orgID)
		return nil
	})
}

// List returns all organizations ordered by slug.
func (s *OrganizationStore) List(ctx context.Context) ([]*models.Organization, error) {
	var result []*models.Organization
	err := s.v.read(func(st *state) error {
		for _, org := range st.organizations {
			clone := *org
			result = append(result, &clone)
		}
		return nil
	})
	slices.SortFunc(result, func(a, b *models.Organization) int {
		return strings.Compare(a.Slug, b.Slug)
	})
	return result, err
}

func orgSlugTaken(st *state, slug string, self uuid.UUID) bool {
	for id, org := range st.organizations {
		if id != self && org.Slug == slug {
			return true
		}
	}
	return false
}

// MembershipStore implements store.MembershipStore using in-memory storage.
type MembershipStore struct {
	v *view
}

// Add adds a user to an organization.
func (s *MembershipStore) Add(ctx context.Context, m *models.Membership) error {
	return s.v.write(func(st *state) error {
		key := membershipKey{orgID: m.OrgID, userID: m.UserID}
		if _, exists := st.memberships[key]; exists {
			return store.ErrMembershipAlreadyExists
		}
		clone := *m
		st.memberships[key] = &clone
		return nil
	})
}

// Remove removes a user from an organization.
func (s *MembershipStore) Remove(ctx context.Context, orgID, userID uuid.UUID) error {
	return s.v.write(func(st *state) error {
		key := membershipKey{orgID: orgID, userID: userID}
		if _, exists := st.memberships[key]; !exists {
			return store.ErrMembershipNotFound
		}
		delete(st.memberships, key)
		return nil
	})
}

// IsMember reports whether the user belongs to the organization.
func (s *MembershipStore) IsMember(ctx context.Context, orgID, userID uuid.UUID) (bool, error) {
	var member bool
	err := s.v.read(func(st *state) error {
		_, member = st.memberships[membershipKey{orgID: orgID, userID: userID}]
		return nil
	})
	return member, err
}

// ListMembers returns the members of an organization ordered by join time.
func (s *MembershipStore) ListMembers(ctx context.Context, orgID uuid.UUID) ([]*models.Membership, error) {
	var result []*models.Membership
	err := s.v.read(func(st *state) error {
		for key, m := range st.memberships {
			if key.orgID == orgID {
				clone := *m
				result = append(result, &clone)
			}
		}
		return nil
	})
	slices.SortFunc(result, func(a, b *models.Membership) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.UserID[:], b.UserID[:])
	})
	return result, err
}

// DeleteByOrganization removes every membership of an organization.
func (s *MembershipStore) DeleteByOrganization(ctx context.Context, orgID uuid.UUID) error {
	return s.v.write(func(st *state) error {
		for key := range st.memberships {
			if key.orgID == orgID {
				delete(st.memberships, key)
			}
		}
		return nil
	})
}
