package memory

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/polyglot/internal/models"
	"github.com/wolfeidau/polyglot/internal/store"
)

// PermissionStore implements store.PermissionStore using in-memory storage.
type PermissionStore struct {
	v *view
}

// Create stores a new permission. At most one permission exists per
// (principal, scope) pair.
func (s *PermissionStore) Create(ctx context.Context, perm *models.Permission) error {
	return s.v.write(func(st *state) error {
		if _, exists := st.permissions[perm.PermissionID]; exists {
			return store.ErrPermissionAlreadyExists
		}
		if findPermission(st, perm.Principal, perm.Scope) != nil {
			return store.ErrPermissionAlreadyExists
		}
		perm.Version = 1
		st.permissions[perm.PermissionID] = perm.Clone()
		st.permissionIDs[keyOf(perm)] = perm.PermissionID
		return nil
	})
}

// Find returns the permission of a principal on a scope.
func (s *PermissionStore) Find(ctx context.Context, principal models.Principal, scope models.Scope) (*models.Permission, error) {
	var result *models.Permission
	err := s.v.read(func(st *state) error {
		perm := findPermission(st, principal, scope)
		if perm == nil {
			return store.ErrPermissionNotFound
		}
		result = perm.Clone()
		return nil
	})
	return result, err
}

// FindForUpdate is Find; WithTx already serialises writers.
func (s *PermissionStore) FindForUpdate(ctx context.Context, principal models.Principal, scope models.Scope) (*models.Permission, error) {
	return s.Find(ctx, principal, scope)
}

// Update replaces a permission if the caller holds the current version.
// Principal and scope are immutable.
func (s *PermissionStore) Update(ctx context.Context, perm *models.Permission) error {
	return s.v.write(func(st *state) error {
		existing, exists := st.permissions[perm.PermissionID]
		if !exists {
			return store.ErrPermissionNotFound
		}
		if existing.Version != perm.Version {
			return store.ErrVersionConflict
		}
		perm.Principal = existing.Principal
		perm.Scope = existing.Scope
		perm.Version++
		perm.UpdatedAt = time.Now()
		st.permissions[perm.PermissionID] = perm.Clone()
		return nil
	})
}

// Delete removes a permission by ID.
func (s *PermissionStore) Delete(ctx context.Context, permissionID uuid.UUID) error {
	return s.v.write(func(st *state) error {
		perm, exists := st.permissions[permissionID]
		if !exists {
			return store.ErrPermissionNotFound
		}
		deletePermission(st, perm)
		return nil
	})
}

// ListByScope returns every permission on a scope, oldest first.
func (s *PermissionStore) ListByScope(ctx context.Context, scope models.Scope) ([]*models.Permission, error) {
	return s.list(func(p *models.Permission) bool { return p.Scope == scope })
}

// ListByPrincipal returns every permission held by a principal, oldest first.
func (s *PermissionStore) ListByPrincipal(ctx context.Context, principal models.Principal) ([]*models.Permission, error) {
	return s.list(func(p *models.Permission) bool { return p.Principal == principal })
}

// DeleteByScope removes every permission on a scope.
func (s *PermissionStore) DeleteByScope(ctx context.Context, scope models.Scope) (int, error) {
	return s.deleteWhere(func(p *models.Permission) bool { return p.Scope == scope })
}

// DeleteByPrincipal removes every permission held by a principal.
func (s *PermissionStore) DeleteByPrincipal(ctx context.Context, principal models.Principal) (int, error) {
	return s.deleteWhere(func(p *models.Permission) bool { return p.Principal == principal })
}

func (s *PermissionStore) list(match func(*models.Permission) bool) ([]*models.Permission, error) {
	var result []*models.Permission
	err := s.v.read(func(st *state) error {
		for _, perm := range st.permissions {
			if match(perm) {
				result = append(result, perm.Clone())
			}
		}
		return nil
	})
	slices.SortFunc(result, func(a, b *models.Permission) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.PermissionID[:], b.PermissionID[:])
	})
	return result, err
}

func (s *PermissionStore) deleteWhere(match func(*models.Permission) bool) (int, error) {
	var n int
	err := s.v.write(func(st *state) error {
		for _, perm := range st.permissions {
			if match(perm) {
				deletePermission(st, perm)
				n++
			}
		}
		return nil
	})
	return n, err
}

func keyOf(perm *models.Permission) permissionKey {
	return permissionKey{principal: perm.Principal, scope: perm.Scope}
}

func findPermission(st *state, principal models.Principal, scope models.Scope) *models.Permission {
	id, ok := st.permissionIDs[permissionKey{principal: principal, scope: scope}]
	if !ok {
		return nil
	}
	return st.permissions[id]
}

func deletePermission(st *state, perm *models.Permission) {
	delete(st.permissions, perm.PermissionID)
	delete(st.permissionIDs, keyOf(perm))
}
