package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/polyglot/internal/models"
)

// Sentinel errors for permission store operations
var (
	ErrPermissionNotFound      = errors.New("permission not found")
	ErrPermissionAlreadyExists = errors.New("permission already exists for principal and scope")
)

// PermissionStore holds at most one permission per (principal, scope) pair.
type PermissionStore interface {
	// Create stores a new permission.
	// Returns ErrPermissionAlreadyExists if the principal already has a permission on the scope.
	Create(ctx context.Context, perm *models.Permission) error

	// Find returns the permission of principal on scope.
	// Returns ErrPermissionNotFound if there is none.
	Find(ctx context.Context, principal models.Principal, scope models.Scope) (*models.Permission, error)

	// FindForUpdate is Find that also locks the row until the enclosing transaction ends.
	FindForUpdate(ctx context.Context, principal models.Principal, scope models.Scope) (*models.Permission, error)

	// Update stores perm if its Version matches, then bumps perm.Version.
	Update(ctx context.Context, perm *models.Permission) error

	// Delete deletes a permission by ID.
	Delete(ctx context.Context, permissionID uuid.UUID) error

	// ListByScope returns every permission on a scope.
	ListByScope(ctx context.Context, scope models.Scope) ([]*models.Permission, error)

	// ListByPrincipal returns every permission held by a principal.
	ListByPrincipal(ctx context.Context, principal models.Principal) ([]*models.Permission, error)

	// DeleteByScope deletes every permission on a scope and returns how many were removed.
	DeleteByScope(ctx context.Context, scope models.Scope) (int, error)

	// DeleteByPrincipal deletes every permission held by a principal.
	DeleteByPrincipal(ctx context.Context, principal models.Principal) (int, error)
}
