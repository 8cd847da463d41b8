package access

import (
	"errors"
	"fmt"

	"github.com/wolfeidau/polyglot/internal/store"
)

// Errors returned by the access services. Store errors are wrapped so both the
// access error and the underlying store error match with errors.Is.
var (
	ErrInvalidOwnership        = errors.New("project must be owned by exactly one of a user or an organization")
	ErrInvalidScope            = errors.New("permission scope must be exactly one of an organization or a project")
	ErrInvalidPermission       = errors.New("invalid permission")
	ErrDuplicatePermission     = errors.New("permission already exists for principal and scope")
	ErrInsufficientPermission  = errors.New("insufficient permission")
	ErrNotFound                = errors.New("not found")
	ErrInvalidProject          = errors.New("invalid project")
	ErrInvalidOrganization     = errors.New("invalid organization")
	ErrInvalidLanguage         = errors.New("invalid language")
	ErrOrganizationHasProjects = errors.New("organization still owns projects")
	ErrLastManager             = errors.New("organization must keep at least one manager")
	ErrLanguageInUse           = errors.New("language is referenced by a permission restriction")
	ErrConflict                = errors.New("conflicts with existing state")
	ErrInvalidUser             = errors.New("invalid user")
)

var callerErrors = []error{
	ErrInvalidOwnership,
	ErrInvalidScope,
	ErrInvalidPermission,
	ErrDuplicatePermission,
	ErrInsufficientPermission,
	ErrNotFound,
	ErrInvalidProject,
	ErrInvalidOrganization,
	ErrInvalidLanguage,
	ErrOrganizationHasProjects,
	ErrLastManager,
	ErrLanguageInUse,
	ErrConflict,
	ErrInvalidUser,
}

// IsCallerError reports whether err was caused by the request rather than by
// the infrastructure. Caller errors are never retried.
func IsCallerError(err error) bool {
	for _, target := range callerErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// translate maps store sentinels onto the access taxonomy.
func translate(err error) error {
	if err == nil || IsCallerError(err) {
		return err
	}

	switch {
	case errors.Is(err, store.ErrPermissionAlreadyExists):
		return fmt.Errorf("%w: %w", ErrDuplicatePermission, err)

	case errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrOrganizationNotFound),
		errors.Is(err, store.ErrMembershipNotFound),
		errors.Is(err, store.ErrProjectNotFound),
		errors.Is(err, store.ErrLanguageNotFound),
		errors.Is(err, store.ErrPermissionNotFound),
		errors.Is(err, store.ErrAPIKeyNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)

	case errors.Is(err, store.ErrVersionConflict),
		errors.Is(err, store.ErrSlugTaken),
		errors.Is(err, store.ErrUserAlreadyExists),
		errors.Is(err, store.ErrOrganizationAlreadyExists),
		errors.Is(err, store.ErrMembershipAlreadyExists),
		errors.Is(err, store.ErrProjectAlreadyExists),
		errors.Is(err, store.ErrLanguageAlreadyExists),
		errors.Is(err, store.ErrAPIKeyAlreadyExists):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}

	return err
}
