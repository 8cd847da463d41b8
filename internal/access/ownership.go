package access

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/wolfeidau/polyglot/internal/models"
)

const (
	minNameLength        = 3
	maxNameLength        = 50
	maxDescriptionLength = 2000
	minSlugLength        = 3
	maxSlugLength        = 60
)

// Lowercase alphanumerics and hyphens, with at least one letter.
var slugPattern = regexp.MustCompile(`^[a-z0-9-]*[a-z]+[a-z0-9-]*$`)

// ValidateOwnership checks that a project has exactly one owner. It runs on the
// candidate state of every project create, update and transfer before anything
// is persisted.
func ValidateOwnership(project *models.Project) error {
	if project == nil {
		return fmt.Errorf("%w: no project", ErrInvalidOwnership)
	}
	if err := project.Owner.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOwnership, err)
	}
	return nil
}

// ValidateProject checks ownership and the format of every project field.
func ValidateProject(project *models.Project) error {
	if err := ValidateOwnership(project); err != nil {
		return err
	}
	if err := validateName(project.Name); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProject, err)
	}
	if err := validateDescription(project.Description); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProject, err)
	}
	if err := ValidateSlug(project.Slug); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProject, err)
	}
	return nil
}

// ValidateOrganization checks the format of every organization field.
func ValidateOrganization(org *models.Organization) error {
	if org == nil {
		return fmt.Errorf("%w: no organization", ErrInvalidOrganization)
	}
	if err := validateName(org.Name); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOrganization, err)
	}
	if err := validateDescription(org.Description); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOrganization, err)
	}
	if err := ValidateSlug(org.Slug); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOrganization, err)
	}
	if !org.BasePermission.Valid() {
		return fmt.Errorf("%w: %w", ErrInvalidOrganization, models.ErrInvalidPermissionLevel)
	}
	return nil
}

// NewOwner converts the two nullable owner references used by request
// payloads into an Owner.
func NewOwner(userOwner, organizationOwner *uuid.UUID) (models.Owner, error) {
	owner, err := models.OwnerFromRefs(userOwner, organizationOwner)
	if err != nil {
		return models.Owner{}, fmt.Errorf("%w: %w", ErrInvalidOwnership, err)
	}
	if err := owner.Validate(); err != nil {
		return models.Owner{}, fmt.Errorf("%w: %w", ErrInvalidOwnership, err)
	}
	return owner, nil
}

// NewScope converts the two nullable scope references used by request
// payloads into a Scope.
func NewScope(organization, project *uuid.UUID) (models.Scope, error) {
	scope, err := models.ScopeFromRefs(organization, project)
	if err != nil {
		return models.Scope{}, fmt.Errorf("%w: %w", ErrInvalidScope, err)
	}
	if err := scope.Validate(); err != nil {
		return models.Scope{}, fmt.Errorf("%w: %w", ErrInvalidScope, err)
	}
	return scope, nil
}

// ValidateSlug checks the shared project and organization slug format.
func ValidateSlug(s string) error {
	if n := len(s); n < minSlugLength || n > maxSlugLength {
		return fmt.Errorf("slug must be %d-%d characters, got %d", minSlugLength, maxSlugLength, n)
	}
	if !slugPattern.MatchString(s) {
		return fmt.Errorf("slug %q must be lowercase letters, digits and hyphens with at least one letter", s)
	}
	return nil
}

// DeriveSlug builds a slug from a display name, e.g. "Acme Web App" becomes
// "acme-web-app". The result still has to pass ValidateSlug.
func DeriveSlug(name string) string {
	s := slug.Make(name)
	if len(s) > maxSlugLength {
		s = strings.TrimRight(s[:maxSlugLength], "-")
	}
	return s
}

func validateName(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n < minNameLength || n > maxNameLength {
		return fmt.Errorf("name must be %d-%d characters, got %d", minNameLength, maxNameLength, n)
	}
	return nil
}

func validateDescription(description string) error {
	if n := utf8.RuneCountInString(description); n > maxDescriptionLength {
		return fmt.Errorf("description must be at most %d characters, got %d", maxDescriptionLength, n)
	}
	return nil
}
