package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/polyglot/internal/models"
)

// Sentinel errors for project store operations
var (
	ErrProjectNotFound       = errors.New("project not found")
	ErrProjectAlreadyExists  = errors.New("project already exists")
	ErrLanguageNotFound      = errors.New("language not found")
	ErrLanguageAlreadyExists = errors.New("language abbreviation already exists in project")
)

// ProjectStore defines the interface for project storage operations.
type ProjectStore interface {
	// Create creates a project. Returns ErrProjectAlreadyExists or ErrSlugTaken on conflicts.
	Create(ctx context.Context, project *models.Project) error

	// Get retrieves a project by ID.
	Get(ctx context.Context, projectID uuid.UUID) (*models.Project, error)

	// GetForUpdate is Get that also locks the row until the enclosing transaction ends.
	GetForUpdate(ctx context.Context, projectID uuid.UUID) (*models.Project, error)

	// GetBySlug retrieves a project by slug.
	GetBySlug(ctx context.Context, slug string) (*models.Project, error)

	// Update stores project if its Version matches, then bumps project.Version.
	Update(ctx context.Context, project *models.Project) error

	// Delete deletes a project. It does not cascade.
	Delete(ctx context.Context, projectID uuid.UUID) error

	// ListByOwner returns the projects owned by owner ordered by slug.
	ListByOwner(ctx context.Context, owner models.Owner) ([]*models.Project, error)
}

// LanguageStore manages the languages of a project.
type LanguageStore interface {
	// Create stores a language. Returns ErrLanguageAlreadyExists if the
	// abbreviation is already used in the project.
	Create(ctx context.Context, lang *models.Language) error

	// Get retrieves a language by ID.
	Get(ctx context.Context, languageID uuid.UUID) (*models.Language, error)

	// ListByProject returns the languages of a project ordered by abbreviation.
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Language, error)

	// Delete deletes a language.
	Delete(ctx context.Context, languageID uuid.UUID) error

	// DeleteByProject deletes every language of a project.
	DeleteByProject(ctx context.Context, projectID uuid.UUID) (int, error)
}
