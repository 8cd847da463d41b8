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

const projectColumns = `project_id, name, description, slug, user_owner, organization_owner, version, created_at, updated_at`

// ProjectStore implements store.ProjectStore using PostgreSQL.
type ProjectStore struct {
	q querier
}

// Create stores a new project. The owner is persisted as two nullable
// references guarded by projects_owner_check.
func (s *ProjectStore) Create(ctx context.Context, project *models.Project) error {
	userOwner, orgOwner := project.Owner.Refs()

	query := `
		INSERT INTO projects (
			project_id, name, description, slug, user_owner, organization_owner,
			version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, 1, $7, $8
		)
	`

	_, err := s.q.Exec(ctx, query,
		project.ProjectID,
		project.Name,
		project.Description,
		project.Slug,
		userOwner,
		orgOwner,
		project.CreatedAt,
		project.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", mapPostgresError(err))
	}

	project.Version = 1

	log.Debug().
		Str("project_id", project.ProjectID.String()).
		Str("owner", project.Owner.String()).
		Msg("Created project")

	return nil
}

// Get retrieves a project by ID.
func (s *ProjectStore) Get(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	project, err := scanProject(s.q.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE project_id = $1`, projectID))
	if err != nil {
		return nil, notFoundOr(err, store.ErrProjectNotFound, "get project")
	}
	return project, nil
}

// GetForUpdate retrieves a project and locks the row until the transaction ends.
func (s *ProjectStore) GetForUpdate(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	project, err := scanProject(s.q.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE project_id = $1 FOR UPDATE`, projectID))
	if err != nil {
		return nil, notFoundOr(err, store.ErrProjectNotFound, "lock project")
	}
	return project, nil
}

// GetBySlug retrieves a project by slug.
func (s *ProjectStore) GetBySlug(ctx context.Context, slug string) (*models.Project, error) {
	project, err := scanProject(s.q.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE slug = $1`, slug))
	if err != nil {
		return nil, notFoundOr(err, store.ErrProjectNotFound, "get project by slug")
	}
	return project, nil
}

// Update replaces a project, including its owner, if project.Version is current.
func (s *ProjectStore) Update(ctx context.Context, project *models.Project) error {
	userOwner, orgOwner := project.Owner.Refs()

	query := `
		UPDATE projects SET
			name = $2,
			description = $3,
			slug = $4,
			user_owner = $5,
			organization_owner = $6,
			version = version + 1,
			updated_at = now()
		WHERE project_id = $1 AND version = $7
		RETURNING version, updated_at
	`

	err := s.q.QueryRow(ctx, query,
		project.ProjectID,
		project.Name,
		project.Description,
		project.Slug,
		userOwner,
		orgOwner,
		project.Version,
	).Scan(&project.Version, &project.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return missingOrConflict(ctx, s.q, "projects", "project_id", project.ProjectID, store.ErrProjectNotFound)
		}
		return fmt.Errorf("failed to update project: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("project_id", project.ProjectID.String()).
		Int64("version", project.Version).
		Msg("Updated project")

	return nil
}

// Delete removes a project. Dependent rows are removed by the caller.
func (s *ProjectStore) Delete(ctx context.Context, projectID uuid.UUID) error {
	result, err := s.q.Exec(ctx, `DELETE FROM projects WHERE project_id = $1`, projectID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", mapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return store.ErrProjectNotFound
	}

	log.Debug().Str("project_id", projectID.String()).Msg("Deleted project")

	return nil
}

// ListByOwner returns the projects of an owner ordered by slug.
func (s *ProjectStore) ListByOwner(ctx context.Context, owner models.Owner) ([]*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE user_owner = $1 ORDER BY slug`
	if _, ok := owner.OrganizationID(); ok {
		query = `SELECT ` + projectColumns + ` FROM projects WHERE organization_owner = $1 ORDER BY slug`
	}

	rows, err := s.q.Query(ctx, query, owner.ID())
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", mapPostgresError(err))
	}

	projects, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Project, error) {
		return scanProject(row)
	})
	if err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}

	return projects, nil
}

func scanProject(row pgx.Row) (*models.Project, error) {
	var (
		project             models.Project
		userOwner, orgOwner *uuid.UUID
	)
	err := row.Scan(
		&project.ProjectID,
		&project.Name,
		&project.Description,
		&project.Slug,
		&userOwner,
		&orgOwner,
		&project.Version,
		&project.CreatedAt,
		&project.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if project.Owner, err = models.OwnerFromRefs(userOwner, orgOwner); err != nil {
		return nil, fmt.Errorf("project %s: %w", project.ProjectID, err)
	}

	return &project, nil
}

const languageColumns = `language_id, project_id, abbreviation, name, original_name, flag_emoji, created_at`

// LanguageStore implements store.LanguageStore using PostgreSQL.
type LanguageStore struct {
	q querier
}

// Create stores a new language. Abbreviations are unique per project, ignoring case.
func (s *LanguageStore) Create(ctx context.Context, lang *models.Language) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO languages (`+languageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		lang.LanguageID,
		lang.ProjectID,
		lang.Abbreviation,
		lang.Name,
		lang.OriginalName,
		lang.FlagEmoji,
		lang.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create language: %w", mapPostgresError(err))
	}
	return nil
}

// Get retrieves a language by ID.
func (s *LanguageStore) Get(ctx context.Context, languageID uuid.UUID) (*models.Language, error) {
	lang, err := scanLanguage(s.q.QueryRow(ctx, `SELECT `+languageColumns+` FROM languages WHERE language_id = $1`, languageID))
	if err != nil {
		return nil, notFoundOr(err, store.ErrLanguageNotFound, "get language")
	}
	return lang, nil
}

// ListByProject returns the languages of a project ordered by abbreviation.
func (s *LanguageStore) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Language, error) {
	rows, err := s.q.Query(ctx, `SELECT `+languageColumns+` FROM languages WHERE project_id = $1 ORDER BY abbreviation`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list languages: %w", mapPostgresError(err))
	}

	langs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Language, error) {
		return scanLanguage(row)
	})
	if err != nil {
		return nil, fmt.Errorf("error iterating languages: %w", err)
	}

	return langs, nil
}

// Delete removes a language.
func (s *LanguageStore) Delete(ctx context.Context, languageID uuid.UUID) error {
	result, err := s.q.Exec(ctx, `DELETE FROM languages WHERE language_id = $1`, languageID)
	if err != nil {
		return fmt.Errorf("failed to delete language: %w", mapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return store.ErrLanguageNotFound
	}
	return nil
}

// DeleteByProject removes every language of a project.
func (s *LanguageStore) DeleteByProject(ctx context.Context, projectID uuid.UUID) (int, error) {
	result, err := s.q.Exec(ctx, `DELETE FROM languages WHERE project_id = $1`, projectID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete languages: %w", mapPostgresError(err))
	}
	return int(result.RowsAffected()), nil
}

func scanLanguage(row pgx.Row) (*models.Language, error) {
	var lang models.Language
	err := row.Scan(
		&lang.LanguageID,
		&lang.ProjectID,
		&lang.Abbreviation,
		&lang.Name,
		&lang.OriginalName,
		&lang.FlagEmoji,
		&lang.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &lang, nil
}
