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

// ProjectStore implements store.ProjectStore using in-memory storage.
type ProjectStore struct {
	v *view
}

// Create stores a new project.
func (s *ProjectStore) Create(ctx context.Context, project *models.Project) error {
	return s.v.write(func(st *state) error {
		if _, exists := st.projects[project.ProjectID]; exists {
			return store.ErrProjectAlreadyExists
		}
		if projectSlugTaken(st, project.Slug, project.ProjectID) {
			return store.ErrSlugTaken
		}
		project.Version = 1
		clone := *project
		st.projects[project.ProjectID] = &clone
		return nil
	})
}

// Get retrieves a project by ID.
func (s *ProjectStore) Get(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	var result *models.Project
	err := s.v.read(func(st *state) error {
		project, exists := st.projects[projectID]
		if !exists {
			return store.ErrProjectNotFound
		}
		clone := *project
		result = &clone
		return nil
	})
	return result, err
}

// GetForUpdate is Get; WithTx already serialises writers.
func (s *ProjectStore) GetForUpdate(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	return s.Get(ctx, projectID)
}

// GetBySlug retrieves a project by slug.
func (s *ProjectStore) GetBySlug(ctx context.Context, slug string) (*models.Project, error) {
	var result *models.Project
	err := s.v.read(func(st *state) error {
		for _, project := range st.projects {
			if project.Slug == slug {
				clone := *project
				result = &clone
				return nil
			}
		}
		return store.ErrProjectNotFound
	})
	return result, err
}

// Update replaces a project if the caller holds the current version.
func (s *ProjectStore) Update(ctx context.Context, project *models.Project) error {
	return s.v.write(func(st *state) error {
		existing, exists := st.projects[project.ProjectID]
		if !exists {
			return store.ErrProjectNotFound
		}
		if existing.Version != project.Version {
			return store.ErrVersionConflict
		}
		if projectSlugTaken(st, project.Slug, project.ProjectID) {
			return store.ErrSlugTaken
		}
		project.Version++
		project.UpdatedAt = time.Now()
		clone := *project
		st.projects[project.ProjectID] = &clone
		return nil
	})
}

// Delete removes a project. Dependent rows are removed by the caller.
func (s *ProjectStore) Delete(ctx context.Context, projectID uuid.UUID) error {
	return s.v.write(func(st *state) error {
		if _, exists := st.projects[projectID]; !exists {
			return store.ErrProjectNotFound
		}
		delete(st.projects, projectID)
		return nil
	})
}

// ListByOwner returns the projects of an owner ordered by slug.
func (s *ProjectStore) ListByOwner(ctx context.Context, owner models.Owner) ([]*models.Project, error) {
	var result []*models.Project
	err := s.v.read(func(st *state) error {
		for _, project := range st.projects {
			if project.Owner == owner {
				clone := *project
				result = append(result, &clone)
			}
		}
		return nil
	})
	slices.SortFunc(result, func(a, b *models.Project) int {
		return strings.Compare(a.Slug, b.Slug)
	})
	return result, err
}

func projectSlugTaken(st *state, slug string, self uuid.UUID) bool {
	for id, project := range st.projects {
		if id != self && project.Slug == slug {
			return true
		}
	}
	return false
}

// LanguageStore implements store.LanguageStore using in-memory storage.
type LanguageStore struct {
	v *view
}

// Create stores a new language. Abbreviations are unique per project.
func (s *LanguageStore) Create(ctx context.Context, lang *models.Language) error {
	return s.v.write(func(st *state) error {
		if _, exists := st.languages[lang.LanguageID]; exists {
			return store.ErrLanguageAlreadyExists
		}
		for _, l := range st.languages {
			if l.ProjectID == lang.ProjectID && strings.EqualFold(l.Abbreviation, lang.Abbreviation) {
				return store.ErrLanguageAlreadyExists
			}
		}
		clone := *lang
		st.languages[lang.LanguageID] = &clone
		return nil
	})
}

// Get retrieves a language by ID.
func (s *LanguageStore) Get(ctx context.Context, languageID uuid.UUID) (*models.Language, error) {
	var result *models.Language
	err := s.v.read(func(st *state) error {
		lang, exists := st.languages[languageID]
		if !exists {
			return store.ErrLanguageNotFound
		}
		clone := *lang
		result = &clone
		return nil
	})
	return result, err
}

// ListByProject returns the languages of a project ordered by abbreviation.
func (s *LanguageStore) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Language, error) {
	var result []*models.Language
	err := s.v.read(func(st *state) error {
		for _, lang := range st.languages {
			if lang.ProjectID == projectID {
				clone := *lang
				result = append(result, &clone)
			}
		}
		return nil
	})
	slices.SortFunc(result, func(a, b *models.Language) int {
		return strings.Compare(a.Abbreviation, b.Abbreviation)
	})
	return result, err
}

// Delete removes a language.
func (s *LanguageStore) Delete(ctx context.Context, languageID uuid.UUID) error {
	return s.v.write(func(st *state) error {
		if _, exists := st.languages[languageID]; !exists {
			return store.ErrLanguageNotFound
		}
		delete(st.languages, languageID)
		return nil
	})
}

// DeleteByProject removes every language of a project.
func (s *LanguageStore) DeleteByProject(ctx context.Context, projectID uuid.UUID) (int, error) {
	var n int
	err := s.v.write(func(st *state) error {
		for id, lang := range st.languages {
			if lang.ProjectID == projectID {
				delete(st.languages, id)
				n++
			}
		}
		return nil
	})
	return n, err
}
