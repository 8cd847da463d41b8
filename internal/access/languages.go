package access

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/wolfeidau/polyglot/internal/models"
	"github.com/wolfeidau/polyglot/internal/store"
	"go.opentelemetry.io/otel/attribute"
)

const maxLanguageNameLength = 100

// Language tags such as "en", "de-AT" or "zh_Hans".
var abbreviationPattern = regexp.MustCompile(`^[A-Za-z]{2,3}([-_][A-Za-z0-9]{1,8})*$`)

// Languages manages the languages of a project.
type Languages struct {
	*core
}

type AddLanguageInput struct {
	ProjectID    uuid.UUID
	Abbreviation string
	Name         string
	OriginalName string
	FlagEmoji    string
}

// Add creates a language. The abbreviation is unique within the project,
// ignoring case.
func (l *Languages) Add(ctx context.Context, in AddLanguageInput) (*models.Language, error) {
	lang := &models.Language{
		LanguageID:   newID(),
		ProjectID:    in.ProjectID,
		Abbreviation: strings.TrimSpace(in.Abbreviation),
		Name:         strings.TrimSpace(in.Name),
		OriginalName: strings.TrimSpace(in.OriginalName),
		FlagEmoji:    in.FlagEmoji,
		CreatedAt:    l.now(),
	}
	if err := validateLanguage(lang); err != nil {
		return nil, err
	}

	err := l.mutate(ctx, "access.AddLanguage", func(ctx context.Context, tx store.Repositories) error {
		if _, err := tx.Projects().Get(ctx, in.ProjectID); err != nil {
			return err
		}
		return tx.Languages().Create(ctx, lang)
	}, attribute.String("project_id", in.ProjectID.String()), attribute.String("abbreviation", lang.Abbreviation))
	if err != nil {
		return nil, err
	}

	l.logger(ctx).Info().
		Str("language_id", lang.LanguageID.String()).
		Str("project_id", lang.ProjectID.String()).
		Str("abbreviation", lang.Abbreviation).
		Msg("Added language")

	return lang, nil
}

// Remove deletes a language. It fails with ErrLanguageInUse while a permission
// restriction references it, since dropping the id from the list could turn a
// restricted grant into an unrestricted one.
func (l *Languages) Remove(ctx context.Context, languageID uuid.UUID) error {
	err := l.mutate(ctx, "access.RemoveLanguage", func(ctx context.Context, tx store.Repositories) error {
		lang, err := tx.Languages().Get(ctx, languageID)
		if err != nil {
			return err
		}

		perms, err := tx.Permissions().ListByScope(ctx, models.ProjectScope(lang.ProjectID))
		if err != nil {
			return fmt.Errorf("failed to list project permissions: %w", err)
		}
		for _, perm := range perms {
			if slices.Contains(perm.LanguageIDs, languageID) {
				return fmt.Errorf("%w: %s is restricted by permission %s", ErrLanguageInUse, lang.Abbreviation, perm.PermissionID)
			}
		}

		return tx.Languages().Delete(ctx, languageID)
	}, attribute.String("language_id", languageID.String()))
	if err != nil {
		return err
	}

	l.logger(ctx).Info().Str("language_id", languageID.String()).Msg("Removed language")

	return nil
}

// List returns the languages of a project ordered by abbreviation.
func (l *Languages) List(ctx context.Context, projectID uuid.UUID) ([]*models.Language, error) {
	var langs []*models.Language
	err := l.view(ctx, func(ctx context.Context, repos store.Repositories) error {
		if _, err := repos.Projects().Get(ctx, projectID); err != nil {
			return err
		}
		var err error
		langs, err = repos.Languages().ListByProject(ctx, projectID)
		return err
	})
	return langs, err
}

func (l *Languages) Get(ctx context.Context, languageID uuid.UUID) (*models.Language, error) {
	var lang *models.Language
	err := l.view(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		lang, err = repos.Languages().Get(ctx, languageID)
		return err
	})
	return lang, err
}

func validateLanguage(lang *models.Language) error {
	if !abbreviationPattern.MatchString(lang.Abbreviation) {
		return fmt.Errorf("%w: abbreviation %q is not a language tag", ErrInvalidLanguage, lang.Abbreviation)
	}
	if lang.Name == "" || len(lang.Name) > maxLanguageNameLength {
		return fmt.Errorf("%w: name must be 1 to %d characters", ErrInvalidLanguage, maxLanguageNameLength)
	}
	if len(lang.OriginalName) > maxLanguageNameLength {
		return fmt.Errorf("%w: original name must be at most %d characters", ErrInvalidLanguage, maxLanguageNameLength)
	}
	return nil
}
