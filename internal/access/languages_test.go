package access

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/polyglot/internal/models"
	"github.com/wolfeidau/polyglot/internal/store"
)

func TestLanguages_Add(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice@example.com")
	projectID := f.personalProject(alice, "notes")
	otherID := f.personalProject(alice, "docs")

	tests := []struct {
		name    string
		in      AddLanguageInput
		wantErr error
	}{
		{name: "language", in: AddLanguageInput{ProjectID: projectID, Abbreviation: "en", Name: "English"}},
		{name: "region", in: AddLanguageInput{ProjectID: projectID, Abbreviation: "de-AT", Name: "German (Austria)", OriginalName: "Deutsch (Österreich)", FlagEmoji: "🇦🇹"}},
		{name: "script", in: AddLanguageInput{ProjectID: projectID, Abbreviation: "zh_Hans", Name: "Chinese (Simplified)"}},
		{name: "same abbreviation in another project", in: AddLanguageInput{ProjectID: otherID, Abbreviation: "en", Name: "English"}},
		{name: "duplicate ignoring case", in: AddLanguageInput{ProjectID: projectID, Abbreviation: "EN", Name: "English"}, wantErr: store.ErrLanguageAlreadyExists},
		{name: "not a language tag", in: AddLanguageInput{ProjectID: projectID, Abbreviation: "english!", Name: "English"}, wantErr: ErrInvalidLanguage},
		{name: "missing name", in: AddLanguageInput{ProjectID: projectID, Abbreviation: "fr"}, wantErr: ErrInvalidLanguage},
		{name: "unknown project", in: AddLanguageInput{ProjectID: uuid.Must(uuid.NewV7()), Abbreviation: "fr", Name: "French"}, wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lang, err := f.svc.Languages().Add(f.ctx, tt.in)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.in.Abbreviation, lang.Abbreviation)
		})
	}

	langs, err := f.svc.Languages().List(f.ctx, projectID)
	require.NoError(t, err)
	require.Len(t, langs, 3)
	require.Equal(t, "de-AT", langs[0].Abbreviation)
	require.Equal(t, "en", langs[1].Abbreviation)
	require.Equal(t, "zh_Hans", langs[2].Abbreviation)
}

func TestLanguages_Remove(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice@example.com")
	bob := f.user("bob@example.com")
	projectID := f.personalProject(alice, "notes")

	de, err := f.svc.Languages().Add(f.ctx, AddLanguageInput{ProjectID: projectID, Abbreviation: "de", Name: "German"})
	require.NoError(t, err)
	fr, err := f.svc.Languages().Add(f.ctx, AddLanguageInput{ProjectID: projectID, Abbreviation: "fr", Name: "French"})
	require.NoError(t, err)

	f.grant(models.UserPrincipal(bob), models.ProjectScope(projectID), models.LevelTranslate, de.LanguageID)

	t.Run("referenced by a restriction", func(t *testing.T) {
		err := f.svc.Languages().Remove(f.ctx, de.LanguageID)
		require.ErrorIs(t, err, ErrLanguageInUse)

		_, err = f.svc.Languages().Get(f.ctx, de.LanguageID)
		require.NoError(t, err)
	})

	t.Run("unreferenced", func(t *testing.T) {
		require.NoError(t, f.svc.Languages().Remove(f.ctx, fr.LanguageID))

		_, err := f.svc.Languages().Get(f.ctx, fr.LanguageID)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("after lifting the restriction", func(t *testing.T) {
		_, err := f.svc.Registry().SetLevel(f.ctx, models.UserPrincipal(bob), models.ProjectScope(projectID), models.LevelTranslate)
		require.NoError(t, err)
		require.NoError(t, f.svc.Languages().Remove(f.ctx, de.LanguageID))
	})

	t.Run("missing", func(t *testing.T) {
		require.ErrorIs(t, f.svc.Languages().Remove(f.ctx, de.LanguageID), ErrNotFound)
	})
}
