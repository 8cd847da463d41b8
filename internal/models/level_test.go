package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPermissionLevelOrdering(t *testing.T) {
	levels := PermissionLevels()
	for i := 1; i < len(levels); i++ {
		require.Less(t, levels[i-1], levels[i])
		require.True(t, levels[i].AtLeast(levels[i-1]))
		require.False(t, levels[i-1].AtLeast(levels[i]))
	}
	require.Equal(t, LevelView, LevelEdit.Min(LevelView))
	require.Equal(t, LevelView, LevelView.Min(LevelEdit))
}

func TestParsePermissionLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected PermissionLevel
		wantErr  bool
	}{
		{input: "NONE", expected: LevelNone},
		{input: "view", expected: LevelView},
		{input: " Translate ", expected: LevelTranslate},
		{input: "REVIEW", expected: LevelReview},
		{input: "edit", expected: LevelEdit},
		{input: "MANAGE", expected: LevelManage},
		{input: "owner", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParsePermissionLevel(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidPermissionLevel)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, level)
		})
	}
}

func TestPermissionLevelText(t *testing.T) {
	text, err := LevelReview.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "REVIEW", string(text))

	var level PermissionLevel
	require.NoError(t, level.UnmarshalText([]byte("edit")))
	require.Equal(t, LevelEdit, level)

	_, err = PermissionLevel(42).MarshalText()
	require.ErrorIs(t, err, ErrInvalidPermissionLevel)
	require.Equal(t, "PermissionLevel(42)", PermissionLevel(42).String())
}
