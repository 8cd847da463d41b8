package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPermissionLevel is returned when a level name is not recognised.
var ErrInvalidPermissionLevel = errors.New("invalid permission level")

// PermissionLevel is an ordinal access tier. Levels are totally ordered so
// "at least X" checks are plain comparisons.
type PermissionLevel int

const (
	LevelNone PermissionLevel = iota
	LevelView
	LevelTranslate
	LevelReview
	LevelEdit
	LevelManage
)

var levelNames = [...]string{
	LevelNone:      "NONE",
	LevelView:      "VIEW",
	LevelTranslate: "TRANSLATE",
	LevelReview:    "REVIEW",
	LevelEdit:      "EDIT",
	LevelManage:    "MANAGE",
}

// PermissionLevels returns every level in ascending order.
func PermissionLevels() []PermissionLevel {
	return []PermissionLevel{LevelNone, LevelView, LevelTranslate, LevelReview, LevelEdit, LevelManage}
}

// ParsePermissionLevel parses a level name, case insensitive.
func ParsePermissionLevel(s string) (PermissionLevel, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range levelNames {
		if n == name {
			return PermissionLevel(i), nil
		}
	}
	return LevelNone, fmt.Errorf("%w: %q", ErrInvalidPermissionLevel, s)
}

func (l PermissionLevel) String() string {
	if !l.Valid() {
		return fmt.Sprintf("PermissionLevel(%d)", int(l))
	}
	return levelNames[l]
}

// Valid reports whether l is one of the defined levels.
func (l PermissionLevel) Valid() bool {
	return l >= LevelNone && l <= LevelManage
}

// AtLeast reports whether l grants everything other grants.
func (l PermissionLevel) AtLeast(other PermissionLevel) bool {
	return l >= other
}

// Min returns the lower of two levels.
func (l PermissionLevel) Min(other PermissionLevel) PermissionLevel {
	if other < l {
		return other
	}
	return l
}

// MarshalText implements encoding.TextMarshaler.
func (l PermissionLevel) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPermissionLevel, int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *PermissionLevel) UnmarshalText(text []byte) error {
	parsed, err := ParsePermissionLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
