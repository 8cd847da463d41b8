package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Permission grants a principal a level on a scope. There is at most one
// permission per (principal, scope) pair.
type Permission struct {
	PermissionID uuid.UUID
	Principal    Principal
	Scope        Scope
	Level        PermissionLevel

	// LanguageIDs restricts language targeted operations to these languages.
	// Empty means unrestricted. Only valid on project scopes.
	LanguageIDs []uuid.UUID

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Restricted reports whether the permission carries a language restriction.
func (p *Permission) Restricted() bool {
	return len(p.LanguageIDs) > 0
}

// AllowsLanguage reports whether operations on languageID are permitted.
func (p *Permission) AllowsLanguage(languageID uuid.UUID) bool {
	return !p.Restricted() || slices.Contains(p.LanguageIDs, languageID)
}

// Clone returns a deep copy.
func (p *Permission) Clone() *Permission {
	clone := *p
	clone.LanguageIDs = slices.Clone(p.LanguageIDs)
	return &clone
}

// APIKey lets automation act on one project on behalf of a user, optionally
// capped below the user's own level.
type APIKey struct {
	KeyID       uuid.UUID
	UserID      uuid.UUID
	ProjectID   uuid.UUID
	Description string

	// Ceiling caps the effective level. Nil inherits the user's level.
	Ceiling *PermissionLevel

	KeyPrefix string // first characters of the secret, for display
	KeyHash   string // Base58-encoded SHA256 of the secret

	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ExpiresAt  *time.Time
	LastUsedAt *time.Time
}

// IsExpired reports whether the key has passed its expiry time.
func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}

// Clone returns a deep copy.
func (k *APIKey) Clone() *APIKey {
	clone := *k
	if k.Ceiling != nil {
		c := *k.Ceiling
		clone.Ceiling = &c
	}
	if k.ExpiresAt != nil {
		t := *k.ExpiresAt
		clone.ExpiresAt = &t
	}
	if k.LastUsedAt != nil {
		t := *k.LastUsedAt
		clone.LastUsedAt = &t
	}
	return &clone
}
