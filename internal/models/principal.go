package models

import (
	"fmt"

	"github.com/google/uuid"
)

// PrincipalKind identifies what a Principal refers to.
type PrincipalKind string

const (
	PrincipalKindUser   PrincipalKind = "user"    // UserAccount
	PrincipalKindAPIKey PrincipalKind = "api_key" // APIKey acting on behalf of its user
)

// Principal is an entity that can be granted access: a user account or an API key.
// The zero value refers to nothing and is rejected wherever a principal is required.
type Principal struct {
	kind PrincipalKind
	id   uuid.UUID
}

// UserPrincipal returns a principal for a user account.
func UserPrincipal(userID uuid.UUID) Principal {
	return Principal{kind: PrincipalKindUser, id: userID}
}

// APIKeyPrincipal returns a principal for an API key.
func APIKeyPrincipal(keyID uuid.UUID) Principal {
	return Principal{kind: PrincipalKindAPIKey, id: keyID}
}

// NewPrincipal rebuilds a principal from its stored kind and id.
func NewPrincipal(kind PrincipalKind, id uuid.UUID) (Principal, error) {
	p := Principal{kind: kind, id: id}
	if err := p.Validate(); err != nil {
		return Principal{}, err
	}
	return p, nil
}

func (p Principal) Kind() PrincipalKind { return p.kind }
func (p Principal) ID() uuid.UUID       { return p.id }
func (p Principal) IsUser() bool        { return p.kind == PrincipalKindUser }
func (p Principal) IsAPIKey() bool      { return p.kind == PrincipalKindAPIKey }
func (p Principal) IsZero() bool        { return p == Principal{} }

// Validate checks the principal refers to exactly one known entity.
func (p Principal) Validate() error {
	switch p.kind {
	case PrincipalKindUser, PrincipalKindAPIKey:
	default:
		return fmt.Errorf("unknown principal kind %q", p.kind)
	}
	if p.id == uuid.Nil {
		return fmt.Errorf("principal %s has no id", p.kind)
	}
	return nil
}

func (p Principal) String() string {
	return string(p.kind) + ":" + p.id.String()
}
