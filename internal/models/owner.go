package models

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Errors returned when two mutually exclusive references cannot form a variant.
var (
	ErrNoReference        = errors.New("exactly one reference must be set, got none")
	ErrAmbiguousReference = errors.New("exactly one reference must be set, got both")
)

// OwnerKind identifies who owns a project.
type OwnerKind string

const (
	OwnerKindUser         OwnerKind = "user"
	OwnerKindOrganization OwnerKind = "organization"
)

// Owner is the owner of a project, either a user or an organization.
// It cannot hold both; the zero value holds neither.
type Owner struct {
	kind OwnerKind
	id   uuid.UUID
}

// UserOwner returns an owner referring to a personal (user) owner.
func UserOwner(userID uuid.UUID) Owner {
	return Owner{kind: OwnerKindUser, id: userID}
}

// OrganizationOwner returns an owner referring to an organization.
func OrganizationOwner(orgID uuid.UUID) Owner {
	return Owner{kind: OwnerKindOrganization, id: orgID}
}

// OwnerFromRefs builds an Owner from two nullable references as they appear in
// request payloads and table columns.
func OwnerFromRefs(userOwner, organizationOwner *uuid.UUID) (Owner, error) {
	switch {
	case userOwner != nil && organizationOwner != nil:
		return Owner{}, ErrAmbiguousReference
	case userOwner != nil:
		return UserOwner(*userOwner), nil
	case organizationOwner != nil:
		return OrganizationOwner(*organizationOwner), nil
	default:
		return Owner{}, ErrNoReference
	}
}

func (o Owner) Kind() OwnerKind { return o.kind }
func (o Owner) ID() uuid.UUID   { return o.id }
func (o Owner) IsZero() bool    { return o == Owner{} }

// UserID returns the owning user, if the owner is a user.
func (o Owner) UserID() (uuid.UUID, bool) {
	return o.id, o.kind == OwnerKindUser
}

// OrganizationID returns the owning organization, if the owner is an organization.
func (o Owner) OrganizationID() (uuid.UUID, bool) {
	return o.id, o.kind == OwnerKindOrganization
}

// Refs splits the owner back into the two nullable column values.
func (o Owner) Refs() (userOwner, organizationOwner *uuid.UUID) {
	id := o.id
	switch o.kind {
	case OwnerKindUser:
		return &id, nil
	case OwnerKindOrganization:
		return nil, &id
	}
	return nil, nil
}

// Validate checks exactly one owner reference is set.
func (o Owner) Validate() error {
	switch o.kind {
	case OwnerKindUser, OwnerKindOrganization:
	case "":
		return ErrNoReference
	default:
		return fmt.Errorf("unknown owner kind %q", o.kind)
	}
	if o.id == uuid.Nil {
		return fmt.Errorf("%s owner: %w", o.kind, ErrNoReference)
	}
	return nil
}

func (o Owner) String() string {
	if o.IsZero() {
		return "none"
	}
	return string(o.kind) + ":" + o.id.String()
}

// ScopeKind identifies what a permission applies to.
type ScopeKind string

const (
	ScopeKindOrganization ScopeKind = "organization"
	ScopeKindProject      ScopeKind = "project"
)

// Scope is the object a permission applies to: an organization (base grant for a
// member) or a project (override).
type Scope struct {
	kind ScopeKind
	id   uuid.UUID
}

// OrganizationScope returns a scope covering an organization.
func OrganizationScope(orgID uuid.UUID) Scope {
	return Scope{kind: ScopeKindOrganization, id: orgID}
}

// ProjectScope returns a scope covering a single project.
func ProjectScope(projectID uuid.UUID) Scope {
	return Scope{kind: ScopeKindProject, id: projectID}
}

// ScopeFromRefs builds a Scope from two nullable references.
func ScopeFromRefs(organization, project *uuid.UUID) (Scope, error) {
	switch {
	case organization != nil && project != nil:
		return Scope{}, ErrAmbiguousReference
	case organization != nil:
		return OrganizationScope(*organization), nil
	case project != nil:
		return ProjectScope(*project), nil
	default:
		return Scope{}, ErrNoReference
	}
}

func (s Scope) Kind() ScopeKind      { return s.kind }
func (s Scope) ID() uuid.UUID        { return s.id }
func (s Scope) IsZero() bool         { return s == Scope{} }
func (s Scope) IsOrganization() bool { return s.kind == ScopeKindOrganization }
func (s Scope) IsProject() bool      { return s.kind == ScopeKindProject }

// Refs splits the scope back into the two nullable column values.
func (s Scope) Refs() (organization, project *uuid.UUID) {
	id := s.id
	switch s.kind {
	case ScopeKindOrganization:
		return &id, nil
	case ScopeKindProject:
		return nil, &id
	}
	return nil, nil
}

// Validate checks exactly one scope reference is set.
func (s Scope) Validate() error {
	switch s.kind {
	case ScopeKindOrganization, ScopeKindProject:
	case "":
		return ErrNoReference
	default:
		return fmt.Errorf("unknown scope kind %q", s.kind)
	}
	if s.id == uuid.Nil {
		return fmt.Errorf("%s scope: %w", s.kind, ErrNoReference)
	}
	return nil
}

func (s Scope) String() string {
	if s.IsZero() {
		return "none"
	}
	return string(s.kind) + ":" + s.id.String()
}
