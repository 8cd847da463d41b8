package models

import (
	"time"

	"github.com/google/uuid"
)

// Project holds translation keys and languages. It is owned by exactly one of a
// user or an organization.
type Project struct {
	ProjectID   uuid.UUID // UUIDv7
	Name        string
	Description string
	Slug        string // globally unique, see access.ValidateProject for the format
	Owner       Owner
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OrganizationID returns the owning organization for organization owned projects.
func (p *Project) OrganizationID() (uuid.UUID, bool) {
	return p.Owner.OrganizationID()
}

// IsPersonalOwner reports whether userID owns the project personally.
func (p *Project) IsPersonalOwner(userID uuid.UUID) bool {
	owner, ok := p.Owner.UserID()
	return ok && owner == userID
}

// Language is a target language of a project.
type Language struct {
	LanguageID   uuid.UUID
	ProjectID    uuid.UUID
	Abbreviation string // unique within the project, e.g. "en", "de-AT"
	Name         string
	OriginalName string
	FlagEmoji    string
	CreatedAt    time.Time
}
