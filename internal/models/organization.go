package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization groups projects and members. Every member gets BasePermission on
// the organization's projects unless an explicit grant says otherwise.
type Organization struct {
	OrgID          uuid.UUID // UUIDv7
	Name           string
	Slug           string // globally unique, URL safe
	Description    string
	BasePermission PermissionLevel
	Version        int64 // optimistic concurrency token, bumped on every update
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// UserAccount is an identity known to the system. Accounts are created by the
// registration flow; this module only references them.
type UserAccount struct {
	UserID    uuid.UUID // UUIDv7
	Username  string    // unique, usually the login email
	Name      string
	CreatedAt time.Time
}

// Membership records that a user belongs to an organization.
type Membership struct {
	OrgID     uuid.UUID
	UserID    uuid.UUID
	CreatedAt time.Time
}
