package store

import (
	"context"
	"errors"
)

// Sentinel errors shared by all entity stores
var (
	ErrVersionConflict = errors.New("record was modified concurrently")
	ErrReadOnly        = errors.New("store view is read-only")
	ErrSlugTaken       = errors.New("slug is already taken")
)

// Repositories gives access to every entity store. Implementations returned by
// Store.WithTx and Store.View operate on a single transaction.
type Repositories interface {
	Users() UserStore
	Organizations() OrganizationStore
	Memberships() MembershipStore
	Projects() ProjectStore
	Languages() LanguageStore
	Permissions() PermissionStore
	APIKeys() APIKeyStore
}

// Store is the durable entity store consumed by the access services.
//
// Calls made directly on the Repositories are individually atomic. WithTx groups
// a validate-then-persist sequence into one all-or-nothing unit: either every
// write made through tx is visible to other readers, or none is. View runs fn
// against a consistent read-only snapshot, so a reader never observes a
// partially applied transaction.
type Store interface {
	Repositories

	WithTx(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error
	View(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error

	Close()
}
