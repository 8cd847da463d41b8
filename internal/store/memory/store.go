package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/google/uuid"
	"github.com/wolfeidau/polyglot/internal/models"
	"github.com/wolfeidau/polyglot/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store implements store.Store using in-memory storage.
// This implementation is for development and testing only - data is lost on restart.
//
// A single RWMutex guards all entities. WithTx holds the write lock for the whole
// transaction and restores a snapshot when fn fails, View holds the read lock.
// Calling the Store's own repositories from inside fn deadlocks; use tx instead.
type Store struct {
	mu    sync.RWMutex
	state *state
}

// NewStore creates a new, empty in-memory store.
func NewStore() *Store {
	return &Store{state: newState()}
}

func (s *Store) direct() *view {
	return &view{st: s.state, lock: &s.mu}
}

func (s *Store) Users() store.UserStore                 { return &UserStore{v: s.direct()} }
func (s *Store) Organizations() store.OrganizationStore { return &OrganizationStore{v: s.direct()} }
func (s *Store) Memberships() store.MembershipStore     { return &MembershipStore{v: s.direct()} }
func (s *Store) Projects() store.ProjectStore           { return &ProjectStore{v: s.direct()} }
func (s *Store) Languages() store.LanguageStore         { return &LanguageStore{v: s.direct()} }
func (s *Store) Permissions() store.PermissionStore     { return &PermissionStore{v: s.direct()} }
func (s *Store) APIKeys() store.APIKeyStore             { return &APIKeyStore{v: s.direct()} }

// WithTx runs fn with exclusive access to the store. Any error returned by fn
// discards every write fn made.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(ctx, &repositories{v: &view{st: s.state, lock: nopLocker{}}}); err != nil {
		*s.state = *snapshot
		return err
	}

	return nil
}

// View runs fn against the store while holding the read lock.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, r store.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(ctx, &repositories{v: &view{st: s.state, lock: nopLocker{}, readOnly: true}})
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() {}

type membershipKey struct {
	orgID  uuid.UUID
	userID uuid.UUID
}

type permissionKey struct {
	principal models.Principal
	scope     models.Scope
}

type state struct {
	users         map[uuid.UUID]*models.UserAccount
	organizations map[uuid.UUID]*models.Organization
	memberships   map[membershipKey]*models.Membership
	projects      map[uuid.UUID]*models.Project
	languages     map[uuid.UUID]*models.Language
	permissions   map[uuid.UUID]*models.Permission
	apiKeys       map[uuid.UUID]*models.APIKey

	// permissionIDs indexes permissions by (principal, scope).
	permissionIDs map[permissionKey]uuid.UUID
}

func newState() *state {
	return &state{
		users:         make(map[uuid.UUID]*models.UserAccount),
		organizations: make(map[uuid.UUID]*models.Organization),
		memberships:   make(map[membershipKey]*models.Membership),
		projects:      make(map[uuid.UUID]*models.Project),
		languages:     make(map[uuid.UUID]*models.Language),
		permissions:   make(map[uuid.UUID]*models.Permission),
		apiKeys:       make(map[uuid.UUID]*models.APIKey),
		permissionIDs: make(map[permissionKey]uuid.UUID),
	}
}

// clone copies the maps. Stored records are never mutated in place, only
// replaced, so sharing the record pointers between snapshots is safe.
func (s *state) clone() *state {
	return &state{
		users:         maps.Clone(s.users),
		organizations: maps.Clone(s.organizations),
		memberships:   maps.Clone(s.memberships),
		projects:      maps.Clone(s.projects),
		languages:     maps.Clone(s.languages),
		permissions:   maps.Clone(s.permissions),
		apiKeys:       maps.Clone(s.apiKeys),
		permissionIDs: maps.Clone(s.permissionIDs),
	}
}

type locker interface {
	Lock()
	Unlock()
	RLock()
	RUnlock()
}

type nopLocker struct{}

func (nopLocker) Lock()    {}
func (nopLocker) Unlock()  {}
func (nopLocker) RLock()   {}
func (nopLocker) RUnlock() {}

// view is the state plus the locking discipline of the caller: the store mutex
// for direct calls, nothing inside WithTx/View which already hold it.
type view struct {
	st       *state
	lock     locker
	readOnly bool
}

func (v *view) read(fn func(st *state) error) error {
	v.lock.RLock()
	defer v.lock.RUnlock()
	return fn(v.st)
}

func (v *view) write(fn func(st *state) error) error {
	if v.readOnly {
		return store.ErrReadOnly
	}
	v.lock.Lock()
	defer v.lock.Unlock()
	return fn(v.st)
}

type repositories struct {
	v *view
}

func (r *repositories) Users() store.UserStore                 { return &UserStore{v: r.v} }
func (r *repositories) Organizations() store.OrganizationStore { return &OrganizationStore{v: r.v} }
func (r *repositories) Memberships() store.MembershipStore     { return &MembershipStore{v: r.v} }
func (r *repositories) Projects() store.ProjectStore           { return &ProjectStore{v: r.v} }
func (r *repositories) Languages() store.LanguageStore         { return &LanguageStore{v: r.v} }
func (r *repositories) Permissions() store.PermissionStore     { return &PermissionStore{v: r.v} }
func (r *repositories) APIKeys() store.APIKeyStore             { return &APIKeyStore{v: r.v} }
