package memory

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/polyglot/internal/models"
	"github.com/wolfeidau/polyglot/internal/store"
)

// UserStore implements store.UserStore using in-memory storage.
type UserStore struct {
	v *view
}

// Create creates a new user account.
func (s *UserStore) Create(ctx context.Context, user *models.UserAccount) error {
	return s.v.write(func(st *state) error {
		if _, exists := st.users[user.UserID]; exists {
			return store.ErrUserAlreadyExists
		}
		for _, u := range st.users {
			if u.Username == user.Username {
				return store.ErrUserAlreadyExists
			}
		}
		clone := *user
		st.users[user.UserID] = &clone
		return nil
	})
}

// Get retrieves a user account by ID.
func (s *UserStore) Get(ctx context.Context, userID uuid.UUID) (*models.UserAccount, error) {
	var result *models.UserAccount
	err := s.v.read(func(st *state) error {
		user, exists := st.users[userID]
		if !exists {
			return store.ErrUserNotFound
		}
		clone := *user
		result = &clone
		return nil
	})
	return result, err
}

// GetByUsername retrieves a user account by username.
func (s *UserStore) GetByUsername(ctx context.Context, username string) (*models.UserAccount, error) {
	var result *models.UserAccount
	err := s.v.read(func(st *state) error {
		for _, user := range st.users {
			if user.Username == username {
				clone := *user
				result = &clone
				return nil
			}
		}
		return store.ErrUserNotFound
	})
	return result, err
}

// APIKeyStore implements store.APIKeyStore using in-memory storage.
type APIKeyStore struct {
	v *view
}

// Create stores a new API key.
func (s *APIKeyStore) Create(ctx context.Context, key *models.APIKey) error {
	return s.v.write(func(st *state) error {
		if _, exists := st.apiKeys[key.KeyID]; exists {
			return store.ErrAPIKeyAlreadyExists
		}
		for _, k := range st.apiKeys {
			if k.KeyHash == key.KeyHash {
				return store.ErrAPIKeyAlreadyExists
			}
		}
		key.Version = 1
		st.apiKeys[key.KeyID] = key.Clone()
		return nil
	})
}

// Get retrieves an API key by ID.
func (s *APIKeyStore) Get(ctx context.Context, keyID uuid.UUID) (*models.APIKey, error) {
	var result *models.APIKey
	err := s.v.read(func(st *state) error {
		key, exists := st.apiKeys[keyID]
		if !exists {
			return store.ErrAPIKeyNotFound
		}
		result = key.Clone()
		return nil
	})
	return result, err
}

// GetByHash retrieves an API key by the hash of its secret.
func (s *APIKeyStore) GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	var result *models.APIKey
	err := s.v.read(func(st *state) error {
		for _, key := range st.apiKeys {
			if key.KeyHash == keyHash {
				result = key.Clone()
				return nil
			}
		}
		return store.ErrAPIKeyNotFound
	})
	return result, err
}

// Update replaces an API key if the caller holds the current version.
func (s *APIKeyStore) Update(ctx context.Context, key *models.APIKey) error {
	return s.v.write(func(st *state) error {
		existing, exists := st.apiKeys[key.KeyID]
		if !exists {
			return store.ErrAPIKeyNotFound
		}
		if existing.Version != key.Version {
			return store.ErrVersionConflict
		}
		key.Version++
		key.UpdatedAt = time.Now()
		st.apiKeys[key.KeyID] = key.Clone()
		return nil
	})
}

// Delete removes an API key.
func (s *APIKeyStore) Delete(ctx context.Context, keyID uuid.UUID) error {
	return s.v.write(func(st *state) error {
		if _, exists := st.apiKeys[keyID]; !exists {
			return store.ErrAPIKeyNotFound
		}
		delete(st.apiKeys, keyID)
		return nil
	})
}

// ListByProject returns the keys targeting a project, oldest first.
func (s *APIKeyStore) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.APIKey, error) {
	return s.list(func(k *models.APIKey) bool { return k.ProjectID == projectID })
}

// ListByUser returns the keys owned by a user, oldest first.
func (s *APIKeyStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	return s.list(func(k *models.APIKey) bool { return k.UserID == userID })
}

// DeleteByProject removes every key targeting a project.
func (s *APIKeyStore) DeleteByProject(ctx context.Context, projectID uuid.UUID) (int, error) {
	var n int
	err := s.v.write(func(st *state) error {
		for id, key := range st.apiKeys {
			if key.ProjectID == projectID {
				delete(st.apiKeys, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *APIKeyStore) list(match func(*models.APIKey) bool) ([]*models.APIKey, error) {
	var result []*models.APIKey
	err := s.v.read(func(st *state) error {
		for _, key := range st.apiKeys {
			if match(key) {
				result = append(result, key.Clone())
			}
		}
		return nil
	})
	slices.SortFunc(result, func(a, b *models.APIKey) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.KeyID[:], b.KeyID[:])
	})
	return result, err
}
