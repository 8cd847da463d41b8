package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/wolfeidau/polyglot/internal/models"
	"github.com/wolfeidau/polyglot/internal/store"
	"github.com/wolfeidau/polyglot/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Registry maintains the permission records: at most one per (principal,
// scope), organization scopes for users only, language restrictions on
// project scopes only.
type Registry struct {
	*core
}

// Grant creates the permission of principal on scope. A second grant for the
// same pair fails with ErrDuplicatePermission and leaves the existing record
// unchanged; use SetLevel to change it. languageIDs restricts language
// targeted operations and is only valid on project scopes.
func (r *Registry) Grant(ctx context.Context, principal models.Principal, scope models.Scope, level models.PermissionLevel, languageIDs ...uuid.UUID) (*models.Permission, error) {
	languageIDs = lo.Uniq(languageIDs)
	if err := validateGrant(principal, scope, level, languageIDs); err != nil {
		return nil, err
	}

	var (
		perm    *models.Permission
		removed cascade
	)
	err := r.mutate(ctx, "access.Grant", func(ctx context.Context, tx store.Repositories) error {
		if err := r.checkTargets(ctx, tx, principal, scope, languageIDs); err != nil {
			return err
		}

		existing, err := findPermission(ctx, tx, principal, scope)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: %s on %s is %s", ErrDuplicatePermission, principal, scope, existing.Level)
		}

		now := r.now()
		perm = &models.Permission{
			PermissionID: newID(),
			Principal:    principal,
			Scope:        scope,
			Level:        level,
			LanguageIDs:  languageIDs,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		err = r.guardManagers(ctx, tx, scope, func() error {
			return tx.Permissions().Create(ctx, perm)
		})
		if err != nil {
			return err
		}

		// An explicit grant can lower access below the implicit base level.
		removed, err = r.revokeAffectedKeys(ctx, tx, principal, scope)
		return err
	}, attribute.String("principal", principal.String()), attribute.String("scope", scope.String()))
	if err != nil {
		return nil, err
	}

	telemetry.GetMetrics().GrantsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("level", level.String())))
	removed.record(ctx, "permission")

	r.logger(ctx).Info().
		Str("permission_id", perm.PermissionID.String()).
		Str("principal", principal.String()).
		Str("scope", scope.String()).
		Str("level", level.String()).
		Int("languages", len(languageIDs)).
		Msg("Granted permission")

	return perm, nil
}

// SetLevel changes the level and language restriction of an existing
// permission. The restriction is replaced, so no languageIDs clears it.
func (r *Registry) SetLevel(ctx context.Context, principal models.Principal, scope models.Scope, level models.PermissionLevel, languageIDs ...uuid.UUID) (*models.Permission, error) {
	languageIDs = lo.Uniq(languageIDs)
	if err := validateGrant(principal, scope, level, languageIDs); err != nil {
		return nil, err
	}

	var (
		perm    *models.Permission
		removed cascade
	)
	err := r.mutate(ctx, "access.SetLevel", func(ctx context.Context, tx store.Repositories) error {
		if err := r.checkLanguages(ctx, tx, scope, languageIDs); err != nil {
			return err
		}

		var err error
		perm, err = tx.Permissions().FindForUpdate(ctx, principal, scope)
		if err != nil {
			return err
		}

		perm.Level = level
		perm.LanguageIDs = languageIDs
		err = r.guardManagers(ctx, tx, scope, func() error {
			return tx.Permissions().Update(ctx, perm)
		})
		if err != nil {
			return err
		}

		removed, err = r.revokeAffectedKeys(ctx, tx, principal, scope)
		return err
	}, attribute.String("principal", principal.String()), attribute.String("scope", scope.String()))
	if err != nil {
		return nil, err
	}

	telemetry.GetMetrics().GrantsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("level", level.String())))
	removed.record(ctx, "permission")

	r.logger(ctx).Info().
		Str("permission_id", perm.PermissionID.String()).
		Str("principal", principal.String()).
		Str("scope", scope.String()).
		Str("level", level.String()).
		Int64("version", perm.Version).
		Msg("Changed permission level")

	return perm, nil
}

// Revoke removes the permission of principal on scope, ErrNotFound if there is
// none. Revoking an organization grant leaves project grants in that
// organization untouched; they keep applying until revoked themselves.
func (r *Registry) Revoke(ctx context.Context, principal models.Principal, scope models.Scope) error {
	if err := scope.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidScope, err)
	}

	var removed cascade
	err := r.mutate(ctx, "access.Revoke", func(ctx context.Context, tx store.Repositories) error {
		perm, err := tx.Permissions().FindForUpdate(ctx, principal, scope)
		if err != nil {
			return err
		}
		err = r.guardManagers(ctx, tx, scope, func() error {
			return tx.Permissions().Delete(ctx, perm.PermissionID)
		})
		if err != nil {
			return err
		}

		removed, err = r.revokeAffectedKeys(ctx, tx, principal, scope)
		return err
	}, attribute.String("principal", principal.String()), attribute.String("scope", scope.String()))
	if err != nil {
		return err
	}

	telemetry.GetMetrics().RevocationsTotal.Add(ctx, 1)
	removed.record(ctx, "permission")

	r.logger(ctx).Info().
		Str("principal", principal.String()).
		Str("scope", scope.String()).
		Int("api_keys_revoked", removed.apiKeys).
		Msg("Revoked permission")

	return nil
}

// Get returns the permission of principal on scope.
func (r *Registry) Get(ctx context.Context, principal models.Principal, scope models.Scope) (*models.Permission, error) {
	var perm *models.Permission
	err := r.view(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		perm, err = repos.Permissions().Find(ctx, principal, scope)
		return err
	})
	return perm, err
}

// ListForScope returns every permission on scope, oldest first.
func (r *Registry) ListForScope(ctx context.Context, scope models.Scope) ([]*models.Permission, error) {
	var perms []*models.Permission
	err := r.view(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		perms, err = repos.Permissions().ListByScope(ctx, scope)
		return err
	})
	return perms, err
}

// ListForPrincipal returns every permission held by principal, oldest first.
func (r *Registry) ListForPrincipal(ctx context.Context, principal models.Principal) ([]*models.Permission, error) {
	var perms []*models.Permission
	err := r.view(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		perms, err = repos.Permissions().ListByPrincipal(ctx, principal)
		return err
	})
	return perms, err
}

func validateGrant(principal models.Principal, scope models.Scope, level models.PermissionLevel, languageIDs []uuid.UUID) error {
	if err := principal.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPermission, err)
	}
	if err := scope.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidScope, err)
	}
	if !level.Valid() {
		return fmt.Errorf("%w: %w", ErrInvalidPermission, models.ErrInvalidPermissionLevel)
	}
	if scope.IsOrganization() {
		if !principal.IsUser() {
			return fmt.Errorf("%w: api keys can only be granted project scoped access", ErrInvalidScope)
		}
		if len(languageIDs) > 0 {
			return fmt.Errorf("%w: language restrictions require a project scope", ErrInvalidScope)
		}
	}
	return nil
}

// checkTargets verifies that principal and scope exist, that an API key is only
// granted access to its own project, and that restricted languages belong to
// the scoped project.
func (r *Registry) checkTargets(ctx context.Context, tx store.Repositories, principal models.Principal, scope models.Scope, languageIDs []uuid.UUID) error {
	switch {
	case principal.IsUser():
		if _, err := tx.Users().Get(ctx, principal.ID()); err != nil {
			return err
		}
	case principal.IsAPIKey():
		key, err := tx.APIKeys().Get(ctx, principal.ID())
		if err != nil {
			return err
		}
		if key.ProjectID != scope.ID() {
			return fmt.Errorf("%w: api key %s targets project %s", ErrInvalidScope, key.KeyID, key.ProjectID)
		}
	}

	if scope.IsOrganization() {
		_, err := tx.Organizations().Get(ctx, scope.ID())
		return err
	}

	if _, err := tx.Projects().Get(ctx, scope.ID()); err != nil {
		return err
	}

	return r.checkLanguages(ctx, tx, scope, languageIDs)
}

func (r *Registry) checkLanguages(ctx context.Context, tx store.Repositories, scope models.Scope, languageIDs []uuid.UUID) error {
	for _, id := range languageIDs {
		lang, err := tx.Languages().Get(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrLanguageNotFound) {
				return fmt.Errorf("%w: language %s does not exist", ErrInvalidPermission, id)
			}
			return err
		}
		if lang.ProjectID != scope.ID() {
			return fmt.Errorf("%w: language %s belongs to another project", ErrInvalidPermission, id)
		}
	}
	return nil
}

// guardManagers guards changes to organization grants, which decide who
// manages the organization.
func (r *Registry) guardManagers(ctx context.Context, tx store.Repositories, scope models.Scope, change func() error) error {
	if !scope.IsOrganization() {
		return change()
	}
	return keepManager(ctx, tx, scope.ID(), change)
}

// revokeAffectedKeys applies the API key lifecycle rule after a user's grant on
// scope changed.
func (r *Registry) revokeAffectedKeys(ctx context.Context, tx store.Repositories, principal models.Principal, scope models.Scope) (cascade, error) {
	if !principal.IsUser() {
		return cascade{}, nil
	}

	if scope.IsProject() {
		return r.revokeOrphanedKeys(ctx, tx, principal.ID(), func(id uuid.UUID) bool { return id == scope.ID() })
	}

	inOrg, err := organizationProjects(ctx, tx, scope.ID())
	if err != nil {
		return cascade{}, err
	}
	return r.revokeOrphanedKeys(ctx, tx, principal.ID(), inOrg)
}
