package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/polyglot/internal/models"
	"github.com/wolfeidau/polyglot/internal/store"
)

const permissionColumns = `permission_id, principal_kind, principal_id, scope_organization, scope_project,
	level, language_ids::text[], version, created_at, updated_at`

// PermissionStore implements store.PermissionStore using PostgreSQL.
type PermissionStore struct {
	q querier
}

// Create stores a new permission. The partial unique indexes on
// (principal, scope) reject a second grant for the same pair.
func (s *PermissionStore) Create(ctx context.Context, perm *models.Permission) error {
	scopeOrg, scopeProject := perm.Scope.Refs()

	query := `
		INSERT INTO permissions (
			permission_id, principal_kind, principal_id, scope_organization, scope_project,
			level, language_ids, version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7::uuid[], 1, $8, $9
		)
	`

	_, err := s.q.Exec(ctx, query,
		perm.PermissionID,
		string(perm.Principal.Kind()),
		perm.Principal.ID(),
		scopeOrg,
		scopeProject,
		perm.Level.String(),
		uuidStrings(perm.LanguageIDs),
		perm.CreatedAt,
		perm.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create permission: %w", mapPostgresError(err))
	}

	perm.Version = 1

	log.Debug().
		Str("principal", perm.Principal.String()).
		Str("scope", perm.Scope.String()).
		Str("level", perm.Level.String()).
		Msg("Created permission")

	return nil
}

// Find returns the permission of a principal on a scope.
func (s *PermissionStore) Find(ctx context.Context, principal models.Principal, scope models.Scope) (*models.Permission, error) {
	return s.find(ctx, principal, scope, "")
}

// FindForUpdate is Find with the row locked until the transaction ends.
func (s *PermissionStore) FindForUpdate(ctx context.Context, principal models.Principal, scope models.Scope) (*models.Permission, error) {
	return s.find(ctx, principal, scope, " FOR UPDATE")
}

func (s *PermissionStore) find(ctx context.Context, principal models.Principal, scope models.Scope, suffix string) (*models.Permission, error) {
	query := `SELECT ` + permissionColumns + ` FROM permissions
		WHERE principal_kind = $1 AND principal_id = $2 AND ` + scopeColumn(scope) + ` = $3` + suffix

	perm, err := scanPermission(s.q.QueryRow(ctx, query, string(principal.Kind()), principal.ID(), scope.ID()))
	if err != nil {
		return nil, notFoundOr(err, store.ErrPermissionNotFound, "find permission")
	}
	return perm, nil
}

// Update replaces the level and language restriction of a permission if
// perm.Version is current. Principal and scope are immutable.
func (s *PermissionStore) Update(ctx context.Context, perm *models.Permission) error {
	query := `
		UPDATE permissions SET
			level = $2,
			language_ids = $3::uuid[],
			version = version + 1,
			updated_at = now()
		WHERE permission_id = $1 AND version = $4
		RETURNING version, updated_at
	`

	err := s.q.QueryRow(ctx, query,
		perm.PermissionID,
		perm.Level.String(),
		uuidStrings(perm.LanguageIDs),
		perm.Version,
	).Scan(&perm.Version, &perm.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return missingOrConflict(ctx, s.q, "permissions", "permission_id", perm.PermissionID, store.ErrPermissionNotFound)
		}
		return fmt.Errorf("failed to update permission: %w", mapPostgresError(err))
	}

	return nil
}

// Delete removes a permission by ID.
func (s *PermissionStore) Delete(ctx context.Context, permissionID uuid.UUID) error {
	result, err := s.q.Exec(ctx, `DELETE FROM permissions WHERE permission_id = $1`, permissionID)
	if err != nil {
		return fmt.Errorf("failed to delete permission: %w", mapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return store.ErrPermissionNotFound
	}
	return nil
}

// ListByScope returns every permission on a scope, oldest first.
func (s *PermissionStore) ListByScope(ctx context.Context, scope models.Scope) ([]*models.Permission, error) {
	query := `SELECT ` + permissionColumns + ` FROM permissions
		WHERE ` + scopeColumn(scope) + ` = $1 ORDER BY created_at, permission_id`
	return s.list(ctx, query, scope.ID())
}

// ListByPrincipal returns every permission held by a principal, oldest first.
func (s *PermissionStore) ListByPrincipal(ctx context.Context, principal models.Principal) ([]*models.Permission, error) {
	query := `SELECT ` + permissionColumns + ` FROM permissions
		WHERE principal_kind = $1 AND principal_id = $2 ORDER BY created_at, permission_id`
	return s.list(ctx, query, string(principal.Kind()), principal.ID())
}

// DeleteByScope removes every permission on a scope.
func (s *PermissionStore) DeleteByScope(ctx context.Context, scope models.Scope) (int, error) {
	result, err := s.q.Exec(ctx, `DELETE FROM permissions WHERE `+scopeColumn(scope)+` = $1`, scope.ID())
	if err != nil {
		return 0, fmt.Errorf("failed to delete permissions by scope: %w", mapPostgresError(err))
	}
	return int(result.RowsAffected()), nil
}

// DeleteByPrincipal removes every permission held by a principal.
func (s *PermissionStore) DeleteByPrincipal(ctx context.Context, principal models.Principal) (int, error) {
	result, err := s.q.Exec(ctx,
		`DELETE FROM permissions WHERE principal_kind = $1 AND principal_id = $2`,
		string(principal.Kind()), principal.ID(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete permissions by principal: %w", mapPostgresError(err))
	}
	return int(result.RowsAffected()), nil
}

func (s *PermissionStore) list(ctx context.Context, query string, args ...any) ([]*models.Permission, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", mapPostgresError(err))
	}

	perms, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Permission, error) {
		return scanPermission(row)
	})
	if err != nil {
		return nil, fmt.Errorf("error iterating permissions: %w", err)
	}

	return perms, nil
}

func scopeColumn(scope models.Scope) string {
	if scope.IsOrganization() {
		return "scope_organization"
	}
	return "scope_project"
}

func scanPermission(row pgx.Row) (*models.Permission, error) {
	var (
		perm                   models.Permission
		kind, level            string
		principalID            uuid.UUID
		scopeOrg, scopeProject *uuid.UUID
		languageIDs            []string
	)
	err := row.Scan(
		&perm.PermissionID,
		&kind,
		&principalID,
		&scopeOrg,
		&scopeProject,
		&level,
		&languageIDs,
		&perm.Version,
		&perm.CreatedAt,
		&perm.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if perm.Principal, err = models.NewPrincipal(models.PrincipalKind(kind), principalID); err != nil {
		return nil, err
	}
	if perm.Scope, err = models.ScopeFromRefs(scopeOrg, scopeProject); err != nil {
		return nil, fmt.Errorf("permission %s: %w", perm.PermissionID, err)
	}
	if perm.Level, err = models.ParsePermissionLevel(level); err != nil {
		return nil, err
	}
	if len(languageIDs) > 0 {
		if perm.LanguageIDs, err = parseUUIDs(languageIDs); err != nil {
			return nil, err
		}
	}

	return &perm, nil
}
