package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wolfeidau/polyglot/internal/store"
)

// constraintErrors maps named constraints from the schema to store sentinels.
var constraintErrors = map[string]error{
	"users_pkey":                         store.ErrUserAlreadyExists,
	"users_username_key":                 store.ErrUserAlreadyExists,
	"organizations_pkey":                 store.ErrOrganizationAlreadyExists,
	"organizations_slug_key":             store.ErrSlugTaken,
	"memberships_pkey":                   store.ErrMembershipAlreadyExists,
	"projects_pkey":                      store.ErrProjectAlreadyExists,
	"projects_slug_key":                  store.ErrSlugTaken,
	"languages_pkey":                     store.ErrLanguageAlreadyExists,
	"languages_project_abbreviation_key": store.ErrLanguageAlreadyExists,
	"permissions_pkey":                   store.ErrPermissionAlreadyExists,
	"permissions_principal_org_key":      store.ErrPermissionAlreadyExists,
	"permissions_principal_project_key":  store.ErrPermissionAlreadyExists,
	"api_keys_pkey":                      store.ErrAPIKeyAlreadyExists,
	"api_keys_key_hash_key":              store.ErrAPIKeyAlreadyExists,

	"memberships_org_id_fkey":             store.ErrOrganizationNotFound,
	"memberships_user_id_fkey":            store.ErrUserNotFound,
	"projects_user_owner_fkey":            store.ErrUserNotFound,
	"projects_organization_owner_fkey":    store.ErrOrganizationNotFound,
	"languages_project_id_fkey":           store.ErrProjectNotFound,
	"permissions_scope_organization_fkey": store.ErrOrganizationNotFound,
	"permissions_scope_project_fkey":      store.ErrProjectNotFound,
	"api_keys_user_id_fkey":               store.ErrUserNotFound,
	"api_keys_project_id_fkey":            store.ErrProjectNotFound,
}

// mapPostgresError maps PostgreSQL-specific errors to sentinel errors.
// Returns the original error if it's not a PostgreSQL error or doesn't match known patterns.
func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	// Check if it's a PostgreSQL error
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation, pgerrcode.ForeignKeyViolation:
		if sentinel, ok := constraintErrors[pgErr.ConstraintName]; ok {
			return fmt.Errorf("%w: %w", sentinel, err)
		}
		return fmt.Errorf("constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.CheckViolation:
		return fmt.Errorf("check constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.ReadOnlySQLTransaction:
		return fmt.Errorf("%w: %w", store.ErrReadOnly, err)

	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		// Retryable transaction errors
		return fmt.Errorf("transaction conflict (retryable): %w", err)

	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.SQLClientUnableToEstablishSQLConnection:
		return fmt.Errorf("database connection error: %w", err)

	case pgerrcode.AdminShutdown,
		pgerrcode.CrashShutdown:
		return fmt.Errorf("database server unavailable: %w", err)

	case pgerrcode.QueryCanceled:
		// Context cancellation or timeout
		return fmt.Errorf("query canceled: %w", err)

	case pgerrcode.InsufficientResources,
		pgerrcode.DiskFull,
		pgerrcode.OutOfMemory,
		pgerrcode.TooManyConnections:
		return fmt.Errorf("database resource limit: %w", err)

	default:
		return fmt.Errorf("postgres error [%s]: %s (detail: %s, hint: %s): %w",
			pgErr.Code, pgErr.Message, pgErr.Detail, pgErr.Hint, err)
	}
}

// isRetryable reports whether a transaction failed in a way that is safe to
// run again from the start.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
}
