package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/samber/lo"
	"github.com/wolfeidau/polyglot/internal/models"
	"github.com/wolfeidau/polyglot/internal/store"
)

// missingOrConflict explains why a version checked UPDATE touched no rows.
// table and column are compile time constants, never user input.
func missingOrConflict(ctx context.Context, q querier, table, column string, id uuid.UUID, notFound error) error {
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE %s = $1)`, table, column)
	if err := q.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check %s row: %w", table, mapPostgresError(err))
	}
	if !exists {
		return notFound
	}
	return store.ErrVersionConflict
}

// notFoundOr maps pgx.ErrNoRows to notFound and wraps anything else.
func notFoundOr(err error, notFound error, action string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}
	return fmt.Errorf("failed to %s: %w", action, mapPostgresError(err))
}

// uuidStrings and parseUUIDs move uuid[] columns as text[], which pgx handles
// without registering a uuid array type.
func uuidStrings(ids []uuid.UUID) []string {
	return lo.Map(ids, func(id uuid.UUID, _ int) string { return id.String() })
}

func parseUUIDs(values []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("invalid uuid %q: %w", v, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func levelPtrString(level *models.PermissionLevel) *string {
	if level == nil {
		return nil
	}
	s := level.String()
	return &s
}

func parseLevelPtr(s *string) (*models.PermissionLevel, error) {
	if s == nil {
		return nil, nil
	}
	level, err := models.ParsePermissionLevel(*s)
	if err != nil {
		return nil, err
	}
	return &level, nil
}
