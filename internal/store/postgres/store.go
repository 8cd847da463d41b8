package postgres

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/polyglot/internal/store"
	"github.com/wolfeidau/polyglot/internal/telemetry"
)

var _ store.Store = (*Store)(nil)

// querier is the subset of pgx shared by the pool and a transaction, so every
// entity store runs unchanged inside or outside WithTx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements store.Store on PostgreSQL.
//
// WithTx runs at READ COMMITTED; writers that must see the latest committed
// row use the ForUpdate lookups, and every update carries a version check.
// View runs at REPEATABLE READ in a read only transaction so all reads in fn
// observe one snapshot.
type Store struct {
	pool *pgxpool.Pool
	cfg  *StoreConfig
	repositories
}

// NewStore connects to PostgreSQL and, if enabled, applies migrations.
func NewStore(ctx context.Context, cfg *StoreConfig) (*Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	pool, err := NewPool(ctx, &cfg.PoolConfig)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if _, err := Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return NewStoreWithPool(pool, cfg), nil
}

// NewStoreWithPool wraps an existing pool. The store takes ownership of it.
func NewStoreWithPool(pool *pgxpool.Pool, cfg *StoreConfig) *Store {
	if cfg == nil {
		cfg = &StoreConfig{}
	}
	cfg.ApplyDefaults()

	return &Store{
		pool:         pool,
		cfg:          cfg,
		repositories: repositories{q: pool},
	}
}

// WithTx runs fn in a transaction and retries the whole transaction when
// PostgreSQL reports a serialization failure or deadlock. fn may therefore run
// more than once and must not keep state between attempts.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Repositories) error) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := s.runTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
		if err == nil {
			return struct{}{}, nil
		}
		if isRetryable(err) {
			log.Debug().Int("attempt", attempt).Err(err).Msg("Retrying transaction")
			telemetry.GetMetrics().TxRetriesTotal.Add(ctx, 1)
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(s.cfg.MaxTxAttempts),
	)
	return err
}

// View runs fn in a read only REPEATABLE READ transaction.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, r store.Repositories) error) error {
	return s.runTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, fn)
}

func (s *Store) runTx(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context, r store.Repositories) error) error {
	if s.cfg.TxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.TxTimeout)
		defer cancel()
	}

	return pgx.BeginTxFunc(ctx, s.pool, opts, func(tx pgx.Tx) error {
		return fn(ctx, &repositories{q: tx})
	})
}

// Pool exposes the underlying pool for tooling such as migrations.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

type repositories struct {
	q querier
}

func (r *repositories) Users() store.UserStore                 { return &UserStore{q: r.q} }
func (r *repositories) Organizations() store.OrganizationStore { return &OrganizationStore{q: r.q} }
func (r *repositories) Memberships() store.MembershipStore     { return &MembershipStore{q: r.q} }
func (r *repositories) Projects() store.ProjectStore           { return &ProjectStore{q: r.q} }
func (r *repositories) Languages() store.LanguageStore         { return &LanguageStore{q: r.q} }
func (r *repositories) Permissions() store.PermissionStore     { return &PermissionStore{q: r.q} }
func (r *repositories) APIKeys() store.APIKeyStore             { return &APIKeyStore{q: r.q} }
