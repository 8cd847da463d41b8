package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/polyglot/internal/logger"
	postgresstore "github.com/wolfeidau/polyglot/internal/store/postgres"
)

type MigrateCmd struct{}

func (m *MigrateCmd) Run(ctx context.Context, globals *Globals) error {
	if globals.Store.StoreType != "postgres" {
		return errPostgresOnly
	}
	log.Logger = logger.Setup(globals.Debug)

	cfg := globals.Store.Postgres
	pool, err := postgresstore.NewPool(ctx, &cfg.PoolConfig)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	applied, err := postgresstore.Migrate(ctx, pool)
	if err != nil {
		return err
	}

	fmt.Printf("Applied %d migrations\n", applied)
	return nil
}
