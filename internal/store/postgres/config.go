package postgres

import (
	"fmt"
	"time"
)

// StoreConfig holds configuration for the PostgreSQL store.
type StoreConfig struct {
	PoolConfig `embed:""`

	AutoMigrate bool `help:"Apply pending schema migrations on startup" default:"true" negatable:""`

	// MaxTxAttempts bounds how often a transaction is run when it fails with a
	// serialization failure or deadlock.
	MaxTxAttempts uint `help:"Attempts for transactions that hit a serialization failure" default:"5"`

	// TxTimeout caps a single transaction attempt. Zero leaves it to the caller's context.
	TxTimeout time.Duration `help:"Timeout for a single transaction attempt" default:"10s"`
}

// Validate checks that the configuration is valid.
func (c *StoreConfig) Validate() error {
	if err := c.PoolConfig.Validate(); err != nil {
		return err
	}
	if c.TxTimeout < 0 {
		return fmt.Errorf("transaction timeout must not be negative")
	}
	return nil
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *StoreConfig) ApplyDefaults() {
	c.PoolConfig.ApplyDefaults()

	if c.MaxTxAttempts == 0 {
		c.MaxTxAttempts = 5
	}
}
