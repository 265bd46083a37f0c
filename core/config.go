package core

import (
	"fmt"
	"strings"
)

type TransactionConfig struct {
	DefaultAttribute TransactionAttribute `koanf:"default_attribute" mapstructure:"default_attribute"`
}

type AuditConfig struct {
	Enabled bool `koanf:"enabled" mapstructure:"enabled"`
}

type Config struct {
	ContainerID string            `koanf:"container_id" mapstructure:"container_id"`
	Pool        PoolConfig        `koanf:"pool" mapstructure:"pool"`
	Transaction TransactionConfig `koanf:"transaction" mapstructure:"transaction"`
	Audit       AuditConfig       `koanf:"audit" mapstructure:"audit"`
}

func DefaultConfig() Config {
	return Config{
		ContainerID: "container",
		Pool:        DefaultPoolConfig(),
		Transaction: TransactionConfig{DefaultAttribute: TxRequired},
		Audit:       AuditConfig{Enabled: true},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ContainerID) == "" {
		return fmt.Errorf("core: container_id is required")
	}
	if err := c.Pool.Validate(); err != nil {
		return err
	}
	if _, err := ParseTransactionAttribute(string(c.Transaction.DefaultAttribute)); err != nil {
		return fmt.Errorf("core: transaction.default_attribute: %w", err)
	}
	return nil
}
