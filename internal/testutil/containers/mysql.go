//go:build integration

package containers

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
)

// MySQLContainer wraps a testcontainers MySQL instance.
type MySQLContainer struct {
	container *mysql.MySQLContainer
	dsn       string
}

// MySQLConfig holds configuration for MySQL container creation.
type MySQLConfig struct {
	// Database name (default: "odeflow_test")
	Database string
	// Username for the application user (default: "testuser")
	Username string
	// Password for the application user (default: "testpass")
	Password string
	// Image (default: "mysql:8.0")
	Image string
}

// DefaultMySQLConfig returns the configuration used when nil is passed.
func DefaultMySQLConfig() MySQLConfig {
	return MySQLConfig{
		Database: "odeflow_test",
		Username: "testuser",
		Password: "testpass",
		Image:    "mysql:8.0",
	}
}

// NewMySQLContainer starts MySQL and waits until it accepts connections.
func NewMySQLContainer(ctx context.Context, config *MySQLConfig) (*MySQLContainer, error) {
	if config == nil {
		cfg := DefaultMySQLConfig()
		config = &cfg
	}

	opts := []testcontainers.ContainerCustomizer{
		mysql.WithDatabase(config.Database),
		mysql.WithUsername(config.Username),
		mysql.WithPassword(config.Password),
	}
	c, err := mysql.Run(ctx, config.Image, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to start MySQL container: %w", err)
	}

	// parseTime makes DATETIME columns scan into time.Time.
	dsn, err := c.ConnectionString(ctx, "parseTime=true", "loc=UTC")
	if err != nil {
		_ = c.Terminate(context.Background())
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}
	return &MySQLContainer{container: c, dsn: dsn}, nil
}

// GetDSN returns a go-sql-driver DSN for the container.
func (c *MySQLContainer) GetDSN() string {
	return c.dsn
}

// Terminate stops and removes the container.
func (c *MySQLContainer) Terminate(ctx context.Context) error {
	if c.container == nil {
		return nil
	}
	if err := c.container.Terminate(ctx); err != nil {
		return fmt.Errorf("failed to terminate container: %w", err)
	}
	return nil
}
