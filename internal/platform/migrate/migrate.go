// Package migrate applies the SQL schema shipped under migrations/.
package migrate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Run executes pending migrations found in migrationsPath against databaseURL.
func Run(databaseURL, migrationsPath string) error {
	if migrationsPath == "" {
		return errors.New("migrate: migrations path cannot be empty")
	}
	if databaseURL == "" {
		return errors.New("migrate: database URL cannot be empty")
	}

	m, err := migrate.New(sourceURL(migrationsPath), databaseURL)
	if err != nil {
		return fmt.Errorf("migrate: create instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		_, _ = m.Close()
		return fmt.Errorf("migrate: apply: %w", err)
	}

	sourceErr, dbErr := m.Close()
	if sourceErr != nil {
		return fmt.Errorf("migrate: source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("migrate: database: %w", dbErr)
	}
	return nil
}

func sourceURL(path string) string {
	if strings.HasPrefix(path, "file://") {
		return path
	}
	return "file://" + path
}
