// Package db opens the shared sqlite database and keeps its schema current.
// The same database file backs the film catalog, the population statistics
// store and the lookup-error log, so every user of a deployment reads and
// writes the same tables.
package db

import (
	"fmt"

	"log/slog"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open connects to the sqlite database at path and runs migrations.
func Open(path string, logger *slog.Logger) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: NewGormLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := RunMigrations(gdb, logger); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return gdb, nil
}
