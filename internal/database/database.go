package database

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase opens the database at the given URI and runs all pending
// migrations. Postgres URIs get the postgres driver, anything else is
// treated as a sqlite path (used by tests and local mode).
func NewDatabase(uri string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if strings.HasPrefix(uri, "postgres://") || strings.HasPrefix(uri, "postgresql://") {
		dialector = postgres.Open(uri)
	} else {
		dialector = sqlite.Open(uri)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	if err := GetMigrator(db).Migrate(); err != nil {
		return nil, fmt.Errorf("error running database migrations: %w", err)
	}

	return db, nil
}
