package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"github.com/scholarstack/scholarstack/backend/internal/catalog"
	"github.com/scholarstack/scholarstack/backend/internal/ledger"
	"github.com/scholarstack/scholarstack/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer; serializing connections avoids
	// SQLITE_BUSY under concurrent publishes.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&catalog.Entry{},
		&users.Profile{},
		&users.Follow{},
		&users.Bookmark{},
		&ledger.PointEntry{},
	); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}
	return db, nil
}
