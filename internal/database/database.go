package database

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/uva-judge/internal/models"
)

// Connect opens the verdict history database. postgres:// URLs use the
// PostgreSQL driver; sqlite:// URLs and bare file paths use SQLite.
func Connect(url string) (*gorm.DB, error) {
	if url == "" {
		return nil, fmt.Errorf("database url must not be empty")
	}

	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		dialector = postgres.Open(url)
	case strings.HasPrefix(url, "sqlite://"):
		dialector = sqlite.Open(strings.TrimPrefix(url, "sqlite://"))
	default:
		dialector = sqlite.Open(url)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// Migrate creates or updates the tables owned by the judge.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.JudgedSubmission{}); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}
