package database

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"skillgauge/config"
	"skillgauge/models"
)

// Init opens the database selected by cfg.Database.Driver.
// For sqlite, a "memory" or empty DSN gives a shared in-memory database and any other DSN is a file path.
func Init(cfg *config.Config) (*gorm.DB, error) {
	driver := cfg.Database.Driver
	dsn := cfg.Database.DSN

	// GORM logger configuration
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	gormConfig := &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true, // unique violations surface as gorm.ErrDuplicatedKey
	}

	dialector, err := openDialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		log.Printf("ERROR: [Database] Failed to connect to %s database: %v", driver, err)
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}

	log.Printf("INFO: [Database] %s database connection established successfully.", driver)
	return db, nil
}

func openDialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "", "sqlite":
		if dsn == "memory" || dsn == "" {
			log.Println("INFO: [Database] Initializing in-memory SQLite database (DSN: 'memory' or empty).")
			return sqlite.Open("file::memory:?cache=shared"), nil
		}
		log.Printf("INFO: [Database] Initializing file-based SQLite database at DSN: '%s'.", dsn)
		if err := ensureDir(dsn); err != nil {
			return nil, err
		}
		return sqlite.Open(dsn), nil
	case "postgres":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", driver)
	}
}

// ensureDir creates the directory holding an SQLite file.
func ensureDir(dsn string) error {
	dbDir := filepath.Dir(dsn)
	if dbDir == "." || dbDir == "/" {
		return nil
	}
	if _, statErr := os.Stat(dbDir); os.IsNotExist(statErr) {
		log.Printf("INFO: [Database] Database directory '%s' does not exist, attempting to create.", dbDir)
		if mkdirErr := os.MkdirAll(dbDir, 0755); mkdirErr != nil {
			return fmt.Errorf("failed to create database directory '%s': %w", dbDir, mkdirErr)
		}
	}
	return nil
}

// Migrate creates or updates every table the service touches.
// The question bank tables belong to the admin tooling; they are migrated here so a fresh database works.
func Migrate(db *gorm.DB) error {
	log.Println("INFO: [Database] Running database migrations...")
	err := db.AutoMigrate(
		&models.Question{},
		&models.AssessmentRound{},
		&models.RoundQuota{},
		&models.AssessmentSession{},
		&models.SessionAnswer{},
		&models.AssessmentResult{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	log.Println("INFO: [Database] Database migration completed.")
	return nil
}
