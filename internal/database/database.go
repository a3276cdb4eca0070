package database

import (
	"fmt"

	"github.com/igvedmak/parkspeak/internal/config"
	logging "github.com/igvedmak/parkspeak/internal/logging"
	"github.com/igvedmak/parkspeak/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var DB *gorm.DB

// Init opens the configured database, runs migrations and stores the
// handle in DB.
func Init(log *zap.Logger) error {
	db, err := Open(config.Conf.Database, log)
	if err != nil {
		return err
	}
	log.Info("Database connection established successfully.", zap.String("driver", config.Conf.Database.Driver))

	if err := Migrate(db, log); err != nil {
		return err
	}
	DB = db
	return nil
}

// Open connects with the driver named in cfg.
func Open(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			cfg.Host, cfg.User, cfg.Password, cfg.DBName, cfg.Port)
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	gormLogger := logging.NewGormZapLogger(log, logging.ParseGormLevel(cfg.LogLevel))
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Migrate creates tables and the indexes AutoMigrate does not handle.
func Migrate(db *gorm.DB, log *zap.Logger) error {
	if err := db.AutoMigrate(
		&models.HearingTest{},
		&models.HearingTrial{},
	); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	log.Info("Database migrations completed successfully.")

	trialIndex := `CREATE UNIQUE INDEX IF NOT EXISTS idx_hearing_trials_position ON hearing_trials (result_id, position);`
	if err := db.Exec(trialIndex).Error; err != nil {
		return fmt.Errorf("failed to create trial position index: %w", err)
	}
	log.Info("Custom indexes ensured successfully.")
	return nil
}
