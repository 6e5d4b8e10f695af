package database

import (
	"errors"
	"log/slog"
	"time"

	"github.com/thereayou/planning-poker/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the postgres connection and migrates the schema.
func (d *Database) Connect(dsn string, log *slog.Logger) error {
	if dsn == "" {
		return errors.New("DATABASE_URL is not set")
	}

	gormLogger := logger.New(
		slog.NewLogLogger(log.Handler(), slog.LevelWarn),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	err = db.AutoMigrate(&models.Room{}, &models.Estimation{}, &models.Vote{})
	if err != nil {
		return err
	}

	d.db = db

	return nil
}

// Close releases the underlying connection pool.
func (d *Database) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
