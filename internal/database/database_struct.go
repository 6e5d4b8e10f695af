package database

import (
	"errors"

	"github.com/thereayou/planning-poker/internal/services"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

var _ services.DatabaseService = (*Database)(nil)

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return services.ErrNotFound
	}
	return err
}
