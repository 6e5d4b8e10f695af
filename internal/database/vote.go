package database

import (
	"context"

	"github.com/thereayou/planning-poker/internal/models"
	"gorm.io/gorm/clause"
)

// UpsertVote inserts the vote or overwrites the participant's previous value.
func (d *Database) UpsertVote(ctx context.Context, vote *models.Vote) error {
	return d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "estimation_id"}, {Name: "participant"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(vote).Error
}
