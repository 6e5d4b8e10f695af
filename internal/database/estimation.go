package database

import (
	"context"

	"github.com/thereayou/planning-poker/internal/models"
	"github.com/thereayou/planning-poker/internal/services"
	"gorm.io/gorm"
)

func (d *Database) CreateEstimation(ctx context.Context, estimation *models.Estimation) error {
	return d.db.WithContext(ctx).Omit("Votes").Create(estimation).Error
}

func (d *Database) UpdateEstimationStatus(ctx context.Context, id uint, status models.EstimationStatus) error {
	res := d.db.WithContext(ctx).Model(&models.Estimation{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return services.ErrNotFound
	}
	return nil
}

func (d *Database) AcceptEstimation(ctx context.Context, id uint, finalEstimate, jiraSP *string) error {
	res := d.db.WithContext(ctx).Model(&models.Estimation{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":         models.StatusAccepted,
		"final_estimate": finalEstimate,
		"jira_sp":        jiraSP,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return services.ErrNotFound
	}
	return nil
}

func (d *Database) ResetEstimation(ctx context.Context, id uint) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Vote{}, "estimation_id = ?", id).Error; err != nil {
			return err
		}

		res := tx.Model(&models.Estimation{}).Where("id = ?", id).Update("status", models.StatusVoting)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return services.ErrNotFound
		}
		return nil
	})
}

func (d *Database) DiscardEstimation(ctx context.Context, id uint) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("status <> ?", models.StatusAccepted).Delete(&models.Estimation{}, id)
		if res.Error != nil || res.RowsAffected == 0 {
			return res.Error
		}
		return tx.Delete(&models.Vote{}, "estimation_id = ?", id).Error
	})
}

// AcceptedEstimations loads accepted rows of a room with their votes
func (d *Database) AcceptedEstimations(ctx context.Context, roomID string) ([]models.Estimation, error) {
	var estimations []models.Estimation

	err := d.db.WithContext(ctx).
		Where("room_id = ? AND status = ?", roomID, models.StatusAccepted).
		Order("created_at DESC").
		Order("id DESC").
		Preload("Votes", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Find(&estimations).Error

	return estimations, err
}

func (d *Database) AcceptedEstimationsByKeys(ctx context.Context, keys []string) ([]models.Estimation, error) {
	var estimations []models.Estimation
	if len(keys) == 0 {
		return estimations, nil
	}

	err := d.db.WithContext(ctx).
		Where("jira_key IN ? AND status = ?", keys, models.StatusAccepted).
		Order("created_at DESC").
		Order("id DESC").
		Preload("Votes").
		Find(&estimations).Error

	return estimations, err
}
