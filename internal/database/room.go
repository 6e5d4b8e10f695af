package database

import (
	"context"

	"github.com/thereayou/planning-poker/internal/models"
	"github.com/thereayou/planning-poker/internal/services"
)

func (d *Database) CreateRoom(ctx context.Context, room *models.Room) error {
	return d.db.WithContext(ctx).Create(room).Error
}

func (d *Database) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	var room models.Room
	if err := d.db.WithContext(ctx).First(&room, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &room, nil
}

// UpdateRoomScale replaces the scale configuration; custom is stored only for custom scales.
func (d *Database) UpdateRoomScale(ctx context.Context, id, scaleType string, custom []string) error {
	room := models.Room{ID: id}
	room.SetCustomTokens(custom)

	res := d.db.WithContext(ctx).Model(&models.Room{}).Where("id = ?", id).Updates(map[string]interface{}{
		"scale_type":   scaleType,
		"custom_scale": room.CustomScale,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return services.ErrNotFound
	}
	return nil
}
