package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type Room struct {
	ID          string         `gorm:"primaryKey;size:16" json:"id"`
	Name        string         `gorm:"not null" json:"name"`
	ScaleType   string         `gorm:"not null;default:'fibonacci'" json:"scale_type"`
	CustomScale datatypes.JSON `json:"custom_scale,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`

	// Relations
	Estimations []Estimation `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE" json:"-"`
}

// CustomTokens decodes the stored custom scale. Nil when none is stored.
func (r *Room) CustomTokens() []string {
	if len(r.CustomScale) == 0 {
		return nil
	}
	var tokens []string
	if err := json.Unmarshal(r.CustomScale, &tokens); err != nil {
		return nil
	}
	return tokens
}

// SetCustomTokens stores tokens as the custom scale; nil clears it.
func (r *Room) SetCustomTokens(tokens []string) {
	if tokens == nil {
		r.CustomScale = nil
		return
	}
	data, _ := json.Marshal(tokens)
	r.CustomScale = datatypes.JSON(data)
}
