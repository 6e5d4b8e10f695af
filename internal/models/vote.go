package models

import "time"

// Vote is unique per (estimation, participant); re-casting overwrites it.
type Vote struct {
	EstimationID uint      `gorm:"primaryKey;autoIncrement:false" json:"-"`
	Participant  string    `gorm:"primaryKey" json:"participant"`
	Value        string    `gorm:"not null" json:"value"`
	CreatedAt    time.Time `json:"-"`
	UpdatedAt    time.Time `json:"-"`
}
