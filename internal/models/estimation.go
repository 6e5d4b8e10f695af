package models

import "time"

type EstimationStatus string

const (
	StatusVoting   EstimationStatus = "voting"
	StatusRevealed EstimationStatus = "revealed"
	StatusAccepted EstimationStatus = "accepted"
)

// Estimation is one item put to a vote inside a room.
type Estimation struct {
	ID            uint             `gorm:"primaryKey" json:"id"`
	RoomID        string           `gorm:"not null;index;size:16" json:"room_id"`
	JiraKey       *string          `gorm:"index" json:"jira_key"`
	JiraURL       *string          `json:"jira_url"`
	Title         string           `gorm:"not null" json:"title"`
	Status        EstimationStatus `gorm:"not null;index;check:status IN ('voting','revealed','accepted')" json:"status"`
	FinalEstimate *string          `json:"final_estimate"`
	JiraSP        *string          `gorm:"column:jira_sp" json:"jira_sp"`
	CreatedAt     time.Time        `gorm:"index" json:"created_at"`

	Votes []Vote `gorm:"foreignKey:EstimationID;constraint:OnDelete:CASCADE" json:"votes"`
}

// IsActive reports whether the round still takes part in the session.
func (e *Estimation) IsActive() bool {
	return e.Status == StatusVoting || e.Status == StatusRevealed
}
