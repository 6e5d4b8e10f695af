package dto

import (
	"github.com/thereayou/planning-poker/internal/jira"
	"github.com/thereayou/planning-poker/internal/session"
	"github.com/thereayou/planning-poker/internal/stats"
)

type CreateRoomRequest struct {
	Name      string `json:"name" binding:"required,max=100"`
	ScaleType string `json:"scaleType"`
	// CustomScale is a comma-separated token list, used with scaleType "custom".
	CustomScale string `json:"customScale"`
}

type RoomResponse struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Scale     []string `json:"scale"`
	ScaleType string   `json:"scaleType"`
}

type RoomRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type LiveRoomResponse struct {
	ID           string                    `json:"id"`
	Active       bool                      `json:"active"`
	Host         string                    `json:"host"`
	Participants []session.ParticipantInfo `json:"participants"`
}

type CompareRoomResponse struct {
	Room        RoomRef                `json:"room"`
	Comparisons []stats.Comparison     `json:"comparisons"`
	Stats       *stats.ComparisonStats `json:"stats"`
}

type SprintRef struct {
	ID string `json:"id"`
}

type UnestimatedIssue struct {
	Key string `json:"key"`
	jira.Issue
}

type CompareSprintResponse struct {
	Sprint      SprintRef              `json:"sprint"`
	Comparisons []stats.Comparison     `json:"comparisons"`
	Stats       *stats.ComparisonStats `json:"stats"`
	Unestimated []UnestimatedIssue     `json:"unestimated"`
}

type LeaderboardResponse struct {
	Room        RoomRef                  `json:"room"`
	Leaderboard []stats.LeaderboardEntry `json:"leaderboard"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
}
