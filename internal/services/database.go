package services

import (
	"context"
	"errors"

	"github.com/thereayou/planning-poker/internal/models"
)

var ErrNotFound = errors.New("record not found")

// DatabaseService is the durable store behind rooms, estimations and votes.
// Lookups of missing rows return ErrNotFound.
type DatabaseService interface {
	CreateRoom(ctx context.Context, room *models.Room) error
	GetRoom(ctx context.Context, id string) (*models.Room, error)
	UpdateRoomScale(ctx context.Context, id, scaleType string, custom []string) error

	CreateEstimation(ctx context.Context, estimation *models.Estimation) error
	UpdateEstimationStatus(ctx context.Context, id uint, status models.EstimationStatus) error
	AcceptEstimation(ctx context.Context, id uint, finalEstimate, jiraSP *string) error
	// ResetEstimation deletes every vote of the estimation and puts it back to voting.
	ResetEstimation(ctx context.Context, id uint) error
	// DiscardEstimation removes a round that was never accepted, with its votes.
	DiscardEstimation(ctx context.Context, id uint) error

	UpsertVote(ctx context.Context, vote *models.Vote) error

	// AcceptedEstimations returns the room's accepted rows with votes, newest first.
	AcceptedEstimations(ctx context.Context, roomID string) ([]models.Estimation, error)
	AcceptedEstimationsByKeys(ctx context.Context, keys []string) ([]models.Estimation, error)

	Close() error
}
