// Package memory provides an in-process implementation of the database service
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/thereayou/planning-poker/internal/models"
	"github.com/thereayou/planning-poker/internal/services"
)

// Database keeps rooms, estimations and votes in maps guarded by one lock.
// Returned values are copies; callers never share state with the store.
type Database struct {
	mu          sync.RWMutex
	rooms       map[string]models.Room
	estimations map[uint]*models.Estimation
	votes       map[uint][]models.Vote
	nextID      uint
	now         func() time.Time
}

var _ services.DatabaseService = (*Database)(nil)

// NewDatabase creates an empty in-memory store
func NewDatabase() *Database {
	return &Database{
		rooms:       make(map[string]models.Room),
		estimations: make(map[uint]*models.Estimation),
		votes:       make(map[uint][]models.Vote),
		now:         time.Now,
	}
}

func (d *Database) CreateRoom(ctx context.Context, room *models.Room) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.rooms[room.ID]; exists {
		return fmt.Errorf("room %s already exists", room.ID)
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = d.now()
	}
	stored := *room
	stored.CustomScale = slices.Clone(room.CustomScale)
	d.rooms[room.ID] = stored
	return nil
}

func (d *Database) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	room, ok := d.rooms[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	room.CustomScale = slices.Clone(room.CustomScale)
	return &room, nil
}

func (d *Database) UpdateRoomScale(ctx context.Context, id, scaleType string, custom []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	room, ok := d.rooms[id]
	if !ok {
		return services.ErrNotFound
	}
	room.ScaleType = scaleType
	room.SetCustomTokens(custom)
	d.rooms[id] = room
	return nil
}

func (d *Database) CreateEstimation(ctx context.Context, estimation *models.Estimation) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.rooms[estimation.RoomID]; !ok {
		return fmt.Errorf("estimation for unknown room %s", estimation.RoomID)
	}

	d.nextID++
	estimation.ID = d.nextID
	if estimation.CreatedAt.IsZero() {
		estimation.CreatedAt = d.now()
	}
	stored := *estimation
	stored.Votes = nil
	d.estimations[stored.ID] = &stored
	return nil
}

func (d *Database) UpdateEstimationStatus(ctx context.Context, id uint, status models.EstimationStatus) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.estimations[id]
	if !ok {
		return services.ErrNotFound
	}
	e.Status = status
	return nil
}

func (d *Database) AcceptEstimation(ctx context.Context, id uint, finalEstimate, jiraSP *string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.estimations[id]
	if !ok {
		return services.ErrNotFound
	}
	e.Status = models.StatusAccepted
	e.FinalEstimate = cloneString(finalEstimate)
	e.JiraSP = cloneString(jiraSP)
	return nil
}

func (d *Database) ResetEstimation(ctx context.Context, id uint) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.estimations[id]
	if !ok {
		return services.ErrNotFound
	}
	delete(d.votes, id)
	e.Status = models.StatusVoting
	return nil
}

func (d *Database) DiscardEstimation(ctx context.Context, id uint) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.estimations[id]
	if !ok || e.Status == models.StatusAccepted {
		return nil
	}
	delete(d.estimations, id)
	delete(d.votes, id)
	return nil
}

func (d *Database) UpsertVote(ctx context.Context, vote *models.Vote) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.estimations[vote.EstimationID]; !ok {
		return services.ErrNotFound
	}

	now := d.now()
	votes := d.votes[vote.EstimationID]
	for i := range votes {
		if votes[i].Participant == vote.Participant {
			votes[i].Value = vote.Value
			votes[i].UpdatedAt = now
			return nil
		}
	}

	stored := *vote
	stored.CreatedAt = now
	stored.UpdatedAt = now
	d.votes[vote.EstimationID] = append(votes, stored)
	return nil
}

func (d *Database) AcceptedEstimations(ctx context.Context, roomID string) ([]models.Estimation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.collect(func(e *models.Estimation) bool {
		return e.RoomID == roomID
	}), nil
}

func (d *Database) AcceptedEstimationsByKeys(ctx context.Context, keys []string) ([]models.Estimation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.collect(func(e *models.Estimation) bool {
		return e.JiraKey != nil && slices.Contains(keys, *e.JiraKey)
	}), nil
}

func (d *Database) Close() error {
	return nil
}

// collect copies accepted estimations matching keep, newest first.
func (d *Database) collect(keep func(*models.Estimation) bool) []models.Estimation {
	result := make([]models.Estimation, 0)
	for _, e := range d.estimations {
		if e.Status != models.StatusAccepted || !keep(e) {
			continue
		}
		c := *e
		c.JiraKey = cloneString(e.JiraKey)
		c.JiraURL = cloneString(e.JiraURL)
		c.FinalEstimate = cloneString(e.FinalEstimate)
		c.JiraSP = cloneString(e.JiraSP)
		c.Votes = slices.Clone(d.votes[e.ID])
		if c.Votes == nil {
			c.Votes = []models.Vote{}
		}
		result = append(result, c)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
