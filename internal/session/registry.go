package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/thereayou/planning-poker/internal/services"
)

const DefaultPersistTimeout = 5 * time.Second

// Registry tracks the live rooms by code.
type Registry interface {
	Get(id string) (*Room, bool)
	Ensure(id string) *Room
	Remove(id string, room *Room)
}

type Options struct {
	// PersistTimeout bounds the storage work of a single command.
	PersistTimeout time.Duration
}

// Rooms is the process-wide Registry. A room is started on first use and
// removes itself once its last participant leaves.
type Rooms struct {
	mu      sync.Mutex
	rooms   map[string]*Room
	store   services.DatabaseService
	log     *slog.Logger
	timeout time.Duration
}

func NewRooms(store services.DatabaseService, log *slog.Logger, opts Options) *Rooms {
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = DefaultPersistTimeout
	}
	return &Rooms{
		rooms:   make(map[string]*Room),
		store:   store,
		log:     log,
		timeout: opts.PersistTimeout,
	}
}

func (rs *Rooms) Get(id string) (*Room, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	r, ok := rs.rooms[id]
	return r, ok
}

// Ensure returns the live room for id, starting it if needed.
func (rs *Rooms) Ensure(id string) *Room {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if r, ok := rs.rooms[id]; ok {
		return r
	}
	r := newRoom(id, rs.store, rs, rs.log, rs.timeout)
	rs.rooms[id] = r
	go r.run()
	return r
}

// Remove drops id only while it still maps to room.
func (rs *Rooms) Remove(id string, room *Room) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.rooms[id] == room {
		delete(rs.rooms, id)
	}
}

// Len returns the number of live rooms.
func (rs *Rooms) Len() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	return len(rs.rooms)
}

// JoinRoom joins name to the live room id. A room that is shutting down
// is replaced by a fresh one.
func JoinRoom(ctx context.Context, reg Registry, id, name string, conn Conn) (*Room, error) {
	for {
		room := reg.Ensure(id)
		err := room.Join(ctx, name, conn)
		if errors.Is(err, errRoomClosed) {
			reg.Remove(id, room)
			continue
		}
		if err != nil {
			return nil, err
		}
		return room, nil
	}
}
