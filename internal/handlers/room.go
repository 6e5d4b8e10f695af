package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/thereayou/planning-poker/internal/handlers/dto"
	"github.com/thereayou/planning-poker/internal/models"
	"github.com/thereayou/planning-poker/internal/scales"
	"github.com/thereayou/planning-poker/internal/services"
	"github.com/thereayou/planning-poker/internal/session"
	"github.com/thereayou/planning-poker/internal/utils"
)

const roomIDAttempts = 5

type RoomHandler struct {
	db    services.DatabaseService
	rooms *session.Rooms
	log   *slog.Logger
}

func NewRoomHandler(db services.DatabaseService, rooms *session.Rooms, log *slog.Logger) *RoomHandler {
	return &RoomHandler{db: db, rooms: rooms, log: log}
}

// CreateRoom stores a new room and returns its code and resolved scale.
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req dto.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room name is required"})
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room name is required"})
		return
	}

	room := &models.Room{
		Name:      name,
		ScaleType: scales.NormalizeType(req.ScaleType),
	}
	if room.ScaleType == scales.Custom && req.CustomScale != "" {
		room.SetCustomTokens(scales.ParseCustom(req.CustomScale))
	}

	id, err := h.freeRoomID(c)
	if err != nil {
		h.log.Error("failed to allocate room id", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create room"})
		return
	}
	room.ID = id

	if err := h.db.CreateRoom(c.Request.Context(), room); err != nil {
		h.log.Error("failed to create room", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create room"})
		return
	}

	h.log.Info("room created", "room", room.ID, "name", utils.SanitizeLogString(name), "scale", room.ScaleType)
	c.JSON(http.StatusCreated, formatRoomResponse(room))
}

// GetRoom returns a room's name and scale.
func (h *RoomHandler) GetRoom(c *gin.Context) {
	room, ok := h.loadRoom(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, formatRoomResponse(room))
}

// LiveRoom reports who is connected right now. Nothing of it is persisted.
func (h *RoomHandler) LiveRoom(c *gin.Context) {
	room, ok := h.loadRoom(c)
	if !ok {
		return
	}

	resp := dto.LiveRoomResponse{
		ID:           room.ID,
		Participants: []session.ParticipantInfo{},
	}
	if live, found := h.rooms.Get(room.ID); found {
		// a room that is shutting down reads as inactive
		if summary, err := live.Snapshot(c.Request.Context()); err == nil {
			resp.Active = summary.Active
			resp.Host = summary.Host
			resp.Participants = summary.Participants
		}
	}
	c.JSON(http.StatusOK, resp)
}

// loadRoom fetches the room named by the :id parameter, answering 404 or 500 itself.
func (h *RoomHandler) loadRoom(c *gin.Context) (*models.Room, bool) {
	return loadRoom(c, h.db, h.log, c.Param("id"))
}

func loadRoom(c *gin.Context, db services.DatabaseService, log *slog.Logger, id string) (*models.Room, bool) {
	room, err := db.GetRoom(c.Request.Context(), id)
	if errors.Is(err, services.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return nil, false
	}
	if err != nil {
		log.Error("failed to load room", "room", utils.SanitizeLogString(id), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load room"})
		return nil, false
	}
	return room, true
}

func (h *RoomHandler) freeRoomID(c *gin.Context) (string, error) {
	for i := 0; i < roomIDAttempts; i++ {
		id := newRoomID()
		_, err := h.db.GetRoom(c.Request.Context(), id)
		if errors.Is(err, services.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", errors.New("no free room id")
}

// newRoomID returns 8 random hex characters.
func newRoomID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func formatRoomResponse(room *models.Room) dto.RoomResponse {
	return dto.RoomResponse{
		ID:        room.ID,
		Name:      room.Name,
		Scale:     scales.Resolve(room.ScaleType, room.CustomTokens()),
		ScaleType: room.ScaleType,
	}
}
