package handlers

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/thereayou/planning-poker/internal/handlers/dto"
	"github.com/thereayou/planning-poker/internal/middleware"
	"github.com/thereayou/planning-poker/internal/session"
	"github.com/thereayou/planning-poker/internal/utils"
	ws "github.com/thereayou/planning-poker/internal/websocket"
)

// WebSocketHandler upgrades /ws requests and attaches them to a room.
type WebSocketHandler struct {
	hub      *ws.Hub
	rooms    *session.Rooms
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewWebSocketHandler(hub *ws.Hub, rooms *session.Rooms, allowedOrigins []string, log *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:   hub,
		rooms: rooms,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", "error", err)
		return
	}

	roomID := c.GetString(middleware.RoomIDKey)
	name := c.GetString(middleware.NameKey)
	if err := middleware.ParamsError(c); err != nil {
		ws.Reject(conn, err)
		return
	}
	if roomID == "" || name == "" {
		ws.Reject(conn, middleware.ErrMissingParams)
		return
	}

	client := ws.NewClient(h.hub, conn, roomID, name, h.log)
	h.hub.Register(client)
	go client.WritePump()

	ctx := h.hub.Context()
	room, err := session.JoinRoom(ctx, h.rooms, roomID, name, client)
	if err != nil {
		h.log.Info("join rejected", "room", utils.SanitizeLogString(roomID), "participant", utils.SanitizeLogString(name), "error", err)
		client.SendError(err)
		client.Close()
		h.hub.Unregister(client)
		return
	}

	go client.ReadPump(ctx, room)
}

// Health reports liveness with the open connection and live room counts.
func Health(hub *ws.Hub, rooms *session.Rooms) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, dto.HealthResponse{
			Status:      "ok",
			Connections: hub.Count(),
			Rooms:       rooms.Len(),
		})
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	if middleware.AllowsAnyOrigin(allowed) {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
