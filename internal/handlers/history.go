package handlers

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/planning-poker/internal/handlers/dto"
	"github.com/thereayou/planning-poker/internal/models"
	"github.com/thereayou/planning-poker/internal/services"
	"github.com/thereayou/planning-poker/internal/stats"
)

type HistoryHandler struct {
	db  services.DatabaseService
	log *slog.Logger
}

func NewHistoryHandler(db services.DatabaseService, log *slog.Logger) *HistoryHandler {
	return &HistoryHandler{db: db, log: log}
}

// History lists the room's accepted estimations, newest first, with votes.
func (h *HistoryHandler) History(c *gin.Context) {
	_, estimations, ok := h.accepted(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, estimations)
}

// Export renders the history as a CSV attachment with one column per voter.
func (h *HistoryHandler) Export(c *gin.Context) {
	room, estimations, ok := h.accepted(c)
	if !ok {
		return
	}

	data, err := historyCSV(estimations)
	if err != nil {
		h.log.Error("failed to render csv", "room", room.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export history"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-estimations.csv"`, fileName(room.Name)))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

// Leaderboard ranks the room's voters against the accepted estimates.
func (h *HistoryHandler) Leaderboard(c *gin.Context) {
	room, estimations, ok := h.accepted(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, dto.LeaderboardResponse{
		Room:        dto.RoomRef{ID: room.ID, Name: room.Name},
		Leaderboard: stats.Leaderboard(estimations),
	})
}

func (h *HistoryHandler) accepted(c *gin.Context) (*models.Room, []models.Estimation, bool) {
	room, ok := loadRoom(c, h.db, h.log, c.Param("id"))
	if !ok {
		return nil, nil, false
	}

	estimations, err := h.db.AcceptedEstimations(c.Request.Context(), room.ID)
	if err != nil {
		h.log.Error("failed to load history", "room", room.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return nil, nil, false
	}
	return room, estimations, true
}

func historyCSV(estimations []models.Estimation) ([]byte, error) {
	voters := make(map[string]bool)
	for _, e := range estimations {
		for _, v := range e.Votes {
			voters[v.Participant] = true
		}
	}
	participants := make([]string, 0, len(voters))
	for name := range voters {
		participants = append(participants, name)
	}
	sort.Strings(participants)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := append([]string{"Jira Key", "Title", "URL", "Final Estimate", "Date"}, participants...)
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, e := range estimations {
		votes := make(map[string]string, len(e.Votes))
		for _, v := range e.Votes {
			votes[v.Participant] = v.Value
		}

		row := []string{
			deref(e.JiraKey),
			e.Title,
			deref(e.JiraURL),
			deref(e.FinalEstimate),
			e.CreatedAt.UTC().Format(time.RFC3339),
		}
		for _, p := range participants {
			row = append(row, votes[p])
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}

// fileName keeps a room name usable inside a quoted header value.
func fileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '"' || r == '\\' || r == '/' || r < 0x20 || r == 0x7f:
			return '_'
		}
		return r
	}, name)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
