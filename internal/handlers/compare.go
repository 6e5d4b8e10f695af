package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/planning-poker/internal/handlers/dto"
	"github.com/thereayou/planning-poker/internal/jira"
	"github.com/thereayou/planning-poker/internal/models"
	"github.com/thereayou/planning-poker/internal/services"
	"github.com/thereayou/planning-poker/internal/stats"
	"github.com/thereayou/planning-poker/internal/utils"
)

// Tracker is the read side of the issue tracker used for comparisons.
type Tracker interface {
	BoardSprints(ctx context.Context, boardID string) ([]jira.Sprint, error)
	SprintIssues(ctx context.Context, sprintID string) (map[string]jira.Issue, error)
	IssuesByKeys(ctx context.Context, keys []string) (map[string]jira.Issue, error)
}

type CompareHandler struct {
	db      services.DatabaseService
	tracker Tracker
	log     *slog.Logger
}

func NewCompareHandler(db services.DatabaseService, tracker Tracker, log *slog.Logger) *CompareHandler {
	return &CompareHandler{db: db, tracker: tracker, log: log}
}

// CompareRoom compares a room's accepted estimates with tracker points.
// Stored points are used unless live=true asks the tracker again.
func (h *CompareHandler) CompareRoom(c *gin.Context) {
	room, ok := loadRoom(c, h.db, h.log, c.Param("roomId"))
	if !ok {
		return
	}

	estimations, err := h.db.AcceptedEstimations(c.Request.Context(), room.ID)
	if err != nil {
		h.log.Error("failed to load estimations", "room", room.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load estimations"})
		return
	}

	var comparisons []stats.Comparison
	if c.Query("live") == "true" {
		issues, err := h.tracker.IssuesByKeys(c.Request.Context(), trackerKeys(estimations))
		if err != nil {
			h.trackerError(c, err)
			return
		}
		comparisons = stats.CompareExternal(estimations, issuePoints(issues))
	} else {
		comparisons = stats.CompareStored(estimations)
	}

	c.JSON(http.StatusOK, dto.CompareRoomResponse{
		Room:        dto.RoomRef{ID: room.ID, Name: room.Name},
		Comparisons: comparisons,
		Stats:       stats.ComputeStats(comparisons),
	})
}

// CompareSprint joins a sprint's issues with accepted estimates from any room.
func (h *CompareHandler) CompareSprint(c *gin.Context) {
	sprintID := c.Param("sprintId")

	issues, err := h.tracker.SprintIssues(c.Request.Context(), sprintID)
	if err != nil {
		h.trackerError(c, err)
		return
	}

	keys := make([]string, 0, len(issues))
	for key := range issues {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	estimations := []models.Estimation{}
	if len(keys) > 0 {
		estimations, err = h.db.AcceptedEstimationsByKeys(c.Request.Context(), keys)
		if err != nil {
			h.log.Error("failed to load estimations", "sprint", utils.SanitizeLogString(sprintID), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load estimations"})
			return
		}
	}

	estimated := make(map[string]bool, len(estimations))
	for _, e := range estimations {
		if e.JiraKey != nil {
			estimated[*e.JiraKey] = true
		}
	}
	unestimated := make([]dto.UnestimatedIssue, 0)
	for _, key := range keys {
		if !estimated[key] {
			unestimated = append(unestimated, dto.UnestimatedIssue{Key: key, Issue: issues[key]})
		}
	}

	comparisons := stats.CompareExternal(estimations, issuePoints(issues))
	c.JSON(http.StatusOK, dto.CompareSprintResponse{
		Sprint:      dto.SprintRef{ID: sprintID},
		Comparisons: comparisons,
		Stats:       stats.ComputeStats(comparisons),
		Unestimated: unestimated,
	})
}

func (h *CompareHandler) trackerError(c *gin.Context, err error) {
	trackerError(c, h.log, err)
}

// trackerError maps tracker failures to 503 when unconfigured and 502 otherwise.
func trackerError(c *gin.Context, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, jira.ErrNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "issue tracker is not configured"})
	case errors.Is(err, jira.ErrUpstreamUnavailable):
		log.Warn("issue tracker unavailable", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream unavailable"})
	default:
		log.Error("issue tracker request failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream unavailable"})
	}
}

func trackerKeys(estimations []models.Estimation) []string {
	seen := make(map[string]bool)
	keys := make([]string, 0, len(estimations))
	for _, e := range estimations {
		if e.JiraKey == nil || *e.JiraKey == "" || seen[*e.JiraKey] {
			continue
		}
		seen[*e.JiraKey] = true
		keys = append(keys, *e.JiraKey)
	}
	return keys
}

func issuePoints(issues map[string]jira.Issue) map[string]string {
	points := make(map[string]string, len(issues))
	for key, issue := range issues {
		points[key] = issue.PointsString()
	}
	return points
}
