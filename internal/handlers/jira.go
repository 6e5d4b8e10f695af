package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// JiraHandler passes tracker reads through to the browser.
type JiraHandler struct {
	tracker Tracker
	log     *slog.Logger
}

func NewJiraHandler(tracker Tracker, log *slog.Logger) *JiraHandler {
	return &JiraHandler{tracker: tracker, log: log}
}

func (h *JiraHandler) BoardSprints(c *gin.Context) {
	sprints, err := h.tracker.BoardSprints(c.Request.Context(), c.Param("boardId"))
	if err != nil {
		trackerError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, sprints)
}

func (h *JiraHandler) SprintIssues(c *gin.Context) {
	issues, err := h.tracker.SprintIssues(c.Request.Context(), c.Param("sprintId"))
	if err != nil {
		trackerError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, issues)
}

// Issues looks up ?keys=A-1,A-2.
func (h *JiraHandler) Issues(c *gin.Context) {
	keys := strings.Split(c.Query("keys"), ",")
	issues, err := h.tracker.IssuesByKeys(c.Request.Context(), keys)
	if err != nil {
		trackerError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, issues)
}
