package main

import (
	"github.com/gin-gonic/gin"
	"github.com/thereayou/planning-poker/internal/handlers"
	"github.com/thereayou/planning-poker/internal/middleware"
)

func APIEndpoints(r *gin.Engine, s *Server) {
	r.GET("/health", handlers.Health(s.Hub, s.Rooms))
	r.GET("/ws", middleware.WSParams(), s.WebSocketH.HandleWebSocket)

	api := r.Group("/api")
	{
		rooms := api.Group("/rooms")
		{
			rooms.POST("", s.RoomH.CreateRoom)
			rooms.GET("/:id", s.RoomH.GetRoom)
			rooms.GET("/:id/live", s.RoomH.LiveRoom)
			rooms.GET("/:id/history", s.HistoryH.History)
			rooms.GET("/:id/history/export", s.HistoryH.Export)
			rooms.GET("/:id/leaderboard", s.HistoryH.Leaderboard)
		}

		compare := api.Group("/compare")
		{
			compare.GET("/room/:roomId", s.CompareH.CompareRoom)
			compare.GET("/sprint/:sprintId", s.CompareH.CompareSprint)
		}

		jira := api.Group("/jira")
		{
			jira.GET("/boards/:boardId/sprints", s.JiraH.BoardSprints)
			jira.GET("/sprints/:sprintId/issues", s.JiraH.SprintIssues)
			jira.GET("/issues", s.JiraH.Issues)
		}
	}
}
