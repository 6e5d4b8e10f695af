package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/thereayou/planning-poker/internal/config"
	"github.com/thereayou/planning-poker/internal/database"
	"github.com/thereayou/planning-poker/internal/database/memory"
	"github.com/thereayou/planning-poker/internal/handlers"
	"github.com/thereayou/planning-poker/internal/jira"
	"github.com/thereayou/planning-poker/internal/middleware"
	"github.com/thereayou/planning-poker/internal/services"
	"github.com/thereayou/planning-poker/internal/session"
	"github.com/thereayou/planning-poker/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	Config *config.Config
	Log    *slog.Logger
	Router *gin.Engine
	DB     services.DatabaseService
	Redis  *redis.Client
	Hub    *websocket.Hub
	Rooms  *session.Rooms

	RoomH      *handlers.RoomHandler
	HistoryH   *handlers.HistoryHandler
	CompareH   *handlers.CompareHandler
	JiraH      *handlers.JiraHandler
	WebSocketH *handlers.WebSocketHandler
}

// NewServer wires storage, the tracker client and the HTTP routes. Without
// DATABASE_URL rooms live in memory; without REDIS_URL the tracker cache does.
func NewServer(cfg *config.Config, log *slog.Logger) (*Server, error) {
	s := &Server{Config: cfg, Log: log}

	if cfg.DatabaseURL != "" {
		dbConn := &database.Database{}
		if err := dbConn.Connect(cfg.DatabaseURL, log); err != nil {
			return nil, err
		}
		s.DB = dbConn
		log.Info("connected to postgres")
	} else {
		s.DB = memory.NewDatabase()
		log.Warn("DATABASE_URL not set, using in-memory storage")
	}

	var cache jira.Cache = jira.NewMemoryCache()
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err := jira.ConnectRedis(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			s.DB.Close()
			return nil, err
		}
		s.Redis = rdb
		cache = jira.NewRedisCache(rdb)
		log.Info("connected to redis")
	}

	tracker := jira.NewClient(cfg.Jira, cache, log.With("component", "jira"))
	if !cfg.Jira.Enabled() {
		log.Info("jira not configured, tracker endpoints answer 503")
	}

	s.Hub = websocket.NewHub(log.With("component", "hub"))
	s.Rooms = session.NewRooms(s.DB, log.With("component", "session"), session.Options{
		PersistTimeout: cfg.PersistTimeout,
	})

	s.RoomH = handlers.NewRoomHandler(s.DB, s.Rooms, log)
	s.HistoryH = handlers.NewHistoryHandler(s.DB, log)
	s.CompareH = handlers.NewCompareHandler(s.DB, tracker, log)
	s.JiraH = handlers.NewJiraHandler(tracker, log)
	s.WebSocketH = handlers.NewWebSocketHandler(s.Hub, s.Rooms, cfg.AllowedOrigins, log.With("component", "websocket"))

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log), middleware.CORS(cfg.AllowedOrigins))
	APIEndpoints(router, s)
	s.Router = router

	return s, nil
}

// Run serves until ctx is cancelled, then closes sockets and storage.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.Config.Port,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.Hub.Run()

	errCh := make(chan error, 1)
	go func() {
		s.Log.Info("server starting", "port", s.Config.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			s.close()
			return err
		}
	case <-ctx.Done():
	}

	s.Log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// hijacked websocket connections are not tracked by http.Server
	s.Hub.Stop()
	err := srv.Shutdown(shutdownCtx)
	s.close()
	return err
}

func (s *Server) close() {
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			s.Log.Warn("failed to close redis", "error", err)
		}
	}
	if err := s.DB.Close(); err != nil {
		s.Log.Warn("failed to close database", "error", err)
	}
}
