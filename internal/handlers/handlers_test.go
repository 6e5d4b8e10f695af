package handlers_test

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/planning-poker/internal/database/memory"
	"github.com/thereayou/planning-poker/internal/handlers"
	"github.com/thereayou/planning-poker/internal/jira"
	"github.com/thereayou/planning-poker/internal/middleware"
	"github.com/thereayou/planning-poker/internal/models"
	"github.com/thereayou/planning-poker/internal/session"
	ws "github.com/thereayou/planning-poker/internal/websocket"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeTracker struct {
	sprints []jira.Sprint
	issues  map[string]jira.Issue
	err     error
	keys    []string
}

func (f *fakeTracker) BoardSprints(ctx context.Context, boardID string) ([]jira.Sprint, error) {
	return f.sprints, f.err
}

func (f *fakeTracker) SprintIssues(ctx context.Context, sprintID string) (map[string]jira.Issue, error) {
	return f.issues, f.err
}

func (f *fakeTracker) IssuesByKeys(ctx context.Context, keys []string) (map[string]jira.Issue, error) {
	f.keys = keys
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]jira.Issue)
	for _, k := range keys {
		if issue, ok := f.issues[k]; ok {
			out[k] = issue
		}
	}
	return out, nil
}

type testEnv struct {
	router  *gin.Engine
	db      *memory.Database
	tracker *fakeTracker
	rooms   *session.Rooms
	hub     *ws.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		db:      memory.NewDatabase(),
		tracker: &fakeTracker{issues: map[string]jira.Issue{}},
		hub:     ws.NewHub(log),
	}
	env.rooms = session.NewRooms(env.db, log, session.Options{PersistTimeout: time.Second})
	go env.hub.Run()
	t.Cleanup(env.hub.Stop)

	roomH := handlers.NewRoomHandler(env.db, env.rooms, log)
	historyH := handlers.NewHistoryHandler(env.db, log)
	compareH := handlers.NewCompareHandler(env.db, env.tracker, log)
	jiraH := handlers.NewJiraHandler(env.tracker, log)
	wsH := handlers.NewWebSocketHandler(env.hub, env.rooms, nil, log)

	r := gin.New()
	r.GET("/health", handlers.Health(env.hub, env.rooms))
	r.GET("/ws", middleware.WSParams(), wsH.HandleWebSocket)
	r.POST("/api/rooms", roomH.CreateRoom)
	r.GET("/api/rooms/:id", roomH.GetRoom)
	r.GET("/api/rooms/:id/live", roomH.LiveRoom)
	r.GET("/api/rooms/:id/history", historyH.History)
	r.GET("/api/rooms/:id/history/export", historyH.Export)
	r.GET("/api/rooms/:id/leaderboard", historyH.Leaderboard)
	r.GET("/api/compare/room/:roomId", compareH.CompareRoom)
	r.GET("/api/compare/sprint/:sprintId", compareH.CompareSprint)
	r.GET("/api/jira/boards/:boardId/sprints", jiraH.BoardSprints)
	r.GET("/api/jira/sprints/:sprintId/issues", jiraH.SprintIssues)
	r.GET("/api/jira/issues", jiraH.Issues)
	env.router = r

	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func strptr(s string) *string { return &s }

// seedRoundTable stores a room with two accepted rounds and one open round.
func (e *testEnv) seedRoundTable(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, e.db.CreateRoom(ctx, &models.Room{ID: "r1", Name: "Team A", ScaleType: "fibonacci"}))

	accept := func(key *string, title, final string, sp *string, votes map[string]string) {
		est := &models.Estimation{RoomID: "r1", JiraKey: key, Title: title, Status: models.StatusVoting}
		require.NoError(t, e.db.CreateEstimation(ctx, est))
		for name, value := range votes {
			require.NoError(t, e.db.UpsertVote(ctx, &models.Vote{EstimationID: est.ID, Participant: name, Value: value}))
		}
		require.NoError(t, e.db.AcceptEstimation(ctx, est.ID, strptr(final), sp))
	}

	accept(strptr("PROJ-1"), "Login, SSO", "5", strptr("3"), map[string]string{"alice": "5", "bob": "3"})
	time.Sleep(2 * time.Millisecond)
	accept(nil, "Docs", "2", nil, map[string]string{"alice": "2", "carol": "1"})

	open := &models.Estimation{RoomID: "r1", Title: "Open", Status: models.StatusVoting}
	require.NoError(t, e.db.CreateEstimation(ctx, open))
}

func TestCreateAndGetRoom(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/rooms", `{"name":"  Sprint 42 ","scaleType":"custom","customScale":"1, 2, ,3"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		ID        string   `json:"id"`
		Name      string   `json:"name"`
		Scale     []string `json:"scale"`
		ScaleType string   `json:"scaleType"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Len(t, created.ID, 8)
	assert.Equal(t, "Sprint 42", created.Name)
	assert.Equal(t, "custom", created.ScaleType)
	assert.Equal(t, []string{"1", "2", "3", "?", "☕"}, created.Scale)

	w = env.do(t, http.MethodGet, "/api/rooms/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"id":%q,"name":"Sprint 42","scaleType":"custom","scale":["1","2","3","?","☕"]}`, created.ID), w.Body.String())
}

func TestCreateRoomDefaultsAndValidation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/rooms", `{"name":"Team","scaleType":"nonsense"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"scaleType":"fibonacci"`)

	for _, body := range []string{`{"name":"   "}`, `{}`, `not json`} {
		w = env.do(t, http.MethodPost, "/api/rooms", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.JSONEq(t, `{"error":"room name is required"}`, w.Body.String())
	}
}

func TestGetRoomNotFound(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{
		"/api/rooms/nope",
		"/api/rooms/nope/live",
		"/api/rooms/nope/history",
		"/api/rooms/nope/history/export",
		"/api/rooms/nope/leaderboard",
		"/api/compare/room/nope",
	} {
		w := env.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoundTable(t)

	w := env.do(t, http.MethodGet, "/api/rooms/r1/history", "")
	require.Equal(t, http.StatusOK, w.Code)

	var history []struct {
		Title         string  `json:"title"`
		Status        string  `json:"status"`
		FinalEstimate *string `json:"final_estimate"`
		Votes         []struct {
			Participant string `json:"participant"`
			Value       string `json:"value"`
		} `json:"votes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history, 2)
	assert.Equal(t, "Docs", history[0].Title)
	assert.Equal(t, "Login, SSO", history[1].Title)
	assert.Equal(t, "accepted", history[1].Status)
	assert.Len(t, history[1].Votes, 2)
}

func TestHistoryExport(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoundTable(t)

	w := env.do(t, http.MethodGet, "/api/rooms/r1/history/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="Team A-estimations.csv"`, w.Header().Get("Content-Disposition"))

	records, err := csv.NewReader(strings.NewReader(w.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, []string{"Jira Key", "Title", "URL", "Final Estimate", "Date", "alice", "bob", "carol"}, records[0])

	docs := records[1]
	assert.Equal(t, []string{"", "Docs", "", "2"}, docs[:4])
	assert.Equal(t, []string{"2", "", "1"}, docs[5:])

	login := records[2]
	assert.Equal(t, []string{"PROJ-1", "Login, SSO", "", "5"}, login[:4])
	assert.Equal(t, []string{"5", "3", ""}, login[5:])
	_, err = time.Parse(time.RFC3339, login[4])
	assert.NoError(t, err)
}

func TestLeaderboard(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoundTable(t)

	w := env.do(t, http.MethodGet, "/api/rooms/r1/leaderboard", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Room        map[string]string `json:"room"`
		Leaderboard []struct {
			Rank        int     `json:"rank"`
			Name        string  `json:"name"`
			AccuracyPct int     `json:"accuracyPct"`
			AvgDiff     float64 `json:"avgDiff"`
			Bias        float64 `json:"bias"`
		} `json:"leaderboard"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, map[string]string{"id": "r1", "name": "Team A"}, resp.Room)
	require.Len(t, resp.Leaderboard, 3)

	assert.Equal(t, "alice", resp.Leaderboard[0].Name)
	assert.Equal(t, 1, resp.Leaderboard[0].Rank)
	assert.Equal(t, 100, resp.Leaderboard[0].AccuracyPct)

	assert.Equal(t, "carol", resp.Leaderboard[1].Name)
	assert.Equal(t, 2, resp.Leaderboard[1].Rank)
	assert.InDelta(t, -1.0, resp.Leaderboard[1].Bias, 1e-9)

	assert.Equal(t, "bob", resp.Leaderboard[2].Name)
	assert.Equal(t, 2, resp.Leaderboard[2].Rank)
	assert.InDelta(t, 2.0, resp.Leaderboard[2].AvgDiff, 1e-9)
}

func TestCompareRoom(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoundTable(t)

	w := env.do(t, http.MethodGet, "/api/compare/room/r1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"room": {"id":"r1","name":"Team A"},
		"comparisons": [{"jiraKey":"PROJ-1","title":"Login, SSO","ourEstimate":"5","jiraStoryPoints":3,"difference":2,"estimatedAt":`+estimatedAt(t, env, "PROJ-1")+`}],
		"stats": {"totalCompared":1,"avgDifference":2,"avgAbsDifference":2,"correlation":null,"exactMatches":0,"overEstimated":1,"underEstimated":0}
	}`, w.Body.String())
}

func TestCompareRoomLive(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoundTable(t)
	points := 8.0
	env.tracker.issues["PROJ-1"] = jira.Issue{Summary: "Login", StoryPoints: &points}

	w := env.do(t, http.MethodGet, "/api/compare/room/r1?live=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"PROJ-1"}, env.tracker.keys)

	var resp struct {
		Comparisons []struct {
			JiraStoryPoints float64 `json:"jiraStoryPoints"`
			Difference      float64 `json:"difference"`
		} `json:"comparisons"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Comparisons, 1)
	assert.Equal(t, 8.0, resp.Comparisons[0].JiraStoryPoints)
	assert.Equal(t, -3.0, resp.Comparisons[0].Difference)
}

func TestCompareRoomEmpty(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.CreateRoom(context.Background(), &models.Room{ID: "r2", Name: "Empty"}))

	w := env.do(t, http.MethodGet, "/api/compare/room/r2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"room":{"id":"r2","name":"Empty"},"comparisons":[],"stats":null}`, w.Body.String())
}

func TestCompareSprint(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoundTable(t)
	three, five := 3.0, 5.0
	env.tracker.issues = map[string]jira.Issue{
		"PROJ-1": {Summary: "Login", Status: "Done", StoryPoints: &five},
		"PROJ-2": {Summary: "Logout", Status: "To Do", StoryPoints: &three},
	}

	w := env.do(t, http.MethodGet, "/api/compare/sprint/42", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Sprint      map[string]string `json:"sprint"`
		Comparisons []map[string]any  `json:"comparisons"`
		Stats       map[string]any    `json:"stats"`
		Unestimated []map[string]any  `json:"unestimated"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, map[string]string{"id": "42"}, resp.Sprint)
	require.Len(t, resp.Comparisons, 1)
	assert.Equal(t, 0.0, resp.Comparisons[0]["difference"])
	assert.Equal(t, 1.0, resp.Stats["exactMatches"])
	require.Len(t, resp.Unestimated, 1)
	assert.Equal(t, map[string]any{"key": "PROJ-2", "summary": "Logout", "status": "To Do", "storyPoints": 3.0}, resp.Unestimated[0])
}

func TestTrackerErrors(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoundTable(t)

	env.tracker.err = fmt.Errorf("%w: status 500", jira.ErrUpstreamUnavailable)
	for _, path := range []string{
		"/api/compare/sprint/42",
		"/api/compare/room/r1?live=true",
		"/api/jira/boards/1/sprints",
		"/api/jira/sprints/42/issues",
		"/api/jira/issues?keys=PROJ-1",
	} {
		w := env.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadGateway, w.Code, path)
		assert.JSONEq(t, `{"error":"upstream unavailable"}`, w.Body.String())
	}

	env.tracker.err = jira.ErrNotConfigured
	w := env.do(t, http.MethodGet, "/api/jira/boards/1/sprints", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	// stored comparisons never touch the tracker
	w = env.do(t, http.MethodGet, "/api/compare/room/r1", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestJiraPassthrough(t *testing.T) {
	env := newTestEnv(t)
	env.tracker.sprints = []jira.Sprint{{ID: 7, Name: "Sprint 7", State: "active"}}
	env.tracker.issues = map[string]jira.Issue{"PROJ-1": {Summary: "Login", Status: "Done"}}

	w := env.do(t, http.MethodGet, "/api/jira/boards/1/sprints", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"id":7,"name":"Sprint 7","state":"active"}]`, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/jira/issues?keys=PROJ-1,PROJ-404", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"PROJ-1":{"summary":"Login","status":"Done","storyPoints":null}}`, w.Body.String())
	assert.Equal(t, []string{"PROJ-1", "PROJ-404"}, env.tracker.keys)
}

func estimatedAt(t *testing.T, env *testEnv, key string) string {
	t.Helper()
	ests, err := env.db.AcceptedEstimationsByKeys(context.Background(), []string{key})
	require.NoError(t, err)
	require.Len(t, ests, 1)
	data, err := json.Marshal(ests[0].CreatedAt)
	require.NoError(t, err)
	return string(data)
}
