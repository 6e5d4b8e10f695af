package jira_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/planning-poker/internal/jira"
)

type fakeJira struct {
	server     *httptest.Server
	fieldCalls atomic.Int32
	lastJQL    atomic.Value
}

func newFakeJira(t *testing.T) *fakeJira {
	t.Helper()
	f := &fakeJira{}

	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/2/field", func(w http.ResponseWriter, r *http.Request) {
		f.fieldCalls.Add(1)
		writeJSON(w, []map[string]string{
			{"id": "summary", "name": "Summary"},
			{"id": "customfield_10016", "name": "Story point estimate"},
			{"id": "customfield_10002", "name": "Story Points"},
		})
	})
	mux.HandleFunc("/rest/agile/1.0/board/3/sprint", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("startAt") == "0" {
			writeJSON(w, map[string]any{
				"isLast": false,
				"values": []map[string]any{{"id": 10, "name": "Sprint 10", "state": "active"}},
			})
			return
		}
		writeJSON(w, map[string]any{
			"isLast": true,
			"values": []map[string]any{{"id": 11, "name": "Sprint 11", "state": "future"}},
		})
	})
	mux.HandleFunc("/rest/agile/1.0/sprint/7/issue", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("startAt") == "0" {
			writeJSON(w, map[string]any{
				"total": 2,
				"issues": []map[string]any{
					issue("PROJ-1", "Login", "In Progress", 5),
				},
			})
			return
		}
		writeJSON(w, map[string]any{
			"total": 2,
			"issues": []map[string]any{
				issue("PROJ-2", "Logout", "To Do", nil),
			},
		})
	})
	mux.HandleFunc("/rest/api/2/search", func(w http.ResponseWriter, r *http.Request) {
		f.lastJQL.Store(r.URL.Query().Get("jql"))
		writeJSON(w, map[string]any{
			"total":  1,
			"issues": []map[string]any{issue("PROJ-9", "Search", "Done", 2.5)},
		})
	})
	mux.HandleFunc("/rest/agile/1.0/sprint/500/issue", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func issue(key, summary, status string, points any) map[string]any {
	return map[string]any{
		"key": key,
		"fields": map[string]any{
			"summary":           summary,
			"status":            map[string]string{"name": status},
			"customfield_10002": points,
		},
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (f *fakeJira) client(cache jira.Cache) *jira.Client {
	return jira.NewClient(jira.Config{
		BaseURL:  f.server.URL + "/",
		Email:    "bot@example.com",
		APIToken: "token",
	}, cache, discard())
}

func TestBoardSprintsPaginates(t *testing.T) {
	f := newFakeJira(t)

	sprints, err := f.client(nil).BoardSprints(context.Background(), "3")
	require.NoError(t, err)
	assert.Equal(t, []jira.Sprint{
		{ID: 10, Name: "Sprint 10", State: "active"},
		{ID: 11, Name: "Sprint 11", State: "future"},
	}, sprints)
}

func TestSprintIssues(t *testing.T) {
	f := newFakeJira(t)
	client := f.client(jira.NewMemoryCache())

	issues, err := client.SprintIssues(context.Background(), "7")
	require.NoError(t, err)
	require.Len(t, issues, 2)

	login := issues["PROJ-1"]
	assert.Equal(t, "Login", login.Summary)
	assert.Equal(t, "In Progress", login.Status)
	require.NotNil(t, login.StoryPoints)
	assert.Equal(t, "5", login.PointsString())

	assert.Nil(t, issues["PROJ-2"].StoryPoints)
	assert.Equal(t, "", issues["PROJ-2"].PointsString())

	// the field id is discovered once
	_, err = client.SprintIssues(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.fieldCalls.Load())
}

func TestIssuesByKeys(t *testing.T) {
	f := newFakeJira(t)

	issues, err := f.client(nil).IssuesByKeys(context.Background(), []string{" proj-9", "PROJ-9", "bad key", "x) OR (1=1"})
	require.NoError(t, err)
	assert.Equal(t, "key in (PROJ-9)", f.lastJQL.Load())
	require.Contains(t, issues, "PROJ-9")
	assert.Equal(t, "2.5", issues["PROJ-9"].PointsString())

	empty, err := f.client(nil).IssuesByKeys(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestUpstreamFailure(t *testing.T) {
	f := newFakeJira(t)

	_, err := f.client(nil).SprintIssues(context.Background(), "500")
	assert.ErrorIs(t, err, jira.ErrUpstreamUnavailable)

	unreachable := jira.NewClient(jira.Config{
		BaseURL:  "http://127.0.0.1:1",
		Email:    "bot@example.com",
		APIToken: "token",
	}, nil, discard())
	_, err = unreachable.BoardSprints(context.Background(), "3")
	assert.ErrorIs(t, err, jira.ErrUpstreamUnavailable)
}

func TestNotConfigured(t *testing.T) {
	client := jira.NewClient(jira.Config{}, nil, discard())

	_, err := client.BoardSprints(context.Background(), "3")
	assert.ErrorIs(t, err, jira.ErrNotConfigured)
	_, err = client.SprintIssues(context.Background(), "7")
	assert.ErrorIs(t, err, jira.ErrNotConfigured)
}

func TestConfiguredFieldSkipsDiscovery(t *testing.T) {
	f := newFakeJira(t)
	client := jira.NewClient(jira.Config{
		BaseURL:          f.server.URL,
		Email:            "bot@example.com",
		APIToken:         "token",
		StoryPointsField: "customfield_10002",
	}, nil, discard())

	issues, err := client.SprintIssues(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, "5", issues["PROJ-1"].PointsString())
	assert.Zero(t, f.fieldCalls.Load())
}

func TestFieldDiscoveryPrefersStoryPoints(t *testing.T) {
	f := newFakeJira(t)
	cache := jira.NewMemoryCache()

	_, err := f.client(cache).SprintIssues(context.Background(), "7")
	require.NoError(t, err)

	field, err := cache.Get(context.Background(), "story-points-field")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(field, "customfield_"))
	assert.Equal(t, "customfield_10002", field)
}
