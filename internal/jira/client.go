// Package jira reads sprints, issues and story points from a Jira Cloud or
// Server instance. It is only used for comparisons after the fact; votes
// never depend on it.
package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNotConfigured means no base URL or credentials were provided.
	ErrNotConfigured = errors.New("jira is not configured")
	// ErrUpstreamUnavailable covers unreachable hosts and non-2xx answers.
	ErrUpstreamUnavailable = errors.New("jira upstream unavailable")
)

const (
	pageSize       = 50
	keysPerSearch  = 50
	fieldCacheKey  = "story-points-field"
	requestTimeout = 15 * time.Second
)

var storyPointFieldNames = []string{"Story Points", "Story point estimate"}

type Config struct {
	BaseURL          string
	Email            string
	APIToken         string
	StoryPointsField string
	CacheTTL         time.Duration
}

func (c Config) Enabled() bool {
	return c.BaseURL != "" && c.Email != "" && c.APIToken != ""
}

type Sprint struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

type Issue struct {
	Summary     string   `json:"summary"`
	Status      string   `json:"status"`
	StoryPoints *float64 `json:"storyPoints"`
}

// PointsString renders the story points the way estimates are stored.
func (i Issue) PointsString() string {
	if i.StoryPoints == nil {
		return ""
	}
	return strconv.FormatFloat(*i.StoryPoints, 'f', -1, 64)
}

type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	cache      Cache
	log        *slog.Logger
}

func NewClient(cfg Config, cache Cache, log *slog.Logger) *Client {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	return &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		cache: cache,
		log:   log,
	}
}

// BoardSprints lists the active and future sprints of a board.
func (c *Client) BoardSprints(ctx context.Context, boardID string) ([]Sprint, error) {
	sprints := make([]Sprint, 0)
	for startAt := 0; ; {
		var page struct {
			Values []Sprint `json:"values"`
			IsLast bool     `json:"isLast"`
		}
		query := url.Values{
			"state":      {"active,future"},
			"startAt":    {strconv.Itoa(startAt)},
			"maxResults": {strconv.Itoa(pageSize)},
		}
		path := "/rest/agile/1.0/board/" + url.PathEscape(boardID) + "/sprint"
		if err := c.get(ctx, path, query, &page); err != nil {
			return nil, err
		}

		sprints = append(sprints, page.Values...)
		if page.IsLast || len(page.Values) == 0 {
			return sprints, nil
		}
		startAt += len(page.Values)
	}
}

// SprintIssues returns every issue of a sprint keyed by issue key.
func (c *Client) SprintIssues(ctx context.Context, sprintID string) (map[string]Issue, error) {
	field, err := c.storyPointsField(ctx)
	if err != nil {
		return nil, err
	}

	issues := make(map[string]Issue)
	for startAt := 0; ; {
		query := url.Values{
			"fields":     {fieldList(field)},
			"startAt":    {strconv.Itoa(startAt)},
			"maxResults": {strconv.Itoa(pageSize)},
		}
		path := "/rest/agile/1.0/sprint/" + url.PathEscape(sprintID) + "/issue"
		page, err := c.issuePage(ctx, path, query, field, issues)
		if err != nil {
			return nil, err
		}
		startAt += page.count
		if page.count == 0 || startAt >= page.total {
			return issues, nil
		}
	}
}

// IssuesByKeys looks up issues in bulk. Unknown keys are absent from the result.
func (c *Client) IssuesByKeys(ctx context.Context, keys []string) (map[string]Issue, error) {
	issues := make(map[string]Issue)
	keys = cleanKeys(keys)
	if len(keys) == 0 {
		return issues, nil
	}

	field, err := c.storyPointsField(ctx)
	if err != nil {
		return nil, err
	}

	for start := 0; start < len(keys); start += keysPerSearch {
		end := min(start+keysPerSearch, len(keys))
		query := url.Values{
			"jql":        {"key in (" + strings.Join(keys[start:end], ",") + ")"},
			"fields":     {fieldList(field)},
			"maxResults": {strconv.Itoa(keysPerSearch)},
			// missing keys are skipped instead of failing the whole query
			"validateQuery": {"warn"},
		}
		if _, err := c.issuePage(ctx, "/rest/api/2/search", query, field, issues); err != nil {
			return nil, err
		}
	}
	return issues, nil
}

type pageInfo struct {
	count int
	total int
}

func (c *Client) issuePage(ctx context.Context, path string, query url.Values, field string, into map[string]Issue) (pageInfo, error) {
	var page struct {
		Total  int `json:"total"`
		Issues []struct {
			Key    string                     `json:"key"`
			Fields map[string]json.RawMessage `json:"fields"`
		} `json:"issues"`
	}
	if err := c.get(ctx, path, query, &page); err != nil {
		return pageInfo{}, err
	}

	for _, raw := range page.Issues {
		into[raw.Key] = decodeIssue(raw.Fields, field)
	}
	return pageInfo{count: len(page.Issues), total: page.Total}, nil
}

func decodeIssue(fields map[string]json.RawMessage, pointsField string) Issue {
	var issue Issue
	_ = json.Unmarshal(fields["summary"], &issue.Summary)

	var status struct {
		Name string `json:"name"`
	}
	if json.Unmarshal(fields["status"], &status) == nil {
		issue.Status = status.Name
	}

	if pointsField != "" {
		var points *float64
		if json.Unmarshal(fields[pointsField], &points) == nil {
			issue.StoryPoints = points
		}
	}
	return issue
}

// storyPointsField resolves the custom field holding story points. An empty
// result means the instance has none and points are reported as null.
func (c *Client) storyPointsField(ctx context.Context) (string, error) {
	if !c.cfg.Enabled() {
		return "", ErrNotConfigured
	}
	if c.cfg.StoryPointsField != "" {
		return c.cfg.StoryPointsField, nil
	}

	if cached, err := c.cache.Get(ctx, fieldCacheKey); err == nil {
		return cached, nil
	} else if !errors.Is(err, ErrCacheMiss) {
		c.log.Warn("jira field cache read failed", "error", err)
	}

	var fields []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := c.get(ctx, "/rest/api/2/field", nil, &fields); err != nil {
		return "", err
	}

	var id string
	for _, name := range storyPointFieldNames {
		for _, f := range fields {
			if strings.EqualFold(f.Name, name) {
				id = f.ID
				break
			}
		}
		if id != "" {
			break
		}
	}
	if id == "" {
		c.log.Warn("no story points field found on jira instance")
	}

	if err := c.cache.Set(ctx, fieldCacheKey, id, c.cfg.CacheTTL); err != nil {
		c.log.Warn("jira field cache write failed", "error", err)
	}
	return id, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	if !c.cfg.Enabled() {
		return ErrNotConfigured
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.cfg.Email, c.cfg.APIToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", ErrUpstreamUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("jira request rejected", "path", path, "status", resp.StatusCode)
		return fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: failed to parse response: %v", ErrUpstreamUnavailable, err)
	}
	return nil
}

func fieldList(pointsField string) string {
	if pointsField == "" {
		return "summary,status"
	}
	return "summary,status," + pointsField
}

func cleanKeys(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.ToUpper(strings.TrimSpace(k))
		if k == "" || seen[k] || !validKey(k) {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// validKey accepts PROJ-123 style keys so nothing else reaches the JQL.
func validKey(k string) bool {
	dash := strings.LastIndexByte(k, '-')
	if dash <= 0 || dash == len(k)-1 {
		return false
	}
	for _, r := range k[:dash] {
		if !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_') {
			return false
		}
	}
	_, err := strconv.Atoi(k[dash+1:])
	return err == nil
}
