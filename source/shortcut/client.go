// Package shortcut ingests bug stories from the Shortcut project-management
// API. The search endpoint is paginated with an opaque continuation token
// and can return the same story on two pages, so results are deduplicated by
// story ID before filtering. Only stories typed "bug" are kept, and every
// kept story normalizes to High priority.
package shortcut

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/castifi/bugtracker-dashboard/source"
	"github.com/castifi/bugtracker-dashboard/types"
)

const storyTypeBug = "bug"

// Client fetches bug stories from the Shortcut API.
type Client struct {
	token string
	opts  *options
}

var (
	_ source.Connector = (*Client)(nil)
	_ source.Pinger    = (*Client)(nil)
)

// story is the subset of the search payload the normalizer consumes.
type story struct {
	ID              int64    `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	StoryType       string   `json:"story_type"`
	WorkflowStateID *int64   `json:"workflow_state_id"`
	OwnerIDs        []string `json:"owner_ids"`
	Labels          []label  `json:"labels"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
}

type label struct {
	Name string `json:"name"`
}

type searchResponse struct {
	Stories struct {
		Data []story `json:"data"`
		Next string  `json:"next"`
	} `json:"stories"`
}

type workflow struct {
	Name   string          `json:"name"`
	States []workflowState `json:"states"`
}

type workflowState struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type member struct {
	ID      string `json:"id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// New returns a client authenticated with the given API token.
func New(token string, opts ...Option) *Client {
	o := newOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &Client{token: token, opts: o}
}

// Name returns the source key used in run summaries.
func (c *Client) Name() string {
	return string(types.SourceShortcut)
}

// Ping checks that the configured token is accepted by the search endpoint.
func (c *Client) Ping(ctx context.Context) error {
	q := url.Values{}
	q.Set("query", "bug")
	q.Set("page_size", "1")

	var resp searchResponse
	if err := c.getJSON(ctx, "/api/v3/search", q, &resp); err != nil {
		return fmt.Errorf("shortcut ping failed: %w", err)
	}

	return nil
}

// FetchAll runs the full search-filter-normalize pass. A failure on the
// first search page is returned as an error; a failure on a later page
// yields the stories fetched so far. Lookup caches are only populated when
// at least one bug story survives filtering, and their population failure
// degrades individual lookups to "Unknown (<id>)" values.
func (c *Client) FetchAll(ctx context.Context) ([]*types.BugRecord, error) {
	stories, err := c.fetchStories(ctx)
	if err != nil {
		return nil, err
	}

	bugs := make([]story, 0, len(stories))

	for _, s := range stories {
		// A story without a type counts as a feature and is excluded.
		if s.StoryType == storyTypeBug {
			bugs = append(bugs, s)
		}
	}

	if len(bugs) == 0 {
		c.opts.logger.Debug().Int("stories", len(stories)).Msg("no bug stories found")

		return nil, nil
	}

	lookups := c.loadLookups(ctx)

	records := make([]*types.BugRecord, 0, len(bugs))
	for _, s := range bugs {
		records = append(records, normalizeStory(s, lookups, c.opts.clock))
	}

	c.opts.logger.Info().
		Int("stories", len(stories)).
		Int("records", len(records)).
		Msg("fetched shortcut stories")

	return records, nil
}

// fetchStories pages through the search endpoint, deduplicating by story ID
// with the first occurrence winning.
func (c *Client) fetchStories(ctx context.Context) ([]story, error) {
	var (
		stories []story
		seen    = map[int64]struct{}{}
		next    string
	)

	for page := 0; ; page++ {
		q := url.Values{}
		q.Set("query", "bug")
		q.Set("detail", "full")

		if next != "" {
			q.Set("next", next)
		}

		var resp searchResponse
		if err := c.getJSON(ctx, "/api/v3/search", q, &resp); err != nil {
			if page == 0 {
				return nil, fmt.Errorf("failed to search Shortcut stories: %w", err)
			}

			c.opts.logger.Warn().Err(err).Int("page", page).Msg("shortcut story page fetch failed")

			break
		}

		if len(resp.Stories.Data) == 0 {
			break
		}

		for _, s := range resp.Stories.Data {
			if _, ok := seen[s.ID]; ok {
				continue
			}

			seen[s.ID] = struct{}{}
			stories = append(stories, s)
		}

		next = nextToken(resp.Stories.Next)
		if next == "" {
			break
		}
	}

	return stories, nil
}

// nextToken extracts the continuation token from the next-page URL returned
// by the search endpoint. The endpoint hands back a relative URL; the token
// is everything after its "next=" parameter.
func nextToken(nextURL string) string {
	const marker = "next="

	i := strings.Index(nextURL, marker)
	if i < 0 {
		return ""
	}

	return nextURL[i+len(marker):]
}

// lookups holds the per-run workflow-state and member caches. Both are
// populated at most once per fetch and are read-only afterwards.
type lookups struct {
	states  map[string]string
	members map[string]string
}

func (c *Client) loadLookups(ctx context.Context) *lookups {
	l := &lookups{
		states:  map[string]string{},
		members: map[string]string{},
	}

	var workflows []workflow
	if err := c.getJSON(ctx, "/api/v3/workflows", nil, &workflows); err != nil {
		c.opts.logger.Warn().Err(err).Msg("failed to fetch shortcut workflow states")
	} else {
		for _, w := range workflows {
			for _, s := range w.States {
				l.states[strconv.FormatInt(s.ID, 10)] = s.Name
			}
		}
	}

	var members []member
	if err := c.getJSON(ctx, "/api/v3/members", nil, &members); err != nil {
		c.opts.logger.Warn().Err(err).Msg("failed to fetch shortcut members")
	} else {
		for _, m := range members {
			l.members[m.ID] = m.Profile.Name
		}
	}

	return l
}

func (l *lookups) stateName(id string) string {
	if name, ok := l.states[id]; ok && name != "" {
		return name
	}

	return "Unknown (" + id + ")"
}

func (l *lookups) memberNames(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}

	names := make([]string, 0, len(ids))

	for _, id := range ids {
		if name, ok := l.members[id]; ok && name != "" {
			names = append(names, name)
		} else {
			names = append(names, "Unknown ("+id+")")
		}
	}

	return names
}

// normalizeStory maps one bug-typed story into the common record shape. The
// upstream priority field is never consulted: every bug story is High.
func normalizeStory(s story, l *lookups, now func() time.Time) *types.BugRecord {
	key := types.ShortcutKey(s.ID)

	state := "Unknown"
	stateID := ""

	if s.WorkflowStateID != nil {
		stateID = strconv.FormatInt(*s.WorkflowStateID, 10)
		state = l.stateName(stateID)
	}

	title := s.Name
	if title == "" {
		title = "No name"
	}

	assignee := "Unassigned"
	if names := l.memberNames(s.OwnerIDs); len(names) > 0 {
		assignee = strings.Join(names, ", ")
	}

	var tags []string
	for _, lb := range s.Labels {
		tags = append(tags, lb.Name)
	}

	return &types.BugRecord{
		PartitionKey: key.PartitionKey,
		SortKey:      key.SortKey,
		SourceSystem: types.SourceShortcut,
		Priority:     types.PriorityHigh,
		State:        state,
		StateID:      stateID,
		Title:        title,
		Text:         s.Description,
		CreatedAt:    source.TimeOrNow(s.CreatedAt, now),
		UpdatedAt:    source.TimeOrNow(s.UpdatedAt, now),
		Assignee:     assignee,
		AssigneeIDs:  s.OwnerIDs,
		Tags:         tags,
	}
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := strings.TrimRight(c.opts.baseURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Shortcut-Token", c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return err
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return fmt.Errorf("shortcut api returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
