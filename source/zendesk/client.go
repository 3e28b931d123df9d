// Package zendesk ingests bug-like tickets from the Zendesk helpdesk API.
// The ticket search is paginated with absolute next_page URLs which the
// connector follows until exhausted. A ticket counts as bug-like when its
// subject or description contains a keyword from a fixed vocabulary, or one
// of its tags equals such a keyword.
package zendesk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/castifi/bugtracker-dashboard/source"
	"github.com/castifi/bugtracker-dashboard/types"
)

// searchQuery selects open, on-hold and pending tickets, newest first.
const searchQuery = "type:ticket status:open,hold,pending"

// bugKeywords is the vocabulary that makes a ticket bug-like. Subjects and
// descriptions match on substring; tags match on equality.
var bugKeywords = []string{"bug", "error", "issue", "problem"}

// priorityBySeverity maps the native four-level priority vocabulary onto the
// normalized enum.
var priorityBySeverity = map[string]types.Priority{
	"urgent": types.PriorityCritical,
	"high":   types.PriorityHigh,
	"normal": types.PriorityMedium,
	"low":    types.PriorityLow,
}

// Client fetches bug-like tickets from the Zendesk API.
type Client struct {
	email string
	token string
	opts  *options
}

var (
	_ source.Connector = (*Client)(nil)
	_ source.Pinger    = (*Client)(nil)
)

type ticket struct {
	ID          int64    `json:"id"`
	Subject     string   `json:"subject"`
	Description string   `json:"description"`
	Priority    string   `json:"priority"`
	Status      string   `json:"status"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
	RequesterID int64    `json:"requester_id"`
	AssigneeID  int64    `json:"assignee_id"`
	Tags        []string `json:"tags"`
}

type searchResponse struct {
	Results  []ticket `json:"results"`
	NextPage string   `json:"next_page"`
}

// New returns a client for the given account domain, authenticated with the
// account email and API token pair.
func New(domain, email, token string, opts ...Option) *Client {
	o := newOptions()
	for _, opt := range opts {
		opt(o)
	}

	if o.baseURL == "" {
		o.baseURL = fmt.Sprintf("https://%s.zendesk.com", domain)
	}

	return &Client{email: email, token: token, opts: o}
}

// Name returns the source key used in run summaries.
func (c *Client) Name() string {
	return string(types.SourceZendesk)
}

// Ping checks that the configured credentials are accepted by the tickets
// endpoint.
func (c *Client) Ping(ctx context.Context) error {
	q := url.Values{}
	q.Set("per_page", "1")

	var resp struct {
		Tickets []json.RawMessage `json:"tickets"`
	}

	if err := c.getJSON(ctx, c.apiURL("/api/v2/tickets.json", q), &resp); err != nil {
		return fmt.Errorf("zendesk ping failed: %w", err)
	}

	return nil
}

// FetchAll searches for open tickets and normalizes the bug-like ones. A
// failure on the first page is returned as an error; a failure while
// following next_page yields the tickets fetched so far.
func (c *Client) FetchAll(ctx context.Context) ([]*types.BugRecord, error) {
	q := url.Values{}
	q.Set("query", searchQuery)
	q.Set("sort_by", "created_at")
	q.Set("sort_order", "desc")

	pageURL := c.apiURL("/api/v2/search.json", q)

	var tickets []ticket

	for page := 0; pageURL != ""; page++ {
		var resp searchResponse
		if err := c.getJSON(ctx, pageURL, &resp); err != nil {
			if page == 0 {
				return nil, fmt.Errorf("failed to search Zendesk tickets: %w", err)
			}

			c.opts.logger.Warn().Err(err).Int("page", page).Msg("zendesk ticket page fetch failed")

			break
		}

		tickets = append(tickets, resp.Results...)
		pageURL = resp.NextPage
	}

	var records []*types.BugRecord

	for _, t := range tickets {
		if !isBugLike(t) {
			continue
		}

		records = append(records, normalizeTicket(t, c.opts.clock))
	}

	c.opts.logger.Info().
		Int("tickets", len(tickets)).
		Int("records", len(records)).
		Msg("fetched zendesk tickets")

	return records, nil
}

func isBugLike(t ticket) bool {
	subject := strings.ToLower(t.Subject)
	description := strings.ToLower(t.Description)

	for _, kw := range bugKeywords {
		if strings.Contains(subject, kw) || strings.Contains(description, kw) {
			return true
		}
	}

	for _, tag := range t.Tags {
		if slices.Contains(bugKeywords, strings.ToLower(tag)) {
			return true
		}
	}

	return false
}

// mapPriority folds the native priority onto the normalized enum. A ticket
// without a priority counts as "normal"; values outside the vocabulary fold
// to Medium.
func mapPriority(priority string) types.Priority {
	if priority == "" {
		priority = "normal"
	}

	if mapped, ok := priorityBySeverity[priority]; ok {
		return mapped
	}

	return types.PriorityMedium
}

// normalizeTicket maps one ticket into the common record shape. Zendesk
// needs no lookup caches: the ticket status is already human-readable and
// requester/assignee identifiers are stored raw.
func normalizeTicket(t ticket, now func() time.Time) *types.BugRecord {
	key := types.ZendeskKey(t.ID)

	state := t.Status
	if state == "" {
		state = "Unknown"
	}

	title := t.Subject
	if title == "" {
		title = "No subject"
	}

	author := "Unknown"
	authorID := ""

	if t.RequesterID != 0 {
		authorID = strconv.FormatInt(t.RequesterID, 10)
		author = authorID
	}

	assignee := "Unassigned"
	if t.AssigneeID != 0 {
		assignee = strconv.FormatInt(t.AssigneeID, 10)
	}

	return &types.BugRecord{
		PartitionKey: key.PartitionKey,
		SortKey:      key.SortKey,
		SourceSystem: types.SourceZendesk,
		Priority:     mapPriority(t.Priority),
		State:        state,
		Title:        title,
		Text:         t.Description,
		CreatedAt:    source.TimeOrNow(t.CreatedAt, now),
		UpdatedAt:    source.TimeOrNow(t.UpdatedAt, now),
		Author:       author,
		AuthorID:     authorID,
		Assignee:     assignee,
		Tags:         t.Tags,
	}
}

func (c *Client) apiURL(path string, query url.Values) string {
	u := strings.TrimRight(c.opts.baseURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	return u
}

// getJSON fetches one URL with basic auth. Pagination hands back absolute
// next_page URLs, so the caller supplies the full URL rather than a path.
func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.SetBasicAuth(c.email+"/token", c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return err
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return fmt.Errorf("zendesk api returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
