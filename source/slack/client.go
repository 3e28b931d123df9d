// Package slack ingests bug reports from Slack channels. There is no single
// paginated feed: the connector enumerates the workspace's channels, keeps
// the ones whose name suggests bug traffic, and pulls each kept channel's
// recent history. Messages are then filtered by the same keyword vocabulary
// before normalization.
//
// Slack reports most failures inside an HTTP 200 response as
// {"ok": false, "error": "..."}; both transport failures and ok=false are
// treated alike.
package slack

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

// historyLimit caps how many messages are pulled per channel per run.
const historyLimit = "100"

// bugKeywords is the relevance vocabulary applied to channel names and
// message text.
var bugKeywords = []string{"bug", "error", "issue", "problem", "crash", "broken"}

// Client fetches bug-like messages from the Slack API.
type Client struct {
	token string
	opts  *options
}

var (
	_ source.Connector = (*Client)(nil)
	_ source.Pinger    = (*Client)(nil)
)

type channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type listResponse struct {
	OK       bool      `json:"ok"`
	Error    string    `json:"error"`
	Channels []channel `json:"channels"`
}

type message struct {
	Text string `json:"text"`
	User string `json:"user"`
	TS   string `json:"ts"`
}

type historyResponse struct {
	OK       bool      `json:"ok"`
	Error    string    `json:"error"`
	Messages []message `json:"messages"`
}

type userInfoResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	User  struct {
		RealName string `json:"real_name"`
	} `json:"user"`
}

// New returns a client authenticated with the given bot token.
func New(token string, opts ...Option) *Client {
	o := newOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &Client{token: token, opts: o}
}

// Name returns the source key used in run summaries.
func (c *Client) Name() string {
	return string(types.SourceSlack)
}

// Ping checks that the configured token can list conversations.
func (c *Client) Ping(ctx context.Context) error {
	q := url.Values{}
	q.Set("limit", "1")

	var resp listResponse
	if err := c.getJSON(ctx, "/api/conversations.list", q, &resp); err != nil {
		return fmt.Errorf("slack ping failed: %w", err)
	}

	if !resp.OK {
		return fmt.Errorf("slack ping failed: api error %s", resp.Error)
	}

	return nil
}

// FetchAll lists the workspace's channels and harvests bug-like messages
// from the bug-like ones. A failed channel listing is a source-level error;
// a failed per-channel history fetch skips that channel, and a failed author
// lookup falls back to "Unknown (<id>)".
func (c *Client) FetchAll(ctx context.Context) ([]*types.BugRecord, error) {
	var list listResponse
	if err := c.getJSON(ctx, "/api/conversations.list", nil, &list); err != nil {
		return nil, fmt.Errorf("failed to list Slack channels: %w", err)
	}

	if !list.OK {
		return nil, fmt.Errorf("failed to list Slack channels: api error %s", list.Error)
	}

	users := &userCache{names: map[string]string{}}

	var records []*types.BugRecord

	for _, ch := range list.Channels {
		if !containsBugKeyword(ch.Name) {
			continue
		}

		messages, err := c.channelHistory(ctx, ch.ID)
		if err != nil {
			c.opts.logger.Warn().Err(err).Str("channel", ch.Name).Msg("failed to fetch channel history")

			continue
		}

		kept := 0

		for _, msg := range messages {
			if !containsBugKeyword(msg.Text) {
				continue
			}

			if msg.TS == "" {
				// Without a timestamp there is no stable identifier to key
				// the record on.
				c.opts.logger.Debug().Str("channel", ch.Name).Msg("skipping message without timestamp")

				continue
			}

			author, authorID := c.resolveAuthor(ctx, msg.User, users)
			records = append(records, normalizeMessage(msg, ch, author, authorID, c.opts.clock))
			kept++
		}

		c.opts.logger.Debug().
			Str("channel", ch.Name).
			Int("messages", len(messages)).
			Int("kept", kept).
			Msg("scanned channel history")
	}

	c.opts.logger.Info().
		Int("channels", len(list.Channels)).
		Int("records", len(records)).
		Msg("fetched slack messages")

	return records, nil
}

func (c *Client) channelHistory(ctx context.Context, channelID string) ([]message, error) {
	q := url.Values{}
	q.Set("channel", channelID)
	q.Set("limit", historyLimit)

	var resp historyResponse
	if err := c.getJSON(ctx, "/api/conversations.history", q, &resp); err != nil {
		return nil, err
	}

	if !resp.OK {
		return nil, fmt.Errorf("slack api error: %s", resp.Error)
	}

	return resp.Messages, nil
}

// userCache memoizes author lookups for one fetch pass. Failed lookups are
// cached too, so each user costs at most one API call per run.
type userCache struct {
	names map[string]string
}

func (c *Client) resolveAuthor(ctx context.Context, userID string, cache *userCache) (name, id string) {
	if userID == "" {
		return "Unknown", ""
	}

	if name, ok := cache.names[userID]; ok {
		return name, userID
	}

	resolved := "Unknown (" + userID + ")"

	q := url.Values{}
	q.Set("user", userID)

	var resp userInfoResponse

	switch err := c.getJSON(ctx, "/api/users.info", q, &resp); {
	case err != nil:
		c.opts.logger.Warn().Err(err).Str("user", userID).Msg("failed to resolve slack user")
	case !resp.OK:
		c.opts.logger.Warn().Str("user", userID).Str("error", resp.Error).Msg("failed to resolve slack user")
	case resp.User.RealName != "":
		resolved = resp.User.RealName
	}

	cache.names[userID] = resolved

	return resolved, userID
}

// normalizeMessage maps one channel message into the common record shape.
// Chat messages carry no workflow or priority upstream, so both fields
// normalize to Unknown. The message timestamp doubles as created and
// updated time.
func normalizeMessage(msg message, ch channel, author, authorID string, now func() time.Time) *types.BugRecord {
	key := types.SlackKey(ch.ID, msg.TS)
	ts := timeFromTS(msg.TS, now)

	return &types.BugRecord{
		PartitionKey: key.PartitionKey,
		SortKey:      key.SortKey,
		SourceSystem: types.SourceSlack,
		Priority:     types.PriorityUnknown,
		State:        "Unknown",
		Text:         msg.Text,
		CreatedAt:    ts,
		UpdatedAt:    ts,
		Author:       author,
		AuthorID:     authorID,
		Tags:         []string{ch.Name},
	}
}

// timeFromTS converts a Slack message timestamp ("1717171717.123456") to a
// UTC time. The fractional part disambiguates messages within the same
// second and is preserved as nanoseconds.
func timeFromTS(ts string, now func() time.Time) time.Time {
	secPart, fracPart, _ := strings.Cut(ts, ".")

	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil || sec <= 0 {
		return now()
	}

	var nsec int64

	if fracPart != "" {
		padded := (fracPart + "000000000")[:9]
		nsec, _ = strconv.ParseInt(padded, 10, 64)
	}

	return time.Unix(sec, nsec).UTC()
}

func containsBugKeyword(s string) bool {
	s = strings.ToLower(s)

	for _, kw := range bugKeywords {
		if strings.Contains(s, kw) {
			return true
		}
	}

	return false
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

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return err
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return fmt.Errorf("slack api returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
