// Package reddit is a minimal client for the parts of the Reddit API the
// bot needs: login, the unread inbox, mark-read, submission lookup, and
// comment replies.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Web5design/MediaCrusher/internal/domain"
)

// Client talks to Reddit with a single authenticated session shared by all
// callers. The session is established once via Login and reused.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	username   string
	password   string

	session      Session
	sessionStore *SessionStore
}

// Config holds Reddit client configuration.
type Config struct {
	BaseURL   string
	Username  string
	Password  string
	UserAgent string
	Timeout   time.Duration
	// SessionCachePath/SessionCacheKey enable the encrypted session cache.
	SessionCachePath string
	SessionCacheKey  string
}

// NewClient creates a new Reddit client.
func NewClient(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = "https://www.reddit.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "mediacrusher-bot/1.0"
	}

	var store *SessionStore
	if cfg.SessionCachePath != "" {
		store = NewSessionStore(cfg.SessionCachePath, cfg.SessionCacheKey)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:      strings.TrimRight(base, "/"),
		userAgent:    ua,
		username:     cfg.Username,
		password:     cfg.Password,
		sessionStore: store,
	}
}

// Username returns the account the client is logged in as.
func (c *Client) Username() string {
	return c.username
}

// Message is one inbox notification.
type Message struct {
	// Kind is the thing prefix: "t1" for comments, "t4" for private messages.
	Kind   string
	Name   string
	ID     string
	Author string
	Body   string
	// LinkID is the fullname of the submission a comment belongs to.
	LinkID string
}

// IsComment reports whether the message is a comment rather than a private
// message.
func (m *Message) IsComment() bool {
	return m.Kind == "t1"
}

type loginResponse struct {
	JSON struct {
		Errors [][]string `json:"errors"`
		Data   struct {
			Modhash string `json:"modhash"`
			Cookie  string `json:"cookie"`
		} `json:"data"`
	} `json:"json"`
}

// Login establishes the session. A valid cached session is reused; a fresh
// network login is cached for next time when caching is configured.
func (c *Client) Login(ctx context.Context) error {
	if c.sessionStore != nil {
		if s, err := c.sessionStore.Load(); err == nil && s.Cookie != "" {
			c.session = s
			return nil
		}
	}

	form := url.Values{}
	form.Set("user", c.username)
	form.Set("passwd", c.password)
	form.Set("api_type", "json")

	endpoint := c.baseURL + "/api/login/" + url.PathEscape(c.username)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("login failed (status %d): %s", resp.StatusCode, string(body))
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}
	if len(lr.JSON.Errors) > 0 {
		return fmt.Errorf("login rejected: %v", lr.JSON.Errors[0])
	}
	if lr.JSON.Data.Cookie == "" {
		return fmt.Errorf("login response missing session cookie")
	}

	c.session = Session{
		Cookie:  lr.JSON.Data.Cookie,
		Modhash: lr.JSON.Data.Modhash,
	}
	if c.sessionStore != nil {
		// Cache failures are not fatal; the next start just logs in again.
		_ = c.sessionStore.Save(c.session)
	}
	return nil
}

type listingResponse struct {
	Data struct {
		Children []struct {
			Kind string `json:"kind"`
			Data struct {
				Name   string `json:"name"`
				ID     string `json:"id"`
				Author string `json:"author"`
				Body   string `json:"body"`
				LinkID string `json:"link_id"`
				Domain string `json:"domain"`
				URL    string `json:"url"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// UnreadMessages fetches the unread notification queue.
func (c *Client) UnreadMessages(ctx context.Context) ([]Message, error) {
	body, err := c.get(ctx, c.baseURL+"/message/unread.json")
	if err != nil {
		return nil, err
	}

	var listing listingResponse
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("decode unread listing: %w", err)
	}

	msgs := make([]Message, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		msgs = append(msgs, Message{
			Kind:   child.Kind,
			Name:   child.Data.Name,
			ID:     child.Data.ID,
			Author: child.Data.Author,
			Body:   child.Data.Body,
			LinkID: child.Data.LinkID,
		})
	}
	return msgs, nil
}

// MarkRead marks one notification read by fullname.
func (c *Client) MarkRead(ctx context.Context, name string) error {
	form := url.Values{}
	form.Set("id", name)
	_, err := c.postForm(ctx, c.baseURL+"/api/read_message", form)
	return err
}

// SubmissionByFullname looks up a submission thing (e.g. "t3_abc") and
// returns its declared domain and URL.
func (c *Client) SubmissionByFullname(ctx context.Context, fullname string) (*domain.Submission, error) {
	if !strings.HasPrefix(fullname, "t3_") {
		fullname = "t3_" + fullname
	}

	body, err := c.get(ctx, c.baseURL+"/by_id/"+fullname+".json")
	if err != nil {
		return nil, err
	}

	var listing listingResponse
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("decode submission listing: %w", err)
	}
	if len(listing.Data.Children) == 0 {
		return nil, fmt.Errorf("submission %s not found", fullname)
	}

	data := listing.Data.Children[0].Data
	return &domain.Submission{
		ID:     data.ID,
		Domain: data.Domain,
		URL:    data.URL,
	}, nil
}

type commentResponse struct {
	JSON struct {
		Errors    [][]string `json:"errors"`
		Ratelimit float64    `json:"ratelimit"`
	} `json:"json"`
}

// Reply posts a comment reply under the given thing.
func (c *Client) Reply(ctx context.Context, parentName, text string) error {
	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("thing_id", parentName)
	form.Set("text", text)

	body, err := c.postForm(ctx, c.baseURL+"/api/comment", form)
	if err != nil {
		return err
	}

	var cr commentResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return fmt.Errorf("decode comment response: %w", err)
	}
	for _, e := range cr.JSON.Errors {
		if len(e) > 0 && e[0] == "RATELIMIT" {
			wait := time.Duration(cr.JSON.Ratelimit * float64(time.Second))
			if wait <= 0 {
				wait = time.Minute
			}
			return &RateLimitError{RetryAfter: wait}
		}
	}
	if len(cr.JSON.Errors) > 0 {
		return fmt.Errorf("reply rejected: %v", cr.JSON.Errors[0])
	}
	return nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)

	return c.do(req)
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	form.Set("uh", c.session.Modhash)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.authorize(req)

	return c.do(req)
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	if c.session.Cookie != "" {
		req.AddCookie(&http.Cookie{Name: "reddit_session", Value: c.session.Cookie})
	}
	if c.session.Modhash != "" {
		req.Header.Set("X-Modhash", c.session.Modhash)
	}
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		wait := 30 * time.Second
		if v := resp.Header.Get("Retry-After"); v != "" {
			if d, err := time.ParseDuration(v + "s"); err == nil && d > 0 {
				wait = d
			}
		}
		return nil, &RateLimitError{RetryAfter: wait}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}
