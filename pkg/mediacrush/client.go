// Package mediacrush is a client for the MediaCrush transcoding service.
package mediacrush

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// Processing status tokens returned by the status endpoint. Any other token
// means the upload is still being processed.
const (
	StatusDone    = "done"
	StatusTimeout = "timeout"
	StatusError   = "error"
)

// ErrMissingHash is returned when a conflict response carries no usable hash.
var ErrMissingHash = errors.New("conflict response missing hash")

// Client talks to a MediaCrush-compatible service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
}

// Config holds MediaCrush client configuration.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// New creates a new MediaCrush client.
func New(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = "https://mediacru.sh"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "mediacrusher-bot/1.0"
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:   strings.TrimRight(base, "/"),
		userAgent: ua,
	}
}

// UploadResult is the outcome of a successful (or duplicate) upload.
type UploadResult struct {
	// Hash is the service-assigned token identifying the upload session.
	Hash string
	// AlreadyHosted is set when the service answered with a conflict,
	// meaning this exact content was processed before. The hash still
	// identifies the pre-existing item and polling proceeds normally.
	AlreadyHosted bool
}

// FileInfo is the result metadata document for a finished upload.
type FileInfo struct {
	Compression float64 `json:"compression"`
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Upload submits media bytes as a multipart form with one file field.
// A 2xx response body is the session hash. A 409 response means the exact
// content was uploaded before; its body is the pre-existing hash and the
// result is flagged AlreadyHosted rather than treated as an error.
func (c *Client) Upload(ctx context.Context, filename, contentType string, data []byte) (*UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	// multipart.CreateFormFile hardcodes application/octet-stream; the
	// service wants the real media type on the part.
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filename)))
	header.Set("Content-Type", contentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write form part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload/", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return &UploadResult{Hash: strings.TrimSpace(string(body))}, nil
	case resp.StatusCode == http.StatusConflict:
		hash := strings.TrimSpace(string(body))
		if hash == "" {
			return nil, ErrMissingHash
		}
		return &UploadResult{Hash: hash, AlreadyHosted: true}, nil
	default:
		if rl := parseRateLimit(resp); rl != nil {
			return nil, rl
		}
		return nil, fmt.Errorf("upload failed (status %d): %s", resp.StatusCode, string(body))
	}
}

// Status returns the processing status token for a session hash. The body
// is plain text: done, timeout, error, or anything else for still-pending.
func (c *Client) Status(ctx context.Context, hash string) (string, error) {
	body, err := c.get(ctx, c.baseURL+"/upload/status/"+hash)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// FileInfo fetches the JSON result document for a finished upload.
func (c *Client) FileInfo(ctx context.Context, hash string) (*FileInfo, error) {
	body, err := c.get(ctx, c.baseURL+"/"+hash+".json")
	if err != nil {
		return nil, err
	}
	var info FileInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode file info: %w", err)
	}
	return &info, nil
}

// PageURL returns the public page for a hash, suitable for replies.
func (c *Client) PageURL(hash string) string {
	return c.baseURL + "/" + hash
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if rl := parseRateLimit(resp); rl != nil {
			return nil, rl
		}
		return nil, fmt.Errorf("request failed (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}
