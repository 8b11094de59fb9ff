package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Web5design/MediaCrusher/internal/config"
)

// ProbeResult describes what a metadata-only request learned about a URL.
type ProbeResult struct {
	ContentType   string
	ContentLength int64
	StatusCode    int
	OK            bool
}

// HTTPDownloader probes and fetches remote media over HTTP.
type HTTPDownloader struct {
	// probeClient is used for short metadata requests with an overall timeout
	probeClient *http.Client
	// fetchClient is used for full payload downloads; no overall timeout,
	// but a response-header timeout so a dead server fails fast
	fetchClient *http.Client
	userAgent   string
	cfg         config.DownloadConfig
}

// NewHTTPDownloader creates a new HTTP media downloader.
func NewHTTPDownloader(cfg config.DownloadConfig) *HTTPDownloader {
	fetchTransport := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
	}

	return &HTTPDownloader{
		probeClient: &http.Client{
			Timeout: cfg.ProbeTimeout,
		},
		fetchClient: &http.Client{
			Transport: fetchTransport,
		},
		userAgent: cfg.UserAgent,
		cfg:       cfg,
	}
}

// Probe issues a HEAD request against the URL and reports the content type
// and status without transferring a body. The connection is released on
// every path.
func (d *HTTPDownloader) Probe(ctx context.Context, url string) (*ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.probeClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe request: %w", err)
	}
	defer resp.Body.Close()

	return &ProbeResult{
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		StatusCode:    resp.StatusCode,
		OK:            resp.StatusCode >= 200 && resp.StatusCode < 300,
	}, nil
}

// Download fetches the full payload as a byte slice, retrying transient
// failures with bounded exponential backoff.
func (d *HTTPDownloader) Download(ctx context.Context, url string) ([]byte, error) {
	retryCfg := RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  d.cfg.RetryDelay,
		MaxDelay:      d.cfg.MaxRetryDelay,
		BackoffFactor: 2.0,
	}

	data, err := Retry(ctx, retryCfg, func() ([]byte, error) {
		return d.downloadOnce(ctx, url)
	})
	if err != nil {
		return nil, fmt.Errorf("download failed after retries: %w", err)
	}
	return data, nil
}

func (d *HTTPDownloader) downloadOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.fetchClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body := io.Reader(resp.Body)
	if d.cfg.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, d.cfg.MaxBytes+1)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if d.cfg.MaxBytes > 0 && int64(len(data)) > d.cfg.MaxBytes {
		return nil, fmt.Errorf("payload exceeds %d bytes", d.cfg.MaxBytes)
	}
	return data, nil
}
