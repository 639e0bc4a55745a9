// Package collector talks to the downstream publication collector over HTTP.
package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/publication-harvester/internal/crawler"
)

const maxErrorBody = 512

// Config points the client at the collector.
type Config struct {
	// Endpoint receives POSTed publication batches.
	Endpoint string
	// ExistingEndpoint lists titles already stored. Optional.
	ExistingEndpoint string
	UserAgent        string
	Timeout          time.Duration
}

// Client implements crawler.Collector and crawler.IdentifierSource.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New returns a collector client. A nil httpClient gets one bounded by cfg.Timeout.
func New(cfg Config, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("collector endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger}, nil
}

type publicationsBody struct {
	Publications []crawler.RecordPayload `json:"publications"`
}

// SendBatch posts all records in one request.
func (c *Client) SendBatch(ctx context.Context, records []crawler.PublicationRecord) error {
	body := publicationsBody{Publications: make([]crawler.RecordPayload, 0, len(records))}
	for _, r := range records {
		body.Publications = append(body.Publications, r.Payload())
	}
	return c.post(ctx, body)
}

// SendOne posts a single record using the batch envelope.
func (c *Client) SendOne(ctx context.Context, record crawler.PublicationRecord) error {
	return c.post(ctx, publicationsBody{Publications: []crawler.RecordPayload{record.Payload()}})
}

func (c *Client) post(ctx context.Context, body publicationsBody) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode publications: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setCommonHeaders(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post publications: %w", err)
	}
	defer drain(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: status %d: %s", crawler.ErrDeliveryStatus, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	c.logger.Debug("publications delivered",
		zap.Int("count", len(body.Publications)),
		zap.Int("status", resp.StatusCode),
	)
	return nil
}

type existingBody struct {
	Titles       []string `json:"titles"`
	Publications []struct {
		Title string `json:"title"`
	} `json:"publications"`
}

// ExistingTitles fetches the titles the collector already stores. It accepts
// either {"titles": [...]} or {"publications": [{"title": ...}]}.
func (c *Client) ExistingTitles(ctx context.Context) ([]string, error) {
	if c.cfg.ExistingEndpoint == "" {
		return nil, errors.New("existing titles endpoint is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ExistingEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	c.setCommonHeaders(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get existing titles: %w", err)
	}
	defer drain(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("get existing titles: status %d", resp.StatusCode)
	}

	var body existingBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode existing titles: %w", err)
	}
	titles := body.Titles
	for _, p := range body.Publications {
		titles = append(titles, p.Title)
	}
	return titles, nil
}

func (c *Client) setCommonHeaders(ctx context.Context, req *http.Request) {
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if id := crawler.SessionIDFrom(ctx); id != "" {
		req.Header.Set("X-Crawl-Session", id)
	}
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
