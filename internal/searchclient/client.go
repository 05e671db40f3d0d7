package searchclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joelkehle/patent-assistant/internal/patentqa"
)

const (
	SearchPath      = "/search_by_keywords"
	DefaultTimeout  = 60 * time.Second
	maxResponseSize = 32 << 20
)

var ErrIndexUnavailable = errors.New("index unavailable")

// SearchError is any non-404 failure reported by the index server.
type SearchError struct {
	Status int
	Detail string
}

func (e *SearchError) Error() string {
	return "search error: " + e.Detail
}

type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client issues keyword batches to a DocumentIndexService over HTTP. It does
// not retry; every failure is returned to the caller as-is.
type Client struct {
	cfg    Config
	logger *zap.Logger
}

func New(cfg Config) (*Client, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, errors.New("index server url not configured")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{cfg: cfg, logger: cfg.Logger.With(zap.String("component", "searchclient"))}, nil
}

type wireDocument struct {
	PageContent string         `json:"page_content"`
	Metadata    map[string]any `json:"metadata"`
}

type searchResponse struct {
	Documents []wireDocument `json:"documents"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (c *Client) Search(ctx context.Context, q patentqa.SearchQuery) (*patentqa.DocumentSet, error) {
	if len(q.Keywords) == 0 {
		return nil, patentqa.ErrEmptyKeywords
	}
	if q.KPerKeyword <= 0 {
		q.KPerKeyword = patentqa.DefaultKPerKeyword
	}
	started := time.Now()
	resp, err := c.executeOnce(ctx, q)
	if err != nil {
		c.logger.Warn("search_failed",
			zap.String("index", q.IndexID),
			zap.Strings("keywords", q.Keywords),
			zap.Error(err),
		)
		return nil, err
	}

	set := patentqa.NewDocumentSet()
	for _, d := range resp.Documents {
		set.Add(patentqa.NewRetrievedDocument(d.PageContent, d.Metadata))
	}
	c.logger.Debug("search_done",
		zap.String("index", q.IndexID),
		zap.Int("keywords", len(q.Keywords)),
		zap.Int("received", len(resp.Documents)),
		zap.Int("documents", set.Len()),
		zap.Int64("elapsed_ms", time.Since(started).Milliseconds()),
	)
	return set, nil
}

func (c *Client) executeOnce(ctx context.Context, q patentqa.SearchQuery) (searchResponse, error) {
	payload, err := json.Marshal(q)
	if err != nil {
		return searchResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+SearchPath, bytes.NewReader(payload))
	if err != nil {
		return searchResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return searchResponse{}, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(io.LimitReader(res.Body, maxResponseSize))
	if err != nil {
		return searchResponse{}, fmt.Errorf("read search response: %w", err)
	}

	if res.StatusCode == http.StatusNotFound {
		return searchResponse{}, fmt.Errorf("%w: %s", ErrIndexUnavailable, detailFromBody(b, q.IndexID))
	}
	if res.StatusCode >= 400 {
		return searchResponse{}, &SearchError{Status: res.StatusCode, Detail: detailFromBody(b, http.StatusText(res.StatusCode))}
	}

	var parsed searchResponse
	if err := json.Unmarshal(b, &parsed); err != nil {
		return searchResponse{}, fmt.Errorf("decode search response: %w", err)
	}
	return parsed, nil
}

func detailFromBody(b []byte, fallback string) string {
	var e errorResponse
	if err := json.Unmarshal(b, &e); err == nil && strings.TrimSpace(e.Detail) != "" {
		return e.Detail
	}
	if s := strings.TrimSpace(string(b)); s != "" {
		return s
	}
	return fallback
}
