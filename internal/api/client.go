// Package api fetches raw episodes from a json-server style episodes API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"podcaster/internal/metrics"
	"podcaster/internal/models"
)

const (
	defaultTimeout   = 15 * time.Second
	maxResponseBytes = 8 << 20
	userAgent        = "podcaster/1.0"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("episodes request failed: %s", e.Status)
	}
	return fmt.Sprintf("episodes request failed: %s (%s)", e.Status, e.Body)
}

// Client calls the episodes endpoint of the API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     zerolog.Logger
}

// New creates a client for the API rooted at baseURL. A nil httpClient gets
// a client with a 15s timeout.
func New(baseURL string, httpClient *http.Client, logger zerolog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("api url %q must use http or https", baseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("api url %q has no host", baseURL)
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &Client{baseURL: base, httpClient: httpClient, logger: logger}, nil
}

// EpisodesURL returns the request URL for q.
func (c *Client) EpisodesURL(q models.EpisodeQuery) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/episodes"

	values := u.Query()
	if q.Limit > 0 {
		values.Set("_limit", strconv.Itoa(q.Limit))
	}
	if q.Sort != "" {
		values.Set("_sort", q.Sort)
	}
	if q.Order != "" {
		values.Set("_order", q.Order)
	}
	u.RawQuery = values.Encode()
	return u.String()
}

// FetchEpisodes returns the episodes in the order the API sent them.
func (c *Client) FetchEpisodes(ctx context.Context, q models.EpisodeQuery) ([]models.RawEpisode, error) {
	episodes, err := c.fetch(ctx, q)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.SourceRequestsTotal.WithLabelValues("api", outcome).Inc()
	return episodes, err
}

func (c *Client) fetch(ctx context.Context, q models.EpisodeQuery) ([]models.RawEpisode, error) {
	target := c.EpisodesURL(q)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get episodes: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("url", target).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("episodes fetched")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	limited := io.LimitReader(resp.Body, maxResponseBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read episodes: %w", err)
	}
	if len(data) > maxResponseBytes {
		return nil, errors.New("episodes response too large")
	}

	var episodes []models.RawEpisode
	if err := json.Unmarshal(data, &episodes); err != nil {
		return nil, fmt.Errorf("decode episodes: %w", err)
	}
	if episodes == nil {
		episodes = []models.RawEpisode{}
	}
	return episodes, nil
}
