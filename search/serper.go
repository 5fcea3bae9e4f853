// Package search implements the external news search client. It wraps a
// Serper-style keyword search API restricted to allow-listed sources and a
// recency window. The client performs no retries of its own; the
// orchestrator owns retry policy.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/telcowatch/telcowatch/core"
	"github.com/telcowatch/telcowatch/logging"
)

const stageName = "search"

// Options configure the search client.
type Options struct {
	BaseURL    string
	APIKey     string
	MaxResults int
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     logging.Logger
}

// Client queries the news search API and normalizes its hits into
// core.Candidate values. It implements core.SearchProvider.
type Client struct {
	baseURL    string
	apiKey     string
	maxResults int
	httpClient *http.Client
	log        logging.Logger
}

var _ core.SearchProvider = (*Client)(nil)

// NewClient constructs a search client.
func NewClient(optFns ...func(o *Options)) *Client {
	opts := Options{
		BaseURL:    "https://google.serper.dev",
		APIKey:     os.Getenv("SERPER_API_KEY"),
		MaxResults: 20,
		Timeout:    30 * time.Second,
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		maxResults: opts.MaxResults,
		httpClient: httpClient,
		log:        opts.Logger,
	}
}

type searchRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
	TBS string `json:"tbs,omitempty"`
}

type searchResponse struct {
	News []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
		Source  string `json:"source"`
		Date    string `json:"date"`
	} `json:"news"`
}

// Search runs every query in order, restricts results to the allow-listed
// sources, and returns candidates deduplicated by normalized URL. Quota
// exhaustion maps to KindRateLimited so the caller can apply a longer
// backoff; any other non-2xx response maps to KindSearchUnavailable.
func (c *Client) Search(ctx context.Context, queries []string, allowlist []string, windowDays int) ([]core.Candidate, error) {
	seen := make(map[string]bool)
	var candidates []core.Candidate

	for _, query := range queries {
		hits, err := c.searchOne(ctx, query, allowlist, windowDays)
		if err != nil {
			return nil, err
		}
		for _, cand := range hits {
			key := normalizeURL(cand.URL)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			candidates = append(candidates, cand)
		}
	}

	c.log.Debug("search completed", "queries", len(queries), "candidates", len(candidates))
	return candidates, nil
}

func (c *Client) searchOne(ctx context.Context, query string, allowlist []string, windowDays int) ([]core.Candidate, error) {
	body, err := json.Marshal(searchRequest{
		Q:   buildQuery(query, allowlist),
		Num: c.maxResults,
		TBS: recencyFilter(windowDays),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/news", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := core.KindSearchUnavailable
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() || errors.Is(err, context.DeadlineExceeded) {
			kind = core.KindProviderTimeout
		}
		return nil, core.NewStageError(kind, stageName, "", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, core.NewStageError(core.KindRateLimited, stageName, "",
			fmt.Errorf("search provider rate limited (%d)", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, core.NewStageError(core.KindSearchUnavailable, stageName, "",
			fmt.Errorf("search provider returned status %d", resp.StatusCode))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, core.NewStageError(core.KindSearchUnavailable, stageName, "",
			fmt.Errorf("decode search response: %w", err))
	}

	candidates := make([]core.Candidate, 0, len(parsed.News))
	for _, hit := range parsed.News {
		candidates = append(candidates, core.Candidate{
			Title:       hit.Title,
			Snippet:     hit.Snippet,
			URL:         hit.Link,
			Source:      hit.Source,
			PublishedAt: parseDate(hit.Date),
		})
	}
	return candidates, nil
}

// buildQuery appends site: restrictions for the allow-listed sources.
func buildQuery(query string, allowlist []string) string {
	if len(allowlist) == 0 {
		return query
	}
	sites := make([]string, len(allowlist))
	for i, domain := range allowlist {
		sites[i] = "site:" + domain
	}
	return query + " (" + strings.Join(sites, " OR ") + ")"
}

// recencyFilter maps a day window to the provider's time-based search
// parameter.
func recencyFilter(windowDays int) string {
	switch {
	case windowDays <= 0:
		return ""
	case windowDays == 1:
		return "qdr:d"
	case windowDays <= 7:
		return "qdr:w"
	case windowDays <= 31:
		return "qdr:m"
	default:
		return "qdr:y"
	}
}

// normalizeURL lowers the host, strips the scheme, fragment, query string
// and trailing slash so near-identical links dedupe to one candidate.
func normalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(strings.ToLower(raw))
	}
	host := strings.ToLower(strings.TrimPrefix(u.Host, "www."))
	path := strings.TrimRight(u.Path, "/")
	return host + path
}

// parseDate parses the handful of date shapes the provider emits. Unparsable
// dates degrade to the zero time rather than dropping the hit.
func parseDate(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02", "Jan 2, 2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
