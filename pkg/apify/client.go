// Package apify wraps Apify's actor-run API, used to scrape a lead's
// LinkedIn activity (posts, comments, reactions) for internal/enrichtask via a
// hosted scraping actor rather than owning a browser-automation stack
// directly.
package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrichment-engine/internal/adapters"
)

const defaultBaseURL = "https://api.apify.com/v2"

// Client runs a LinkedIn-activity scraping actor to completion (Apify's
// "run-sync" mode) and returns its three HTML payloads.
type Client interface {
	ScrapeLinkedInActivity(ctx context.Context, profileURL string) (ActivityPayload, error)
}

// ActivityPayload is one lead's scraped raw activity HTML, keyed by kind.
type ActivityPayload struct {
	PostsHTML     string `json:"posts_html"`
	CommentsHTML  string `json:"comments_html"`
	ReactionsHTML string `json:"reactions_html"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) { c.baseURL = url }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithActorID overrides the default LinkedIn-activity scraping actor.
func WithActorID(actorID string) Option {
	return func(c *httpClient) { c.actorID = actorID }
}

const defaultActorID = "linkedin-activity-scraper"

type httpClient struct {
	apiKey  string
	baseURL string
	actorID string
	http    *http.Client
}

// NewClient creates an Apify client authenticated with apiKey.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		actorID: defaultActorID,
		http: &http.Client{
			Timeout: 120 * time.Second,
			Transport: adapters.NewRateLimitedTransport(&http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			}, 1, 3),
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

const maxRetryAttempts = 3

type runSyncRequest struct {
	ProfileURL string `json:"profileUrl"`
}

func (c *httpClient) ScrapeLinkedInActivity(ctx context.Context, profileURL string) (ActivityPayload, error) {
	profileURL = strings.TrimSpace(profileURL)
	if profileURL == "" {
		return ActivityPayload{}, eris.New("apify: profile url is required")
	}

	body, err := json.Marshal(runSyncRequest{ProfileURL: profileURL})
	if err != nil {
		return ActivityPayload{}, eris.Wrap(err, "apify: marshal request")
	}

	requestURL := c.baseURL + "/acts/" + c.actorID + "/run-sync?token=" + c.apiKey

	backoff := time.Second
	var lastErr error

	for attempt := 0; attempt < maxRetryAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ActivityPayload{}, ctx.Err()
			case <-timer.C:
			}
			backoff *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(body))
		if err != nil {
			return ActivityPayload{}, eris.Wrap(err, "apify: create request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ActivityPayload{}, eris.Wrap(err, "apify: send request")
			}
			lastErr = eris.Wrap(err, "apify: send request")
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return ActivityPayload{}, eris.Wrap(err, "apify: read response")
		}

		if resp.StatusCode == http.StatusOK {
			var payload ActivityPayload
			if err := json.Unmarshal(respBody, &payload); err != nil {
				return ActivityPayload{}, eris.Wrap(err, "apify: unmarshal response")
			}
			return payload, nil
		}

		lastErr = eris.Errorf("apify: unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			continue
		}
		return ActivityPayload{}, lastErr
	}

	return ActivityPayload{}, lastErr
}
