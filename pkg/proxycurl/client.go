// Package proxycurl wraps the Proxycurl company/profile lookup API,
// used by internal/enrichtask to discover and validate a company's
// LinkedIn page. Some resellers front the same lookup through RapidAPI;
// WithRapidAPIKey configures that alternate credential/header scheme
// instead of adding a separate client.
package proxycurl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrichment-engine/internal/adapters"
)

const (
	defaultBaseURL  = "https://nubela.co/proxycurl/api"
	rapidAPIBaseURL = "https://proxycurl-proxycurl-v1.p.rapidapi.com"
	rapidAPIHost    = "proxycurl-proxycurl-v1.p.rapidapi.com"
)

// Client resolves a company's LinkedIn presence.
type Client interface {
	LookupCompany(ctx context.Context, companyName, websiteDomain string) (*CompanyResult, error)
}

// CompanyResult is Proxycurl's answer for one company lookup.
type CompanyResult struct {
	LinkedInURL string `json:"linkedin_profile_url"`
	Name        string `json:"name"`
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

// WithRapidAPIKey routes requests through RapidAPI's Proxycurl listing
// instead of Proxycurl's own API, using RapidAPI's key/host header
// scheme. Some deployments only hold a RAPID_API_KEY credential.
func WithRapidAPIKey(key string) Option {
	return func(c *httpClient) {
		c.rapidAPIKey = key
		c.baseURL = rapidAPIBaseURL
	}
}

type httpClient struct {
	apiKey      string
	rapidAPIKey string
	baseURL     string
	http        *http.Client
}

// NewClient creates a Proxycurl client authenticated with apiKey. Pass
// WithRapidAPIKey to authenticate through RapidAPI instead.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: adapters.NewRateLimitedTransport(&http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			}, 2, 5),
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

const maxRetryAttempts = 3

func (c *httpClient) LookupCompany(ctx context.Context, companyName, websiteDomain string) (*CompanyResult, error) {
	companyName = strings.TrimSpace(companyName)
	websiteDomain = strings.TrimSpace(websiteDomain)
	if companyName == "" && websiteDomain == "" {
		return nil, eris.New("proxycurl: company name or website domain is required")
	}

	q := url.Values{}
	if websiteDomain != "" {
		q.Set("domain", websiteDomain)
	}
	if companyName != "" {
		q.Set("company_name", companyName)
	}
	requestURL := c.baseURL + "/linkedin/company/resolve?" + q.Encode()

	backoff := 500 * time.Millisecond
	var lastErr error

	for attempt := 0; attempt < maxRetryAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			backoff *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, bytes.NewReader(nil))
		if err != nil {
			return nil, eris.Wrap(err, "proxycurl: create request")
		}
		c.authenticate(req)

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(err, "proxycurl: send request")
			}
			lastErr = eris.Wrap(err, "proxycurl: send request")
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, eris.Wrap(err, "proxycurl: read response")
		}

		if resp.StatusCode == http.StatusOK {
			var result CompanyResult
			if err := json.Unmarshal(body, &result); err != nil {
				return nil, eris.Wrap(err, "proxycurl: unmarshal response")
			}
			return &result, nil
		}
		if resp.StatusCode == http.StatusNotFound {
			return &CompanyResult{}, nil
		}

		lastErr = eris.Errorf("proxycurl: unexpected status %d: %s", resp.StatusCode, string(body))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			continue
		}
		return nil, lastErr
	}

	return nil, lastErr
}

func (c *httpClient) authenticate(req *http.Request) {
	if c.rapidAPIKey != "" {
		req.Header.Set("X-RapidAPI-Key", c.rapidAPIKey)
		req.Header.Set("X-RapidAPI-Host", rapidAPIHost)
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}
