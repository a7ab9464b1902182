// Package adapters holds cross-cutting http.RoundTripper wrappers shared
// by the pkg/* outbound API clients (Jina, Firecrawl, BuiltWith,
// Proxycurl, Apify, Perplexity), so rate limiting is configured once per
// client construction rather than reimplemented per adapter.
package adapters

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimitedTransport wraps an http.RoundTripper with a token-bucket
// limiter, blocking each outbound request until a token is available
// (or the request's context is cancelled) rather than rejecting bursts
// outright. Each of the third-party research APIs this engine calls
// enforces its own per-second/per-minute quota; this keeps the engine
// on the polite side of it instead of discovering the limit via 429s.
type RateLimitedTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
}

// NewRateLimitedTransport wraps next (http.DefaultTransport if nil) with
// a limiter allowing rps requests per second, up to burst at once.
func NewRateLimitedTransport(next http.RoundTripper, rps float64, burst int) *RateLimitedTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &RateLimitedTransport{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (t *RateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.next.RoundTrip(req)
}
