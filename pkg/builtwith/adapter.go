package builtwith

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

// TechnographicAdapter satisfies internal/enrichtask.TechnographicFetcher
// over a Client, translating a website URL into the bare domain BuiltWith
// expects and the Technology list into flat technology names.
type TechnographicAdapter struct {
	Client Client
}

// FetchTechStack looks up websiteURL's domain and returns the
// fingerprinted technology names.
func (a TechnographicAdapter) FetchTechStack(ctx context.Context, websiteURL string) ([]string, error) {
	domain, err := domainOf(websiteURL)
	if err != nil {
		return nil, err
	}
	result, err := a.Client.Lookup(ctx, domain)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(result.Technologies))
	for _, t := range result.Technologies {
		names = append(names, t.Name)
	}
	return names, nil
}

func domainOf(websiteURL string) (string, error) {
	raw := strings.TrimSpace(websiteURL)
	if raw == "" {
		return "", eris.New("builtwith: empty website url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", eris.Wrap(err, "builtwith: parse website url")
	}
	host := strings.TrimPrefix(parsed.Host, "www.")
	if host == "" {
		return "", eris.Errorf("builtwith: no host in website url %q", websiteURL)
	}
	return host, nil
}
