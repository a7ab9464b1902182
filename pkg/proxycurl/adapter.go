package proxycurl

import (
	"context"
	"strings"
)

// LinkedInDiscoverer satisfies internal/enrichtask.LinkedInDiscoverer over
// a Client: resolve the company's LinkedIn page and treat a non-empty
// result as validated (Proxycurl only returns a profile it has already
// matched and deduplicated).
type LinkedInDiscoverer struct {
	Client Client
}

// DiscoverAndValidate returns the company's LinkedIn URL, or "" if
// Proxycurl has no match.
func (d LinkedInDiscoverer) DiscoverAndValidate(ctx context.Context, companyName, websiteURL string) (string, error) {
	result, err := d.Client.LookupCompany(ctx, companyName, domainOf(websiteURL))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.LinkedInURL), nil
}

func domainOf(websiteURL string) string {
	raw := strings.TrimSpace(websiteURL)
	raw = strings.TrimPrefix(raw, "https://")
	raw = strings.TrimPrefix(raw, "http://")
	raw = strings.TrimPrefix(raw, "www.")
	if i := strings.IndexAny(raw, "/?#"); i >= 0 {
		raw = raw[:i]
	}
	return raw
}
