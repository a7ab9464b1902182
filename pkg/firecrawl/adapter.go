package firecrawl

import "context"

// ProfileScraper satisfies internal/enrichtask.WebProfileFetcher over a
// Client, used as the fallback web-profile source when Jina's reader
// fails (Firecrawl renders JS-heavy pages Jina's reader sometimes can't).
type ProfileScraper struct {
	Client Client
}

// FetchProfile scrapes websiteURL and returns its markdown content.
func (s ProfileScraper) FetchProfile(ctx context.Context, websiteURL string) (string, error) {
	resp, err := s.Client.Scrape(ctx, ScrapeRequest{URL: websiteURL, Formats: []string{"markdown"}})
	if err != nil {
		return "", err
	}
	return resp.Data.Markdown, nil
}
