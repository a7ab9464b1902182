package apify

import (
	"context"

	"github.com/sells-group/enrichment-engine/internal/enrichtask"
)

// ActivityFetcher is the thin seam the task-construction code in cmd
// (run.go, dispatch.go) uses to turn a lead's LinkedIn profile URL into the raw HTML
// payloads LinkedInActivityTask carries, ahead of HTMLActivityParser
// parsing them into RawActivity records.
type ActivityFetcher struct {
	Client Client
}

// FetchRawActivity scrapes profileURL and returns its three raw payloads.
func (f ActivityFetcher) FetchRawActivity(ctx context.Context, profileURL string) (postsHTML, commentsHTML, reactionsHTML string, err error) {
	payload, err := f.Client.ScrapeLinkedInActivity(ctx, profileURL)
	if err != nil {
		return "", "", "", err
	}
	return payload.PostsHTML, payload.CommentsHTML, payload.ReactionsHTML, nil
}

// RecentActivityFetcher adapts ActivityFetcher plus a posts parser into
// internal/customcolumn's LinkedInActivityFetcher, for columns configured
// with a LinkedIn-activity data source (spec §4.9 rule 2b): scrape, parse
// posts only (comments/reactions are noise for a custom-column prompt),
// and flatten into plain maps.
type RecentActivityFetcher struct {
	Fetcher ActivityFetcher
	Parser  enrichtask.HTMLActivityParser
}

// FetchRecentActivity implements customcolumn.LinkedInActivityFetcher.
func (f RecentActivityFetcher) FetchRecentActivity(ctx context.Context, linkedInURL string) ([]map[string]any, error) {
	postsHTML, _, _, err := f.Fetcher.FetchRawActivity(ctx, linkedInURL)
	if err != nil {
		return nil, err
	}
	posts, err := f.Parser.ParsePosts(postsHTML)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(posts))
	for _, p := range posts {
		out = append(out, map[string]any{"kind": p.Kind, "text": p.Text, "url": p.URL})
	}
	return out, nil
}
