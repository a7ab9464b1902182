package apify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrichment-engine/internal/enrichtask"
)

type stubActivityClient struct {
	payload ActivityPayload
	err     error
}

func (s stubActivityClient) ScrapeLinkedInActivity(_ context.Context, _ string) (ActivityPayload, error) {
	return s.payload, s.err
}

func TestActivityFetcher_FetchRawActivity(t *testing.T) {
	client := stubActivityClient{payload: ActivityPayload{
		PostsHTML: "<p>a</p>", CommentsHTML: "<p>b</p>", ReactionsHTML: "<p>c</p>",
	}}
	f := ActivityFetcher{Client: client}

	posts, comments, reactions, err := f.FetchRawActivity(context.Background(), "https://linkedin.com/in/x")
	require.NoError(t, err)
	assert.Equal(t, "<p>a</p>", posts)
	assert.Equal(t, "<p>b</p>", comments)
	assert.Equal(t, "<p>c</p>", reactions)
}

func TestRecentActivityFetcher_FetchRecentActivity(t *testing.T) {
	html := `<article><a href="https://linkedin.com/posts/1"><span>Announcing our new product line.</span></a></article>`
	client := stubActivityClient{payload: ActivityPayload{PostsHTML: html}}
	f := RecentActivityFetcher{
		Fetcher: ActivityFetcher{Client: client},
		Parser:  enrichtask.RegexActivityParser{},
	}

	out, err := f.FetchRecentActivity(context.Background(), "https://linkedin.com/in/x")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "post", out[0]["kind"])
	assert.Contains(t, out[0]["text"], "new product line")
	assert.Equal(t, "https://linkedin.com/posts/1", out[0]["url"])
}
