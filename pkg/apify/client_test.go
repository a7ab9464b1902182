package apify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScrapeLinkedInActivity_ReturnsPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/acts/linkedin-activity-scraper/run-sync")
		assert.Equal(t, "test-key", r.URL.Query().Get("token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"posts_html": "<p>post</p>", "comments_html": "<p>comment</p>", "reactions_html": "<p>like</p>"}`))
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	payload, err := client.ScrapeLinkedInActivity(context.Background(), "https://linkedin.com/in/someone")
	require.NoError(t, err)
	assert.Equal(t, "<p>post</p>", payload.PostsHTML)
	assert.Equal(t, "<p>comment</p>", payload.CommentsHTML)
	assert.Equal(t, "<p>like</p>", payload.ReactionsHTML)
}

func TestScrapeLinkedInActivity_EmptyProfileURLIsError(t *testing.T) {
	client := NewClient("test-key")
	_, err := client.ScrapeLinkedInActivity(context.Background(), "")
	assert.Error(t, err)
}

func TestScrapeLinkedInActivity_RetriesOn5xx(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	_, err := client.ScrapeLinkedInActivity(context.Background(), "https://linkedin.com/in/someone")
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestActivityFetcher_FetchRawActivity_OverHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"posts_html": "p", "comments_html": "c", "reactions_html": "r"}`))
	}))
	defer server.Close()

	fetcher := ActivityFetcher{Client: NewClient("k", WithBaseURL(server.URL))}
	posts, comments, reactions, err := fetcher.FetchRawActivity(context.Background(), "https://linkedin.com/in/someone")
	require.NoError(t, err)
	assert.Equal(t, "p", posts)
	assert.Equal(t, "c", comments)
	assert.Equal(t, "r", reactions)
}
