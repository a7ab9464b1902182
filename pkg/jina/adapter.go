package jina

import "context"

// ProfileReader satisfies internal/enrichtask.WebProfileFetcher over a
// Client, returning a website's Reader-extracted markdown content as the
// raw profile text fed into structured extraction.
type ProfileReader struct {
	Client Client
}

// FetchProfile reads websiteURL via Jina AI Reader.
func (r ProfileReader) FetchProfile(ctx context.Context, websiteURL string) (string, error) {
	resp, err := r.Client.Read(ctx, websiteURL)
	if err != nil {
		return "", err
	}
	return resp.Data.Content, nil
}
