package enrichtask

import (
	"context"

	"go.uber.org/zap"
)

// FallbackProfileFetcher tries Primary first (Jina's reader); if that
// errs, it falls back to Secondary (Firecrawl's scraper, which renders
// JS-heavy pages Jina's reader sometimes can't).
type FallbackProfileFetcher struct {
	Primary   WebProfileFetcher
	Secondary WebProfileFetcher
	Log       *zap.Logger
}

// FetchProfile satisfies WebProfileFetcher.
func (f FallbackProfileFetcher) FetchProfile(ctx context.Context, websiteURL string) (string, error) {
	profile, err := f.Primary.FetchProfile(ctx, websiteURL)
	if err == nil {
		return profile, nil
	}
	if f.Secondary == nil {
		return "", err
	}
	log := f.Log
	if log == nil {
		log = zap.NewNop()
	}
	log.Warn("enrichtask: primary web profile fetch failed, falling back",
		zap.String("website_url", websiteURL), zap.Error(err))
	return f.Secondary.FetchProfile(ctx, websiteURL)
}
