package enrichtask

import (
	"regexp"
	"strings"
)

var (
	activityBlockPattern = regexp.MustCompile(`(?is)<article[^>]*>(.*?)</article>`)
	activityTagPattern   = regexp.MustCompile(`(?s)<[^>]+>`)
	activityHrefPattern  = regexp.MustCompile(`(?i)href="([^"]+)"`)
	activityWSPattern    = regexp.MustCompile(`\s+`)
)

// RegexActivityParser is the default HTMLActivityParser. LinkedIn renders
// each post/comment/reaction inside an <article> element, so parsing
// extracts one RawActivity per block: strip markup down to visible text,
// take the first href in the block as the item's URL.
type RegexActivityParser struct{}

// ParsePosts satisfies HTMLActivityParser.
func (RegexActivityParser) ParsePosts(html string) ([]RawActivity, error) {
	return parseActivityBlocks("post", html), nil
}

// ParseComments satisfies HTMLActivityParser.
func (RegexActivityParser) ParseComments(html string) ([]RawActivity, error) {
	return parseActivityBlocks("comment", html), nil
}

// ParseReactions satisfies HTMLActivityParser.
func (RegexActivityParser) ParseReactions(html string) ([]RawActivity, error) {
	return parseActivityBlocks("reaction", html), nil
}

func parseActivityBlocks(kind, html string) []RawActivity {
	matches := activityBlockPattern.FindAllStringSubmatch(html, -1)
	activities := make([]RawActivity, 0, len(matches))
	for _, m := range matches {
		block := m[1]
		text := activityWSPattern.ReplaceAllString(activityTagPattern.ReplaceAllString(block, " "), " ")
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		url := ""
		if href := activityHrefPattern.FindStringSubmatch(block); href != nil {
			url = href[1]
		}
		activities = append(activities, RawActivity{Kind: kind, Text: text, URL: url})
	}
	return activities
}
