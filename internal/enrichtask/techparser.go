package enrichtask

import (
	"context"
	"regexp"
)

// techSignature pairs a technology name with a pattern that indicates its
// presence in page markup, the same class of fingerprint BuiltWith's own
// crawl index is built from.
type techSignature struct {
	name    string
	pattern *regexp.Regexp
}

var techSignatures = []techSignature{
	{"WordPress", regexp.MustCompile(`(?i)wp-content|wp-includes|content="WordPress`)},
	{"Shopify", regexp.MustCompile(`(?i)cdn\.shopify\.com|Shopify\.theme`)},
	{"React", regexp.MustCompile(`(?i)data-reactroot|react-dom`)},
	{"Next.js", regexp.MustCompile(`(?i)__NEXT_DATA__|_next/static`)},
	{"HubSpot", regexp.MustCompile(`(?i)js\.hs-scripts\.com|hubspot`)},
	{"Google Analytics", regexp.MustCompile(`(?i)google-analytics\.com|gtag\(`)},
	{"Cloudflare", regexp.MustCompile(`(?i)cloudflare`)},
	{"Webflow", regexp.MustCompile(`(?i)webflow\.com|data-wf-site`)},
	{"Salesforce", regexp.MustCompile(`(?i)force\.com|salesforce`)},
	{"Intercom", regexp.MustCompile(`(?i)widget\.intercom\.io`)},
	{"Marketo", regexp.MustCompile(`(?i)munchkin\.js|marketo\.com`)},
	{"Segment", regexp.MustCompile(`(?i)cdn\.segment\.com`)},
}

// RegexTechParser is the default WebsiteTechParser: a best-effort scan of
// the already-fetched profile markup for recognizable technology
// fingerprints, used when TechnographicFetcher (pkg/builtwith) errs.
type RegexTechParser struct{}

// ParseTechStack satisfies WebsiteTechParser.
func (RegexTechParser) ParseTechStack(_ context.Context, profile string) ([]string, error) {
	var found []string
	for _, sig := range techSignatures {
		if sig.pattern.MatchString(profile) {
			found = append(found, sig.name)
		}
	}
	return found, nil
}
