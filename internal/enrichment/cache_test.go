package enrichment

import "testing"

func TestAPICacheKey_IgnoresCredentialHeaders(t *testing.T) {
	params := map[string]string{"q": "acme"}
	h1 := map[string]string{"Authorization": "Bearer old", "Accept": "application/json"}
	h2 := map[string]string{"Authorization": "Bearer new", "Accept": "application/json"}

	k1 := APICacheKey("GET", "https://api.example.com/search", params, h1)
	k2 := APICacheKey("GET", "https://api.example.com/search", params, h2)

	if k1 != k2 {
		t.Fatalf("rotating Authorization changed the cache key: %s != %s", k1, k2)
	}
}

func TestAPICacheKey_DiffersOnURL(t *testing.T) {
	k1 := APICacheKey("GET", "https://a.example.com", nil, nil)
	k2 := APICacheKey("GET", "https://b.example.com", nil, nil)
	if k1 == k2 {
		t.Fatal("expected different URLs to produce different cache keys")
	}
}

func TestLLMCacheKey_RespectsTemperature(t *testing.T) {
	t1, t2 := 0.0, 0.7
	base := func(temp *float64) string {
		return LLMCacheKey("prompt", "anthropic", "claude-haiku-4-5-20251001", true, "default", temp)
	}

	if base(&t1) == base(&t2) {
		t.Fatal("expected distinct temperatures to produce distinct cache keys")
	}
	if base(&t1) != base(&t1) {
		t.Fatal("expected identical temperature to produce identical cache key")
	}
	if base(nil) == base(&t1) {
		t.Fatal("expected nil (service default) temperature to differ from explicit 0.0")
	}
}

func TestSanitiseHeaders(t *testing.T) {
	in := map[string]string{
		"Authorization": "secret",
		"X-Api-Key":     "secret2",
		"api-key":       "secret3",
		"Accept":        "application/json",
	}
	out := SanitiseHeaders(in)
	if len(out) != 1 {
		t.Fatalf("expected 1 surviving header, got %d: %v", len(out), out)
	}
	if _, ok := out["Accept"]; !ok {
		t.Fatalf("expected Accept to survive sanitisation, got %v", out)
	}
}
