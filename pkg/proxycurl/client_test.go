package proxycurl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupCompany_ReturnsResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "acme.example", r.URL.Query().Get("domain"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"linkedin_profile_url": "https://linkedin.com/company/acme", "name": "Acme"}`))
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	result, err := client.LookupCompany(context.Background(), "Acme", "acme.example")
	require.NoError(t, err)
	assert.Equal(t, "https://linkedin.com/company/acme", result.LinkedInURL)
}

func TestLookupCompany_404IsEmptyResultNotError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	result, err := client.LookupCompany(context.Background(), "Acme", "acme.example")
	require.NoError(t, err)
	assert.Empty(t, result.LinkedInURL)
}

func TestLookupCompany_UsesRapidAPIHeadersWhenConfigured(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "rapid-key", r.Header.Get("X-RapidAPI-Key"))
		assert.Equal(t, rapidAPIHost, r.Header.Get("X-RapidAPI-Host"))
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient("", WithRapidAPIKey("rapid-key"), WithBaseURL(server.URL))
	_, err := client.LookupCompany(context.Background(), "Acme", "acme.example")
	require.NoError(t, err)
}

func TestLookupCompany_BothFieldsEmptyIsError(t *testing.T) {
	client := NewClient("test-key")
	_, err := client.LookupCompany(context.Background(), "", "")
	assert.Error(t, err)
}

func TestDomainOf_StripsSchemeAndPath(t *testing.T) {
	assert.Equal(t, "acme.example", domainOf("https://www.acme.example/about"))
	assert.Equal(t, "acme.example", domainOf("acme.example"))
}

func TestLinkedInDiscoverer_DiscoverAndValidate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"linkedin_profile_url": "https://linkedin.com/company/acme"}`))
	}))
	defer server.Close()

	discoverer := LinkedInDiscoverer{Client: NewClient("k", WithBaseURL(server.URL))}
	got, err := discoverer.DiscoverAndValidate(context.Background(), "Acme", "https://acme.example")
	require.NoError(t, err)
	assert.Equal(t, "https://linkedin.com/company/acme", got)
}
