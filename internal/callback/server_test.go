package callback

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validHMACToken(secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(hmacVerifierMessage))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestServer_RejectsMissingOrBadToken(t *testing.T) {
	h := New(newFakeStatusStore(), &fakeResultStore{}, nil, nil, nil, nil, nil)
	srv := NewServer(h, NewHMACVerifier("shared-secret"), nil)
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	body := bytes.NewBufferString(`{"job_id":"j1","account_id":"a1","enrichment_type":"company_info","status":"completed"}`)
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/internal/enrichment-callback", body)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_AcceptsValidTokenAndReturnsSuccess(t *testing.T) {
	h := New(newFakeStatusStore(), &fakeResultStore{}, nil, nil, nil, nil, nil)
	secret := "shared-secret"
	srv := NewServer(h, NewHMACVerifier(secret), nil)
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	body := bytes.NewBufferString(`{"job_id":"j2","account_id":"a2","enrichment_type":"company_info","status":"completed"}`)
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/internal/enrichment-callback", body)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+validHMACToken(secret))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, resultSuccess, result.Status)
}
