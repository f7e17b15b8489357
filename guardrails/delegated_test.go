package guardrails

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDelegatedRedactor_RequiresBaseURL(t *testing.T) {
	_, err := NewDelegatedRedactor(DelegatedConfig{})
	assert.Error(t, err)
}

func TestDelegatedRedactor_Redact(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/redact", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		var req delegatedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "call me on 10.1.2.3", req.Text)

		json.NewEncoder(w).Encode(delegatedResponse{
			RedactedText: "call me on <IP_ADDRESS>",
			WasRedacted:  true,
		})
	}))
	defer srv.Close()

	r, err := NewDelegatedRedactor(DelegatedConfig{BaseURL: srv.URL, APIKey: "secret"})
	require.NoError(t, err)

	text, was, err := r.Redact(context.Background(), "call me on 10.1.2.3")
	require.NoError(t, err)
	assert.True(t, was)
	assert.Equal(t, "call me on <IP_ADDRESS>", text)
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestDelegatedRedactor_NoAuthHeaderWithoutKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(delegatedResponse{RedactedText: "x", WasRedacted: false})
	}))
	defer srv.Close()

	r, err := NewDelegatedRedactor(DelegatedConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	_, _, err = r.Redact(context.Background(), "x")
	require.NoError(t, err)
}

func TestDelegatedRedactor_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	r, err := NewDelegatedRedactor(DelegatedConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, _, err = r.Redact(context.Background(), "text")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "status=500")
}

func TestDelegatedRedactor_Unreachable(t *testing.T) {
	r, err := NewDelegatedRedactor(DelegatedConfig{BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	_, _, err = r.Redact(context.Background(), "text")
	assert.Error(t, err)
}

func TestDelegatedRedactor_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	r, err := NewDelegatedRedactor(DelegatedConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, _, err = r.Redact(context.Background(), "text")
	assert.Error(t, err)
}
