package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"leadgen-platform/internal/config"
	"leadgen-platform/pkg/httpclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_SendsPromptAndJoinsParts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-1.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("x-goog-api-key"))

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		assert.Equal(t, "hello", req.Contents[0].Parts[0].Text)

		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"a\":"},{"text":"1}"}]}}]}`))
	}))
	defer srv.Close()

	c := New(config.GeminiConfig{APIKey: "k", BaseURL: srv.URL})
	out, err := c.Generate(context.Background(), "gemini-1.5-flash", "hello")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out)
}

func TestGenerate_EmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	c := New(config.GeminiConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := c.Generate(context.Background(), "m", "p")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGenerate_VendorErrorIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(config.GeminiConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := c.Generate(context.Background(), "m", "p")
	require.Error(t, err)
	assert.True(t, httpclient.IsStatus(err, http.StatusForbidden))
}

func TestGenerate_NotConfigured(t *testing.T) {
	c := New(config.GeminiConfig{BaseURL: "http://unused"})
	_, err := c.Generate(context.Background(), "m", "p")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
