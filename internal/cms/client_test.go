package cms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/api/matches/7", r.URL.Path)
		assert.Equal(t, "Bearer cms-token", r.Header.Get("Authorization"))
		assert.Equal(t, "status", r.URL.Query().Get("fields"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":7,"status":"live"}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Token: "cms-token"})

	query := url.Values{}
	query.Set("fields", "status")

	raw, err := client.Get(context.Background(), "/api/matches/7", query)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, float64(7), decoded["id"])
	assert.Equal(t, "live", decoded["status"])
}

func TestClientPost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Hostel A", body["team_a"])

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":11}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})

	raw, err := client.Post(context.Background(), "/api/matches", map[string]string{"team_a": "Hostel A"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":11}`, string(raw))
}

func TestClientStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not found"}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})

	_, err := client.Get(context.Background(), "/api/matches/999", nil)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	se, ok := err.(*StatusError)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestClientNoAuthHeaderWithoutToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	_, err := client.Get(context.Background(), "/api/matches", nil)
	require.NoError(t, err)
}

func TestClientContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := client.Get(ctx, "/api/matches", nil)
	assert.Error(t, err)
}

func TestClientDelete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "DELETE", r.Method)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	raw, err := client.Delete(context.Background(), "/api/matches/7")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(raw))
}
