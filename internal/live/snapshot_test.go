package live

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher stands in for the CMS client
type fakeFetcher struct {
	responses map[string]string
	calls     int
}

func (f *fakeFetcher) Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	f.calls++
	if body, ok := f.responses[path]; ok {
		return json.RawMessage(body), nil
	}
	return nil, fmt.Errorf("no such path: %s", path)
}

func TestRecordAndGet(t *testing.T) {
	matches, err := NewMatches(DefaultConfig(), nil)
	require.NoError(t, err)

	matches.Record(map[string]interface{}{
		"id":           float64(7),
		"team_a_score": float64(2),
		"team_b_score": float64(1),
		"status":       "live",
	})

	snapshot, err := matches.Get(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, float64(2), snapshot["team_a_score"])
	assert.Equal(t, "live", snapshot["status"])
}

func TestRecordMergesPhases(t *testing.T) {
	matches, err := NewMatches(DefaultConfig(), nil)
	require.NoError(t, err)

	// Minimal update first
	matches.Record(map[string]interface{}{
		"id":           float64(7),
		"team_a_score": float64(2),
		"team_b_score": float64(1),
		"status":       "live",
	})

	// Fuller update layered on top
	matches.Record(map[string]interface{}{
		"id":           float64(7),
		"team_a_score": float64(2),
		"team_b_score": float64(1),
		"status":       "live",
		"team_a":       "Hostel A",
		"team_b":       "Hostel B",
	})

	snapshot, err := matches.Get(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, "Hostel A", snapshot["team_a"])
	assert.Equal(t, float64(2), snapshot["team_a_score"])
}

func TestRecordLaterScoreWins(t *testing.T) {
	matches, err := NewMatches(DefaultConfig(), nil)
	require.NoError(t, err)

	matches.Record(map[string]interface{}{"id": float64(7), "team_a_score": float64(2)})
	matches.Record(map[string]interface{}{"id": float64(7), "team_a_score": float64(3)})

	snapshot, err := matches.Get(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, float64(3), snapshot["team_a_score"])
}

func TestRecordWithoutID(t *testing.T) {
	matches, err := NewMatches(DefaultConfig(), nil)
	require.NoError(t, err)

	// Silently skipped, nothing cached
	matches.Record(map[string]interface{}{"status": "live"})
	assert.Empty(t, matches.List())
}

func TestGetMissNoFetcher(t *testing.T) {
	matches, err := NewMatches(DefaultConfig(), nil)
	require.NoError(t, err)

	_, err = matches.Get(context.Background(), "404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetFallsBackToCMS(t *testing.T) {
	fetcher := &fakeFetcher{responses: map[string]string{
		"/api/matches/7": `{"id":7,"team_a":"Hostel A","status":"upcoming"}`,
	}}

	matches, err := NewMatches(DefaultConfig(), fetcher)
	require.NoError(t, err)

	snapshot, err := matches.Get(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, "Hostel A", snapshot["team_a"])
	assert.Equal(t, 1, fetcher.calls)

	// Second read is served from cache
	_, err = matches.Get(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.calls)
}

func TestList(t *testing.T) {
	matches, err := NewMatches(DefaultConfig(), nil)
	require.NoError(t, err)

	matches.Record(map[string]interface{}{"id": float64(1), "status": "live"})
	matches.Record(map[string]interface{}{"id": float64(2), "status": "finished"})

	assert.Len(t, matches.List(), 2)
}

func TestCacheEviction(t *testing.T) {
	matches, err := NewMatches(Config{SnapshotCacheSize: 2}, nil)
	require.NoError(t, err)

	matches.Record(map[string]interface{}{"id": float64(1)})
	matches.Record(map[string]interface{}{"id": float64(2)})
	matches.Record(map[string]interface{}{"id": float64(3)})

	// Oldest snapshot evicted
	assert.Len(t, matches.List(), 2)
	_, err = matches.Get(context.Background(), "1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEntryID(t *testing.T) {
	id, ok := entryID(map[string]interface{}{"id": float64(42)})
	assert.True(t, ok)
	assert.Equal(t, "42", id)

	id, ok = entryID(map[string]interface{}{"id": "abc"})
	assert.True(t, ok)
	assert.Equal(t, "abc", id)

	_, ok = entryID(map[string]interface{}{"id": nil})
	assert.False(t, ok)

	_, ok = entryID(map[string]interface{}{})
	assert.False(t, ok)
}
