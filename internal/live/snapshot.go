package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/campuslabs/livewire/internal/logging"
	"github.com/campuslabs/livewire/internal/metrics"
	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when no snapshot exists for a match
var ErrNotFound = errors.New("match snapshot not found")

// Fetcher retrieves a record from the CMS on a cache miss
type Fetcher interface {
	Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error)
}

// Config contains snapshot service configuration
type Config struct {
	// Maximum number of match snapshots kept in memory
	SnapshotCacheSize int
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		SnapshotCacheSize: 256,
	}
}

// Matches keeps the latest known state of each match so a newly
// connected client has a starting snapshot. Updates are merged as
// they arrive from the webhook ingress; this is current state only,
// never a replayable history.
type Matches struct {
	cache   *lru.Cache
	fetcher Fetcher
	mu      sync.Mutex
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewMatches creates a new snapshot service. fetcher may be nil, in
// which case a cache miss is simply a miss.
func NewMatches(config Config, fetcher Fetcher) (*Matches, error) {
	if config.SnapshotCacheSize == 0 {
		config.SnapshotCacheSize = DefaultConfig().SnapshotCacheSize
	}

	cache, err := lru.New(config.SnapshotCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot cache: %w", err)
	}

	return &Matches{
		cache:   cache,
		fetcher: fetcher,
		logger:  logging.Component("live"),
		metrics: metrics.GetMetrics(),
	}, nil
}

// Record merges an update into the cached snapshot for its match.
// The two-phase webhook emission means a minimal entry may be merged
// first and the fuller one layered on top.
func (m *Matches) Record(entry map[string]interface{}) {
	id, ok := entryID(entry)
	if !ok {
		m.logger.Debug().Msg("Snapshot update without an id, skipping")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	merged := make(map[string]interface{}, len(entry))
	if existing, found := m.cache.Get(id); found {
		for k, v := range existing.(map[string]interface{}) {
			merged[k] = v
		}
	}
	for k, v := range entry {
		merged[k] = v
	}

	if evicted := m.cache.Add(id, merged); evicted {
		m.metrics.SnapshotCacheOps.WithLabelValues("evict").Inc()
	}
	m.metrics.SnapshotCacheOps.WithLabelValues("store").Inc()
}

// Get returns the current snapshot for one match. On a cache miss the
// record is fetched from the CMS and cached.
func (m *Matches) Get(ctx context.Context, id string) (map[string]interface{}, error) {
	if value, found := m.cache.Get(id); found {
		m.metrics.SnapshotCacheOps.WithLabelValues("hit").Inc()
		return value.(map[string]interface{}), nil
	}
	m.metrics.SnapshotCacheOps.WithLabelValues("miss").Inc()

	if m.fetcher == nil {
		return nil, ErrNotFound
	}

	raw, err := m.fetcher.Get(ctx, "/api/matches/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch match %s: %w", id, err)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode match %s: %w", id, err)
	}

	m.Record(entry)
	return entry, nil
}

// List returns every cached snapshot
func (m *Matches) List() []map[string]interface{} {
	keys := m.cache.Keys()
	out := make([]map[string]interface{}, 0, len(keys))
	for _, key := range keys {
		if value, found := m.cache.Peek(key); found {
			out = append(out, value.(map[string]interface{}))
		}
	}
	return out
}

// entryID normalizes the externally-shaped id field to a string key.
// JSON decoding yields float64 for numbers.
func entryID(entry map[string]interface{}) (string, bool) {
	switch id := entry["id"].(type) {
	case string:
		if id == "" {
			return "", false
		}
		return id, true
	case float64:
		return fmt.Sprintf("%.0f", id), true
	case int:
		return fmt.Sprintf("%d", id), true
	default:
		return "", false
	}
}
