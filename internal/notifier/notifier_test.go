package notifier

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamClientValidation(t *testing.T) {
	client := newStreamClient(8, testLogger())

	// Lifecycle strings pass through unchanged
	require.NoError(t, client.send(MessageConnected))
	require.NoError(t, client.send(MessageHeartbeat))

	// Valid JSON passes
	require.NoError(t, client.send(`{"type":"update","model":"match-score"}`))

	// Anything else must be valid JSON; malformed messages are dropped,
	// not forwarded and not treated as a delivery failure
	require.NoError(t, client.send(`{"type":"update",`))
	require.NoError(t, client.send("not json at all"))

	assert.Len(t, client.out, 3, "dropped messages must not reach the wire")
	assert.Equal(t, MessageConnected, <-client.out)
	assert.Equal(t, MessageHeartbeat, <-client.out)
	assert.Equal(t, `{"type":"update","model":"match-score"}`, <-client.out)
}

func TestStreamClientBufferFull(t *testing.T) {
	client := newStreamClient(2, testLogger())

	require.NoError(t, client.send(`{"seq":1}`))
	require.NoError(t, client.send(`{"seq":2}`))

	// A full buffer is a per-subscriber delivery error
	err := client.send(`{"seq":3}`)
	assert.Error(t, err)

	// The earlier messages are unaffected
	assert.Equal(t, `{"seq":1}`, <-client.out)
	assert.Equal(t, `{"seq":2}`, <-client.out)
}

func TestStreamClientClosed(t *testing.T) {
	client := newStreamClient(2, testLogger())

	client.close()

	err := client.send(`{"seq":1}`)
	assert.Error(t, err, "sending on a closed connection must fail, not panic")

	// Closing again is safe
	assert.NotPanics(t, client.close)
}

func TestSSEFrame(t *testing.T) {
	assert.Equal(t, "data: connected\n\n", sseFrame(MessageConnected))
	assert.Equal(t, ": heartbeat\n\n", sseFrame(MessageHeartbeat))
	assert.Equal(t, "data: {\"id\":1}\n\n", sseFrame(`{"id":1}`))
}

func TestNewNotifierDefaults(t *testing.T) {
	n := NewNotifier(Config{}, NewRegistry())

	assert.Equal(t, 30*time.Second, n.config.HeartbeatInterval)
	assert.Equal(t, 64, n.config.ClientBufferSize)
}

func TestWebSocketUpgradeRequired(t *testing.T) {
	registry := NewRegistry()
	n := NewNotifier(DefaultConfig(), registry)

	app := fiber.New()
	n.RegisterWebSocketHandler(app)

	// A plain GET without an Upgrade header is refused
	req := httptest.NewRequest("GET", "/stream", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestCleanupIdempotent(t *testing.T) {
	registry := NewRegistry()
	client := newStreamClient(4, testLogger())
	handle := registry.Register(client.send)
	require.Equal(t, 1, registry.Len())

	// Model the connection teardown path: however many times the abort
	// path runs, deregistration and release happen exactly once.
	cleanup := func() {
		registry.Remove(handle)
		client.close()
	}

	cleanup()
	assert.Equal(t, 0, registry.Len())

	assert.NotPanics(t, cleanup)
	assert.Equal(t, 0, registry.Len())
}

func testLogger() zerolog.Logger { return zerolog.Nop() }
