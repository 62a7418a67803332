package notifier

import (
	"bufio"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/campuslabs/livewire/internal/logging"
	"github.com/campuslabs/livewire/internal/metrics"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"
)

// Reserved lifecycle messages. Anything else handed to a stream must
// be valid JSON before it reaches the wire.
const (
	MessageConnected = "connected"
	MessageHeartbeat = "heartbeat"
)

// Config contains notifier configuration
type Config struct {
	// Interval between keepalive frames on each connection
	HeartbeatInterval time.Duration

	// Per-connection outbound buffer size
	ClientBufferSize int
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 30 * time.Second,
		ClientBufferSize:  64,
	}
}

// Notifier turns incoming HTTP requests into long-lived streaming
// connections bound to the subscriber registry.
type Notifier struct {
	config   Config
	registry *Registry
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// NewNotifier creates a new streaming endpoint handler
func NewNotifier(config Config, registry *Registry) *Notifier {
	if config.HeartbeatInterval == 0 {
		config.HeartbeatInterval = DefaultConfig().HeartbeatInterval
	}
	if config.ClientBufferSize == 0 {
		config.ClientBufferSize = DefaultConfig().ClientBufferSize
	}

	return &Notifier{
		config:   config,
		registry: registry,
		logger:   logging.Component("notifier"),
		metrics:  metrics.GetMetrics(),
	}
}

// streamClient is the delivery side of one connection: the registry
// callback enqueues into out, the connection's writer goroutine
// drains it.
type streamClient struct {
	out     chan string
	mu      sync.Mutex
	closed  bool
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func newStreamClient(bufferSize int, logger zerolog.Logger) *streamClient {
	return &streamClient{
		out:     make(chan string, bufferSize),
		logger:  logger,
		metrics: metrics.GetMetrics(),
	}
}

// send validates and enqueues one outbound message. Lifecycle
// messages pass through unchanged; anything else must parse as JSON
// or it is dropped here, never forwarded malformed. A full buffer or
// a closed connection is a delivery error for this one subscriber.
func (c *streamClient) send(msg string) error {
	if msg != MessageConnected && msg != MessageHeartbeat && !json.Valid([]byte(msg)) {
		c.metrics.StreamMessagesDropped.Inc()
		c.logger.Warn().Str("message", msg).Msg("Dropping message that is not valid JSON")
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("connection closed")
	}

	select {
	case c.out <- msg:
		return nil
	default:
		c.metrics.StreamDeliveryErrors.WithLabelValues("buffer_full").Inc()
		return fmt.Errorf("subscriber buffer full, dropping message")
	}
}

// close releases the outbound channel. Safe to call more than once.
func (c *streamClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.out)
	}
}

// sseFrame encodes one message in the SSE wire format. Heartbeats go
// out as comment frames so intermediaries keep the connection open
// without the browser surfacing an event.
func sseFrame(msg string) string {
	if msg == MessageHeartbeat {
		return ": heartbeat\n\n"
	}
	return fmt.Sprintf("data: %s\n\n", msg)
}

// RegisterSSEHandler registers the Server-Sent Events handler with a Fiber app
func (n *Notifier) RegisterSSEHandler(app *fiber.App) {
	app.Get("/stream-sse", func(c *fiber.Ctx) error {
		// Event-stream framing, caching off, proxy buffering off
		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Set("Connection", "keep-alive")
		c.Set("Access-Control-Allow-Origin", "*")
		c.Set("X-Accel-Buffering", "no")

		client := newStreamClient(n.config.ClientBufferSize, n.logger)
		handle := n.registry.Register(client.send)
		ctx := c.Context()

		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			ticker := time.NewTicker(n.config.HeartbeatInterval)

			// The abort signal can fire more than once; cleanup must not.
			var once sync.Once
			cleanup := func() {
				once.Do(func() {
					ticker.Stop()
					n.registry.Remove(handle)
					client.close()
					n.logger.Debug().Str("handle", string(handle)).Msg("SSE connection closed")
				})
			}
			defer cleanup()

			// Let the client distinguish "stream open" from "never opened"
			if _, err := w.WriteString(sseFrame(MessageConnected)); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}

			for {
				select {
				case msg, ok := <-client.out:
					if !ok {
						return
					}
					if _, err := w.WriteString(sseFrame(msg)); err != nil {
						return
					}
					if err := w.Flush(); err != nil {
						return
					}
					n.metrics.StreamEventsPublished.WithLabelValues("sse").Inc()

				case <-ticker.C:
					if _, err := w.WriteString(sseFrame(MessageHeartbeat)); err != nil {
						return
					}
					if err := w.Flush(); err != nil {
						return
					}

				case <-ctx.Done():
					// Abort is the single source of truth for a dead connection
					return
				}
			}
		})

		return nil
	})
}

// RegisterWebSocketHandler registers the WebSocket variant of the
// streaming endpoint with a Fiber app
func (n *Notifier) RegisterWebSocketHandler(app *fiber.App) {
	// Middleware to upgrade connections to WebSocket
	app.Use("/stream", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/stream", websocket.New(func(conn *websocket.Conn) {
		client := newStreamClient(n.config.ClientBufferSize, n.logger)
		handle := n.registry.Register(client.send)

		ticker := time.NewTicker(n.config.HeartbeatInterval)
		done := make(chan struct{})

		var once sync.Once
		cleanup := func() {
			once.Do(func() {
				ticker.Stop()
				n.registry.Remove(handle)
				client.close()
				conn.Close()
				n.logger.Debug().Str("handle", string(handle)).Msg("WebSocket connection closed")
			})
		}
		defer cleanup()

		// Reader goroutine: the client sends nothing we act on, but a
		// read error is how we learn the connection dropped.
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		if err := conn.WriteMessage(websocket.TextMessage, []byte(MessageConnected)); err != nil {
			return
		}

		for {
			select {
			case msg, ok := <-client.out:
				if !ok {
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
					n.logger.Debug().Err(err).Str("handle", string(handle)).Msg("WebSocket write error")
					return
				}
				n.metrics.StreamEventsPublished.WithLabelValues("websocket").Inc()

			case <-ticker.C:
				if err := conn.WriteMessage(websocket.TextMessage, []byte(MessageHeartbeat)); err != nil {
					return
				}

			case <-done:
				return
			}
		}
	}))
}
