package webhook

import (
	"crypto/subtle"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/campuslabs/livewire/internal/logging"
	"github.com/campuslabs/livewire/internal/metrics"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// matchScoreModel is the one content model republished to live
// subscribers. Other models are acknowledged but not broadcast.
const matchScoreModel = "match-score"

// Config contains webhook ingress configuration
type Config struct {
	// Environment variables holding the shared secrets. Two are
	// accepted at once so a secret can be rotated without dropping
	// deliveries; both are re-read on every request.
	SecretEnv     string
	SecretNextEnv string

	// Delay before the full payload follows the minimal one
	FullPayloadDelay time.Duration
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		SecretEnv:        "LIVEWIRE_WEBHOOK_SECRET",
		SecretNextEnv:    "LIVEWIRE_WEBHOOK_SECRET_NEXT",
		FullPayloadDelay: 100 * time.Millisecond,
	}
}

// Broadcaster fans one message out to all live subscribers
type Broadcaster interface {
	Broadcast(msg string)
}

// SnapshotRecorder keeps the latest known state of a changed record
type SnapshotRecorder interface {
	Record(entry map[string]interface{})
}

// changeEvent is the CMS notification body. The entry shape is not
// contractually guaranteed beyond "valid JSON", so fields are picked
// out defensively.
type changeEvent struct {
	Event string                 `json:"event"`
	Model string                 `json:"model"`
	Entry map[string]interface{} `json:"entry"`
}

// updateMessage is the payload fanned out to subscribers
type updateMessage struct {
	Type  string                 `json:"type"`
	Model string                 `json:"model"`
	Entry map[string]interface{} `json:"entry"`
}

// Fields for the two emission phases. The minimal set is the smallest
// useful score update; the full set adds the descriptive fields.
var (
	minimalFields = []string{"id", "team_a_score", "team_b_score", "status"}
	fullFields    = []string{"id", "team_a_score", "team_b_score", "status", "team_a", "team_b", "match_date"}
)

// Handler accepts authenticated change notifications from the CMS and
// republishes recognized ones to the subscriber registry.
type Handler struct {
	config    Config
	registry  Broadcaster
	snapshots SnapshotRecorder
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// NewHandler creates a new webhook ingress. snapshots may be nil.
func NewHandler(config Config, registry Broadcaster, snapshots SnapshotRecorder) *Handler {
	if config.SecretEnv == "" {
		config.SecretEnv = DefaultConfig().SecretEnv
	}
	if config.SecretNextEnv == "" {
		config.SecretNextEnv = DefaultConfig().SecretNextEnv
	}
	if config.FullPayloadDelay == 0 {
		config.FullPayloadDelay = DefaultConfig().FullPayloadDelay
	}

	return &Handler{
		config:    config,
		registry:  registry,
		snapshots: snapshots,
		logger:    logging.Component("webhook"),
		metrics:   metrics.GetMetrics(),
	}
}

// Register registers the webhook route with a Fiber app
func (h *Handler) Register(app *fiber.App) {
	app.Post("/webhooks/cms", h.Handle)
}

// Handle processes one CMS change notification
func (h *Handler) Handle(c *fiber.Ctx) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error().Interface("panic", rec).Msg("Webhook processing panicked")
			h.metrics.WebhookRequestsTotal.WithLabelValues("error").Inc()
			err = c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"ok":      false,
				"message": "Internal Server Error",
			})
		}
	}()

	// Reject before the body is parsed or trusted
	if !h.authorized(c.Get(fiber.HeaderAuthorization)) {
		h.metrics.WebhookRequestsTotal.WithLabelValues("unauthorized").Inc()
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"ok":      false,
			"message": "Unauthorized",
		})
	}

	var event changeEvent
	if err := json.Unmarshal(c.Body(), &event); err != nil {
		h.logger.Error().Err(err).Msg("Failed to parse webhook body")
		h.metrics.WebhookRequestsTotal.WithLabelValues("error").Inc()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"ok":      false,
			"message": "Internal Server Error",
		})
	}

	if event.Model != matchScoreModel {
		h.logger.Debug().Str("model", event.Model).Msg("Ignoring change for unrecognized model")
		h.metrics.WebhookRequestsTotal.WithLabelValues("ignored").Inc()
		return c.JSON(fiber.Map{"ok": true})
	}

	h.publish(event)
	h.metrics.WebhookRequestsTotal.WithLabelValues("accepted").Inc()
	return c.JSON(fiber.Map{"ok": true})
}

// authorized checks the bearer credential against the configured
// shared secrets. Secrets are read from the environment per request
// and trimmed, so rotation needs no restart.
func (h *Handler) authorized(header string) bool {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return false
	}

	for _, env := range []string{h.config.SecretEnv, h.config.SecretNextEnv} {
		secret := strings.TrimSpace(os.Getenv(env))
		if secret == "" {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1 {
			return true
		}
	}
	return false
}

// publish emits the two-phase broadcast for a match-score change: the
// minimal score update immediately, the full payload shortly after.
// Per-subscriber ordering of the registry guarantees a given client
// sees minimal before full.
func (h *Handler) publish(event changeEvent) {
	action := strings.TrimPrefix(event.Event, "entry.")

	minimal := pick(event.Entry, minimalFields)
	h.broadcast(action, event.Model, minimal, "minimal")

	full := pick(event.Entry, fullFields)
	time.AfterFunc(h.config.FullPayloadDelay, func() {
		h.broadcast(action, event.Model, full, "full")
	})
}

// broadcast serializes one update message and hands it to the registry
func (h *Handler) broadcast(action, model string, entry map[string]interface{}, phase string) {
	data, err := json.Marshal(updateMessage{
		Type:  action,
		Model: model,
		Entry: entry,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("phase", phase).Msg("Failed to serialize update message")
		return
	}

	h.registry.Broadcast(string(data))
	h.metrics.WebhookBroadcastsTotal.WithLabelValues(phase).Inc()

	if h.snapshots != nil {
		h.snapshots.Record(entry)
	}
}

// pick copies the named fields out of an externally-shaped entry.
// Missing fields are simply absent from the result.
func pick(entry map[string]interface{}, fields []string) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for _, field := range fields {
		if value, ok := entry[field]; ok {
			out[field] = value
		}
	}
	return out
}
