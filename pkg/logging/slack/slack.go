// Package slack provides a slog.Handler that forwards records to a Slack
// incoming webhook.
//
// Records are queued and posted by a background goroutine so a slow webhook
// never stalls the caller. When the queue is full, records are dropped.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Config holds the webhook settings.
type Config struct {
	// WebhookURL is the Slack incoming webhook URL (required).
	WebhookURL string

	// Channel overrides the webhook's default channel.
	Channel string

	// Username is shown as the message author. Typically "<name> <version>".
	Username string

	// Level is the minimum level forwarded. Default: INFO.
	Level slog.Leveler

	// QueueSize bounds the number of pending messages. Default: 256.
	QueueSize int

	// HTTPClient allows injecting a custom client (useful for testing).
	HTTPClient *http.Client
}

// payload is the JSON body accepted by Slack incoming webhooks.
type payload struct {
	Text     string `json:"text"`
	Username string `json:"username,omitempty"`
	Channel  string `json:"channel,omitempty"`
}

// Handler posts log records to Slack.
type Handler struct {
	cfg   Config
	attrs []slog.Attr
	group string
	sink  *sink
}

// sink is shared between a Handler and the handlers derived from it.
type sink struct {
	mu     sync.RWMutex
	closed bool
	queue  chan payload
	done   chan struct{}
}

// New creates a Handler and starts its delivery goroutine.
func New(cfg Config) *Handler {
	if cfg.Level == nil {
		cfg.Level = slog.LevelInfo
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}

	s := &sink{
		queue: make(chan payload, cfg.QueueSize),
		done:  make(chan struct{}),
	}
	h := &Handler{cfg: cfg, sink: s}
	go h.deliver()
	return h
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.Level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	fields := make(map[string]any, r.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		fields[h.key(a.Key)] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		fields[h.key(a.Key)] = a.Value.Any()
		return true
	})

	text := r.Message
	if len(fields) > 0 {
		b, err := json.Marshal(fields)
		if err != nil {
			b = []byte(fmt.Sprintf("%v", fields))
		}
		text = fmt.Sprintf("%s: %s `%s`", strings.ToLower(r.Level.String()), r.Message, b)
	}

	h.sink.mu.RLock()
	defer h.sink.mu.RUnlock()
	if h.sink.closed {
		return nil
	}
	select {
	case h.sink.queue <- payload{Text: text, Username: h.cfg.Username, Channel: h.cfg.Channel}:
	default:
		// Queue full: drop rather than block the caller.
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := *h
	out.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &out
}

func (h *Handler) WithGroup(name string) slog.Handler {
	out := *h
	out.group = h.key(name)
	return &out
}

// Close stops the delivery goroutine after the queue is drained.
func (h *Handler) Close() error {
	h.sink.mu.Lock()
	if h.sink.closed {
		h.sink.mu.Unlock()
		return nil
	}
	h.sink.closed = true
	close(h.sink.queue)
	h.sink.mu.Unlock()

	<-h.sink.done
	return nil
}

func (h *Handler) key(k string) string {
	if h.group == "" {
		return k
	}
	return h.group + "." + k
}

func (h *Handler) deliver() {
	defer close(h.sink.done)
	for p := range h.sink.queue {
		if err := h.post(p); err != nil {
			// Nowhere else to report: the logger is the failing component.
			continue
		}
	}
}

func (h *Handler) post(p payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	resp, err := h.cfg.HTTPClient.Post(h.cfg.WebhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code from Slack API: %d", resp.StatusCode)
	}
	return nil
}
