// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Endpoint is a configured webhook receiver.
type Endpoint struct {
	URL     string            `json:"url"`
	Secret  string            `json:"secret"`
	Events  []string          `json:"events,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Accepts reports whether the endpoint subscribes to eventType. An endpoint
// with no events receives everything.
func (e Endpoint) Accepts(eventType string) bool {
	return len(e.Events) == 0 || slices.Contains(e.Events, eventType)
}

// ParseEndpoints decodes a JSON array of endpoints and validates their URLs.
// An empty string yields no endpoints.
func ParseEndpoints(raw string) ([]Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var endpoints []Endpoint
	if err := json.Unmarshal([]byte(raw), &endpoints); err != nil {
		return nil, fmt.Errorf("parse webhook endpoints: %w", err)
	}
	for i, ep := range endpoints {
		if err := CheckEndpointURL(ep.URL, true); err != nil {
			return nil, fmt.Errorf("webhook endpoint %d: %w", i, err)
		}
	}
	return endpoints, nil
}

// Config holds dispatcher configuration.
type Config struct {
	Endpoints      []Endpoint
	Workers        int           // Number of concurrent delivery workers
	QueueSize      int           // Deliveries buffered before new ones are dropped
	MaxAttempts    int           // Attempts per delivery, including the first
	InitialBackoff time.Duration // Delay before the first retry
	MaxBackoff     time.Duration // Cap on the retry delay
	RequestTimeout time.Duration // HTTP request timeout
	// AllowPrivate permits endpoints on loopback, private and reserved
	// addresses.
	AllowPrivate bool
}

// Validate checks every endpoint URL against the address policy.
func (c Config) Validate() error {
	for i, ep := range c.Endpoints {
		if err := CheckEndpointURL(ep.URL, c.AllowPrivate); err != nil {
			return fmt.Errorf("webhook endpoint %d: %w", i, err)
		}
	}
	return nil
}

// DefaultConfig returns default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		Workers:        3,
		QueueSize:      100,
		MaxAttempts:    MaxAttempts,
		InitialBackoff: InitialBackoff,
		MaxBackoff:     MaxBackoff,
		RequestTimeout: RequestTimeout,
	}
}

// QueuedDelivery represents a delivery queued for processing.
type QueuedDelivery struct {
	ID       string
	Endpoint Endpoint
	Event    string
	Payload  []byte
}

// Stats counts delivery outcomes since the dispatcher was created.
type Stats struct {
	Delivered int64 `json:"delivered"`
	Dead      int64 `json:"dead"`
	Dropped   int64 `json:"dropped"`
}

// Dispatcher handles webhook event dispatching and queuing.
type Dispatcher struct {
	cfg     Config
	client  *http.Client
	logger  *slog.Logger
	queue   chan *QueuedDelivery
	wg      sync.WaitGroup
	done    chan struct{}
	mu      sync.RWMutex
	running bool

	delivered atomic.Int64
	dead      atomic.Int64
	dropped   atomic.Int64
}

// NewDispatcher creates a new webhook dispatcher.
func NewDispatcher(cfg Config, logger *slog.Logger) *Dispatcher {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		cfg:    cfg,
		client: newHTTPClient(cfg.RequestTimeout, cfg.AllowPrivate),
		logger: logger,
		queue:  make(chan *QueuedDelivery, cfg.QueueSize),
		done:   make(chan struct{}),
	}
}

// Start starts the dispatcher workers.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.mu.Unlock()

	d.logger.Info("starting webhook dispatcher", "workers", d.cfg.Workers, "endpoints", len(d.cfg.Endpoints))

	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
}

// Stop stops the dispatcher and waits for workers to finish. Deliveries still
// queued are discarded.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.mu.Unlock()

	d.logger.Info("stopping webhook dispatcher")
	close(d.done)
	d.wg.Wait()
	d.logger.Info("webhook dispatcher stopped")
}

// Stats returns the delivery counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Delivered: d.delivered.Load(),
		Dead:      d.dead.Load(),
		Dropped:   d.dropped.Load(),
	}
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	d.logger.Debug("webhook worker started", "worker_id", id)

	for {
		select {
		case <-d.done:
			d.logger.Debug("webhook worker stopping", "worker_id", id)
			return
		case <-ctx.Done():
			d.logger.Debug("webhook worker context cancelled", "worker_id", id)
			return
		case delivery := <-d.queue:
			d.processDelivery(ctx, delivery)
		}
	}
}

// Dispatch queues event for every endpoint subscribed to its type.
func (d *Dispatcher) Dispatch(_ context.Context, event *Event) error {
	d.mu.RLock()
	running := d.running
	d.mu.RUnlock()

	if !running {
		d.logger.Debug("dispatcher not running, event not sent", "event_type", event.Type)
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		d.logger.Error("failed to marshal event payload", "error", err, "event_type", event.Type)
		return err
	}

	for _, ep := range d.cfg.Endpoints {
		if !ep.Accepts(event.Type) {
			continue
		}

		qd := &QueuedDelivery{
			ID:       uuid.NewString(),
			Endpoint: ep,
			Event:    event.Type,
			Payload:  payload,
		}

		select {
		case d.queue <- qd:
			d.logger.Debug("delivery queued", "delivery_id", qd.ID, "url", ep.URL)
		default:
			d.dropped.Add(1)
			d.logger.Warn("webhook delivery queue full, event dropped",
				"delivery_id", qd.ID,
				"event_type", event.Type,
				"url", ep.URL)
		}
	}

	return nil
}

// DispatchEvent is a convenience method to dispatch an event with the given type and data.
func (d *Dispatcher) DispatchEvent(ctx context.Context, eventType string, data any) error {
	return d.Dispatch(ctx, NewEvent(eventType, data))
}

// GenerateSignature generates an HMAC-SHA256 signature for the payload.
func GenerateSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature verifies an HMAC-SHA256 signature.
func VerifySignature(payload []byte, signature, secret string) bool {
	expectedSig := GenerateSignature(payload, secret)
	return hmac.Equal([]byte(signature), []byte(expectedSig))
}
