// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"time"
)

// Delivery configuration defaults
const (
	MaxAttempts    = 5                    // Maximum number of delivery attempts
	InitialBackoff = 1 * time.Second      // Initial backoff delay
	MaxBackoff     = 1 * time.Minute      // Maximum backoff delay
	RequestTimeout = 10 * time.Second     // HTTP request timeout
	MaxResponseLen = 10 * 1024            // Maximum response body to keep (10KB)
	UserAgent      = "ocms-editorial/1.0" // User-Agent header value
)

// DeliveryResult represents the result of a delivery attempt.
type DeliveryResult struct {
	Success      bool
	StatusCode   int
	ResponseBody string
	Error        error
	ShouldRetry  bool
}

func newHTTPClient(timeout time.Duration, allowPrivate bool) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	if !allowPrivate {
		transport.DialContext = guardedDialContext(&net.Dialer{Timeout: 5 * time.Second}, net.DefaultResolver)
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// processDelivery attempts a delivery until it succeeds, fails permanently,
// runs out of attempts or the dispatcher stops.
func (d *Dispatcher) processDelivery(ctx context.Context, delivery *QueuedDelivery) {
	for attempt := 1; ; attempt++ {
		result := d.attemptDelivery(ctx, delivery)
		if result.Success {
			d.delivered.Add(1)
			d.logger.Info("webhook delivered successfully",
				"delivery_id", delivery.ID,
				"event", delivery.Event,
				"status_code", result.StatusCode,
				"attempt", attempt)
			return
		}

		errMsg := ""
		if result.Error != nil {
			errMsg = result.Error.Error()
		}

		if !result.ShouldRetry || attempt >= d.cfg.MaxAttempts {
			d.dead.Add(1)
			d.logger.Warn("webhook delivery marked as dead",
				"delivery_id", delivery.ID,
				"event", delivery.Event,
				"url", delivery.Endpoint.URL,
				"attempts", attempt,
				"reason", errMsg)
			return
		}

		backoff := calculateBackoff(attempt, d.cfg.InitialBackoff, d.cfg.MaxBackoff)
		d.logger.Debug("webhook delivery scheduled for retry",
			"delivery_id", delivery.ID,
			"attempt", attempt,
			"backoff", backoff.String(),
			"error", errMsg)

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-d.done:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// attemptDelivery performs the actual HTTP POST request.
func (d *Dispatcher) attemptDelivery(ctx context.Context, delivery *QueuedDelivery) DeliveryResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, delivery.Endpoint.URL, bytes.NewReader(delivery.Payload))
	if err != nil {
		return DeliveryResult{
			Success:     false,
			Error:       fmt.Errorf("failed to create request: %w", err),
			ShouldRetry: false, // Bad URL, don't retry
		}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	signature := GenerateSignature(delivery.Payload, delivery.Endpoint.Secret)
	req.Header.Set("X-Webhook-Signature", signature)
	req.Header.Set("X-Webhook-Event", delivery.Event)
	req.Header.Set("X-Webhook-Delivery-ID", delivery.ID)

	for key, value := range delivery.Endpoint.Headers {
		req.Header.Set(key, value)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return DeliveryResult{
			Success:     false,
			Error:       fmt.Errorf("request failed: %w", err),
			ShouldRetry: true, // Network error, retry
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseLen))
	responseBody := string(body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return DeliveryResult{
			Success:      true,
			StatusCode:   resp.StatusCode,
			ResponseBody: responseBody,
		}
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		// Client error - don't retry (except for 408 Request Timeout and 429 Too Many Requests)
		shouldRetry := resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests
		return DeliveryResult{
			Success:      false,
			StatusCode:   resp.StatusCode,
			ResponseBody: responseBody,
			Error:        fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
			ShouldRetry:  shouldRetry,
		}
	}

	// Server error (5xx) - retry
	return DeliveryResult{
		Success:      false,
		StatusCode:   resp.StatusCode,
		ResponseBody: responseBody,
		Error:        fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		ShouldRetry:  true,
	}
}

// calculateBackoff returns initial * 2^(attempt-1), capped at maxBackoff.
func calculateBackoff(attempt int, initial, maxBackoff time.Duration) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	backoff := time.Duration(float64(initial) * math.Pow(2, float64(attempt-1)))
	if backoff > maxBackoff || backoff <= 0 {
		backoff = maxBackoff
	}

	return backoff
}
