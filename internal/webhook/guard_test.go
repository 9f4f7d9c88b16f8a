// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package webhook

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBlockedAddr(t *testing.T) {
	tests := []struct {
		addr    string
		blocked bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"172.20.0.1", true},
		{"192.168.1.1", true},
		{"169.254.169.254", true},
		{"100.64.0.1", true},
		{"::1", true},
		{"fe80::1", true},
		{"fd00::1", true},
		{"::ffff:127.0.0.1", true},
		{"8.8.8.8", false},
		{"93.184.216.34", false},
		{"2606:4700:4700::1111", false},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.blocked, IsBlockedAddr(netip.MustParseAddr(tt.addr)))
		})
	}

	assert.True(t, IsBlockedAddr(netip.Addr{}))
}

func TestCheckEndpointURL(t *testing.T) {
	tests := []struct {
		name         string
		url          string
		allowPrivate bool
		wantErr      bool
	}{
		{"public https", "https://hooks.example.com/editorial", false, false},
		{"public ip", "http://93.184.216.34/hook", false, false},
		{"ftp scheme", "ftp://hooks.example.com", false, true},
		{"no host", "https:///path", false, true},
		{"localhost", "http://localhost:8080/hook", false, true},
		{"sub localhost", "http://api.localhost/hook", false, true},
		{"loopback ip", "http://127.0.0.1:9000/hook", false, true},
		{"metadata ip", "http://169.254.169.254/latest", false, true},
		{"ipv6 loopback", "http://[::1]:9000/hook", false, true},
		{"loopback allowed", "http://127.0.0.1:9000/hook", true, false},
		{"localhost allowed", "http://localhost/hook", true, false},
		{"scheme still checked", "gopher://127.0.0.1", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckEndpointURL(tt.url, tt.allowPrivate)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Endpoints: []Endpoint{{URL: "https://hooks.example.com"}, {URL: "http://10.0.0.5/hook"}}}
	assert.Error(t, cfg.Validate())

	cfg.AllowPrivate = true
	assert.NoError(t, cfg.Validate())
}

func TestGuardedDialBlocksPrivateTargets(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(Config{
		Endpoints:      []Endpoint{{URL: srv.URL, Secret: "s"}},
		Workers:        1,
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		RequestTimeout: time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	d.Start(context.Background())
	defer d.Stop()

	require.NoError(t, d.DispatchEvent(context.Background(), EventTest, TestEventData{Message: "ping"}))
	waitFor(t, func() bool { return d.Stats().Dead == 1 })

	assert.Equal(t, int32(0), hits.Load())
	assert.Equal(t, int64(0), d.Stats().Delivered)
}
