package blockchainapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestClientGetSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := NewClient("Bitcoin", server.URL, 3, 10*time.Millisecond)
	body, err := client.get(context.Background(), "/test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != `{"status":"ok"}` {
		t.Errorf("body = %q, want {\"status\":\"ok\"}", string(body))
	}
}

func TestClientTrimsTrailingSlash(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient("Bitcoin", server.URL+"/", 0, time.Millisecond)
	if _, err := client.get(context.Background(), "/api/isalive"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/api/isalive" {
		t.Errorf("path = %q, want /api/isalive", gotPath)
	}
}

func TestClientRetryOnThrottling(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch attempts.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`rate limited`))
			return
		case 2:
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`unavailable`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := NewClient("Bitcoin", server.URL, 3, 10*time.Millisecond)
	body, err := client.get(context.Background(), "/test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != `{"status":"ok"}` {
		t.Errorf("body = %q, want success response", string(body))
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestClientMaxRetriesExceeded(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`rate limited`))
	}))
	defer server.Close()

	client := NewClient("Bitcoin", server.URL, 2, 10*time.Millisecond)
	_, err := client.get(context.Background(), "/test")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if got := attempts.Load(); got != 3 { // initial + 2 retries
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestClientRetryDelay(t *testing.T) {
	client := NewClient("Bitcoin", "http://integration", 3, 100*time.Millisecond)

	if got := client.retryDelay(2, http.Header{}); got != 400*time.Millisecond {
		t.Errorf("backoff = %v, want 400ms", got)
	}
	h := http.Header{}
	h.Set("Retry-After", "2")
	if got := client.retryDelay(0, h); got != 2*time.Second {
		t.Errorf("delay with Retry-After = %v, want 2s", got)
	}
	h.Set("Retry-After", "Wed, 21 Oct 2015 07:28:00 GMT")
	if got := client.retryDelay(1, h); got != 200*time.Millisecond {
		t.Errorf("delay with unparsable Retry-After = %v, want backoff 200ms", got)
	}
}

func TestClientErrorNamesBlockchain(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewClient("Ripple", server.URL, 1, time.Millisecond).get(context.Background(), "/api/assets")
	if err == nil || !strings.Contains(err.Error(), "Ripple") || !strings.Contains(err.Error(), "2 attempts") {
		t.Errorf("err = %v, want blockchain type and attempt count", err)
	}
}

func TestClientNonRetryableError(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`not found`))
	}))
	defer server.Close()

	client := NewClient("Bitcoin", server.URL, 3, 10*time.Millisecond)
	_, err := client.get(context.Background(), "/test")
	if err == nil {
		t.Fatal("expected error for 404, got nil")
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestClientContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`rate limited`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient("Bitcoin", server.URL, 5, 1*time.Second)
	_, err := client.get(ctx, "/test")
	if err == nil {
		t.Fatal("expected error on cancelled context, got nil")
	}
}

func TestClientIsAlive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/isalive" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"name":"integration","version":"1.0"}`))
	}))
	defer server.Close()

	if err := NewClient("Bitcoin", server.URL, 0, time.Millisecond).IsAlive(context.Background()); err != nil {
		t.Errorf("IsAlive() error = %v", err)
	}
}
