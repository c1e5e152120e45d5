// ABOUTME: Tests for the backend client: basic requests, retry on 429/5xx, streaming, JSON fetches
// ABOUTME: Uses httptest.NewServer for deterministic, isolated test scenarios

package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(url string, headers map[string]string) *Client {
	return NewClient(url, headers, WithBackoff(time.Millisecond))
}

func TestClientDoBasicRequest(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("got method %s, want POST", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("got header %q, want %q", r.Header.Get("Authorization"), "Bearer k")
		}
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	client := newTestClient(srv.URL, map[string]string{"Authorization": "Bearer k"})

	resp, err := client.Do(context.Background(), http.MethodPost, "/test", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	got, _ := io.ReadAll(resp.Body)
	if string(got) != "hello" {
		t.Errorf("got body %q, want %q", string(got), "hello")
	}
}

func TestClientDoRetryOn429(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := attempts.Add(1)
		if n <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	resp, err := newTestClient(srv.URL, nil).Do(context.Background(), http.MethodGet, "/retry", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("got %d attempts, want 3", got)
	}
}

func TestClientDoExhaustsRetries(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	resp, err := newTestClient(srv.URL, nil).Do(context.Background(), http.MethodGet, "/always-502", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusBadGateway)
	}
}

func TestClientDoRetryWithBody(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	wantBody := `{"prompt":"hello"}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		body, _ := io.ReadAll(r.Body)
		if string(body) != wantBody {
			t.Errorf("attempt %d: got body %q, want %q", n, string(body), wantBody)
		}
		if n <= 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	// bytes.NewReader implements io.Seeker, enabling body rewind on retry.
	resp, err := newTestClient(srv.URL, nil).Do(context.Background(), http.MethodPost, "/retry-body", bytes.NewReader([]byte(wantBody)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if got := attempts.Load(); got != 2 {
		t.Errorf("got %d attempts, want 2", got)
	}
}

func TestClientStream(t *testing.T) {
	t.Parallel()

	payload := "data: {\"content\":\"hi\"}\n\ndata: [DONE]\n\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat/stream" {
			t.Errorf("got path %q", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("got content type %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"prompt":"hello"`) {
			t.Errorf("got body %s", body)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(payload))
	}))
	t.Cleanup(srv.Close)

	body, err := newTestClient(srv.URL+"/api", nil).Stream(context.Background(), "/api/chat/stream", map[string]string{"prompt": "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := NewReader(context.Background(), body)
	defer r.Close()

	var got strings.Builder
	for r.Scan() {
		got.WriteString(r.Fragment())
	}
	if got.String() != payload {
		t.Errorf("streamed %q, want %q", got.String(), payload)
	}
}

func TestClientStreamRejectsErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("unknown model\n"))
	}))
	t.Cleanup(srv.Close)

	_, err := newTestClient(srv.URL, nil).Stream(context.Background(), "/api/chat/stream", struct{}{})

	var te *Error
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if te.Status != http.StatusBadRequest || te.Body != "unknown model" {
		t.Errorf("got status %d body %q", te.Status, te.Body)
	}
}

func TestClientGetJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("got method %s, want GET", r.Method)
		}
		_, _ = w.Write([]byte(`[{"id":"m1"},{"id":"m2"}]`))
	}))
	t.Cleanup(srv.Close)

	var out []struct {
		ID string `json:"id"`
	}
	if err := newTestClient(srv.URL, nil).GetJSON(context.Background(), "/api/conversations/c1/messages", &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 || out[1].ID != "m2" {
		t.Errorf("decoded %+v", out)
	}
}

func TestNewClientHasTransportTimeouts(t *testing.T) {
	t.Parallel()

	client := NewClient("http://example.com", nil)

	if client.httpClient.Timeout != 0 {
		t.Error("httpClient.Timeout is set; long streams would be cut off")
	}
	transport, ok := client.httpClient.Transport.(*http.Transport)
	if !ok {
		t.Fatal("httpClient.Transport is not *http.Transport")
	}
	if transport.TLSHandshakeTimeout == 0 {
		t.Error("TLSHandshakeTimeout is zero; want a non-zero timeout")
	}
	if transport.ResponseHeaderTimeout == 0 {
		t.Error("ResponseHeaderTimeout is zero; want a non-zero timeout")
	}
}

func TestClientDoRespectsContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately.

	_, err := newTestClient(srv.URL, nil).Do(ctx, http.MethodGet, "/cancelled", nil)
	if err == nil {
		t.Fatal("expected error from cancelled context, got nil")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled in chain", err)
	}
}
