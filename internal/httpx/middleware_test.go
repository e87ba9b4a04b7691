package httpx

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWithRequestID(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)

	if seen == "" {
		t.Fatal("expected a generated request id in context")
	}
	if got := rw.Header().Get(RequestIDHeader); got != seen {
		t.Fatalf("response header %q does not match context id %q", got, seen)
	}

	// A caller-provided id is kept.
	req = httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if seen != "req-123" {
		t.Fatalf("expected caller id to be preserved, got %q", seen)
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		order = append(order, "handler")
	}), mw("outer"), mw("inner"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "http://example.com", nil))
	if got := strings.Join(order, ","); got != "outer,inner,handler" {
		t.Fatalf("unexpected order: %s", got)
	}
}

func TestWithBodyLimit(t *testing.T) {
	h := WithBodyLimit(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := io.ReadAll(r.Body)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "http://example.com", strings.NewReader(strings.Repeat("x", 64)))
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected oversized body to be rejected, got %d", rw.Code)
	}
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.RemoteAddr = "10.0.0.1:52000"
	if got := clientKey(req); got != "10.0.0.1" {
		t.Fatalf("expected remote host, got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientKey(req); got != "203.0.113.7" {
		t.Fatalf("expected first forwarded address, got %q", got)
	}
}
