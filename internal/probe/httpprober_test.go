package probe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// ---- test helpers ----

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// recordingTransport logs every attempt and delegates to next.
type recordingTransport struct {
	mu    sync.Mutex
	calls []string
	next  http.RoundTripper
}

func (t *recordingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	t.mu.Lock()
	t.calls = append(t.calls, r.Method+" "+r.URL.Scheme)
	t.mu.Unlock()
	return t.next.RoundTrip(r)
}

func (t *recordingTransport) Calls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

func respond(code int) *http.Response {
	return &http.Response{
		StatusCode: code,
		Status:     http.StatusText(code),
		Body:       http.NoBody,
		Header:     make(http.Header),
	}
}

func newTestProber(rt http.RoundTripper, timeout time.Duration) (*HTTPProber, *recordingTransport) {
	rec := &recordingTransport{next: rt}
	p := NewHTTPProber(zap.NewNop(), timeout)
	p.Client = &http.Client{Transport: rec}
	return p, rec
}

// ---- tests ----

func TestHTTPProber_FirstStrategySucceeds_SkipsRest(t *testing.T) {
	p, rec := newTestProber(roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return respond(200), nil
	}), time.Second)

	if !p.Probe(context.Background(), "a.example.com") {
		t.Fatalf("want reachable")
	}
	calls := rec.Calls()
	if len(calls) != 1 || calls[0] != "HEAD https" {
		t.Fatalf("want single HEAD https attempt, got %v", calls)
	}
}

func TestHTTPProber_AllFail_FourAttemptsInOrder(t *testing.T) {
	p, rec := newTestProber(roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	}), time.Second)

	if p.Probe(context.Background(), "dead.example.com") {
		t.Fatalf("want unreachable")
	}
	want := []string{"HEAD https", "HEAD http", "GET https", "GET http"}
	got := rec.Calls()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("attempt order: want %v got %v", want, got)
	}
}

func TestHTTPProber_TwoTimeoutsThenSuccess(t *testing.T) {
	p, rec := newTestProber(roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if r.Method == http.MethodHead {
			<-r.Context().Done()
			return nil, r.Context().Err()
		}
		return respond(200), nil
	}), 30*time.Millisecond)

	start := time.Now()
	if !p.Probe(context.Background(), "slow.example.com") {
		t.Fatalf("want reachable on third attempt")
	}
	if n := len(rec.Calls()); n != 3 {
		t.Fatalf("want exactly 3 attempts, got %d (%v)", n, rec.Calls())
	}
	// each timed-out attempt is bounded independently
	if el := time.Since(start); el > 2*time.Second {
		t.Fatalf("probe took too long: %v", el)
	}
}

func TestHTTPProber_NonSuccessStatusIsFailure(t *testing.T) {
	p, rec := newTestProber(roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if r.URL.Scheme == "http" && r.Method == http.MethodGet {
			return respond(204), nil
		}
		return respond(503), nil
	}), time.Second)

	if !p.Probe(context.Background(), "x.example.com") {
		t.Fatalf("want reachable via plain GET")
	}
	if n := len(rec.Calls()); n != 4 {
		t.Fatalf("want 4 attempts, got %d", n)
	}
}

func TestHTTPProber_Idempotent(t *testing.T) {
	var n atomic.Int32
	p, _ := newTestProber(roundTripFunc(func(r *http.Request) (*http.Response, error) {
		n.Add(1)
		if r.Method == http.MethodGet && r.URL.Scheme == "https" {
			return respond(200), nil
		}
		return respond(404), nil
	}), time.Second)

	first := p.Probe(context.Background(), "h.example.com")
	second := p.Probe(context.Background(), "h.example.com")
	if first != second || !first {
		t.Fatalf("want stable true, got %v then %v", first, second)
	}
	if n.Load() != 6 {
		t.Fatalf("want 3 attempts per probe, got %d total", n.Load())
	}
}

func TestHTTPProber_PlainServer_FallsBackFromTLS(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method)
		mu.Unlock()
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_, _ = w.Write([]byte("hello"))
	}))
	defer s.Close()

	p := NewHTTPProber(zap.NewNop(), 2*time.Second)
	host := strings.TrimPrefix(s.URL, "http://")
	if !p.Probe(context.Background(), host) {
		t.Fatalf("want reachable over plain GET")
	}

	mu.Lock()
	defer mu.Unlock()
	// TLS attempts never reach the handler
	if strings.Join(seen, ",") != "HEAD,GET" {
		t.Fatalf("unexpected requests at server: %v", seen)
	}
}

func TestHTTPProber_TLSServer_HeadWins(t *testing.T) {
	var hits atomic.Int32
	s := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer s.Close()

	p := NewHTTPProber(zap.NewNop(), 2*time.Second)
	p.Client = s.Client()
	if !p.Probe(context.Background(), strings.TrimPrefix(s.URL, "https://")) {
		t.Fatalf("want reachable")
	}
	if hits.Load() != 1 {
		t.Fatalf("want one request, got %d", hits.Load())
	}
}

func TestHTTPProber_LogsFailedAttempts(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	p, _ := newTestProber(roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("no route to host")
	}), time.Second)
	p.Logger = zap.New(core)

	p.Probe(context.Background(), "gone.example.com")
	if got := logs.FilterMessage("probe_attempt_failed").Len(); got != 4 {
		t.Fatalf("want 4 failure logs, got %d", got)
	}
}

func TestHTTPProber_WithRateLimit(t *testing.T) {
	p := NewHTTPProber(nil, time.Second).WithRateLimit(5)
	if p.Limiter == nil || p.Limiter.Burst() != 5 {
		t.Fatalf("limiter not configured: %+v", p.Limiter)
	}
	if p.WithRateLimit(0).Limiter != nil {
		t.Fatalf("want limiter removed")
	}
}
