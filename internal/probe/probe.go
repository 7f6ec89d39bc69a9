package probe

import (
	"context"
	"net/http"
)

// Prober decides whether a single hostname is reachable. Implementations
// absorb every failure and only report the boolean.
type Prober interface {
	Probe(ctx context.Context, host string) bool
}

// ProberFunc adapts a plain function to Prober.
type ProberFunc func(ctx context.Context, host string) bool

func (f ProberFunc) Probe(ctx context.Context, host string) bool { return f(ctx, host) }

// Strategy is one (scheme, method) pair tried against a host.
type Strategy struct {
	Scheme string
	Method string
}

func (s Strategy) URL(host string) string {
	return s.Scheme + "://" + host
}

func (s Strategy) String() string {
	return s.Method + " " + s.Scheme
}

// DefaultStrategies prefers TLS over plain HTTP and header-only requests over
// full ones at each tier.
var DefaultStrategies = []Strategy{
	{Scheme: "https", Method: http.MethodHead},
	{Scheme: "http", Method: http.MethodHead},
	{Scheme: "https", Method: http.MethodGet},
	{Scheme: "http", Method: http.MethodGet},
}
