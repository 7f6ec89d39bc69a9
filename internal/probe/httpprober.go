package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultAttemptTimeout = 10 * time.Second

	// cap on how much of a GET body is read before the connection is released
	maxDrainBytes = 1 << 20
)

// HTTPProber walks Strategies in order and reports the host reachable on the
// first 2xx response. Every attempt gets its own Timeout.
type HTTPProber struct {
	Logger     *zap.Logger
	Client     *http.Client
	Strategies []Strategy
	Timeout    time.Duration
	Limiter    *rate.Limiter // optional; shared by all attempts
}

func NewHTTPProber(logger *zap.Logger, timeout time.Duration) *HTTPProber {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	return &HTTPProber{
		Logger:     logger,
		Client:     &http.Client{Transport: NewTransport(false)},
		Strategies: DefaultStrategies,
		Timeout:    timeout,
	}
}

// NewTransport clones the default transport, optionally skipping certificate
// verification.
func NewTransport(insecureTLS bool) *http.Transport {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConnsPerHost = 2
	if insecureTLS {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return tr
}

// WithRateLimit caps attempts per second across the prober; rps <= 0 removes
// the cap.
func (p *HTTPProber) WithRateLimit(rps float64) *HTTPProber {
	if rps <= 0 {
		p.Limiter = nil
		return p
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	p.Limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return p
}

func (p *HTTPProber) Probe(ctx context.Context, host string) bool {
	for i, s := range p.Strategies {
		start := time.Now()
		err := p.attempt(ctx, host, s)
		if err == nil {
			p.Logger.Debug("probe_up",
				zap.String("host", host),
				zap.Int("attempt", i+1),
				zap.Stringer("strategy", s),
				zap.Duration("latency", time.Since(start)),
			)
			return true
		}
		p.Logger.Debug("probe_attempt_failed",
			zap.String("host", host),
			zap.Int("attempt", i+1),
			zap.Stringer("strategy", s),
			zap.Error(err),
		)
	}
	return false
}

func (p *HTTPProber) attempt(ctx context.Context, host string, s Strategy) error {
	if p.Limiter != nil {
		if err := p.Limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	actx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, s.Method, s.URL(host), nil)
	if err != nil {
		return err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if s.Method != http.MethodHead {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
