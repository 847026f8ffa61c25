package llm

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// TransportConfig tunes the HTTP transport the client issues Ollama
// requests over. Only the knobs the client actually exercises are
// kept; the teacher's wider performance config also covered response
// caching and pre-warming, neither of which this client needs since
// completions are not cacheable by request shape.
type TransportConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	RequestsPerSecond   float64 // 0 disables client-side rate limiting
}

// DefaultTransportConfig mirrors the teacher's HTTP client defaults.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		RequestsPerSecond:   0,
	}
}

// newHTTPClient builds an *http.Client tuned for repeated calls to one
// Ollama backend: keep-alives enabled, HTTP/2 attempted, no per-call
// timeout here since callers pass timeouts via context.
func newHTTPClient(tc TransportConfig) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        tc.MaxIdleConns,
		MaxIdleConnsPerHost:  tc.MaxIdleConnsPerHost,
		IdleConnTimeout:      tc.IdleConnTimeout,
		ForceAttemptHTTP2:    true,
		DisableKeepAlives:    false,
	}
	return &http.Client{Transport: transport}
}

// newLimiter returns a token-bucket limiter for rps requests/second,
// or nil if rps <= 0 (unlimited).
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}
