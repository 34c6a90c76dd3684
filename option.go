package payflow

import (
	"time"

	"github.com/agentpay/payflow/logger"
	"github.com/agentpay/payflow/metrics"
	"github.com/agentpay/payflow/signer"
	"github.com/agentpay/payflow/urlguard"
)

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger replaces the default no-op logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetrics replaces the default no-op metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.metrics = r
		}
	}
}

// WithTimeout bounds each outbound HTTP exchange. Values above the
// guard's ceiling are clamped by the HTTP client.
func WithTimeout(t time.Duration) Option {
	return func(e *Engine) {
		if t > 0 {
			e.timeout = t
		}
	}
}

// WithHTTPClient substitutes the guarded HTTP client, mainly for tests.
func WithHTTPClient(c urlguard.Fetcher) Option {
	return func(e *Engine) {
		e.httpc = c
	}
}

// WithSignerFactory substitutes how wallets resolve to signers.
func WithSignerFactory(f signer.Factory) Option {
	return func(e *Engine) {
		if f != nil {
			e.signers = f
		}
	}
}

// WithClock substitutes the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}
