// Package metrics records payment engine counters and latencies.
package metrics

import "time"

// Event names recorded by the engine.
const (
	EventPaymentCompleted = "payment_completed"
	EventPaymentPending   = "payment_pending_approval"
	EventPaymentRejected  = "payment_rejected"
	EventPaymentFailed    = "payment_failed"
	EventDraftPolicy      = "draft_policy_created"
	EventBlockedURL       = "blocked_url"
)

// OpExecutePayment labels the end-to-end payment latency observation.
const OpExecutePayment = "execute_payment"

// Recorder receives engine events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
