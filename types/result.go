package types

import "github.com/google/uuid"

// PaymentStatus tags the members of the PaymentResult union.
type PaymentStatus string

const (
	StatusCompleted       PaymentStatus = "completed"
	StatusPendingApproval PaymentStatus = "pending_approval"
	StatusRejected        PaymentStatus = "rejected"
)

// PaymentResult is the tagged union of terminal payment outcomes. Callers
// switch on the concrete type (or Status) and are expected to handle every
// member; no member carries optional fields belonging to another.
type PaymentResult interface {
	Status() PaymentStatus
	Success() bool
}

// Completed means the resource was obtained: either it was never gated, or
// the paid retry succeeded.
type Completed struct {
	// StatusCode and Body are the final response passed through to the
	// caller unchanged.
	StatusCode int
	Body       []byte

	// Paid is false when the resource answered without demanding payment.
	Paid bool

	// TxHash and Settlement are populated from the paid response when the
	// server returned settlement metadata.
	TxHash     string
	Settlement *SettlementResponse

	// TransactionID references the audit row, when one was written.
	TransactionID uuid.UUID

	ChainID int64
	Network string
}

func (Completed) Status() PaymentStatus { return StatusCompleted }
func (Completed) Success() bool         { return true }

// PendingApproval means the payment needs a human decision: no automatic
// signer exists, the policy demands manual approval, or the balance is
// short under an auto-sign policy.
type PendingApproval struct {
	PendingPaymentID uuid.UUID
	Requirements     []PaymentRequirements
	AcceptIndex      int
	ChainID          int64
	Amount           string // atomic units
	Reason           string
}

func (PendingApproval) Status() PaymentStatus { return StatusPendingApproval }
func (PendingApproval) Success() bool         { return false }

// Rejected means the payment was not and will not be made: blocked URL,
// unusable requirement set, policy denial, or a failed paid request.
type Rejected struct {
	Err *EngineError
}

func (Rejected) Status() PaymentStatus { return StatusRejected }
func (Rejected) Success() bool         { return false }

func (r Rejected) Error() string {
	if r.Err == nil {
		return "payment rejected"
	}
	return r.Err.Message
}
