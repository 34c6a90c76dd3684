package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PolicyStatus is the lifecycle state of a spending policy.
type PolicyStatus string

const (
	PolicyActive   PolicyStatus = "active"
	PolicyDraft    PolicyStatus = "draft"
	PolicyArchived PolicyStatus = "archived"
)

// SpendingPolicy is a per-user, per-chain authorization rule keyed by a
// normalized endpoint URL prefix. At most one record exists per
// (user, endpoint pattern, chain).
type SpendingPolicy struct {
	ID              uuid.UUID    `json:"id"`
	UserID          string       `json:"userId" validate:"required"`
	ChainID         int64        `json:"chainId" validate:"required"`
	EndpointPattern string       `json:"endpointPattern" validate:"required,url"`
	AutoSign        bool         `json:"autoSign"`
	Status          PolicyStatus `json:"status"`
	ArchivedAt      *time.Time   `json:"archivedAt,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// PolicyAction is the decision the policy matcher returns for a payment.
type PolicyAction string

const (
	ActionAutoSign       PolicyAction = "auto_sign"
	ActionManualApproval PolicyAction = "manual_approval"
	ActionRejected       PolicyAction = "rejected"
)

// PolicyCheckResult is the outcome of matching an endpoint against the
// user's spending policies.
type PolicyCheckResult struct {
	Action   PolicyAction `json:"action"`
	Reason   string       `json:"reason,omitempty"`
	PolicyID *uuid.UUID   `json:"policyId,omitempty"`
	AutoSign bool         `json:"autoSign"`
}

// TransactionStatus is the terminal status of a logged payment attempt.
type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

// TransactionRecord is the immutable audit row written once per completed
// payment attempt. Never mutated after insert.
type TransactionRecord struct {
	ID             uuid.UUID         `json:"id"`
	UserID         string            `json:"userId"`
	Amount         decimal.Decimal   `json:"amount"` // human units
	Endpoint       string            `json:"endpoint"`
	ChainID        int64             `json:"chainId"`
	Network        string            `json:"network"`
	Status         TransactionStatus `json:"status"`
	TxHash         string            `json:"txHash,omitempty"`
	Settlement     json.RawMessage   `json:"settlement,omitempty"`
	ErrorMessage   string            `json:"errorMessage,omitempty"`
	ResponseStatus int               `json:"responseStatus,omitempty"`
	ResponseBody   string            `json:"responseBody,omitempty"` // best-effort capture
	CreatedAt      time.Time         `json:"createdAt"`
}

// PendingPaymentStatus tracks the human-in-the-loop approval machine:
// pending -> approved -> completed|failed, or -> rejected, or -> expired.
type PendingPaymentStatus string

const (
	PendingStatusPending   PendingPaymentStatus = "pending"
	PendingStatusApproved  PendingPaymentStatus = "approved"
	PendingStatusCompleted PendingPaymentStatus = "completed"
	PendingStatusFailed    PendingPaymentStatus = "failed"
	PendingStatusRejected  PendingPaymentStatus = "rejected"
	PendingStatusExpired   PendingPaymentStatus = "expired"
)

// PendingPayment holds a payment that resolved to manual approval. It
// carries the serialized requirement set plus the original request shape so
// an approval path can resume the payment out of band. Owned by one user;
// mutated only by the approval path.
type PendingPayment struct {
	ID           uuid.UUID            `json:"id"`
	UserID       string               `json:"userId"`
	Status       PendingPaymentStatus `json:"status"`
	Endpoint     string               `json:"endpoint"`
	Method       string               `json:"method"`
	Body         string               `json:"body,omitempty"`
	Headers      map[string]string    `json:"headers,omitempty"`
	Requirements json.RawMessage      `json:"requirements"` // serialized accepts array
	AcceptIndex  int                  `json:"acceptIndex"`
	ChainID      int64                `json:"chainId"`
	Amount       string               `json:"amount"` // atomic units
	Reason       string               `json:"reason,omitempty"`
	CreatedAt    time.Time            `json:"createdAt"`
	ExpiresAt    time.Time            `json:"expiresAt"`
}

// Expired reports whether the authorization window for this pending payment
// has lapsed.
func (p *PendingPayment) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// SessionKey is a constrained, revocable delegated signing credential
// authorized to act for a smart account.
type SessionKey struct {
	EncryptedKey string    `json:"encryptedKey"`
	SmartAccount string    `json:"smartAccount"`
	ExpiresAt    time.Time `json:"expiresAt"`
	Revoked      bool      `json:"revoked"`
}

// Active reports whether the session key can still sign.
func (k *SessionKey) Active(now time.Time) bool {
	return !k.Revoked && now.Before(k.ExpiresAt)
}

// Wallet is a user's signing account on one chain: either a custodial hot
// wallet (encrypted private key) or a session-key-controlled smart account.
type Wallet struct {
	ID           uuid.UUID   `json:"id"`
	UserID       string      `json:"userId"`
	ChainID      int64       `json:"chainId"`
	Address      string      `json:"address"`
	EncryptedKey string      `json:"encryptedKey,omitempty"`
	SessionKey   *SessionKey `json:"sessionKey,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// HasActiveSigner reports whether the wallet can sign automatically right
// now: either hot key material is present, or the session key is active.
func (w *Wallet) HasActiveSigner(now time.Time) bool {
	if w.SessionKey != nil {
		return w.SessionKey.Active(now)
	}
	return w.EncryptedKey != ""
}

// PayerAddress is the address payments are authorized from: the smart
// account when a session key controls the wallet, the wallet address
// otherwise.
func (w *Wallet) PayerAddress() string {
	if w.SessionKey != nil && w.SessionKey.SmartAccount != "" {
		return w.SessionKey.SmartAccount
	}
	return w.Address
}
