// Package storage defines the narrow repository interfaces the payment
// engine depends on. Production wires these to Postgres; tests substitute
// the in-memory backend.
package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/agentpay/payflow/types"
)

// Database aggregates every repository the engine consumes.
type Database interface {
	PolicyRepository
	TransactionRepository
	WalletRepository
	PendingPaymentRepository
	Close() error
}

// PolicyRepository stores spending policies. UpsertDraftPolicy must be
// atomic against the (user, pattern, chain) uniqueness constraint: two
// concurrent calls for the same unmatched endpoint produce one row, never
// two.
type PolicyRepository interface {
	GetActivePolicies(ctx context.Context, userID string, chainID int64) ([]types.SpendingPolicy, error)
	GetPolicies(ctx context.Context, userID string) ([]types.SpendingPolicy, error)
	GetPolicy(ctx context.Context, id uuid.UUID) (types.SpendingPolicy, error)
	CreatePolicy(ctx context.Context, policy types.SpendingPolicy) (types.SpendingPolicy, error)
	UpdatePolicy(ctx context.Context, policy types.SpendingPolicy) (types.SpendingPolicy, error)
	ArchivePolicy(ctx context.Context, id uuid.UUID) error

	// UpsertDraftPolicy inserts a draft for (user, pattern, chain), or
	// reactivates an existing draft/archived row for the same key. An
	// existing active row is returned unchanged.
	UpsertDraftPolicy(ctx context.Context, userID string, chainID int64, endpointPattern string) (types.SpendingPolicy, error)
}

// TransactionRepository is the append-only audit log. Rows are never
// updated or deleted.
type TransactionRepository interface {
	AppendTransaction(ctx context.Context, record types.TransactionRecord) (uuid.UUID, error)
	ListTransactions(ctx context.Context, userID string, take, skip int) ([]types.TransactionRecord, error)
}

// WalletRepository reads the user's signing accounts. Callers load every
// wallet and pick among the user's accounts on a chain themselves; which
// wallet can sign is a question of session-key state the storage layer
// does not answer.
type WalletRepository interface {
	GetWallets(ctx context.Context, userID string) ([]types.Wallet, error)
}

// PendingPaymentRepository stores payments awaiting human approval.
type PendingPaymentRepository interface {
	CreatePendingPayment(ctx context.Context, pending types.PendingPayment) (types.PendingPayment, error)
	GetPendingPayment(ctx context.Context, id uuid.UUID) (types.PendingPayment, error)
	ListPendingPayments(ctx context.Context, userID string, status types.PendingPaymentStatus) ([]types.PendingPayment, error)
	UpdatePendingPaymentStatus(ctx context.Context, id uuid.UUID, status types.PendingPaymentStatus) error
}
