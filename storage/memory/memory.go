// Package memory implements the storage interfaces in process memory. It
// backs the test suite and the runnable examples; the uniqueness and
// upsert semantics match the Postgres backend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentpay/payflow/storage"
	"github.com/agentpay/payflow/types"
)

// Backend is an in-memory storage.Database.
type Backend struct {
	mu           sync.Mutex
	policies     map[uuid.UUID]types.SpendingPolicy
	transactions []types.TransactionRecord
	wallets      map[string][]types.Wallet
	pending      map[uuid.UUID]types.PendingPayment
}

var _ storage.Database = (*Backend)(nil)

// New builds an empty backend.
func New() *Backend {
	return &Backend{
		policies: make(map[uuid.UUID]types.SpendingPolicy),
		wallets:  make(map[string][]types.Wallet),
		pending:  make(map[uuid.UUID]types.PendingPayment),
	}
}

func (b *Backend) Close() error { return nil }

// AddWallet seeds a wallet; test and example helper.
func (b *Backend) AddWallet(wallet types.Wallet) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if wallet.ID == uuid.Nil {
		wallet.ID = uuid.New()
	}
	b.wallets[wallet.UserID] = append(b.wallets[wallet.UserID], wallet)
}

func (b *Backend) GetWallets(ctx context.Context, userID string) ([]types.Wallet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.Wallet, len(b.wallets[userID]))
	copy(out, b.wallets[userID])
	return out, nil
}

func (b *Backend) GetActivePolicies(ctx context.Context, userID string, chainID int64) ([]types.SpendingPolicy, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []types.SpendingPolicy
	for _, p := range b.policies {
		if p.UserID == userID && p.ChainID == chainID && p.Status == types.PolicyActive {
			out = append(out, p)
		}
	}
	sortPolicies(out)
	return out, nil
}

func (b *Backend) GetPolicies(ctx context.Context, userID string) ([]types.SpendingPolicy, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []types.SpendingPolicy
	for _, p := range b.policies {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sortPolicies(out)
	return out, nil
}

func (b *Backend) GetPolicy(ctx context.Context, id uuid.UUID) (types.SpendingPolicy, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.policies[id]
	if !ok {
		return types.SpendingPolicy{}, types.NewEngineError(types.ErrStorageError,
			fmt.Sprintf("policy %s not found", id))
	}
	return p, nil
}

func (b *Backend) CreatePolicy(ctx context.Context, policy types.SpendingPolicy) (types.SpendingPolicy, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.findByPattern(policy.UserID, policy.ChainID, policy.EndpointPattern); ok {
		return types.SpendingPolicy{}, types.NewEngineError(types.ErrStorageError,
			fmt.Sprintf("policy for %s already exists on chain %d", policy.EndpointPattern, policy.ChainID))
	}
	if policy.ID == uuid.Nil {
		policy.ID = uuid.New()
	}
	now := time.Now()
	policy.CreatedAt = now
	policy.UpdatedAt = now
	if policy.Status == "" {
		policy.Status = types.PolicyActive
	}
	b.policies[policy.ID] = policy
	return policy, nil
}

func (b *Backend) UpdatePolicy(ctx context.Context, policy types.SpendingPolicy) (types.SpendingPolicy, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	existing, ok := b.policies[policy.ID]
	if !ok {
		return types.SpendingPolicy{}, types.NewEngineError(types.ErrStorageError,
			fmt.Sprintf("policy %s not found", policy.ID))
	}
	existing.AutoSign = policy.AutoSign
	existing.Status = policy.Status
	existing.UpdatedAt = time.Now()
	b.policies[policy.ID] = existing
	return existing, nil
}

func (b *Backend) ArchivePolicy(ctx context.Context, id uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.policies[id]
	if !ok {
		return types.NewEngineError(types.ErrStorageError, fmt.Sprintf("policy %s not found", id))
	}
	now := time.Now()
	p.Status = types.PolicyArchived
	p.ArchivedAt = &now
	p.UpdatedAt = now
	b.policies[id] = p
	return nil
}

func (b *Backend) UpsertDraftPolicy(ctx context.Context, userID string, chainID int64, endpointPattern string) (types.SpendingPolicy, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.findByPattern(userID, chainID, endpointPattern); ok {
		if existing.Status == types.PolicyActive {
			return existing, nil
		}
		existing.Status = types.PolicyDraft
		existing.ArchivedAt = nil
		existing.UpdatedAt = time.Now()
		b.policies[existing.ID] = existing
		return existing, nil
	}

	now := time.Now()
	policy := types.SpendingPolicy{
		ID:              uuid.New(),
		UserID:          userID,
		ChainID:         chainID,
		EndpointPattern: endpointPattern,
		AutoSign:        false,
		Status:          types.PolicyDraft,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	b.policies[policy.ID] = policy
	return policy, nil
}

func (b *Backend) findByPattern(userID string, chainID int64, pattern string) (types.SpendingPolicy, bool) {
	for _, p := range b.policies {
		if p.UserID == userID && p.ChainID == chainID && p.EndpointPattern == pattern {
			return p, true
		}
	}
	return types.SpendingPolicy{}, false
}

func (b *Backend) AppendTransaction(ctx context.Context, record types.TransactionRecord) (uuid.UUID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.CreatedAt = time.Now()
	b.transactions = append(b.transactions, record)
	return record.ID, nil
}

func (b *Backend) ListTransactions(ctx context.Context, userID string, take, skip int) ([]types.TransactionRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []types.TransactionRecord
	for _, tx := range b.transactions {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	// take behaves like a SQL LIMIT: zero means no rows.
	if take <= 0 || skip >= len(out) {
		return nil, nil
	}
	out = out[skip:]
	if take < len(out) {
		out = out[:take]
	}
	return out, nil
}

func (b *Backend) CreatePendingPayment(ctx context.Context, pending types.PendingPayment) (types.PendingPayment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pending.ID == uuid.Nil {
		pending.ID = uuid.New()
	}
	pending.CreatedAt = time.Now()
	if pending.Status == "" {
		pending.Status = types.PendingStatusPending
	}
	b.pending[pending.ID] = pending
	return pending, nil
}

func (b *Backend) GetPendingPayment(ctx context.Context, id uuid.UUID) (types.PendingPayment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pending[id]
	if !ok {
		return types.PendingPayment{}, types.NewEngineError(types.ErrStorageError,
			fmt.Sprintf("pending payment %s not found", id))
	}
	return p, nil
}

func (b *Backend) ListPendingPayments(ctx context.Context, userID string, status types.PendingPaymentStatus) ([]types.PendingPayment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []types.PendingPayment
	for _, p := range b.pending {
		if p.UserID == userID && (status == "" || p.Status == status) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (b *Backend) UpdatePendingPaymentStatus(ctx context.Context, id uuid.UUID, status types.PendingPaymentStatus) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pending[id]
	if !ok {
		return types.NewEngineError(types.ErrStorageError,
			fmt.Sprintf("pending payment %s not found", id))
	}
	p.Status = status
	b.pending[id] = p
	return nil
}

func sortPolicies(policies []types.SpendingPolicy) {
	sort.Slice(policies, func(i, j int) bool {
		return policies[i].EndpointPattern < policies[j].EndpointPattern
	})
}
