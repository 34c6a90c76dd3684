// Package payflow executes x402 payments on behalf of a user: it fetches
// a resource, and when the server answers 402 Payment Required it selects
// a chain, enforces the user's spending policies, signs an EIP-3009
// transfer authorization, and retries the request with payment attached.
package payflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/agentpay/payflow/chains"
	"github.com/agentpay/payflow/logger"
	"github.com/agentpay/payflow/metrics"
	"github.com/agentpay/payflow/policy"
	"github.com/agentpay/payflow/signer"
	"github.com/agentpay/payflow/storage"
	"github.com/agentpay/payflow/types"
	"github.com/agentpay/payflow/urlguard"
	"github.com/agentpay/payflow/vault"
)

// Engine is the client-side payment orchestrator. One Engine serves many
// users; all state lives in the database.
type Engine struct {
	db       storage.Database
	registry *chains.Registry
	balances chains.BalanceReader
	selector *chains.Selector
	matcher  *policy.Matcher
	signers  signer.Factory
	httpc    urlguard.Fetcher
	log      logger.Logger
	metrics  metrics.Recorder
	timeout  time.Duration
	now      func() time.Time
}

// New builds an Engine over the given storage, credential vault, chain
// registry, and balance oracle. Behavior is tuned through options.
func New(db storage.Database, v *vault.Vault, registry *chains.Registry, balances chains.BalanceReader, opts ...Option) *Engine {
	e := &Engine{
		db:       db,
		registry: registry,
		balances: balances,
		signers:  signer.NewVaultFactory(v),
		log:      logger.NoopLogger{},
		metrics:  metrics.NoopRecorder{},
		timeout:  urlguard.DefaultTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.httpc == nil {
		e.httpc = urlguard.NewClient(e.timeout)
	}
	e.selector = chains.NewSelector(registry, balances)
	e.matcher = policy.NewMatcher(db, e.log)
	return e
}

// CheckPolicy reports what the user's spending policies decide for a
// payment of amount (human units) to endpoint on chainID. No network
// traffic happens, but an unmatched endpoint provisions the same draft
// policy the payment path would.
func (e *Engine) CheckPolicy(ctx context.Context, amount, endpoint, userID string, chainID int64) (types.PolicyCheckResult, error) {
	return e.matcher.CheckPolicy(ctx, amount, endpoint, userID, chainID)
}

// CreatePolicy stores a new spending policy after validating it.
func (e *Engine) CreatePolicy(ctx context.Context, p types.SpendingPolicy) (types.SpendingPolicy, error) {
	if err := urlguard.ValidateURL(p.EndpointPattern); err != nil {
		return types.SpendingPolicy{}, err
	}
	if p.Status == "" {
		p.Status = types.PolicyActive
	}
	return e.db.CreatePolicy(ctx, p)
}

// UpdatePolicy replaces a policy's mutable fields.
func (e *Engine) UpdatePolicy(ctx context.Context, p types.SpendingPolicy) (types.SpendingPolicy, error) {
	if err := urlguard.ValidateURL(p.EndpointPattern); err != nil {
		return types.SpendingPolicy{}, err
	}
	return e.db.UpdatePolicy(ctx, p)
}

// ArchivePolicy retires a policy. Archived policies never match payments.
func (e *Engine) ArchivePolicy(ctx context.Context, id uuid.UUID) error {
	return e.db.ArchivePolicy(ctx, id)
}

// ListPolicies returns all of the user's policies across states.
func (e *Engine) ListPolicies(ctx context.Context, userID string) ([]types.SpendingPolicy, error) {
	return e.db.GetPolicies(ctx, userID)
}

// defaultTransactionPage bounds ListTransactions when the caller passes a
// non-positive take.
const defaultTransactionPage = 50

// ListTransactions pages through the user's payment audit log, newest
// first. A non-positive take falls back to the default page size.
func (e *Engine) ListTransactions(ctx context.Context, userID string, take, skip int) ([]types.TransactionRecord, error) {
	if take <= 0 {
		take = defaultTransactionPage
	}
	if skip < 0 {
		skip = 0
	}
	return e.db.ListTransactions(ctx, userID, take, skip)
}

// ListPendingPayments returns the user's payments awaiting a decision.
// An empty status returns all of them.
func (e *Engine) ListPendingPayments(ctx context.Context, userID string, status types.PendingPaymentStatus) ([]types.PendingPayment, error) {
	return e.db.ListPendingPayments(ctx, userID, status)
}

// Close releases pooled resources. The Engine must not be used afterwards.
func (e *Engine) Close() error {
	if closer, ok := e.balances.(interface{ Close() }); ok {
		closer.Close()
	}
	return e.db.Close()
}
