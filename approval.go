package payflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/agentpay/payflow/metrics"
	"github.com/agentpay/payflow/types"
	"github.com/agentpay/payflow/urlguard"
)

// ApprovePendingPayment resumes a payment a human has approved: the stored
// request is signed and submitted with payment attached, and the pending
// record moves to completed or failed. An expired pending payment is marked
// expired and rejected instead of paid.
func (e *Engine) ApprovePendingPayment(ctx context.Context, userID string, id uuid.UUID) (types.PaymentResult, error) {
	pending, err := e.loadOwnedPending(ctx, userID, id)
	if err != nil {
		return rejectedFrom(err, types.ErrPaymentFailed), nil
	}

	if pending.Expired(e.now()) {
		if err := e.db.UpdatePendingPaymentStatus(ctx, id, types.PendingStatusExpired); err != nil {
			return nil, types.NewEngineError(types.ErrStorageError,
				fmt.Sprintf("failed to expire pending payment: %v", err))
		}
		return types.Rejected{Err: types.NewEngineError(types.ErrPaymentFailed,
			"approval window has expired")}, nil
	}

	var accepts []types.PaymentRequirements
	if err := json.Unmarshal(pending.Requirements, &accepts); err != nil ||
		pending.AcceptIndex < 0 || pending.AcceptIndex >= len(accepts) {
		return types.Rejected{Err: types.NewEngineError(types.ErrInvalidRequirements,
			"stored payment requirements are unreadable")}, nil
	}
	requirement := accepts[pending.AcceptIndex]

	info, ok := e.registry.ByID(pending.ChainID)
	if !ok {
		return types.Rejected{Err: types.NewEngineError(types.ErrUnsupportedNetwork,
			fmt.Sprintf("chain %d is no longer configured", pending.ChainID))}, nil
	}

	// The target may have been re-pointed since the payment was parked.
	if err := urlguard.ValidateURL(pending.Endpoint); err != nil {
		return rejectedFrom(err, types.ErrBlockedURL), nil
	}

	wallets, err := e.db.GetWallets(ctx, userID)
	if err != nil {
		return nil, types.NewEngineError(types.ErrStorageError,
			fmt.Sprintf("failed to load wallets: %v", err))
	}
	wallet := walletForChain(wallets, pending.ChainID, e.now())
	if wallet == nil {
		return types.Rejected{Err: types.NewEngineError(types.ErrSignerUnavailable,
			fmt.Sprintf("no wallet on chain %d", pending.ChainID))}, nil
	}

	if err := e.db.UpdatePendingPaymentStatus(ctx, id, types.PendingStatusApproved); err != nil {
		return nil, types.NewEngineError(types.ErrStorageError,
			fmt.Sprintf("failed to mark pending payment approved: %v", err))
	}

	header := urlguard.SanitizeHeaders(pending.Headers)
	result, err := e.payAndRecord(ctx, userID, pending.Method, pending.Endpoint,
		[]byte(pending.Body), header, requirement, info, wallet)
	if err != nil {
		return nil, err
	}

	final := types.PendingStatusFailed
	if completed, ok := result.(types.Completed); ok && completed.Paid {
		final = types.PendingStatusCompleted
		e.metrics.IncCounter(metrics.EventPaymentCompleted, map[string]string{"network": info.Network})
	} else {
		e.metrics.IncCounter(metrics.EventPaymentFailed, map[string]string{"network": info.Network})
	}
	if err := e.db.UpdatePendingPaymentStatus(ctx, id, final); err != nil {
		return nil, types.NewEngineError(types.ErrStorageError,
			fmt.Sprintf("failed to finalize pending payment: %v", err))
	}
	return result, nil
}

// RejectPendingPayment declines a parked payment. Nothing is signed and no
// audit row is written.
func (e *Engine) RejectPendingPayment(ctx context.Context, userID string, id uuid.UUID) error {
	if _, err := e.loadOwnedPending(ctx, userID, id); err != nil {
		return err
	}
	if err := e.db.UpdatePendingPaymentStatus(ctx, id, types.PendingStatusRejected); err != nil {
		return types.NewEngineError(types.ErrStorageError,
			fmt.Sprintf("failed to reject pending payment: %v", err))
	}
	return nil
}

// loadOwnedPending fetches a pending payment and checks ownership and
// state. Records belonging to another user are reported as not found.
func (e *Engine) loadOwnedPending(ctx context.Context, userID string, id uuid.UUID) (*types.PendingPayment, error) {
	pending, err := e.db.GetPendingPayment(ctx, id)
	if err != nil {
		return nil, types.NewEngineError(types.ErrStorageError,
			fmt.Sprintf("pending payment %s not found", id))
	}
	if pending.UserID != userID {
		return nil, types.NewEngineError(types.ErrStorageError,
			fmt.Sprintf("pending payment %s not found", id))
	}
	if pending.Status != types.PendingStatusPending {
		return nil, types.NewEngineError(types.ErrPaymentFailed,
			fmt.Sprintf("pending payment %s already resolved as %s", id, pending.Status))
	}
	return &pending, nil
}
