package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/agentpay/payflow/types"
)

const pendingColumns = `id, user_id, status, endpoint, method, COALESCE(body, ''), headers, requirements, accept_index, chain_id, amount, COALESCE(reason, ''), created_at, expires_at`

func scanPending(row pgx.Row) (types.PendingPayment, error) {
	var p types.PendingPayment
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Status,
		&p.Endpoint,
		&p.Method,
		&p.Body,
		&p.Headers,
		&p.Requirements,
		&p.AcceptIndex,
		&p.ChainID,
		&p.Amount,
		&p.Reason,
		&p.CreatedAt,
		&p.ExpiresAt,
	)
	return p, err
}

func (b *Backend) CreatePendingPayment(ctx context.Context, pending types.PendingPayment) (types.PendingPayment, error) {
	if pending.Status == "" {
		pending.Status = types.PendingStatusPending
	}

	query := `
        INSERT INTO pending_payments (
            user_id, status, endpoint, method, body, headers,
            requirements, accept_index, chain_id, amount, reason, expires_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        RETURNING ` + pendingColumns

	p, err := scanPending(b.pool.QueryRow(ctx, query,
		pending.UserID,
		pending.Status,
		pending.Endpoint,
		pending.Method,
		nullable(pending.Body),
		pending.Headers,
		pending.Requirements,
		pending.AcceptIndex,
		pending.ChainID,
		pending.Amount,
		nullable(pending.Reason),
		pending.ExpiresAt,
	))
	if err != nil {
		return types.PendingPayment{}, fmt.Errorf("failed to create pending payment: %w", err)
	}
	return p, nil
}

func (b *Backend) GetPendingPayment(ctx context.Context, id uuid.UUID) (types.PendingPayment, error) {
	query := `SELECT ` + pendingColumns + ` FROM pending_payments WHERE id = $1`

	p, err := scanPending(b.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return types.PendingPayment{}, types.NewEngineError(types.ErrStorageError,
			fmt.Sprintf("pending payment %s not found", id))
	}
	if err != nil {
		return types.PendingPayment{}, fmt.Errorf("failed to get pending payment: %w", err)
	}
	return p, nil
}

func (b *Backend) ListPendingPayments(ctx context.Context, userID string, status types.PendingPaymentStatus) ([]types.PendingPayment, error) {
	query := `SELECT ` + pendingColumns + ` FROM pending_payments WHERE user_id = $1`
	args := []interface{}{userID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at`

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending payments: %w", err)
	}
	defer rows.Close()

	var out []types.PendingPayment
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (b *Backend) UpdatePendingPaymentStatus(ctx context.Context, id uuid.UUID, status types.PendingPaymentStatus) error {
	tag, err := b.pool.Exec(ctx,
		`UPDATE pending_payments SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update pending payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewEngineError(types.ErrStorageError,
			fmt.Sprintf("pending payment %s not found", id))
	}
	return nil
}
