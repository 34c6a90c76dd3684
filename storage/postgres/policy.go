package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/agentpay/payflow/types"
)

const policyColumns = `id, user_id, chain_id, endpoint_pattern, auto_sign, status, archived_at, created_at, updated_at`

func scanPolicy(row pgx.Row) (types.SpendingPolicy, error) {
	var p types.SpendingPolicy
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.ChainID,
		&p.EndpointPattern,
		&p.AutoSign,
		&p.Status,
		&p.ArchivedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

func (b *Backend) GetActivePolicies(ctx context.Context, userID string, chainID int64) ([]types.SpendingPolicy, error) {
	query := `
        SELECT ` + policyColumns + `
        FROM spending_policies
        WHERE user_id = $1 AND chain_id = $2 AND status = 'active'
        ORDER BY endpoint_pattern`

	rows, err := b.pool.Query(ctx, query, userID, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to query active policies: %w", err)
	}
	defer rows.Close()

	var policies []types.SpendingPolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

func (b *Backend) GetPolicies(ctx context.Context, userID string) ([]types.SpendingPolicy, error) {
	query := `
        SELECT ` + policyColumns + `
        FROM spending_policies
        WHERE user_id = $1
        ORDER BY endpoint_pattern`

	rows, err := b.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query policies: %w", err)
	}
	defer rows.Close()

	var policies []types.SpendingPolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

func (b *Backend) GetPolicy(ctx context.Context, id uuid.UUID) (types.SpendingPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM spending_policies WHERE id = $1`

	p, err := scanPolicy(b.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return types.SpendingPolicy{}, types.NewEngineError(types.ErrStorageError,
			fmt.Sprintf("policy %s not found", id))
	}
	if err != nil {
		return types.SpendingPolicy{}, fmt.Errorf("failed to get policy: %w", err)
	}
	return p, nil
}

func (b *Backend) CreatePolicy(ctx context.Context, policy types.SpendingPolicy) (types.SpendingPolicy, error) {
	if policy.ID == uuid.Nil {
		policy.ID = uuid.New()
	}
	if policy.Status == "" {
		policy.Status = types.PolicyActive
	}

	query := `
        INSERT INTO spending_policies (id, user_id, chain_id, endpoint_pattern, auto_sign, status)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING ` + policyColumns

	p, err := scanPolicy(b.pool.QueryRow(ctx, query,
		policy.ID, policy.UserID, policy.ChainID, policy.EndpointPattern, policy.AutoSign, policy.Status))
	if err != nil {
		return types.SpendingPolicy{}, fmt.Errorf("failed to insert policy: %w", err)
	}
	return p, nil
}

func (b *Backend) UpdatePolicy(ctx context.Context, policy types.SpendingPolicy) (types.SpendingPolicy, error) {
	query := `
        UPDATE spending_policies
        SET auto_sign = $2, status = $3, updated_at = NOW()
        WHERE id = $1
        RETURNING ` + policyColumns

	p, err := scanPolicy(b.pool.QueryRow(ctx, query, policy.ID, policy.AutoSign, policy.Status))
	if errors.Is(err, pgx.ErrNoRows) {
		return types.SpendingPolicy{}, types.NewEngineError(types.ErrStorageError,
			fmt.Sprintf("policy %s not found", policy.ID))
	}
	if err != nil {
		return types.SpendingPolicy{}, fmt.Errorf("failed to update policy: %w", err)
	}
	return p, nil
}

func (b *Backend) ArchivePolicy(ctx context.Context, id uuid.UUID) error {
	tag, err := b.pool.Exec(ctx, `
        UPDATE spending_policies
        SET status = 'archived', archived_at = NOW(), updated_at = NOW()
        WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to archive policy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewEngineError(types.ErrStorageError, fmt.Sprintf("policy %s not found", id))
	}
	return nil
}

// UpsertDraftPolicy is the atomic insert-or-reactivate used by the policy
// matcher. The conditional update leaves active rows untouched and flips
// draft/archived rows back to draft.
func (b *Backend) UpsertDraftPolicy(ctx context.Context, userID string, chainID int64, endpointPattern string) (types.SpendingPolicy, error) {
	query := `
        INSERT INTO spending_policies (user_id, chain_id, endpoint_pattern, auto_sign, status)
        VALUES ($1, $2, $3, FALSE, 'draft')
        ON CONFLICT (user_id, endpoint_pattern, chain_id) DO UPDATE SET
            status = CASE WHEN spending_policies.status = 'active' THEN 'active' ELSE 'draft' END,
            archived_at = CASE WHEN spending_policies.status = 'active' THEN spending_policies.archived_at ELSE NULL END,
            updated_at = NOW()
        RETURNING ` + policyColumns

	p, err := scanPolicy(b.pool.QueryRow(ctx, query, userID, chainID, endpointPattern))
	if err != nil {
		return types.SpendingPolicy{}, fmt.Errorf("failed to upsert draft policy: %w", err)
	}
	return p, nil
}
