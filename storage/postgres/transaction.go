package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/agentpay/payflow/types"
)

func (b *Backend) AppendTransaction(ctx context.Context, record types.TransactionRecord) (uuid.UUID, error) {
	query := `
        INSERT INTO transaction_records (
            user_id, amount, endpoint, chain_id, network, status,
            tx_hash, settlement, error_message, response_status, response_body
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        RETURNING id`

	var txID uuid.UUID
	err := b.pool.QueryRow(ctx, query,
		record.UserID,
		record.Amount,
		record.Endpoint,
		record.ChainID,
		record.Network,
		record.Status,
		nullable(record.TxHash),
		record.Settlement,
		nullable(record.ErrorMessage),
		record.ResponseStatus,
		nullable(record.ResponseBody),
	).Scan(&txID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to append transaction record: %w", err)
	}
	return txID, nil
}

func (b *Backend) ListTransactions(ctx context.Context, userID string, take, skip int) ([]types.TransactionRecord, error) {
	query := `
        SELECT id, user_id, amount, endpoint, chain_id, network, status,
               COALESCE(tx_hash, ''), settlement, COALESCE(error_message, ''),
               COALESCE(response_status, 0), COALESCE(response_body, ''), created_at
        FROM transaction_records
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`

	rows, err := b.pool.Query(ctx, query, userID, take, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction records: %w", err)
	}
	defer rows.Close()

	var records []types.TransactionRecord
	for rows.Next() {
		var tx types.TransactionRecord
		err := rows.Scan(
			&tx.ID,
			&tx.UserID,
			&tx.Amount,
			&tx.Endpoint,
			&tx.ChainID,
			&tx.Network,
			&tx.Status,
			&tx.TxHash,
			&tx.Settlement,
			&tx.ErrorMessage,
			&tx.ResponseStatus,
			&tx.ResponseBody,
			&tx.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, tx)
	}
	return records, rows.Err()
}

// nullable maps empty strings to NULL so the audit rows stay sparse.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
