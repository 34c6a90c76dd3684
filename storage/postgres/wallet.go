package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/agentpay/payflow/types"
)

func scanWallet(row pgx.Row) (types.Wallet, error) {
	var w types.Wallet
	var encryptedKey *string
	var sessionKeyJSON []byte

	err := row.Scan(&w.ID, &w.UserID, &w.ChainID, &w.Address, &encryptedKey, &sessionKeyJSON, &w.CreatedAt)
	if err != nil {
		return types.Wallet{}, err
	}

	if encryptedKey != nil {
		w.EncryptedKey = *encryptedKey
	}
	if len(sessionKeyJSON) > 0 {
		var key types.SessionKey
		if err := json.Unmarshal(sessionKeyJSON, &key); err != nil {
			return types.Wallet{}, fmt.Errorf("failed to parse session key: %w", err)
		}
		w.SessionKey = &key
	}
	return w, nil
}

const walletColumns = `id, user_id, chain_id, address, encrypted_key, session_key, created_at`

func (b *Backend) GetWallets(ctx context.Context, userID string) ([]types.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1 ORDER BY created_at`

	rows, err := b.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query wallets: %w", err)
	}
	defer rows.Close()

	var wallets []types.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}
