// 금융기관 연동/계좌 저장

package db

import (
	"context"
	"fmt"

	"github.com/banksync/backend/internal/model"
)

func (db *Postgres) EnsureConnectionSchema(ctx context.Context) error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS bank_connections (
			id TEXT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			provider TEXT NOT NULL,
			access_token TEXT NOT NULL,
			sync_cursor TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`CREATE INDEX IF NOT EXISTS bank_connections_user_id_idx ON bank_connections(user_id)`,
		`
		CREATE TABLE IF NOT EXISTS bank_accounts (
			id TEXT PRIMARY KEY,
			connection_id TEXT NOT NULL REFERENCES bank_connections(id) ON DELETE CASCADE,
			provider_account_id TEXT NOT NULL,
			name TEXT NOT NULL,
			mask TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT '',
			currency TEXT NOT NULL DEFAULT '',
			UNIQUE (connection_id, provider_account_id)
		)
		`,
	}

	for _, query := range queries {
		if _, err := db.Pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to create connection tables: %w", err)
		}
	}
	return nil
}

func (db *Postgres) CreateBankConnection(ctx context.Context, conn model.BankConnection) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO bank_connections (id, user_id, provider, access_token, sync_cursor, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, conn.ID, conn.UserID, conn.Provider, conn.AccessToken, conn.SyncCursor, conn.Status, conn.CreatedAt, conn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert bank connection: %w", err)
	}
	return nil
}

func (db *Postgres) GetConnectionByID(ctx context.Context, id string) (*model.BankConnection, error) {
	var conn model.BankConnection
	err := db.Pool.QueryRow(ctx, `
		SELECT id, user_id, provider, access_token, sync_cursor, status, created_at, updated_at
		FROM bank_connections
		WHERE id = $1
	`, id).Scan(
		&conn.ID,
		&conn.UserID,
		&conn.Provider,
		&conn.AccessToken,
		&conn.SyncCursor,
		&conn.Status,
		&conn.CreatedAt,
		&conn.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get bank connection: %w", err)
	}
	return &conn, nil
}

func (db *Postgres) ListConnectionsByUser(ctx context.Context, userID int64) ([]model.BankConnection, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, user_id, provider, access_token, sync_cursor, status, created_at, updated_at
		FROM bank_connections
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bank connections: %w", err)
	}
	defer rows.Close()

	connections := []model.BankConnection{}
	for rows.Next() {
		var conn model.BankConnection
		if err := rows.Scan(
			&conn.ID,
			&conn.UserID,
			&conn.Provider,
			&conn.AccessToken,
			&conn.SyncCursor,
			&conn.Status,
			&conn.CreatedAt,
			&conn.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan bank connection: %w", err)
		}
		connections = append(connections, conn)
	}
	return connections, rows.Err()
}

func (db *Postgres) UpsertBankAccounts(ctx context.Context, connectionID string, accounts []model.BankAccount) error {
	for _, acct := range accounts {
		_, err := db.Pool.Exec(ctx, `
			INSERT INTO bank_accounts (id, connection_id, provider_account_id, name, mask, type, currency)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (connection_id, provider_account_id) DO UPDATE
			SET name = EXCLUDED.name, mask = EXCLUDED.mask, type = EXCLUDED.type, currency = EXCLUDED.currency
		`, acct.ID, connectionID, acct.ProviderAccountID, acct.Name, acct.Mask, acct.Type, acct.Currency)
		if err != nil {
			return fmt.Errorf("failed to upsert bank account: %w", err)
		}
	}
	return nil
}

func (db *Postgres) ListAccountsByConnection(ctx context.Context, connectionID string) ([]model.BankAccount, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, connection_id, provider_account_id, name, mask, type, currency
		FROM bank_accounts
		WHERE connection_id = $1
		ORDER BY name
	`, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bank accounts: %w", err)
	}
	defer rows.Close()

	accounts := []model.BankAccount{}
	for rows.Next() {
		var acct model.BankAccount
		if err := rows.Scan(
			&acct.ID,
			&acct.ConnectionID,
			&acct.ProviderAccountID,
			&acct.Name,
			&acct.Mask,
			&acct.Type,
			&acct.Currency,
		); err != nil {
			return nil, fmt.Errorf("failed to scan bank account: %w", err)
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

func (db *Postgres) UpdateSyncCursor(ctx context.Context, connectionID, cursor string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE bank_connections
		SET sync_cursor = $2, updated_at = NOW()
		WHERE id = $1
	`, connectionID, cursor)
	if err != nil {
		return fmt.Errorf("failed to update sync cursor: %w", err)
	}
	return nil
}

func (db *Postgres) UpdateConnectionStatus(ctx context.Context, connectionID, status string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE bank_connections
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`, connectionID, status)
	if err != nil {
		return fmt.Errorf("failed to update connection status: %w", err)
	}
	return nil
}
