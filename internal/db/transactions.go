// 은행 거래 저장
//
// (connection_id, provider_transaction_id) 쌍을 유일 키로 유지하고,
// provider가 삭제를 보고한 거래는 실제 삭제 대신 removed 플래그만 세운다.

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/banksync/backend/internal/model"
)

func (db *Postgres) EnsureTransactionSchema(ctx context.Context) error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS bank_transactions (
			id BIGSERIAL PRIMARY KEY,
			connection_id TEXT NOT NULL REFERENCES bank_connections(id) ON DELETE CASCADE,
			provider_transaction_id TEXT NOT NULL,
			pending_transaction_id TEXT,
			account_id TEXT NOT NULL,
			date DATE NOT NULL,
			payee TEXT NOT NULL,
			memo TEXT,
			amount BIGINT NOT NULL,
			currency TEXT NOT NULL DEFAULT '',
			is_pending BOOLEAN NOT NULL DEFAULT FALSE,
			cleared BOOLEAN NOT NULL DEFAULT FALSE,
			removed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (connection_id, provider_transaction_id)
		)
		`,
		`CREATE INDEX IF NOT EXISTS bank_transactions_pending_idx ON bank_transactions(connection_id) WHERE is_pending AND NOT removed`,
	}

	for _, query := range queries {
		if _, err := db.Pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to create transaction tables: %w", err)
		}
	}
	return nil
}

// GetKnownProviderTransactionIDs - 연동에 이미 저장된 provider 거래 ID 셋.
// removed된 행도 포함한다 (삭제 보고된 거래의 재-insert 방지).
func (db *Postgres) GetKnownProviderTransactionIDs(ctx context.Context, connectionID string) (map[string]struct{}, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT provider_transaction_id
		FROM bank_transactions
		WHERE connection_id = $1
	`, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list known transaction ids: %w", err)
	}
	defer rows.Close()

	known := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan transaction id: %w", err)
		}
		known[id] = struct{}{}
	}
	return known, rows.Err()
}

func (db *Postgres) InsertBankTransactions(ctx context.Context, connectionID string, upserts []model.BankTransactionUpsert) error {
	for _, row := range upserts {
		_, err := db.Pool.Exec(ctx, `
			INSERT INTO bank_transactions
				(connection_id, provider_transaction_id, pending_transaction_id,
				 account_id, date, payee, memo, amount, currency, is_pending, cleared)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (connection_id, provider_transaction_id) DO NOTHING
		`,
			connectionID,
			row.Record.ProviderTransactionID,
			row.Record.PendingTransactionID,
			row.Local.AccountID,
			row.Local.Date,
			row.Local.Payee,
			row.Local.Memo,
			row.Local.Amount,
			row.Record.Currency,
			row.Record.IsPending,
			row.Local.Cleared,
		)
		if err != nil {
			return fmt.Errorf("failed to insert bank transaction: %w", err)
		}
	}
	return nil
}

func (db *Postgres) UpdateBankTransactions(ctx context.Context, connectionID string, upserts []model.BankTransactionUpsert) error {
	for _, row := range upserts {
		_, err := db.Pool.Exec(ctx, `
			UPDATE bank_transactions
			SET pending_transaction_id = $3,
				account_id = $4,
				date = $5,
				payee = $6,
				memo = $7,
				amount = $8,
				currency = $9,
				is_pending = $10,
				cleared = $11,
				updated_at = NOW()
			WHERE connection_id = $1 AND provider_transaction_id = $2
		`,
			connectionID,
			row.Record.ProviderTransactionID,
			row.Record.PendingTransactionID,
			row.Local.AccountID,
			row.Local.Date,
			row.Local.Payee,
			row.Local.Memo,
			row.Local.Amount,
			row.Record.Currency,
			row.Record.IsPending,
			row.Local.Cleared,
		)
		if err != nil {
			return fmt.Errorf("failed to update bank transaction: %w", err)
		}
	}
	return nil
}

func (db *Postgres) MarkBankTransactionsRemoved(ctx context.Context, connectionID string, providerIDs []string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE bank_transactions
		SET removed = TRUE, updated_at = NOW()
		WHERE connection_id = $1 AND provider_transaction_id = ANY($2)
	`, connectionID, providerIDs)
	if err != nil {
		return fmt.Errorf("failed to mark transactions removed: %w", err)
	}
	return nil
}

func (db *Postgres) GetPendingBankTransactions(ctx context.Context, connectionID string) ([]model.BankTransactionRecord, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT provider_transaction_id, pending_transaction_id, date, payee, memo, amount, currency, is_pending
		FROM bank_transactions
		WHERE connection_id = $1 AND is_pending AND NOT removed
	`, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	defer rows.Close()

	pending := []model.BankTransactionRecord{}
	for rows.Next() {
		var txn model.BankTransactionRecord
		var date *time.Time
		if err := rows.Scan(
			&txn.ProviderTransactionID,
			&txn.PendingTransactionID,
			&date,
			&txn.Payee,
			&txn.Memo,
			&txn.Amount,
			&txn.Currency,
			&txn.IsPending,
		); err != nil {
			return nil, fmt.Errorf("failed to scan pending transaction: %w", err)
		}
		txn.DatePosted = date
		pending = append(pending, txn)
	}
	return pending, rows.Err()
}

// ApplyPendingResolutions - pending 행을 posted 거래와 연결하고 확정 처리.
// pending 행은 removed로 접고, posted 행에 pending 링크를 남긴다.
func (db *Postgres) ApplyPendingResolutions(ctx context.Context, connectionID string, resolutions []model.PendingResolution) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, resolution := range resolutions {
		if _, err := tx.Exec(ctx, `
			UPDATE bank_transactions
			SET removed = TRUE, is_pending = FALSE, updated_at = NOW()
			WHERE connection_id = $1 AND provider_transaction_id = $2
		`, connectionID, resolution.PendingID); err != nil {
			return fmt.Errorf("failed to fold pending transaction: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE bank_transactions
			SET pending_transaction_id = $3, cleared = TRUE, updated_at = NOW()
			WHERE connection_id = $1 AND provider_transaction_id = $2
		`, connectionID, resolution.PostedID, resolution.PendingID); err != nil {
			return fmt.Errorf("failed to link posted transaction: %w", err)
		}
	}

	return tx.Commit(ctx)
}
