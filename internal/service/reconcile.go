// Provider 델타 → 로컬 변경 계획 계산
//
// 처리 흐름:
//  1. added 중 로컬에 없는 provider ID만 insert 후보로 선정
//  2. modified 중 로컬에 있는 provider ID만 update 후보로 선정
//  3. removed 중 로컬에 있는 provider ID만 remove 후보로 선정
//  4. pending → posted 전환은 별도로 짝을 맞춰 해소
//
// 이 파일의 함수는 전부 순수 함수다: I/O 없음, 잘 구성된 입력에 대해 실패 없음.

package service

import (
	"time"

	"github.com/banksync/backend/internal/model"
)

const unknownPayee = "Unknown Payee"

// ReconcileTransactions turns a provider-reported delta into the minimal
// safe mutation plan against the locally known provider-transaction IDs.
// Unknown IDs are never updated or removed; known IDs are never re-inserted.
func ReconcileTransactions(syncResult model.BankSyncResult, existingProviderIDs map[string]struct{}) model.SyncReconciliationResult {
	result := model.SyncReconciliationResult{
		ToInsert: []model.BankTransactionRecord{},
		ToUpdate: []model.BankTransactionRecord{},
		ToRemove: []string{},
	}

	for _, txn := range syncResult.Added {
		if _, known := existingProviderIDs[txn.ProviderTransactionID]; !known {
			result.ToInsert = append(result.ToInsert, txn)
		}
	}

	for _, txn := range syncResult.Modified {
		if _, known := existingProviderIDs[txn.ProviderTransactionID]; known {
			result.ToUpdate = append(result.ToUpdate, txn)
		}
	}

	for _, id := range syncResult.RemovedProviderTransactionIDs {
		if _, known := existingProviderIDs[id]; known {
			result.ToRemove = append(result.ToRemove, id)
		}
	}

	result.Counts = model.ReconciliationCounts{
		ToInsert: len(result.ToInsert),
		ToUpdate: len(result.ToUpdate),
		ToRemove: len(result.ToRemove),
	}
	return result
}

// ResolvePendingTransactions pairs posted records to pending records via
// pendingTransactionId → providerTransactionId. Posted records without a
// pending reference, or whose referenced pending record is absent, produce
// no resolution (pending 단계 없이 바로 posted되는 거래가 흔하다).
func ResolvePendingTransactions(pendingTxns, postedTxns []model.BankTransactionRecord) []model.PendingResolution {
	pendingByID := make(map[string]model.BankTransactionRecord, len(pendingTxns))
	for _, txn := range pendingTxns {
		pendingByID[txn.ProviderTransactionID] = txn
	}

	resolutions := []model.PendingResolution{}
	for _, posted := range postedTxns {
		if posted.PendingTransactionID == nil {
			continue
		}
		pending, ok := pendingByID[*posted.PendingTransactionID]
		if !ok {
			continue
		}

		resolution := model.PendingResolution{
			PendingID: pending.ProviderTransactionID,
			PostedID:  posted.ProviderTransactionID,
		}
		if pending.Amount != posted.Amount {
			previous := pending.Amount
			current := posted.Amount
			resolution.AmountChanged = true
			resolution.PreviousAmount = &previous
			resolution.NewAmount = &current
		}
		resolutions = append(resolutions, resolution)
	}
	return resolutions
}

// MapBankTransactionToLocal converts a provider record into the local
// transaction shape. Provider dates take priority; today is the fallback
// only when the provider omitted both (호출자가 비정상으로 로깅해야 한다).
func MapBankTransactionToLocal(bankTxn model.BankTransactionRecord, localAccountID string) model.BankToLocalMapping {
	date := time.Now()
	switch {
	case bankTxn.DatePosted != nil:
		date = *bankTxn.DatePosted
	case bankTxn.DateAuthorized != nil:
		date = *bankTxn.DateAuthorized
	}

	payee := unknownPayee
	if bankTxn.Payee != nil && *bankTxn.Payee != "" {
		payee = *bankTxn.Payee
	}

	return model.BankToLocalMapping{
		AccountID: localAccountID,
		Date:      date,
		Payee:     payee,
		Memo:      bankTxn.Memo,
		Amount:    bankTxn.Amount,
		Cleared:   !bankTxn.IsPending,
	}
}
