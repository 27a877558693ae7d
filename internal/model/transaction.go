package model

import "time"

// BankTransactionRecord - provider가 한 번의 sync에서 보고한 거래 스냅샷
//
// Amount는 최소 화폐 단위 정수 (예: KRW는 원, USD는 센트).
type BankTransactionRecord struct {
	ProviderTransactionID string     `json:"providerTransactionId"`
	ProviderAccountID     string     `json:"providerAccountId,omitempty"`
	PendingTransactionID  *string    `json:"pendingTransactionId,omitempty"`
	DatePosted            *time.Time `json:"datePosted,omitempty"`
	DateAuthorized        *time.Time `json:"dateAuthorized,omitempty"`
	Payee                 *string    `json:"payee,omitempty"`
	Memo                  *string    `json:"memo,omitempty"`
	Amount                int64      `json:"amount"`
	Currency              string     `json:"currency"`
	IsPending             bool       `json:"isPending"`
}

// BankSyncResult - provider가 보고한 한 sync 사이클의 델타
type BankSyncResult struct {
	Added                         []BankTransactionRecord `json:"added"`
	Modified                      []BankTransactionRecord `json:"modified"`
	RemovedProviderTransactionIDs []string                `json:"removed"`
	NextCursor                    string                  `json:"nextCursor"`
}

// ReconciliationCounts - 계획된 변경 개수 (슬라이스 길이와 동일)
type ReconciliationCounts struct {
	ToInsert int `json:"toInsert"`
	ToUpdate int `json:"toUpdate"`
	ToRemove int `json:"toRemove"`
}

// SyncReconciliationResult - 델타를 로컬에 안전하게 적용하기 위한 계획.
// 저장되지 않는 파생 값이다.
type SyncReconciliationResult struct {
	ToInsert []BankTransactionRecord `json:"-"`
	ToUpdate []BankTransactionRecord `json:"-"`
	ToRemove []string                `json:"-"`
	Counts   ReconciliationCounts    `json:"counts"`
}

// PendingResolution - pending 거래가 posted 거래로 확정된 쌍
type PendingResolution struct {
	PendingID      string `json:"pendingId"`
	PostedID       string `json:"postedId"`
	AmountChanged  bool   `json:"amountChanged"`
	PreviousAmount *int64 `json:"previousAmount,omitempty"`
	NewAmount      *int64 `json:"newAmount,omitempty"`
}

// BankTransactionUpsert - 저장 계층에 전달되는 provider 원본 + 로컬 변환 쌍
type BankTransactionUpsert struct {
	Record BankTransactionRecord
	Local  BankToLocalMapping
}

// BankToLocalMapping - provider 거래를 로컬 거래 형태로 변환한 결과
type BankToLocalMapping struct {
	AccountID string    `json:"accountId"`
	Date      time.Time `json:"date"`
	Payee     string    `json:"payee"`
	Memo      *string   `json:"memo,omitempty"`
	Amount    int64     `json:"amount"`
	Cleared   bool      `json:"cleared"`
}
