// Bank-sync 파이프라인 오케스트레이션
//
// 처리 흐름 (웹훅 1건):
//  1. idempotency 중복 검사 + processing 마크 (단일 임계 구역)
//  2. connector로 provider 델타 조회 (access token + cursor)
//  3. 로컬에 알려진 provider ID 셋과 대조해 변경 계획 계산
//  4. insert/update/remove 적용
//  5. pending → posted 전환 해소 및 반영
//  6. sync cursor 전진
//  7. completed 마크 (실패 시 failed 마크 → 재전송 시 재시도 가능)

package service

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/banksync/backend/internal/model"
)

// providerConnector - 은행 provider 연동 (외부 협력자)
type providerConnector interface {
	SyncTransactions(ctx context.Context, accessToken, cursor string) (*model.BankSyncResult, error)
}

// syncRepo - 연동/거래 저장 계층 인터페이스
type syncRepo interface {
	GetConnectionByID(ctx context.Context, id string) (*model.BankConnection, error)
	GetKnownProviderTransactionIDs(ctx context.Context, connectionID string) (map[string]struct{}, error)
	InsertBankTransactions(ctx context.Context, connectionID string, rows []model.BankTransactionUpsert) error
	UpdateBankTransactions(ctx context.Context, connectionID string, rows []model.BankTransactionUpsert) error
	MarkBankTransactionsRemoved(ctx context.Context, connectionID string, providerIDs []string) error
	GetPendingBankTransactions(ctx context.Context, connectionID string) ([]model.BankTransactionRecord, error)
	ApplyPendingResolutions(ctx context.Context, connectionID string, resolutions []model.PendingResolution) error
	UpdateSyncCursor(ctx context.Context, connectionID, cursor string) error
	ListAccountsByConnection(ctx context.Context, connectionID string) ([]model.BankAccount, error)
}

// SyncService - 웹훅/수동 트리거를 받아 한 번의 sync 사이클을 수행
type SyncService struct {
	connector providerConnector
	repo      syncRepo
	store     IdempotencyStore

	// admitMu turns "check duplicate, then mark processing" into a single
	// critical section so concurrent redelivery of one event cannot both
	// pass the duplicate check.
	admitMu sync.Mutex
}

func NewSyncService(connector providerConnector, repo syncRepo, store IdempotencyStore) *SyncService {
	return &SyncService{
		connector: connector,
		repo:      repo,
		store:     store,
	}
}

// ProcessWebhook runs the pipeline for one provider event. The second return
// value reports whether the event was suppressed as a duplicate.
func (s *SyncService) ProcessWebhook(ctx context.Context, event model.ProviderWebhook) (*model.SyncSummary, bool, error) {
	// 1. 중복 검사 + processing 마크
	s.admitMu.Lock()
	duplicate, err := s.store.IsDuplicate(ctx, event.Provider, event.EventID)
	if err != nil {
		s.admitMu.Unlock()
		return nil, false, fmt.Errorf("failed to check webhook duplicate: %w", err)
	}
	if duplicate {
		s.admitMu.Unlock()
		log.Printf("[Sync] Skipping duplicate webhook: provider=%s eventId=%s", event.Provider, event.EventID)
		return nil, true, nil
	}
	if err := s.store.Record(ctx, event.Provider, event.EventID, model.WebhookProcessing); err != nil {
		s.admitMu.Unlock()
		return nil, false, fmt.Errorf("failed to mark webhook processing: %w", err)
	}
	s.admitMu.Unlock()

	summary, err := s.syncConnection(ctx, event.ConnectionID)
	if err != nil {
		// failed 상태만이 같은 이벤트 키의 재처리를 허용한다
		if recordErr := s.store.Record(ctx, event.Provider, event.EventID, model.WebhookFailed); recordErr != nil {
			log.Printf("[Sync] Failed to mark webhook failed (eventId=%s): %v", event.EventID, recordErr)
		}
		return nil, false, err
	}

	if err := s.store.Record(ctx, event.Provider, event.EventID, model.WebhookCompleted); err != nil {
		log.Printf("[Sync] Failed to mark webhook completed (eventId=%s): %v", event.EventID, err)
	}

	log.Printf("[Sync] Webhook processed: provider=%s eventId=%s inserted=%d updated=%d removed=%d pendingResolved=%d",
		event.Provider, event.EventID, summary.Inserted, summary.Updated, summary.Removed, summary.PendingResolved)
	return summary, false, nil
}

// TriggerSync runs one sync cycle outside the webhook path (user-initiated,
// so no idempotency key is involved).
func (s *SyncService) TriggerSync(ctx context.Context, connectionID string) (*model.SyncSummary, error) {
	return s.syncConnection(ctx, connectionID)
}

func (s *SyncService) syncConnection(ctx context.Context, connectionID string) (*model.SyncSummary, error) {
	conn, err := s.repo.GetConnectionByID(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load connection: %w", err)
	}

	// pending 스냅샷은 델타 적용 전에 확보한다 (이번 델타의 posted와 짝 맞추기)
	pendingBefore, err := s.repo.GetPendingBankTransactions(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending transactions: %w", err)
	}

	syncResult, err := s.connector.SyncTransactions(ctx, conn.AccessToken, conn.SyncCursor)
	if err != nil {
		return nil, fmt.Errorf("failed to sync with provider: %w", err)
	}

	existing, err := s.repo.GetKnownProviderTransactionIDs(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load known transaction ids: %w", err)
	}

	plan := ReconcileTransactions(*syncResult, existing)

	accountIDs, err := s.localAccountIDs(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}

	if len(plan.ToInsert) > 0 {
		if err := s.repo.InsertBankTransactions(ctx, connectionID, s.buildUpserts(connectionID, accountIDs, plan.ToInsert)); err != nil {
			return nil, fmt.Errorf("failed to insert transactions: %w", err)
		}
	}
	if len(plan.ToUpdate) > 0 {
		if err := s.repo.UpdateBankTransactions(ctx, connectionID, s.buildUpserts(connectionID, accountIDs, plan.ToUpdate)); err != nil {
			return nil, fmt.Errorf("failed to update transactions: %w", err)
		}
	}
	if len(plan.ToRemove) > 0 {
		if err := s.repo.MarkBankTransactionsRemoved(ctx, connectionID, plan.ToRemove); err != nil {
			return nil, fmt.Errorf("failed to remove transactions: %w", err)
		}
	}

	// pending → posted 해소: 이번 델타에 들어온 posted 레코드만 대상으로 한다
	posted := make([]model.BankTransactionRecord, 0, len(syncResult.Added)+len(syncResult.Modified))
	for _, txn := range syncResult.Added {
		if !txn.IsPending {
			posted = append(posted, txn)
		}
	}
	for _, txn := range syncResult.Modified {
		if !txn.IsPending {
			posted = append(posted, txn)
		}
	}

	resolutions := ResolvePendingTransactions(pendingBefore, posted)
	if len(resolutions) > 0 {
		if err := s.repo.ApplyPendingResolutions(ctx, connectionID, resolutions); err != nil {
			return nil, fmt.Errorf("failed to apply pending resolutions: %w", err)
		}
		for _, resolution := range resolutions {
			if resolution.AmountChanged {
				log.Printf("[Sync] Pending amount changed: pending=%s posted=%s %d -> %d",
					resolution.PendingID, resolution.PostedID, *resolution.PreviousAmount, *resolution.NewAmount)
			}
		}
	}

	if syncResult.NextCursor != "" && syncResult.NextCursor != conn.SyncCursor {
		if err := s.repo.UpdateSyncCursor(ctx, connectionID, syncResult.NextCursor); err != nil {
			return nil, fmt.Errorf("failed to update sync cursor: %w", err)
		}
	}

	return &model.SyncSummary{
		Inserted:        plan.Counts.ToInsert,
		Updated:         plan.Counts.ToUpdate,
		Removed:         plan.Counts.ToRemove,
		PendingResolved: len(resolutions),
	}, nil
}

// localAccountIDs - 저장된 계좌의 provider account ID → 로컬 계좌 ID 매핑
func (s *SyncService) localAccountIDs(ctx context.Context, connectionID string) (map[string]string, error) {
	accounts, err := s.repo.ListAccountsByConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	byProviderID := make(map[string]string, len(accounts))
	for _, acct := range accounts {
		byProviderID[acct.ProviderAccountID] = acct.ID
	}
	return byProviderID, nil
}

func (s *SyncService) buildUpserts(connectionID string, accountIDs map[string]string, txns []model.BankTransactionRecord) []model.BankTransactionUpsert {
	rows := make([]model.BankTransactionUpsert, 0, len(txns))
	for _, txn := range txns {
		if txn.DatePosted == nil && txn.DateAuthorized == nil {
			// provider가 날짜를 아예 누락한 비정상 케이스: 오늘 날짜로 대체된다
			log.Printf("[Sync] Transaction has no provider date, falling back to today: providerTxnId=%s", txn.ProviderTransactionID)
		}

		accountID, ok := accountIDs[txn.ProviderAccountID]
		if !ok {
			// 계좌 목록에 없는 거래는 연동 단위로 귀속시킨다 (다음 sync에서
			// 계좌가 발견되면 update 경로로 재귀속)
			log.Printf("[Sync] Unknown provider account, attributing to connection: providerTxnId=%s providerAccountId=%s",
				txn.ProviderTransactionID, txn.ProviderAccountID)
			accountID = connectionID
		}

		rows = append(rows, model.BankTransactionUpsert{
			Record: txn,
			Local:  MapBankTransactionToLocal(txn, accountID),
		})
	}
	return rows
}
