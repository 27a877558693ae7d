package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/banksync/backend/internal/model"
)

type fakeConnector struct {
	result *model.BankSyncResult
	err    error
	calls  int
}

func (f *fakeConnector) SyncTransactions(ctx context.Context, accessToken, cursor string) (*model.BankSyncResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeSyncRepo struct {
	conn     *model.BankConnection
	known    map[string]struct{}
	accounts []model.BankAccount
	pending  []model.BankTransactionRecord
	inserted []model.BankTransactionUpsert
	updated  []model.BankTransactionUpsert
	removed  []string
	resolved []model.PendingResolution
	cursor   string
}

func (f *fakeSyncRepo) GetConnectionByID(ctx context.Context, id string) (*model.BankConnection, error) {
	if f.conn == nil {
		return nil, errors.New("no rows")
	}
	return f.conn, nil
}

func (f *fakeSyncRepo) GetKnownProviderTransactionIDs(ctx context.Context, connectionID string) (map[string]struct{}, error) {
	if f.known == nil {
		return map[string]struct{}{}, nil
	}
	return f.known, nil
}

func (f *fakeSyncRepo) InsertBankTransactions(ctx context.Context, connectionID string, rows []model.BankTransactionUpsert) error {
	f.inserted = append(f.inserted, rows...)
	return nil
}

func (f *fakeSyncRepo) UpdateBankTransactions(ctx context.Context, connectionID string, rows []model.BankTransactionUpsert) error {
	f.updated = append(f.updated, rows...)
	return nil
}

func (f *fakeSyncRepo) MarkBankTransactionsRemoved(ctx context.Context, connectionID string, providerIDs []string) error {
	f.removed = append(f.removed, providerIDs...)
	return nil
}

func (f *fakeSyncRepo) GetPendingBankTransactions(ctx context.Context, connectionID string) ([]model.BankTransactionRecord, error) {
	return f.pending, nil
}

func (f *fakeSyncRepo) ApplyPendingResolutions(ctx context.Context, connectionID string, resolutions []model.PendingResolution) error {
	f.resolved = append(f.resolved, resolutions...)
	return nil
}

func (f *fakeSyncRepo) UpdateSyncCursor(ctx context.Context, connectionID, cursor string) error {
	f.cursor = cursor
	return nil
}

func (f *fakeSyncRepo) ListAccountsByConnection(ctx context.Context, connectionID string) ([]model.BankAccount, error) {
	return f.accounts, nil
}

func webhookEvent(eventID string) model.ProviderWebhook {
	return model.ProviderWebhook{
		Provider:     "plaid",
		EventID:      eventID,
		EventType:    "SYNC_UPDATES_AVAILABLE",
		ConnectionID: "conn-1",
	}
}

func newSyncFixture(delta *model.BankSyncResult) (*SyncService, *fakeSyncRepo, *fakeConnector) {
	repo := &fakeSyncRepo{
		conn: &model.BankConnection{ID: "conn-1", AccessToken: "access-token", SyncCursor: "cursor-0"},
	}
	connector := &fakeConnector{result: delta}
	svc := NewSyncService(connector, repo, NewMemoryIdempotencyStore(24*time.Hour))
	return svc, repo, connector
}

func TestProcessWebhookAppliesDelta(t *testing.T) {
	payee := "Grocery Store"
	svc, repo, _ := newSyncFixture(&model.BankSyncResult{
		Added: []model.BankTransactionRecord{
			{ProviderTransactionID: "new-1", Payee: &payee, Amount: -1200, Currency: "USD"},
		},
		NextCursor: "cursor-1",
	})

	summary, duplicate, err := svc.ProcessWebhook(context.Background(), webhookEvent("evt-1"))
	if err != nil || duplicate {
		t.Fatalf("expected processed, got dup=%v err=%v", duplicate, err)
	}
	if summary.Inserted != 1 || summary.Updated != 0 || summary.Removed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(repo.inserted) != 1 || repo.inserted[0].Local.Payee != "Grocery Store" {
		t.Fatalf("unexpected inserted rows: %+v", repo.inserted)
	}
	if repo.cursor != "cursor-1" {
		t.Fatalf("expected cursor advanced, got %q", repo.cursor)
	}
}

func TestProcessWebhookSuppressesDuplicate(t *testing.T) {
	svc, _, connector := newSyncFixture(&model.BankSyncResult{NextCursor: "cursor-1"})

	if _, duplicate, err := svc.ProcessWebhook(context.Background(), webhookEvent("evt-1")); err != nil || duplicate {
		t.Fatalf("first delivery must process, got dup=%v err=%v", duplicate, err)
	}

	summary, duplicate, err := svc.ProcessWebhook(context.Background(), webhookEvent("evt-1"))
	if err != nil {
		t.Fatalf("redelivery must not error: %v", err)
	}
	if !duplicate || summary != nil {
		t.Fatalf("expected duplicate suppression, got dup=%v summary=%+v", duplicate, summary)
	}
	if connector.calls != 1 {
		t.Fatalf("expected single provider call, got %d", connector.calls)
	}
}

func TestProcessWebhookFailureAllowsRetry(t *testing.T) {
	svc, _, connector := newSyncFixture(nil)
	connector.err = errors.New("provider unavailable")

	if _, _, err := svc.ProcessWebhook(context.Background(), webhookEvent("evt-1")); err == nil {
		t.Fatalf("expected sync failure")
	}

	// failed 마킹된 이벤트는 재전송 시 다시 처리된다
	connector.err = nil
	connector.result = &model.BankSyncResult{}
	_, duplicate, err := svc.ProcessWebhook(context.Background(), webhookEvent("evt-1"))
	if err != nil || duplicate {
		t.Fatalf("expected retry to process, got dup=%v err=%v", duplicate, err)
	}
	if connector.calls != 2 {
		t.Fatalf("expected 2 provider calls, got %d", connector.calls)
	}
}

func TestProcessWebhookResolvesPending(t *testing.T) {
	pendingID := "pend-1"
	svc, repo, _ := newSyncFixture(&model.BankSyncResult{
		Added: []model.BankTransactionRecord{
			{ProviderTransactionID: "post-1", PendingTransactionID: &pendingID, Amount: -1300, Currency: "USD"},
		},
	})
	repo.pending = []model.BankTransactionRecord{
		{ProviderTransactionID: "pend-1", Amount: -1200, Currency: "USD", IsPending: true},
	}

	summary, _, err := svc.ProcessWebhook(context.Background(), webhookEvent("evt-1"))
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if summary.PendingResolved != 1 {
		t.Fatalf("expected 1 pending resolved, got %d", summary.PendingResolved)
	}
	if len(repo.resolved) != 1 || !repo.resolved[0].AmountChanged {
		t.Fatalf("unexpected resolutions: %+v", repo.resolved)
	}
}

func TestSyncAttributesTransactionsToLocalAccounts(t *testing.T) {
	svc, repo, _ := newSyncFixture(&model.BankSyncResult{
		Added: []model.BankTransactionRecord{
			{ProviderTransactionID: "txn-1", ProviderAccountID: "prov-acct-1", Amount: -500, Currency: "USD"},
			{ProviderTransactionID: "txn-2", ProviderAccountID: "prov-acct-unknown", Amount: -700, Currency: "USD"},
		},
	})
	repo.accounts = []model.BankAccount{
		{ID: "acct-local-1", ConnectionID: "conn-1", ProviderAccountID: "prov-acct-1", Name: "Checking"},
	}

	if _, err := svc.TriggerSync(context.Background(), "conn-1"); err != nil {
		t.Fatalf("trigger failed: %v", err)
	}

	if len(repo.inserted) != 2 {
		t.Fatalf("expected 2 inserted rows, got %d", len(repo.inserted))
	}
	if repo.inserted[0].Local.AccountID != "acct-local-1" {
		t.Fatalf("expected transaction attributed to local account, got %q", repo.inserted[0].Local.AccountID)
	}
	// 알려지지 않은 provider 계좌는 연동 단위로 귀속
	if repo.inserted[1].Local.AccountID != "conn-1" {
		t.Fatalf("expected fallback to connection id, got %q", repo.inserted[1].Local.AccountID)
	}
}

func TestTriggerSyncSkipsIdempotency(t *testing.T) {
	svc, repo, connector := newSyncFixture(&model.BankSyncResult{NextCursor: "cursor-1"})

	for i := 0; i < 3; i++ {
		if _, err := svc.TriggerSync(context.Background(), "conn-1"); err != nil {
			t.Fatalf("trigger %d failed: %v", i, err)
		}
	}
	if connector.calls != 3 {
		t.Fatalf("manual triggers must not dedup, got %d calls", connector.calls)
	}
	if repo.cursor != "cursor-1" {
		t.Fatalf("expected cursor advanced, got %q", repo.cursor)
	}
}

func TestSyncCursorNotAdvancedWhenEmpty(t *testing.T) {
	svc, repo, _ := newSyncFixture(&model.BankSyncResult{NextCursor: ""})

	if _, err := svc.TriggerSync(context.Background(), "conn-1"); err != nil {
		t.Fatalf("trigger failed: %v", err)
	}
	if repo.cursor != "" {
		t.Fatalf("cursor must not advance on empty next cursor, got %q", repo.cursor)
	}
}
