package service

import (
	"testing"
	"time"

	"github.com/banksync/backend/internal/model"
)

func txn(id string, amount int64) model.BankTransactionRecord {
	return model.BankTransactionRecord{ProviderTransactionID: id, Amount: amount, Currency: "USD"}
}

func pendingRef(id string) *string {
	return &id
}

func TestReconcileTransactionsPartitions(t *testing.T) {
	existing := map[string]struct{}{
		"known-1": {},
		"known-2": {},
	}
	syncResult := model.BankSyncResult{
		Added:                         []model.BankTransactionRecord{txn("new-1", 100), txn("known-1", 100)},
		Modified:                      []model.BankTransactionRecord{txn("known-2", 200), txn("ghost-1", 200)},
		RemovedProviderTransactionIDs: []string{"known-1", "ghost-2"},
	}

	plan := ReconcileTransactions(syncResult, existing)

	if len(plan.ToInsert) != 1 || plan.ToInsert[0].ProviderTransactionID != "new-1" {
		t.Fatalf("expected only new-1 inserted, got %+v", plan.ToInsert)
	}
	if len(plan.ToUpdate) != 1 || plan.ToUpdate[0].ProviderTransactionID != "known-2" {
		t.Fatalf("expected only known-2 updated, got %+v", plan.ToUpdate)
	}
	if len(plan.ToRemove) != 1 || plan.ToRemove[0] != "known-1" {
		t.Fatalf("expected only known-1 removed, got %+v", plan.ToRemove)
	}
	if plan.Counts.ToInsert != 1 || plan.Counts.ToUpdate != 1 || plan.Counts.ToRemove != 1 {
		t.Fatalf("counts must mirror slice lengths, got %+v", plan.Counts)
	}
}

func TestReconcileTransactionsEmptyDelta(t *testing.T) {
	plan := ReconcileTransactions(model.BankSyncResult{}, map[string]struct{}{"known-1": {}})
	if len(plan.ToInsert) != 0 || len(plan.ToUpdate) != 0 || len(plan.ToRemove) != 0 {
		t.Fatalf("expected empty plan, got %+v", plan)
	}
}

func TestResolvePendingTransactions(t *testing.T) {
	pending := []model.BankTransactionRecord{
		txn("pend-1", 1000),
		txn("pend-2", 2500),
	}
	postedSame := txn("post-1", 1000)
	postedSame.PendingTransactionID = pendingRef("pend-1")
	postedChanged := txn("post-2", 2600)
	postedChanged.PendingTransactionID = pendingRef("pend-2")
	postedUnrelated := txn("post-3", 50)
	postedDangling := txn("post-4", 70)
	postedDangling.PendingTransactionID = pendingRef("pend-gone")

	resolutions := ResolvePendingTransactions(pending, []model.BankTransactionRecord{
		postedSame, postedChanged, postedUnrelated, postedDangling,
	})

	if len(resolutions) != 2 {
		t.Fatalf("expected 2 resolutions, got %d", len(resolutions))
	}

	same := resolutions[0]
	if same.PendingID != "pend-1" || same.PostedID != "post-1" || same.AmountChanged {
		t.Fatalf("unexpected resolution: %+v", same)
	}
	if same.PreviousAmount != nil || same.NewAmount != nil {
		t.Fatalf("amounts must be nil when unchanged: %+v", same)
	}

	changed := resolutions[1]
	if changed.PendingID != "pend-2" || changed.PostedID != "post-2" || !changed.AmountChanged {
		t.Fatalf("unexpected resolution: %+v", changed)
	}
	if *changed.PreviousAmount != 2500 || *changed.NewAmount != 2600 {
		t.Fatalf("unexpected amounts: %d -> %d", *changed.PreviousAmount, *changed.NewAmount)
	}
}

func TestMapBankTransactionToLocalDatePriority(t *testing.T) {
	posted := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	authorized := time.Date(2026, 8, 18, 0, 0, 0, 0, time.UTC)

	record := txn("txn-1", -4200)
	record.DatePosted = &posted
	record.DateAuthorized = &authorized

	local := MapBankTransactionToLocal(record, "acct-1")
	if !local.Date.Equal(posted) {
		t.Fatalf("expected posted date to win, got %v", local.Date)
	}

	record.DatePosted = nil
	local = MapBankTransactionToLocal(record, "acct-1")
	if !local.Date.Equal(authorized) {
		t.Fatalf("expected authorized date fallback, got %v", local.Date)
	}

	record.DateAuthorized = nil
	before := time.Now()
	local = MapBankTransactionToLocal(record, "acct-1")
	if local.Date.Before(before) {
		t.Fatalf("expected today fallback, got %v", local.Date)
	}
}

func TestMapBankTransactionToLocalPayeeAndCleared(t *testing.T) {
	record := txn("txn-1", -4200)
	record.IsPending = true

	local := MapBankTransactionToLocal(record, "acct-1")
	if local.Payee != "Unknown Payee" {
		t.Fatalf("expected payee fallback, got %q", local.Payee)
	}
	if local.Cleared {
		t.Fatalf("pending transaction must not be cleared")
	}
	if local.AccountID != "acct-1" || local.Amount != -4200 {
		t.Fatalf("unexpected mapping: %+v", local)
	}

	payee := "Coffee Shop"
	record.Payee = &payee
	record.IsPending = false
	local = MapBankTransactionToLocal(record, "acct-1")
	if local.Payee != "Coffee Shop" || !local.Cleared {
		t.Fatalf("unexpected mapping: %+v", local)
	}
}
