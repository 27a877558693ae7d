package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/banksync/backend/internal/model"
)

type fakeWebhookService struct {
	summary   *model.SyncSummary
	duplicate bool
	err       error
}

func (f *fakeWebhookService) ProcessWebhook(ctx context.Context, event model.ProviderWebhook) (*model.SyncSummary, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	if f.duplicate {
		return nil, true, nil
	}
	return f.summary, false, nil
}

func newWebhookRouter(svc webhookSyncService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/bank", NewWebhookHandler(svc).ReceiveWebhook)
	return r
}

func postWebhook(r *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/bank", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestReceiveWebhookValidation(t *testing.T) {
	r := newWebhookRouter(&fakeWebhookService{})

	// connectionId 누락
	w := postWebhook(r, `{"provider":"plaid","eventId":"evt-1"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestReceiveWebhookProcessed(t *testing.T) {
	r := newWebhookRouter(&fakeWebhookService{
		summary: &model.SyncSummary{Inserted: 2, PendingResolved: 1},
	})

	w := postWebhook(r, `{"provider":"plaid","eventId":"evt-1","connectionId":"conn-1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var ack model.WebhookAckResponse
	if err := json.Unmarshal(w.Body.Bytes(), &ack); err != nil {
		t.Fatalf("failed to parse ack: %v", err)
	}
	if ack.Status != "processed" || ack.EventID != "evt-1" {
		t.Fatalf("unexpected ack: %+v", ack)
	}
	if ack.Summary == nil || ack.Summary.Inserted != 2 {
		t.Fatalf("unexpected summary: %+v", ack.Summary)
	}
}

func TestReceiveWebhookDuplicate(t *testing.T) {
	r := newWebhookRouter(&fakeWebhookService{duplicate: true})

	w := postWebhook(r, `{"provider":"plaid","eventId":"evt-1","connectionId":"conn-1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for duplicate, got %d", w.Code)
	}

	var ack model.WebhookAckResponse
	if err := json.Unmarshal(w.Body.Bytes(), &ack); err != nil {
		t.Fatalf("failed to parse ack: %v", err)
	}
	if ack.Status != "duplicate" || ack.Summary != nil {
		t.Fatalf("unexpected ack: %+v", ack)
	}
}
