package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/banksync/backend/internal/model"
)

// webhookSyncService - 서비스 인터페이스
type webhookSyncService interface {
	ProcessWebhook(ctx context.Context, event model.ProviderWebhook) (*model.SyncSummary, bool, error)
}

// WebhookHandler - 은행 provider 웹훅 수신 핸들러
type WebhookHandler struct {
	svc webhookSyncService
}

func NewWebhookHandler(svc webhookSyncService) *WebhookHandler {
	return &WebhookHandler{svc: svc}
}

// ReceiveWebhook godoc
// @Summary Receive a bank provider webhook
// @Description Runs one sync cycle for the connection named in the event. Redelivery of an already-seen event is acknowledged without re-running the sync.
// @Tags webhooks
// @Accept json
// @Produce json
// @Param request body model.ProviderWebhook true "Provider event"
// @Success 200 {object} model.WebhookAckResponse
// @Failure 400,500 {object} model.ErrorResponse
// @Router /webhooks/bank [post]
func (h *WebhookHandler) ReceiveWebhook(c *gin.Context) {
	var event model.ProviderWebhook
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}

	summary, duplicate, err := h.svc.ProcessWebhook(c.Request.Context(), event)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": err.Error()})
		return
	}

	if duplicate {
		c.JSON(http.StatusOK, model.WebhookAckResponse{
			Status:  "duplicate",
			EventID: event.EventID,
		})
		return
	}

	c.JSON(http.StatusOK, model.WebhookAckResponse{
		Status:  "processed",
		EventID: event.EventID,
		Summary: summary,
	})
}
