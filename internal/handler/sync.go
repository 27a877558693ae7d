package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/banksync/backend/internal/model"
)

// connectionService - 서비스 인터페이스
type connectionService interface {
	CreateConnection(ctx context.Context, userID int64, req model.CreateConnectionRequest) (*model.BankConnection, error)
	GetConnection(ctx context.Context, id string) (*model.BankConnection, error)
	ListConnections(ctx context.Context, userID int64) ([]model.BankConnection, error)
	ListAccounts(ctx context.Context, connectionID string) ([]model.BankAccount, error)
}

// syncTrigger - 수동 sync 트리거 인터페이스
type syncTrigger interface {
	TriggerSync(ctx context.Context, connectionID string) (*model.SyncSummary, error)
}

// SyncHandler - 연동 관리 및 수동 sync 핸들러
type SyncHandler struct {
	connections connectionService
	sync        syncTrigger
	users       userResolver
}

// userResolver - guard가 돌려준 주체 ID(subject)를 로컬 사용자로 해석
type userResolver interface {
	ResolveUserID(ctx context.Context, subject string) (int64, error)
}

func NewSyncHandler(connections connectionService, sync syncTrigger, users userResolver) *SyncHandler {
	return &SyncHandler{connections: connections, sync: sync, users: users}
}

// CreateConnection godoc
// @Summary Create a bank connection from a link-flow public token
// @Tags connections
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.CreateConnectionRequest true "Connection request"
// @Success 201 {object} model.ConnectionResponse
// @Failure 400,401,500 {object} model.ErrorResponse
// @Router /api/v1/connections [post]
func (h *SyncHandler) CreateConnection(c *gin.Context) {
	userID, ok := h.resolveUser(c)
	if !ok {
		return
	}

	var req model.CreateConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}

	conn, err := h.connections.CreateConnection(c.Request.Context(), userID, req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, model.ConnectionResponse{Status: "success", Data: conn})
}

// ListConnections godoc
// @Summary List the caller's bank connections
// @Tags connections
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.ConnectionListResponse
// @Failure 401,500 {object} model.ErrorResponse
// @Router /api/v1/connections [get]
func (h *SyncHandler) ListConnections(c *gin.Context) {
	userID, ok := h.resolveUser(c)
	if !ok {
		return
	}

	connections, err := h.connections.ListConnections(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, model.ConnectionListResponse{Status: "success", Data: connections})
}

// ListAccounts godoc
// @Summary List accounts for a connection
// @Tags connections
// @Produce json
// @Security BearerAuth
// @Param id path string true "Connection ID"
// @Success 200 {object} model.AccountListResponse
// @Failure 401,404,500 {object} model.ErrorResponse
// @Router /api/v1/connections/{id}/accounts [get]
func (h *SyncHandler) ListAccounts(c *gin.Context) {
	if _, ok := h.authorizeConnection(c); !ok {
		return
	}

	accounts, err := h.connections.ListAccounts(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, model.AccountListResponse{Status: "success", Data: accounts})
}

// TriggerSync godoc
// @Summary Run one sync cycle for a connection
// @Tags connections
// @Produce json
// @Security BearerAuth
// @Param id path string true "Connection ID"
// @Success 200 {object} model.SyncTriggerResponse
// @Failure 401,404,500 {object} model.ErrorResponse
// @Router /api/v1/connections/{id}/sync [post]
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	conn, ok := h.authorizeConnection(c)
	if !ok {
		return
	}

	summary, err := h.sync.TriggerSync(c.Request.Context(), conn.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, model.SyncTriggerResponse{
		Status:       "success",
		ConnectionID: conn.ID,
		Summary:      summary,
	})
}

func (h *SyncHandler) resolveUser(c *gin.Context) (int64, bool) {
	subject := GetAuthUserID(c)
	if subject == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "error": "unauthorized"})
		return 0, false
	}

	userID, err := h.users.ResolveUserID(c.Request.Context(), subject)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "error": "unauthorized"})
		return 0, false
	}
	return userID, true
}

// authorizeConnection - 경로의 연동이 호출자 소유인지 확인
func (h *SyncHandler) authorizeConnection(c *gin.Context) (*model.BankConnection, bool) {
	userID, ok := h.resolveUser(c)
	if !ok {
		return nil, false
	}

	conn, err := h.connections.GetConnection(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "connection not found"})
		return nil, false
	}
	if conn.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "connection not found"})
		return nil, false
	}
	return conn, true
}
