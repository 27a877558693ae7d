package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/banksync/backend/internal/model"
)

// providerLinker - link 플로우 관련 provider 연동 (외부 협력자)
type providerLinker interface {
	ExchangePublicToken(ctx context.Context, publicToken string) (string, error)
	GetAccounts(ctx context.Context, accessToken string) ([]model.BankAccount, error)
}

// connectionRepo - 연동/계좌 저장 계층 인터페이스
type connectionRepo interface {
	CreateBankConnection(ctx context.Context, conn model.BankConnection) error
	GetConnectionByID(ctx context.Context, id string) (*model.BankConnection, error)
	ListConnectionsByUser(ctx context.Context, userID int64) ([]model.BankConnection, error)
	UpsertBankAccounts(ctx context.Context, connectionID string, accounts []model.BankAccount) error
	ListAccountsByConnection(ctx context.Context, connectionID string) ([]model.BankAccount, error)
}

// ConnectionService - 금융기관 연동 수명주기 관리
type ConnectionService struct {
	provider providerLinker
	repo     connectionRepo
}

func NewConnectionService(provider providerLinker, repo connectionRepo) *ConnectionService {
	return &ConnectionService{provider: provider, repo: repo}
}

// CreateConnection exchanges the link-flow public token for a persistent
// access token and stores the connection. Account discovery failure does not
// fail the connection; accounts are re-fetched on the next sync.
func (s *ConnectionService) CreateConnection(ctx context.Context, userID int64, req model.CreateConnectionRequest) (*model.BankConnection, error) {
	accessToken, err := s.provider.ExchangePublicToken(ctx, req.PublicToken)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange public token: %w", err)
	}

	now := time.Now()
	conn := model.BankConnection{
		ID:          uuid.NewString(),
		UserID:      userID,
		Provider:    req.Provider,
		AccessToken: accessToken,
		Status:      "active",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateBankConnection(ctx, conn); err != nil {
		return nil, fmt.Errorf("failed to store connection: %w", err)
	}

	accounts, err := s.provider.GetAccounts(ctx, accessToken)
	if err != nil {
		log.Printf("[Connection] Failed to fetch accounts (connectionId=%s): %v", conn.ID, err)
		return &conn, nil
	}
	for i := range accounts {
		if accounts[i].ID == "" {
			accounts[i].ID = uuid.NewString()
		}
		accounts[i].ConnectionID = conn.ID
	}
	if err := s.repo.UpsertBankAccounts(ctx, conn.ID, accounts); err != nil {
		log.Printf("[Connection] Failed to store accounts (connectionId=%s): %v", conn.ID, err)
	}

	return &conn, nil
}

func (s *ConnectionService) GetConnection(ctx context.Context, id string) (*model.BankConnection, error) {
	return s.repo.GetConnectionByID(ctx, id)
}

func (s *ConnectionService) ListConnections(ctx context.Context, userID int64) ([]model.BankConnection, error) {
	return s.repo.ListConnectionsByUser(ctx, userID)
}

func (s *ConnectionService) ListAccounts(ctx context.Context, connectionID string) ([]model.BankAccount, error) {
	return s.repo.ListAccountsByConnection(ctx, connectionID)
}
