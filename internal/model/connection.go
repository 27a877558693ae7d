package model

import "time"

// BankConnection - provider와 연결된 하나의 금융기관 연동 정보
type BankConnection struct {
	ID          string    `json:"id"`
	UserID      int64     `json:"userId"`
	Provider    string    `json:"provider"`
	AccessToken string    `json:"-"`
	SyncCursor  string    `json:"-"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// BankAccount - 연동된 기관의 개별 계좌
type BankAccount struct {
	ID                string `json:"id"`
	ConnectionID      string `json:"connectionId"`
	ProviderAccountID string `json:"providerAccountId"`
	Name              string `json:"name"`
	Mask              string `json:"mask,omitempty"`
	Type              string `json:"type,omitempty"`
	Currency          string `json:"currency,omitempty"`
}

// CreateConnectionRequest - link 플로우에서 받은 public token으로 연동 생성
type CreateConnectionRequest struct {
	Provider    string `json:"provider" binding:"required"`
	PublicToken string `json:"publicToken" binding:"required"`
}

type ConnectionResponse struct {
	Status string          `json:"status"`
	Data   *BankConnection `json:"data"`
}

type ConnectionListResponse struct {
	Status string           `json:"status"`
	Data   []BankConnection `json:"data"`
}

type AccountListResponse struct {
	Status string        `json:"status"`
	Data   []BankAccount `json:"data"`
}

type SyncTriggerResponse struct {
	Status       string       `json:"status"`
	ConnectionID string       `json:"connectionId"`
	Summary      *SyncSummary `json:"summary,omitempty"`
}
