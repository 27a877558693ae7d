// 은행 provider API와 HTTP 통신하는 클라이언트 정의
//
// 환경변수:
//   - BANK_PROVIDER_URL: provider API URL (예: https://sandbox.bankprovider.dev)
//   - BANK_PROVIDER_CLIENT_ID / BANK_PROVIDER_SECRET: API 자격 증명
//   - BANK_PROVIDER_TOKEN_URL: 설정 시 OAuth2 client credentials로 호출 인증
//
// provider에 전달하는 데이터:
//   - access_token: 연동별 영구 토큰 (public token 교환으로 획득)
//   - cursor: 증분 sync 커서 (빈 값이면 전체 동기화)

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/banksync/backend/internal/config"
	"github.com/banksync/backend/internal/model"
)

// ProviderClient 구조체 정의
type ProviderClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

type linkTokenRequest struct {
	ClientID string `json:"client_id"`
	Secret   string `json:"secret"`
	UserID   string `json:"user_id"`
}

type linkTokenResponse struct {
	LinkToken string `json:"link_token"`
	ExpiresAt string `json:"expiration,omitempty"`
}

type exchangeTokenRequest struct {
	ClientID    string `json:"client_id"`
	Secret      string `json:"secret"`
	PublicToken string `json:"public_token"`
}

type exchangeTokenResponse struct {
	AccessToken string `json:"access_token"`
	ItemID      string `json:"item_id,omitempty"`
}

type accountsRequest struct {
	ClientID    string `json:"client_id"`
	Secret      string `json:"secret"`
	AccessToken string `json:"access_token"`
}

type providerAccount struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	Mask      string `json:"mask,omitempty"`
	Type      string `json:"type,omitempty"`
	Currency  string `json:"iso_currency_code,omitempty"`
}

type accountsResponse struct {
	Accounts []providerAccount `json:"accounts"`
}

type transactionsSyncRequest struct {
	ClientID    string `json:"client_id"`
	Secret      string `json:"secret"`
	AccessToken string `json:"access_token"`
	Cursor      string `json:"cursor,omitempty"`
}

type transactionsSyncResponse struct {
	Added      []model.BankTransactionRecord `json:"added"`
	Modified   []model.BankTransactionRecord `json:"modified"`
	RemovedIDs []string                      `json:"removed"`
	NextCursor string                        `json:"next_cursor"`
	HasMore    bool                          `json:"has_more"`
}

// ProviderClient 객체 생성
func NewProviderClient(cfg config.ProviderConfig) *ProviderClient {
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
	}
	if cfg.TokenURL != "" {
		// OAuth2 client credentials로 provider 호출 인증
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		httpClient = cc.Client(context.Background())
		httpClient.Timeout = 30 * time.Second
	}

	return &ProviderClient{
		baseURL:      cfg.BaseURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient:   httpClient,
	}
}

// provider 설정 여부 체크
func (c *ProviderClient) IsConfigured() bool {
	return c.baseURL != "" && c.clientID != ""
}

// POST /link/token/create - link 플로우 시작용 토큰 발급
func (c *ProviderClient) CreateLinkToken(ctx context.Context, userID string) (string, error) {
	req := linkTokenRequest{
		ClientID: c.clientID,
		Secret:   c.clientSecret,
		UserID:   userID,
	}

	var resp linkTokenResponse
	if err := c.post(ctx, "/link/token/create", req, &resp); err != nil {
		return "", err
	}
	return resp.LinkToken, nil
}

// POST /item/public_token/exchange - public token을 영구 access token으로 교환
func (c *ProviderClient) ExchangePublicToken(ctx context.Context, publicToken string) (string, error) {
	req := exchangeTokenRequest{
		ClientID:    c.clientID,
		Secret:      c.clientSecret,
		PublicToken: publicToken,
	}

	var resp exchangeTokenResponse
	if err := c.post(ctx, "/item/public_token/exchange", req, &resp); err != nil {
		return "", err
	}
	return resp.AccessToken, nil
}

// POST /accounts/get - 연동된 계좌 목록 조회
func (c *ProviderClient) GetAccounts(ctx context.Context, accessToken string) ([]model.BankAccount, error) {
	req := accountsRequest{
		ClientID:    c.clientID,
		Secret:      c.clientSecret,
		AccessToken: accessToken,
	}

	var resp accountsResponse
	if err := c.post(ctx, "/accounts/get", req, &resp); err != nil {
		return nil, err
	}

	accounts := make([]model.BankAccount, 0, len(resp.Accounts))
	for _, acct := range resp.Accounts {
		accounts = append(accounts, model.BankAccount{
			ProviderAccountID: acct.AccountID,
			Name:              acct.Name,
			Mask:              acct.Mask,
			Type:              acct.Type,
			Currency:          acct.Currency,
		})
	}
	return accounts, nil
}

// POST /transactions/sync - 커서 기반 증분 sync.
// has_more가 false가 될 때까지 페이지를 모아 하나의 델타로 합친다.
func (c *ProviderClient) SyncTransactions(ctx context.Context, accessToken, cursor string) (*model.BankSyncResult, error) {
	result := &model.BankSyncResult{
		Added:                         []model.BankTransactionRecord{},
		Modified:                      []model.BankTransactionRecord{},
		RemovedProviderTransactionIDs: []string{},
	}

	for {
		req := transactionsSyncRequest{
			ClientID:    c.clientID,
			Secret:      c.clientSecret,
			AccessToken: accessToken,
			Cursor:      cursor,
		}

		var resp transactionsSyncResponse
		if err := c.post(ctx, "/transactions/sync", req, &resp); err != nil {
			return nil, err
		}

		result.Added = append(result.Added, resp.Added...)
		result.Modified = append(result.Modified, resp.Modified...)
		result.RemovedProviderTransactionIDs = append(result.RemovedProviderTransactionIDs, resp.RemovedIDs...)

		cursor = resp.NextCursor
		result.NextCursor = resp.NextCursor
		if !resp.HasMore {
			break
		}
	}

	return result, nil
}

func (c *ProviderClient) post(ctx context.Context, path string, reqBody, out interface{}) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal provider request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
