// 외부 OIDC issuer로 bearer 토큰을 검증하는 validator 정의
//
// 환경변수:
//   - OIDC_ISSUER: issuer URL (discovery에 사용)
//   - OIDC_CLIENT_ID: audience 검증용 client ID

package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/banksync/backend/internal/config"
	"github.com/banksync/backend/internal/model"
)

// OIDCValidator - guard의 TokenValidator 계약을 외부 issuer 검증으로 구현.
// 기대된 검증 실패는 결과 값으로, discovery/네트워크 오류만 error로 반환한다.
type OIDCValidator struct {
	verifier *oidc.IDTokenVerifier
}

func NewOIDCValidator(ctx context.Context, cfg config.AuthConfig) (*OIDCValidator, error) {
	if cfg.OIDCIssuer == "" {
		return nil, fmt.Errorf("OIDC_ISSUER is required for the oidc validator")
	}

	provider, err := oidc.NewProvider(ctx, cfg.OIDCIssuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover oidc issuer: %w", err)
	}

	oidcCfg := &oidc.Config{ClientID: cfg.OIDCClientID}
	if cfg.OIDCClientID == "" {
		oidcCfg.SkipClientIDCheck = true
	}

	return &OIDCValidator{verifier: provider.Verifier(oidcCfg)}, nil
}

func (v *OIDCValidator) Validate(ctx context.Context, token string) (*model.TokenValidation, error) {
	idToken, err := v.verifier.Verify(ctx, token)
	if err != nil {
		var expired *oidc.TokenExpiredError
		if errors.As(err, &expired) {
			return &model.TokenValidation{Valid: false, Error: model.DenyTokenExpired}, nil
		}
		return &model.TokenValidation{Valid: false, Error: model.DenyInvalidToken}, nil
	}

	return &model.TokenValidation{
		Valid:     true,
		UserID:    idToken.Subject,
		ExpiresAt: idToken.Expiry,
	}, nil
}
