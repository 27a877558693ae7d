package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/banksync/backend/internal/model"
	"github.com/banksync/backend/internal/service"
)

const authUserIDKey = "auth_user_id"

// BankSyncGuard authenticates the bearer token and enforces the per-identity
// sliding window rate limit in one pass. Denials carry a machine-readable
// reason; rate limited responses also carry Retry-After in seconds.
func BankSyncGuard(guard *service.AuthGuard) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		result := guard.Check(c.Request.Context(), model.GuardRequest{
			AuthorizationHeader: c.GetHeader("Authorization"),
		})
		if !result.Allowed {
			status := http.StatusUnauthorized
			if result.Reason == model.DenyRateLimited {
				status = http.StatusTooManyRequests
				retryAfterSec := (result.RetryAfterMs + 999) / 1000
				c.Header("Retry-After", strconv.FormatInt(retryAfterSec, 10))
			}
			c.JSON(status, model.GuardDeniedResponse{
				Error:  "request denied",
				Reason: string(result.Reason),
			})
			c.Abort()
			return
		}

		c.Set(authUserIDKey, result.UserID)
		c.Next()
	}
}

// GetAuthUserID - guard를 통과한 요청의 인증 주체 ID
func GetAuthUserID(c *gin.Context) string {
	return c.GetString(authUserIDKey)
}

func CORSMiddleware(allowedOrigins []string, allowCredentials bool) gin.HandlerFunc {
	originMap := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		originMap[trimmed] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if _, ok := originMap[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				if allowCredentials {
					c.Header("Access-Control-Allow-Credentials", "true")
				}
				c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
				c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
