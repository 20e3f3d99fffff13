package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/service"
	"github.com/dmehra2102/prod-golang-projects/ashram/pkg/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const callerKey = "caller"

type TokenValidator interface {
	ValidateAccessToken(token string) (*domain.Claims, error)
}

// Auth validates the bearer token and stores the caller on the context.
// Tokens are issued by the external session provider.
func Auth(validator TokenValidator, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid authorization header"})
			return
		}

		claims, err := validator.ValidateAccessToken(strings.TrimSpace(token))
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, auth.ErrTokenExpired) {
				msg = "token has expired"
			}
			log.Debug("rejected token", zap.Error(err), zap.String("request_id", GetRequestID(c)))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		c.Set(callerKey, service.Caller{
			ID:        claims.UserID,
			Role:      claims.Role,
			IPAddress: c.ClientIP(),
			RequestID: GetRequestID(c),
		})
		c.Next()
	}
}

// RequireRoles must run after Auth.
func RequireRoles(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := GetCaller(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		for _, r := range roles {
			if caller.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
	}
}

func GetCaller(c *gin.Context) (service.Caller, bool) {
	v, ok := c.Get(callerKey)
	if !ok {
		return service.Caller{}, false
	}
	caller, ok := v.(service.Caller)
	return caller, ok
}
