package middleware

import (
	"go-direct-chat/internal/interfaces"
	"go-direct-chat/pkg/logger"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 上下文中保存用户ID的键
const UserIDKey = "userID"

// 验证JWT中间件, token来自Authorization头或cookie
func AuthMiddleware(verifier interfaces.IdentityVerifier, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, reason := BearerOrCookie(c, cookieName)
		if reason != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": reason})
			return
		}

		userID, err := verifier.Authenticate(c.Request.Context(), interfaces.Credentials{Token: token})
		if err != nil {
			logger.L.Debug("Request rejected", zap.String("path", c.Request.URL.Path), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		// 将用户ID存储在上下文中
		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// BearerOrCookie extracts the token from an "Authorization: Bearer" header, falling back to the
// cookie when the header is absent or malformed. The second result is a client-facing reason when
// no usable token is present.
func BearerOrCookie(c *gin.Context, cookieName string) (string, string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		// 通常Authorization格式为: "Bearer token"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" && parts[1] != "" {
			return parts[1], ""
		}
	}
	if cookieName != "" {
		if token, err := c.Cookie(cookieName); err == nil && token != "" {
			return token, ""
		}
	}
	if authHeader != "" {
		return "", "invalid authorization format"
	}
	return "", "authorization header is required"
}
