package api

import (
	"go-direct-chat/internal/middleware"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// 从上下文中获取当前用户ID（由认证中间件设置）
func currentUserID(c *gin.Context) (uint, bool) {
	userIDValue, exists := c.Get(middleware.UserIDKey)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return 0, false
	}
	userID, ok := userIDValue.(uint)
	if !ok || userID == 0 {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid userID in context"})
		return 0, false
	}
	return userID, true
}

// 解析路径中的用户ID
func userIDParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id parameter"})
		return 0, false
	}
	return uint(id), true
}
