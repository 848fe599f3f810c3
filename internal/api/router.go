package api

import (
	"go-direct-chat/internal/interfaces"
	"go-direct-chat/internal/middleware"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Auth       *AuthHandler
	Chat       *ChatHandler
	WS         *WSHandler
	Verifier   interfaces.IdentityVerifier
	CookieName string

	// AllowedOrigins feeds the CORS policy of every route
	AllowedOrigins []string
}

// 注册API路由
func RegisterRoutes(r *gin.Engine, h Handlers) {
	r.Use(middleware.CORS(h.AllowedOrigins))
	auth := middleware.AuthMiddleware(h.Verifier, h.CookieName)

	// 公开路由
	authGroup := r.Group("/api/auth")
	authGroup.POST("/signup", h.Auth.Register)
	authGroup.POST("/login", h.Auth.Login)
	authGroup.POST("/logout", h.Auth.Logout)

	// 受保护的路由
	authGroup.GET("/check", auth, h.Auth.Check)
	authGroup.PUT("/update-profile", auth, h.Auth.UpdateProfile)

	messages := r.Group("/api/messages", auth)
	messages.GET("/users", h.Chat.GetContacts)
	messages.GET("/:id", h.Chat.GetChatHistory)
	messages.POST("/send/:id", h.Chat.SendMessage)

	r.GET("/api/users/online", auth, h.Chat.OnlineUsers)

	// websocket自行鉴权, 握手前拒绝未认证的请求
	r.GET("/ws", h.WS.HandleConnection)
}
