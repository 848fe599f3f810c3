package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"go-direct-chat/internal/apperr"
	"go-direct-chat/internal/interfaces"
	"go-direct-chat/internal/middleware"
	internalws "go-direct-chat/internal/websocket"
	"go-direct-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type WSHandler struct {
	manager    *internalws.ConnectionManager
	upgrader   websocket.Upgrader
	cookieName string
	serveCtx   context.Context
}

// NewWSHandler serves websocket upgrades. Connections live until serveCtx is done or they close.
// An empty allowedOrigins accepts same-host requests only.
func NewWSHandler(serveCtx context.Context, manager *internalws.ConnectionManager, allowedOrigins []string, cookieName string) *WSHandler {
	return &WSHandler{
		manager:    manager,
		cookieName: cookieName,
		serveCtx:   serveCtx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil // gorilla默认: 仅同源
	}
	allowAll := lo.Contains(allowed, "*")
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		if lo.ContainsBy(allowed, func(o string) bool { return strings.EqualFold(o, origin) }) {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// token可以放在query参数、Authorization头或cookie中
func (h *WSHandler) credentials(c *gin.Context) interfaces.Credentials {
	if token := c.Query("token"); token != "" {
		return interfaces.Credentials{Token: token}
	}
	token, _ := middleware.BearerOrCookie(c, h.cookieName)
	return interfaces.Credentials{Token: token}
}

func (h *WSHandler) HandleConnection(c *gin.Context) {
	client, err := h.manager.Connect(c.Request.Context(), h.credentials(c), func() (internalws.Conn, error) {
		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
	if err != nil {
		if apperr.IsAuthError(err) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		}
		// 升级失败时upgrader已写入响应
		return
	}

	logger.L.Info("WebSocket connection upgraded", zap.Uint("userID", client.UserID), zap.String("connID", client.ID))
	h.manager.Serve(h.serveCtx, client)
}
