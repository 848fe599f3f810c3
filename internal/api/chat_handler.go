package api

import (
	"go-direct-chat/internal/service"
	"go-direct-chat/pkg/logger"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 处理聊天相关的HTTP请求
type ChatHandler struct {
	chatService *service.ChatService
}

// 创建一个新的聊天处理器实例
func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
	}
}

// 联系人列表
func (h *ChatHandler) GetContacts(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	contacts, err := h.chatService.ListContacts(c.Request.Context(), userID)
	if err != nil {
		logger.L.Error("Error listing contacts", zap.Uint("userID", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list contacts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": contacts})
}

// 发送消息
func (h *ChatHandler) SendMessage(c *gin.Context) {
	senderID, ok := currentUserID(c)
	if !ok {
		return
	}
	receiverID, ok := userIDParam(c, "id")
	if !ok {
		return
	}

	var req service.MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.L.Warn("Failed to bind SendMessage request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	message, err := h.chatService.SendMessage(c.Request.Context(), senderID, receiverID, req)
	if err != nil {
		if service.IsClientError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.L.Error("Error sending message via ChatService", zap.Error(err), zap.Uint("senderID", senderID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send message"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": message})
}

// 获取聊天历史记录
func (h *ChatHandler) GetChatHistory(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	otherID, ok := userIDParam(c, "id")
	if !ok {
		return
	}
	if userID == otherID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot fetch chat history with oneself"})
		return
	}

	// 获取分页参数
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	messages, err := h.chatService.GetChatHistory(c.Request.Context(), userID, otherID, limit, offset)
	if err != nil {
		logger.L.Error("Error getting chat history from service", zap.Error(err), zap.Uint("userID", userID), zap.Uint("otherID", otherID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve chat history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// 当前在线用户
func (h *ChatHandler) OnlineUsers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"online_user_ids": h.chatService.OnlineUsers()})
}
