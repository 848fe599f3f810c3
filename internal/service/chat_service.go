package service

import (
	"context"
	"errors"
	"fmt"
	"go-direct-chat/internal/apperr"
	"go-direct-chat/internal/codec"
	"go-direct-chat/internal/interfaces"
	"go-direct-chat/internal/model"
	"go-direct-chat/internal/presence"
	"go-direct-chat/pkg/logger"

	"go.uber.org/zap"
)

type ChatService struct {
	store      interfaces.MessageStore
	users      interfaces.UserDirectory
	dispatcher interfaces.Dispatcher
	registry   *presence.Registry
	codec      codec.Codec
}

func NewChatService(store interfaces.MessageStore, users interfaces.UserDirectory, dispatcher interfaces.Dispatcher, registry *presence.Registry, c codec.Codec) *ChatService {
	return &ChatService{
		store:      store,
		users:      users,
		dispatcher: dispatcher,
		registry:   registry,
		codec:      c,
	}
}

// MessageRequest REST发送消息的请求体
type MessageRequest struct {
	ClientMsgID string `json:"client_msg_id"`
	Text        string `json:"text"`
	Image       string `json:"image"`
}

// Contact 联系人及其在线状态
type Contact struct {
	model.User
	Online bool `json:"online"`
}

// HandleMessage handles a send_message event from a websocket connection. The sending connection
// gets a message_ack once the message is stored, or an error event if it was not.
func (s *ChatService) HandleMessage(ctx context.Context, sender interfaces.Client, msg *codec.SendMessage) {
	senderID := sender.GetUserID()
	logger.L.Debug("HandleMessage called by WebSocket client", zap.Uint("senderID", senderID))

	message, err := s.send(ctx, senderID, msg)
	if err != nil {
		code := codec.CodeInvalidMessage
		reason := err.Error()
		if apperr.IsStoreError(err) {
			code = codec.CodeStoreFailed
			reason = "message could not be saved"
		}
		s.reply(sender, codec.ErrorEvent(msg.ClientMsgID, code, reason))
		return
	}

	s.reply(sender, codec.AckEvent(msg.ClientMsgID, message))
}

// SendMessage 通过REST发送消息, 与websocket路径相同: 先持久化, 再投递
func (s *ChatService) SendMessage(ctx context.Context, senderID, receiverID uint, req MessageRequest) (*model.Message, error) {
	msg := &codec.SendMessage{
		ClientMsgID: req.ClientMsgID,
		ReceiverID:  uint64(receiverID),
		Text:        req.Text,
		Image:       req.Image,
	}
	if err := codec.Validate(senderID, msg); err != nil {
		return nil, err
	}
	return s.send(ctx, senderID, msg)
}

func (s *ChatService) send(ctx context.Context, senderID uint, msg *codec.SendMessage) (*model.Message, error) {
	receiverID := uint(msg.ReceiverID)

	receiver, err := s.users.FindByID(ctx, receiverID)
	if err != nil {
		logger.L.Error("Error looking up receiver", zap.Uint("receiverID", receiverID), zap.Error(err))
		return nil, &apperr.StoreError{Op: "find receiver", Err: err}
	}
	if receiver == nil {
		return nil, fmt.Errorf("%w: %d", apperr.ErrUserNotFound, receiverID)
	}

	message, err := s.store.Persist(ctx, senderID, receiverID, model.Payload{Text: msg.Text, Image: msg.Image})
	if err != nil {
		logger.L.Error("Error saving message", zap.Uint("senderID", senderID), zap.Uint("receiverID", receiverID), zap.Error(err))
		if !apperr.IsStoreError(err) {
			err = &apperr.StoreError{Op: "persist", Err: err}
		}
		return nil, err
	}
	logger.L.Debug("Message saved", zap.Uint("messageID", message.ID))

	// 投递失败不影响已保存的消息
	if err := s.dispatcher.Dispatch(ctx, message); err != nil {
		logger.L.Warn("Failed to dispatch message for live delivery",
			zap.Uint("messageID", message.ID),
			zap.Uint("receiverID", receiverID),
			zap.Error(err))
	}
	return message, nil
}

func (s *ChatService) reply(client interfaces.Client, env *codec.Envelope) {
	data, err := s.codec.Encode(env)
	if err != nil {
		logger.L.Error("Failed to encode reply", zap.String("event", string(env.Type)), zap.Error(err))
		return
	}
	if err := client.QueueBytes(data); err != nil {
		logger.L.Warn("Failed to queue reply",
			zap.String("event", string(env.Type)),
			zap.Error(&apperr.PushError{ConnID: client.GetID(), UserID: client.GetUserID(), Err: err}))
	}
}

// GetChatHistory 获取两个用户之间的聊天记录
func (s *ChatService) GetChatHistory(ctx context.Context, me, other uint, limit, offset int) ([]model.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	messages, err := s.store.History(ctx, me, other, limit, offset)
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// ListContacts 除自己外的所有用户, 带在线状态
func (s *ChatService) ListContacts(ctx context.Context, me uint) ([]Contact, error) {
	users, err := s.users.ListExcept(ctx, me)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	contacts := make([]Contact, 0, len(users))
	for _, u := range users {
		contacts = append(contacts, Contact{User: u, Online: s.registry.IsOnline(u.ID)})
	}
	return contacts, nil
}

func (s *ChatService) OnlineUsers() []uint {
	return s.registry.OnlineUsers()
}

// IsClientError reports whether err was caused by the request rather than the server.
func IsClientError(err error) bool {
	return errors.Is(err, apperr.ErrInvalidMessage) || errors.Is(err, apperr.ErrUserNotFound)
}
