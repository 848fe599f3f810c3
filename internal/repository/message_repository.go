package repository

import (
	"context"
	"go-direct-chat/internal/apperr"
	"go-direct-chat/internal/model"

	"gorm.io/gorm"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// 保存新消息, 返回带有ID和创建时间的记录
func (r *MessageRepository) Persist(ctx context.Context, senderID, receiverID uint, payload model.Payload) (*model.Message, error) {
	message := &model.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       payload.Text,
		Image:      payload.Image,
	}
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		return nil, &apperr.StoreError{Op: "persist", Err: err}
	}
	return message, nil
}

// 获取两个用户之间的聊天记录, 最新的在前
func (r *MessageRepository) History(ctx context.Context, userA, userB uint, limit, offset int) ([]model.Message, error) {
	var messages []model.Message
	err := r.db.WithContext(ctx).Where(
		"(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
		userA, userB, userB, userA,
	).Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error
	if err != nil {
		return nil, &apperr.StoreError{Op: "history", Err: err}
	}
	return messages, nil
}
