package codec

import (
	"fmt"
	"strings"
	"time"

	"go-direct-chat/internal/apperr"
	"go-direct-chat/internal/model"

	"github.com/go-playground/validator/v10"
)

type EventType string

const (
	EventNewMessage  EventType = "new_message"
	EventPresence    EventType = "presence"
	EventMessageAck  EventType = "message_ack"
	EventError       EventType = "error"
	EventSendMessage EventType = "send_message"
)

// 错误事件的 code
const (
	CodeInvalidMessage = "invalid_message"
	CodeStoreFailed    = "store_failed"
)

type ChatMessage struct {
	ID         uint64    `json:"id"`
	SenderID   uint64    `json:"sender_id"`
	ReceiverID uint64    `json:"receiver_id"`
	Text       string    `json:"text,omitempty"`
	Image      string    `json:"image,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Envelope is every server-to-client event.
type Envelope struct {
	Type          EventType    `json:"type"`
	Message       *ChatMessage `json:"message,omitempty"`
	OnlineUserIDs []uint64     `json:"online_user_ids,omitempty"`
	ClientMsgID   string       `json:"client_msg_id,omitempty"`
	Code          string       `json:"code,omitempty"`
	Reason        string       `json:"reason,omitempty"`
}

// SendMessage is the only client-to-server event.
type SendMessage struct {
	ClientMsgID string `json:"client_msg_id,omitempty" validate:"omitempty,max=64"`
	ReceiverID  uint64 `json:"receiver_id" validate:"required"`
	Text        string `json:"text,omitempty" validate:"required_without=Image,max=4000"`
	Image       string `json:"image,omitempty" validate:"omitempty,url,max=1024"`
}

var validate = validator.New()

// Validate trims the text and checks the event shape. A message needs a recipient other than
// the sender and either text or a media URL.
func Validate(senderID uint, msg *SendMessage) error {
	msg.Text = strings.TrimSpace(msg.Text)
	msg.Image = strings.TrimSpace(msg.Image)
	if err := validate.Struct(msg); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidMessage, err)
	}
	if msg.ReceiverID == uint64(senderID) {
		return fmt.Errorf("%w: cannot send a message to yourself", apperr.ErrInvalidMessage)
	}
	return nil
}

func FromModel(m *model.Message) *ChatMessage {
	return &ChatMessage{
		ID:         uint64(m.ID),
		SenderID:   uint64(m.SenderID),
		ReceiverID: uint64(m.ReceiverID),
		Text:       m.Text,
		Image:      m.Image,
		CreatedAt:  m.CreatedAt,
	}
}

func NewMessageEvent(m *model.Message) *Envelope {
	return &Envelope{Type: EventNewMessage, Message: FromModel(m)}
}

func PresenceEvent(online []uint) *Envelope {
	ids := make([]uint64, len(online))
	for i, id := range online {
		ids[i] = uint64(id)
	}
	return &Envelope{Type: EventPresence, OnlineUserIDs: ids}
}

func AckEvent(clientMsgID string, m *model.Message) *Envelope {
	return &Envelope{Type: EventMessageAck, ClientMsgID: clientMsgID, Message: FromModel(m)}
}

func ErrorEvent(clientMsgID, code, reason string) *Envelope {
	return &Envelope{Type: EventError, ClientMsgID: clientMsgID, Code: code, Reason: reason}
}
