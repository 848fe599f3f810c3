//go:generate go run go.uber.org/mock/mockgen -source=interfaces.go -destination=../mocks/mock_interfaces.go -package=mocks -exclude_interfaces=Client,MessageHandler,ConnectionEventHandler,ConnectionEnumerator
package interfaces

import (
	"context"

	"go-direct-chat/internal/codec"
	"go-direct-chat/internal/model"
)

// Client 一个活跃连接的句柄
type Client interface {
	GetID() string
	GetUserID() uint
	QueueBytes(data []byte) error
	Close()
}

// Credentials 握手时携带的凭证
type Credentials struct {
	Token string
}

// IdentityVerifier 校验握手凭证
// service.AuthService实现
type IdentityVerifier interface {
	Authenticate(ctx context.Context, creds Credentials) (uint, error)
}

// MessageStore 消息持久化
// repository.MessageRepository / repository.MongoMessageRepository实现
type MessageStore interface {
	Persist(ctx context.Context, senderID, receiverID uint, payload model.Payload) (*model.Message, error)
	History(ctx context.Context, userA, userB uint, limit, offset int) ([]model.Message, error)
}

// UserDirectory 用户查询
// repository.UserRepository实现
type UserDirectory interface {
	FindByID(ctx context.Context, id uint) (*model.User, error)
	ListExcept(ctx context.Context, id uint) ([]model.User, error)
}

// 定义了处理传入消息的接口
// service.ChatService实现
type MessageHandler interface {
	HandleMessage(ctx context.Context, sender Client, msg *codec.SendMessage)
}

// 定义了处理连接事件的方法
// service.PresenceBroadcaster实现
type ConnectionEventHandler interface {
	HandleUserConnected(userID uint)
	HandleUserDisconnected(userID uint)
}

// ConnectionEnumerator lists every open connection handle.
// websocket.ConnectionManager实现
type ConnectionEnumerator interface {
	OpenClients() []Client
}

// Dispatcher hands a persisted message to live delivery.
// relay.LocalRelay / relay.KafkaRelay实现
type Dispatcher interface {
	Dispatch(ctx context.Context, message *model.Message) error
}
