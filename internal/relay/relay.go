// Package relay hands persisted messages to live delivery, either in-process or across nodes.
package relay

import (
	"context"
	"fmt"
	"go-direct-chat/internal/model"
	"go-direct-chat/pkg/config"
	"go-direct-chat/pkg/logger"

	"go.uber.org/zap"
)

// Router is the local delivery stage a relay feeds.
// service.DeliveryRouter实现
type Router interface {
	Enqueue(message *model.Message) error
}

// Relay is a Dispatcher with a lifecycle.
type Relay interface {
	Dispatch(ctx context.Context, message *model.Message) error
	Start(ctx context.Context)
	Close() error
}

// CreateRelay 根据配置创建相应的Relay实现
func CreateRelay(cfg config.MessagingConfig, router Router) (Relay, error) {
	logger.L.Info("Creating relay with messaging provider", zap.String("provider", cfg.Provider))

	switch cfg.Provider {
	case "", "channel":
		return NewLocalRelay(router), nil
	case "kafka":
		return NewKafkaRelay(cfg.Kafka, router)
	default:
		return nil, fmt.Errorf("unsupported messaging provider %q", cfg.Provider)
	}
}

// LocalRelay enqueues straight onto this node's router.
type LocalRelay struct {
	router Router
}

func NewLocalRelay(router Router) *LocalRelay {
	return &LocalRelay{router: router}
}

func (r *LocalRelay) Dispatch(_ context.Context, message *model.Message) error {
	return r.router.Enqueue(message)
}

func (r *LocalRelay) Start(context.Context) {}

func (r *LocalRelay) Close() error { return nil }
