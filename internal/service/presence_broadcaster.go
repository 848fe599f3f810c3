package service

import (
	"context"
	"go-direct-chat/internal/codec"
	"go-direct-chat/internal/interfaces"
	"go-direct-chat/internal/presence"
	"go-direct-chat/pkg/logger"
	"sync"

	"go.uber.org/zap"
)

// PresenceBroadcaster pushes the online roster to every open connection after the registry changes.
type PresenceBroadcaster struct {
	registry    *presence.Registry
	connections interfaces.ConnectionEnumerator
	codec       codec.Codec

	trigger chan struct{}
	mu      sync.Mutex
}

func NewPresenceBroadcaster(registry *presence.Registry, connections interfaces.ConnectionEnumerator, c codec.Codec) *PresenceBroadcaster {
	return &PresenceBroadcaster{
		registry:    registry,
		connections: connections,
		codec:       c,
		trigger:     make(chan struct{}, 1),
	}
}

func (b *PresenceBroadcaster) HandleUserConnected(userID uint) {
	logger.L.Debug("Presence changed", zap.Uint("userID", userID), zap.String("change", "connected"))
	b.Notify()
}

func (b *PresenceBroadcaster) HandleUserDisconnected(userID uint) {
	logger.L.Debug("Presence changed", zap.Uint("userID", userID), zap.String("change", "disconnected"))
	b.Notify()
}

// Notify requests a broadcast. Requests made while one is pending collapse into it.
func (b *PresenceBroadcaster) Notify() {
	select {
	case b.trigger <- struct{}{}:
	default:
	}
}

// Run performs one broadcast per pending request until ctx is done.
func (b *PresenceBroadcaster) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			logger.L.Debug("Stopping presence broadcaster")
			return
		case <-b.trigger:
			b.Broadcast()
		}
	}
}

// Broadcast sends the current roster to every open connection and returns how many accepted it.
func (b *PresenceBroadcaster) Broadcast() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	online := b.registry.OnlineUsers()
	clients := b.connections.OpenClients()
	if len(clients) == 0 {
		return 0
	}

	data, err := b.codec.Encode(codec.PresenceEvent(online))
	if err != nil {
		logger.L.Error("Failed to encode presence event", zap.Error(err))
		return 0
	}

	delivered := pushAll(clients, data, codec.EventPresence)
	logger.L.Debug("Presence broadcast",
		zap.Int("online", len(online)),
		zap.Int("connections", len(clients)),
		zap.Int("delivered", delivered))
	return delivered
}
