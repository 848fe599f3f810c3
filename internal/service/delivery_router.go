package service

import (
	"context"
	"go-direct-chat/internal/apperr"
	"go-direct-chat/internal/codec"
	"go-direct-chat/internal/model"
	"go-direct-chat/internal/presence"
	"go-direct-chat/pkg/config"
	"go-direct-chat/pkg/logger"

	"go.uber.org/zap"
)

// DeliveryRouter pushes persisted messages to the recipient's live connections.
//
// Enqueue shards messages by recipient so every recipient's messages are pushed by one worker in
// the order they were enqueued. A slow connection can hold its shard for at most the client retry
// budget.
type DeliveryRouter struct {
	registry *presence.Registry
	codec    codec.Codec
	shards   []chan *model.Message
}

func NewDeliveryRouter(registry *presence.Registry, c codec.Codec, cfg config.DeliveryConfig) *DeliveryRouter {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
		logger.L.Warn("Invalid delivery workers, using default", zap.Int("default", workers))
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
		logger.L.Warn("Invalid delivery queue size, using default", zap.Int("default", queueSize))
	}

	shards := make([]chan *model.Message, workers)
	for i := range shards {
		shards[i] = make(chan *model.Message, queueSize)
	}
	return &DeliveryRouter{registry: registry, codec: c, shards: shards}
}

// Start runs one worker per shard until ctx is done.
func (r *DeliveryRouter) Start(ctx context.Context) {
	for i, shard := range r.shards {
		go r.runShard(ctx, i, shard)
	}
}

func (r *DeliveryRouter) runShard(ctx context.Context, index int, shard <-chan *model.Message) {
	for {
		select {
		case <-ctx.Done():
			logger.L.Debug("Stopping delivery worker", zap.Int("shard", index))
			return
		case message := <-shard:
			r.Deliver(message)
		}
	}
}

// Enqueue hands message to its shard without blocking. A full shard drops the live push; the
// message is already stored and shows up in the recipient's history.
func (r *DeliveryRouter) Enqueue(message *model.Message) error {
	shard := r.shards[message.ReceiverID%uint(len(r.shards))]
	select {
	case shard <- message:
		return nil
	default:
		logger.L.Warn("Delivery queue full, dropping live push",
			zap.Uint("messageID", message.ID),
			zap.Uint("receiverID", message.ReceiverID))
		return apperr.ErrDispatchQueueFull
	}
}

// Deliver pushes message to every live connection of its recipient and returns how many accepted
// it. An offline recipient is not an error.
func (r *DeliveryRouter) Deliver(message *model.Message) int {
	handles := r.registry.LiveHandles(message.ReceiverID)
	if len(handles) == 0 {
		logger.L.Debug("Recipient offline, message stored only",
			zap.Uint("messageID", message.ID),
			zap.Uint("receiverID", message.ReceiverID))
		return 0
	}

	data, err := r.codec.Encode(codec.NewMessageEvent(message))
	if err != nil {
		logger.L.Error("Failed to encode message event", zap.Uint("messageID", message.ID), zap.Error(err))
		return 0
	}

	delivered := pushAll(handles, data, codec.EventNewMessage)
	logger.L.Debug("Message pushed",
		zap.Uint("messageID", message.ID),
		zap.Uint("receiverID", message.ReceiverID),
		zap.Int("handles", len(handles)),
		zap.Int("delivered", delivered))
	return delivered
}
