package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"go-direct-chat/internal/model"
	"go-direct-chat/pkg/config"
	"go-direct-chat/pkg/logger"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// KafkaRelay publishes every persisted message to the direct topic. Every node consumes the topic
// in a consumer group of its own and enqueues to its local router, which pushes only to the
// connections that node holds.
type KafkaRelay struct {
	producer sarama.SyncProducer
	consumer sarama.ConsumerGroup
	router   Router
	cfg      config.KafkaConfig
	cancel   context.CancelFunc
}

// 创建一个新的KafkaRelay
func NewKafkaRelay(cfg config.KafkaConfig, router Router) (*KafkaRelay, error) {
	kConfig := sarama.NewConfig()
	kConfig.Producer.RequiredAcks = sarama.WaitForAll
	kConfig.Producer.Return.Successes = true
	kConfig.Producer.Retry.Max = 3
	// 同一接收者的消息进入同一分区
	kConfig.Producer.Partitioner = sarama.NewHashPartitioner
	kConfig.Consumer.Return.Errors = true
	// 只推送新消息, 历史消息由查询接口获取
	kConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	kConfig.Version = sarama.V2_8_0_0

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kConfig)
	if err != nil {
		logger.L.Error("Failed to start Kafka producer", zap.Error(err))
		return nil, fmt.Errorf("failed to start Kafka producer: %w", err)
	}

	group := consumerGroupName(cfg)
	consumer, err := sarama.NewConsumerGroup(cfg.Brokers, group, kConfig)
	if err != nil {
		logger.L.Error("Failed to start Kafka consumer group", zap.Error(err))
		_ = producer.Close()
		return nil, fmt.Errorf("failed to start Kafka consumer group: %w", err)
	}

	logger.L.Info("Kafka relay created", zap.Strings("brokers", cfg.Brokers), zap.String("group", group))
	return newKafkaRelay(producer, consumer, cfg, router), nil
}

func newKafkaRelay(producer sarama.SyncProducer, consumer sarama.ConsumerGroup, cfg config.KafkaConfig, router Router) *KafkaRelay {
	return &KafkaRelay{
		producer: producer,
		consumer: consumer,
		router:   router,
		cfg:      cfg,
		cancel:   func() {},
	}
}

// 每个节点独立的消费者组, 保证所有节点都收到每条消息
func consumerGroupName(cfg config.KafkaConfig) string {
	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID = uuid.NewString()
	}
	return fmt.Sprintf("%s-%s", cfg.ConsumerGroup, nodeID)
}

// 构建Kafka主题名称
func (r *KafkaRelay) topic() string {
	return fmt.Sprintf("%s_%s", r.cfg.TopicPrefix, "direct")
}

func (r *KafkaRelay) Dispatch(_ context.Context, message *model.Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	kafkaMsg := &sarama.ProducerMessage{
		Topic: r.topic(),
		Key:   sarama.StringEncoder(strconv.FormatUint(uint64(message.ReceiverID), 10)),
		Value: sarama.ByteEncoder(data),
	}
	partition, offset, err := r.producer.SendMessage(kafkaMsg)
	if err != nil {
		logger.L.Error("Failed to send message to Kafka", zap.Uint("messageID", message.ID), zap.Error(err))
		return fmt.Errorf("failed to send message to Kafka: %w", err)
	}

	logger.L.Debug("Message relayed through Kafka",
		zap.Uint("messageID", message.ID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

// Start consumes the direct topic until ctx is done or Close is called.
func (r *KafkaRelay) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	go r.consumeMessages(ctx)
	go r.logErrors(ctx)
}

func (r *KafkaRelay) consumeMessages(ctx context.Context) {
	handler := &kafkaConsumerHandler{relay: r}
	topics := []string{r.topic()}

	for {
		select {
		case <-ctx.Done():
			logger.L.Info("Stopping Kafka consumer")
			return
		default:
			if err := r.consumer.Consume(ctx, topics, handler); err != nil {
				logger.L.Error("Kafka consumer error", zap.Error(err))
				// 失败时等待一段时间再重试
				select {
				case <-ctx.Done():
					return
				case <-time.After(5 * time.Second):
				}
			}
		}
	}
}

func (r *KafkaRelay) logErrors(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-r.consumer.Errors():
			if !ok {
				return
			}
			logger.L.Warn("Kafka consumer group error", zap.Error(err))
		}
	}
}

// 关闭KafkaRelay
func (r *KafkaRelay) Close() error {
	r.cancel()

	var firstErr error
	if err := r.producer.Close(); err != nil {
		logger.L.Error("Failed to close Kafka producer", zap.Error(err))
		firstErr = err
	}
	if r.consumer != nil {
		if err := r.consumer.Close(); err != nil {
			logger.L.Error("Failed to close Kafka consumer group", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// 处理一条Kafka消息
func (r *KafkaRelay) handle(record *sarama.ConsumerMessage) {
	var message model.Message
	if err := json.Unmarshal(record.Value, &message); err != nil {
		logger.L.Error("Failed to unmarshal relayed message",
			zap.String("topic", record.Topic),
			zap.Int64("offset", record.Offset),
			zap.Error(err))
		return
	}
	if err := r.router.Enqueue(&message); err != nil {
		logger.L.Warn("Failed to enqueue relayed message", zap.Uint("messageID", message.ID), zap.Error(err))
	}
}

// Kafka消费者处理器
type kafkaConsumerHandler struct {
	relay *KafkaRelay
}

// Setup 实现sarama.ConsumerGroupHandler接口
func (h *kafkaConsumerHandler) Setup(_ sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup 实现sarama.ConsumerGroupHandler接口
func (h *kafkaConsumerHandler) Cleanup(_ sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim 实现sarama.ConsumerGroupHandler接口
func (h *kafkaConsumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case record, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.relay.handle(record)
			// 标记消息已处理
			session.MarkMessage(record, "")
		case <-session.Context().Done():
			return nil
		}
	}
}
