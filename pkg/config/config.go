package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Store     StoreConfig     `mapstructure:"store"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Messaging MessagingConfig `mapstructure:"messaging"`
}

type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	Production     bool     `mapstructure:"production"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type MongoConfig struct {
	URI      string        `mapstructure:"uri"`
	Database string        `mapstructure:"database"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// StoreConfig selects the message store backend: "mysql" or "mongo".
type StoreConfig struct {
	Provider string `mapstructure:"provider"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
	CookieName string        `mapstructure:"cookie_name"`
}

type WebSocketConfig struct {
	// "json" for text frames, "protobuf" for binary frames
	Codec          string `mapstructure:"codec"`
	SendBufferSize int    `mapstructure:"send_buffer_size"`

	WriteWaitSeconds int `mapstructure:"write_wait_seconds"`
	PongWaitSeconds  int `mapstructure:"pong_wait_seconds"`
	MaxMessageSize   int `mapstructure:"max_message_size"`
	// 重试相关配置
	MessageRetryCount      int `mapstructure:"message_retry_count"`
	MessageRetryIntervalMs int `mapstructure:"message_retry_interval_ms"`
}

type DeliveryConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

type MessagingConfig struct {
	// "channel" keeps delivery in-process, "kafka" relays through the cluster
	Provider string      `mapstructure:"provider"`
	Kafka    KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	TopicPrefix   string   `mapstructure:"topic_prefix"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	NodeID        string   `mapstructure:"node_id"`
}

var GlobalConfig Config

func Init() error {
	// .env 可选
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env file: %w", err)
	}
	return load("config")
}

// 测试用的配置文件
func InitTest() error {
	return load("config.test")
}

func load(name string) error {
	// 获取项目根目录
	_, b, _, _ := runtime.Caller(0)
	basepath := filepath.Dir(filepath.Dir(filepath.Dir(b)))

	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(basepath, "config"))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	GlobalConfig = cfg

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":5001")
	v.SetDefault("log.level", "info")
	v.SetDefault("store.provider", "mysql")
	v.SetDefault("mongo.database", "chat")
	v.SetDefault("mongo.timeout", 5*time.Second)
	v.SetDefault("jwt.expiration", 7*24*time.Hour)
	v.SetDefault("jwt.cookie_name", "jwt")
	v.SetDefault("websocket.codec", "json")
	v.SetDefault("websocket.send_buffer_size", 256)
	v.SetDefault("websocket.write_wait_seconds", 10)
	v.SetDefault("websocket.pong_wait_seconds", 60)
	v.SetDefault("websocket.max_message_size", 64*1024)
	v.SetDefault("websocket.message_retry_count", 3)
	v.SetDefault("websocket.message_retry_interval_ms", 100)
	v.SetDefault("delivery.workers", 4)
	v.SetDefault("delivery.queue_size", 256)
	v.SetDefault("messaging.provider", "channel")
}
