package websocket

import (
	"go-direct-chat/pkg/config"
	"go-direct-chat/pkg/logger"
	"time"

	"go.uber.org/zap"
)

type Settings struct {
	WriteWait      time.Duration // 写超时
	PongWait       time.Duration // 等待pong的最大时间
	PingPeriod     time.Duration // 发送ping的周期
	MaxMessageSize int64         // 消息最大长度
	SendBufferSize int
	RetryCount     int
	RetryInterval  time.Duration
}

// SettingsFromConfig falls back to defaults for missing or invalid values.
func SettingsFromConfig(wsConfig config.WebSocketConfig) Settings {
	s := Settings{
		WriteWait:      time.Duration(wsConfig.WriteWaitSeconds) * time.Second,
		PongWait:       time.Duration(wsConfig.PongWaitSeconds) * time.Second,
		MaxMessageSize: int64(wsConfig.MaxMessageSize),
		SendBufferSize: wsConfig.SendBufferSize,
		RetryCount:     wsConfig.MessageRetryCount,
		RetryInterval:  time.Duration(wsConfig.MessageRetryIntervalMs) * time.Millisecond,
	}

	if s.WriteWait <= 0 {
		s.WriteWait = 10 * time.Second
		logger.L.Warn("Invalid WriteWaitSeconds, using default", zap.Duration("default", s.WriteWait))
	}
	if s.PongWait <= 0 {
		s.PongWait = 60 * time.Second
		logger.L.Warn("Invalid PongWaitSeconds, using default", zap.Duration("default", s.PongWait))
	}
	if s.MaxMessageSize <= 0 {
		s.MaxMessageSize = 64 * 1024
		logger.L.Warn("Invalid MaxMessageSize, using default", zap.Int64("default", s.MaxMessageSize))
	}
	if s.SendBufferSize <= 0 {
		s.SendBufferSize = 256
		logger.L.Warn("Invalid SendBufferSize, using default", zap.Int("default", s.SendBufferSize))
	}
	if s.RetryCount < 0 {
		s.RetryCount = 3
		logger.L.Warn("Invalid retryCount, using default", zap.Int("default", s.RetryCount))
	}
	if s.RetryInterval <= 0 {
		s.RetryInterval = 100 * time.Millisecond
		logger.L.Warn("Invalid retryInterval, using default", zap.Duration("default", s.RetryInterval))
	}
	s.PingPeriod = (s.PongWait * 9) / 10
	return s
}
