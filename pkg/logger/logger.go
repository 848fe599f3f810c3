package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// L 全局日志记录器, InitLogger 之前丢弃所有输出
var L = zap.NewNop()

// InitLogger builds a logger with New and installs it as L.
func InitLogger(level string, isProduction bool) error {
	l, err := New(level, isProduction)
	if err != nil {
		return err
	}
	L = l
	L.Info("Zap logger initialized", zap.String("level", l.Level().String()), zap.Bool("productionMode", isProduction))
	return nil
}

// New returns a JSON logger in production and a colored console logger otherwise.
// An unknown level name falls back to info. Callers log through the returned logger
// directly, so no caller skip is applied.
func New(level string, isProduction bool, opts ...zap.Option) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
		fmt.Fprintf(os.Stderr, "Warning: invalid log level %q, using info: %v\n", level, err)
	}

	cfg := zap.NewDevelopmentConfig()
	if isProduction {
		cfg = zap.NewProductionConfig()
	} else {
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize zap logger: %w", err)
	}
	return l, nil
}

// Sync 刷新缓冲的日志, 退出前调用
func Sync() {
	_ = L.Sync()
}
