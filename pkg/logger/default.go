package logger

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/lk2023060901/faceview/pkg/config"
)

// 环境变量前缀
const envPrefix = "FACEVIEW_LOG_"

var (
	defaultLogger   Logger
	defaultLoggerMu sync.RWMutex
)

// InitDefault 初始化默认 logger
func InitDefault(cfg *Config, opts ...Option) error {
	l, err := New(cfg, opts...)
	if err != nil {
		return err
	}
	SetDefault(l)
	return nil
}

// ConfigFromEnv 读取 FACEVIEW_LOG_* 覆盖默认配置
func ConfigFromEnv() (*Config, error) {
	env := &Config{}
	if v := os.Getenv(envPrefix + "LEVEL"); v != "" {
		env.Level = Level(strings.ToLower(v))
	}
	if v := os.Getenv(envPrefix + "FORMAT"); v != "" {
		env.Format = Format(strings.ToLower(v))
	}
	if v := os.Getenv(envPrefix + "PATH"); v != "" {
		env.EnableFile = true
		env.OutputPath = v
	}
	if os.Getenv(envPrefix+"DEVELOPMENT") == "true" {
		env.Development = true
	}

	cfg, err := config.MergeConfig(DefaultConfig(), env)
	if err != nil {
		return nil, err
	}
	// bool 零值不参与合并，单独处理
	if os.Getenv(envPrefix+"CONSOLE") == "false" && cfg.EnableFile {
		cfg.EnableConsole = false
	}
	return cfg, nil
}

// InitDefaultFromEnv 从环境变量初始化默认 logger
func InitDefaultFromEnv() error {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return err
	}
	return InitDefault(cfg)
}

// SetDefault 设置默认 logger
func SetDefault(l Logger) {
	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()
	defaultLogger = l
}

// Default 获取默认 logger，未初始化时懒加载控制台 logger
func Default() Logger {
	defaultLoggerMu.RLock()
	l := defaultLogger
	defaultLoggerMu.RUnlock()
	if l != nil {
		return l
	}

	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()
	if defaultLogger == nil {
		bl, err := New(DefaultConfig())
		if err != nil {
			defaultLogger = NewNoop()
		} else {
			defaultLogger = bl
		}
	}
	return defaultLogger
}

// --- 便捷函数 (使用默认 logger) ---

func Debug(msg string, keysAndValues ...interface{}) { Default().Debug(msg, keysAndValues...) }
func Info(msg string, keysAndValues ...interface{})  { Default().Info(msg, keysAndValues...) }
func Warn(msg string, keysAndValues ...interface{})  { Default().Warn(msg, keysAndValues...) }
func Error(msg string, keysAndValues ...interface{}) { Default().Error(msg, keysAndValues...) }

func InfoContext(ctx context.Context, msg string, keysAndValues ...interface{}) {
	Default().InfoContext(ctx, msg, keysAndValues...)
}

func ErrorContext(ctx context.Context, msg string, keysAndValues ...interface{}) {
	Default().ErrorContext(ctx, msg, keysAndValues...)
}

func Named(name string) Logger { return Default().Named(name) }

func Sync() error { return Default().Sync() }
