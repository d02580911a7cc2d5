package app

import (
	"time"

	"github.com/google/uuid"
	"github.com/lk2023060901/faceview/pkg/logger"
)

// Options 应用选项
type Options struct {
	// ID 本次运行的实例标识，随启动日志输出
	ID          string
	Name        string
	StopTimeout time.Duration
	Logger      logger.Logger
	// Loggers 组件日志；为空时所有组件从 Logger 派生
	Loggers *LoggerRegistry
}

// Option 定义配置函数
type Option func(*Options)

// DefaultOptions 返回默认配置
func DefaultOptions() Options {
	return Options{
		ID:          uuid.New().String(),
		Name:        AppName,
		StopTimeout: 15 * time.Second,
		Logger:      logger.Default(),
	}
}

// WithLogger 设置应用日志器
func WithLogger(l logger.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithLoggerRegistry 设置组件日志，Shutdown 时统一刷新
func WithLoggerRegistry(r *LoggerRegistry) Option {
	return func(o *Options) { o.Loggers = r }
}

// WithName 设置应用名称
func WithName(name string) Option {
	return func(o *Options) { o.Name = name }
}

// WithStopTimeout 设置优雅停止超时时间
func WithStopTimeout(t time.Duration) Option {
	return func(o *Options) { o.StopTimeout = t }
}
