package sentry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/getsentry/sentry-go"
	"github.com/lk2023060901/faceview/pkg/config"
	"github.com/lk2023060901/faceview/pkg/logger"
)

// Client Sentry 客户端，使用独立的 Hub
type Client struct {
	hub    *sentry.Hub
	config *Config
	hooks  hookManager
	logger logger.Logger
	closed atomic.Bool

	stats struct {
		eventsTotal    atomic.Uint64
		eventsCaptured atomic.Uint64
		eventsDropped  atomic.Uint64
	}
}

// Stats 上报统计
type Stats struct {
	EventsTotal    uint64
	EventsCaptured uint64
	EventsDropped  uint64
}

// Option 客户端选项
type Option func(*options)

type options struct {
	transport sentry.Transport
	logger    logger.Logger
}

// WithTransport 替换上报通道，测试中用于截获事件
func WithTransport(t sentry.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New 创建 Sentry 客户端
func New(cfg *Config, opts ...Option) (*Client, error) {
	newCfg, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}
	if err := newCfg.Validate(); err != nil {
		return nil, err
	}

	o := options{logger: logger.NewNoop()}
	for _, opt := range opts {
		opt(&o)
	}

	clientOpts := newCfg.toClientOptions()
	clientOpts.Transport = o.transport
	client, err := sentry.NewClient(clientOpts)
	if err != nil {
		return nil, errors.Wrap(err, "create sentry client")
	}

	hub := sentry.NewHub(client, sentry.NewScope())
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTags(newCfg.Tags)
	})

	if newCfg.DSN == "" && o.transport == nil {
		o.logger.Info("sentry disabled, no dsn configured")
	}
	return &Client{hub: hub, config: newCfg, logger: o.logger}, nil
}

// CaptureError 上报错误，tags 用于检索，extra 为附加上下文
func (c *Client) CaptureError(err error, tags map[string]string, extra map[string]interface{}) *sentry.EventID {
	if c.closed.Load() || err == nil {
		return nil
	}
	c.stats.eventsTotal.Add(1)

	// 每次上报克隆 Hub，并发调用之间的 scope 互不影响
	hub := c.hub.Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		scope.SetExtras(extra)
		scope.SetLevel(sentry.LevelError)
	})
	eventID := hub.CaptureException(err)
	return c.track(eventID, sentry.LevelError, err.Error())
}

// Recover 上报 panic 后重新抛出，用于 defer
func (c *Client) Recover() {
	if r := recover(); r != nil {
		if !c.closed.Load() {
			c.stats.eventsTotal.Add(1)
			c.track(c.hub.RecoverWithContext(context.Background(), r), sentry.LevelFatal, "panic")
			c.hub.Flush(c.config.ShutdownTimeout)
		}
		panic(r)
	}
}

func (c *Client) track(eventID *sentry.EventID, level sentry.Level, message string) *sentry.EventID {
	if eventID == nil || *eventID == "" {
		c.stats.eventsDropped.Add(1)
		return eventID
	}
	c.stats.eventsCaptured.Add(1)
	c.hooks.trigger(&sentry.Event{EventID: *eventID, Level: level, Message: scrub(message)})
	return eventID
}

// RegisterHook 注册上报回调
func (c *Client) RegisterHook(hook EventHook) {
	c.hooks.register(hook)
}

// Flush 等待已捕获的事件发送完成
func (c *Client) Flush(timeout time.Duration) bool {
	return c.hub.Flush(timeout)
}

// Close 刷新后关闭，之后的上报被忽略
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return ErrClientClosed
	}
	c.hub.Flush(c.config.ShutdownTimeout)
	return nil
}

// Stats 上报统计
func (c *Client) Stats() Stats {
	return Stats{
		EventsTotal:    c.stats.eventsTotal.Load(),
		EventsCaptured: c.stats.eventsCaptured.Load(),
		EventsDropped:  c.stats.eventsDropped.Load(),
	}
}
