package session

import (
	"github.com/lk2023060901/faceview/app/liveview/internal/slot"
	"github.com/lk2023060901/faceview/pkg/logger"
	"github.com/lk2023060901/faceview/pkg/websocket"
)

// Option 管理器选项
type Option func(*Manager)

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithSlotConfig 每个显示位使用的连接配置
func WithSlotConfig(cfg *slot.Config) Option {
	return func(m *Manager) { m.slotCfg = cfg }
}

// WithMetrics 设置连接指标
func WithMetrics(metrics *websocket.ClientMetrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithScheduler 替换重试定时器
func WithScheduler(s slot.Scheduler) Option {
	return func(m *Manager) { m.sched = s }
}

// WithFailureReporter 显示位进入 Failed 时回调
func WithFailureReporter(fn func(err error, snap slot.Snapshot)) Option {
	return func(m *Manager) { m.reporter = fn }
}
