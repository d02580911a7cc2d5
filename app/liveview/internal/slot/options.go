package slot

import (
	"time"

	"github.com/lk2023060901/faceview/pkg/logger"
	"github.com/lk2023060901/faceview/pkg/websocket"
)

// Option 连接位选项
type Option func(*Slot)

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(s *Slot) { s.logger = l }
}

// WithExecutor 设置拨号与读循环的执行器
func WithExecutor(e Executor) Option {
	return func(s *Slot) { s.exec = e }
}

// WithScheduler 设置重试定时器
func WithScheduler(sc Scheduler) Option {
	return func(s *Slot) { s.sched = sc }
}

// WithMetrics 设置指标
func WithMetrics(m *websocket.ClientMetrics) Option {
	return func(s *Slot) { s.metrics = m }
}

// WithObserver 状态变化回调，在锁外调用，版本单调，并发变化时可能合并中间状态
// 回调内不得同步调用 Bind/Unbind/Teardown
func WithObserver(fn func(Snapshot)) Option {
	return func(s *Slot) { s.observer = fn }
}

// WithFailureReporter 进入 Failed 时回调
func WithFailureReporter(fn func(err error, snap Snapshot)) Option {
	return func(s *Slot) { s.reporter = fn }
}

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(s *Slot) { s.now = now }
}
