// Package sliding 按时间桶滚动的计数窗口，用于帧率与吞吐统计
package sliding

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/faceview/pkg/config"
)

// ErrInvalidWindow 窗口配置非法
var ErrInvalidWindow = errors.New("sliding: invalid window config")

// WindowConfig 滑动窗口配置
type WindowConfig struct {
	// 窗口大小
	WindowSize time.Duration `mapstructure:"window_size" json:"window_size" yaml:"window_size"`
	// 桶数量
	BucketCount int `mapstructure:"bucket_count" json:"bucket_count" yaml:"bucket_count"`
}

// DefaultWindowConfig 默认配置，10 秒窗口，每桶 1 秒
func DefaultWindowConfig() *WindowConfig {
	return &WindowConfig{
		WindowSize:  10 * time.Second,
		BucketCount: 10,
	}
}

// Validate 验证配置
func (c *WindowConfig) Validate() error {
	if c.WindowSize <= 0 || c.BucketCount <= 0 {
		return errors.Wrapf(ErrInvalidWindow, "window_size=%s bucket_count=%d", c.WindowSize, c.BucketCount)
	}
	if c.WindowSize/time.Duration(c.BucketCount) <= 0 {
		return errors.Wrap(ErrInvalidWindow, "bucket too small")
	}
	return nil
}

// bucket 时间桶，start 不匹配当前周期时视为过期
type bucket struct {
	start time.Time
	count int64
	bytes int64
}

// Window 滑动窗口统计器
// 桶在写入和读取时按时间惰性轮换，不需要后台协程
type Window struct {
	config     *WindowConfig
	bucketSize time.Duration
	now        func() time.Time

	mu      sync.Mutex
	buckets []bucket
}

// Option 窗口选项
type Option func(*Window)

// WithClock 替换时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(w *Window) { w.now = now }
}

// NewWindow 创建滑动窗口统计器
func NewWindow(cfg *WindowConfig, opts ...Option) (*Window, error) {
	newCfg, err := config.MergeConfig(DefaultWindowConfig(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "merge window config")
	}
	if err := newCfg.Validate(); err != nil {
		return nil, err
	}

	w := &Window{
		config:     newCfg,
		bucketSize: newCfg.WindowSize / time.Duration(newCfg.BucketCount),
		now:        time.Now,
		buckets:    make([]bucket, newCfg.BucketCount),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Default 使用默认配置创建窗口
func Default(opts ...Option) *Window {
	w, err := NewWindow(nil, opts...)
	if err != nil {
		// 默认配置必然合法
		panic(err)
	}
	return w
}

// Record 记录一次事件，size 为负载字节数
func (w *Window) Record(size int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	b := w.current(w.now())
	b.count++
	b.bytes += int64(size)
}

func (w *Window) current(now time.Time) *bucket {
	start := now.Truncate(w.bucketSize)
	idx := int((start.UnixNano() / int64(w.bucketSize)) % int64(len(w.buckets)))
	b := &w.buckets[idx]
	if !b.start.Equal(start) {
		*b = bucket{start: start}
	}
	return b
}

// Stats 统计结果
type Stats struct {
	// 每秒事件数
	Rate float64 `json:"rate"`
	// 每秒字节数
	Throughput float64 `json:"throughput"`
	// 窗口内事件总数
	Count int64 `json:"count"`
	// 窗口内字节总数
	Bytes int64 `json:"bytes"`
}

// GetStats 获取统计数据
func (w *Window) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	windowStart := now.Truncate(w.bucketSize).Add(-w.config.WindowSize)

	var stats Stats
	for _, b := range w.buckets {
		if b.start.After(windowStart) && !b.start.After(now) {
			stats.Count += b.count
			stats.Bytes += b.bytes
		}
	}

	seconds := w.config.WindowSize.Seconds()
	stats.Rate = float64(stats.Count) / seconds
	stats.Throughput = float64(stats.Bytes) / seconds
	return stats
}

// GetRate 获取每秒事件数
func (w *Window) GetRate() float64 {
	return w.GetStats().Rate
}

// Reset 清空所有桶
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.buckets {
		w.buckets[i] = bucket{}
	}
}
