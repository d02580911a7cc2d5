// Package framebuf 每个显示位一个的单帧邮箱，新帧覆盖未取走的旧帧
package framebuf

import (
	"context"
	"sync"
	"time"

	"github.com/lk2023060901/faceview/pkg/metrics/sliding"
	"go.uber.org/atomic"
)

// Frame 一帧画面，Data 对本层不透明
type Frame struct {
	Seq        uint64
	CameraID   string
	Data       []byte
	ReceivedAt time.Time
}

// Stats 运行统计
type Stats struct {
	Delivered        uint64
	TotalDrops       uint64
	ConsecutiveDrops uint64
	LastPutAt        time.Time
	LastTakenSeq     uint64
	// 最近窗口内的入帧速率与字节速率
	FrameRate float64
	ByteRate  float64
}

// Buffer 单槽缓冲
// Put 不阻塞；Take/Wait 供单个消费者使用
type Buffer struct {
	mu      sync.Mutex
	frame   *Frame
	lastPut time.Time
	lastSeq uint64

	seq              atomic.Uint64
	delivered        atomic.Uint64
	totalDrops       atomic.Uint64
	consecutiveDrops atomic.Uint64

	rate    *sliding.Window
	updates chan struct{}
}

// Option 缓冲选项
type Option func(*Buffer)

// WithRateWindow 替换帧率统计窗口
func WithRateWindow(w *sliding.Window) Option {
	return func(b *Buffer) { b.rate = w }
}

// New 创建缓冲
func New(opts ...Option) *Buffer {
	b := &Buffer{updates: make(chan struct{}, 1)}
	for _, opt := range opts {
		opt(b)
	}
	if b.rate == nil {
		b.rate = sliding.Default()
	}
	return b
}

// Put 写入新帧，覆盖未被取走的旧帧，返回是否发生了覆盖
func (b *Buffer) Put(cameraID string, data []byte, at time.Time) (dropped bool) {
	f := &Frame{
		Seq:        b.seq.Inc(),
		CameraID:   cameraID,
		Data:       data,
		ReceivedAt: at,
	}

	b.mu.Lock()
	if b.frame != nil {
		dropped = true
		b.totalDrops.Inc()
		b.consecutiveDrops.Inc()
	}
	b.frame = f
	b.lastPut = at
	b.mu.Unlock()
	b.rate.Record(len(data))

	select {
	case b.updates <- struct{}{}:
	default:
	}
	return dropped
}

// Take 取走当前帧，没有新帧时返回 false
func (b *Buffer) Take() (Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frame == nil {
		return Frame{}, false
	}
	f := *b.frame
	b.frame = nil
	b.lastSeq = f.Seq
	b.delivered.Inc()
	b.consecutiveDrops.Store(0)
	return f, true
}

// Peek 读取当前帧但不取走
func (b *Buffer) Peek() (Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frame == nil {
		return Frame{}, false
	}
	return *b.frame, true
}

// Wait 阻塞直到有新帧或 ctx 结束
func (b *Buffer) Wait(ctx context.Context) (Frame, error) {
	for {
		if f, ok := b.Take(); ok {
			return f, nil
		}
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-b.updates:
		}
	}
}

// Updates 有新帧时可读，容量为 1，多次写入合并为一次通知
func (b *Buffer) Updates() <-chan struct{} {
	return b.updates
}

// Reset 丢弃未取走的帧，换绑摄像头时调用
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.frame = nil
	b.mu.Unlock()
	b.rate.Reset()
	select {
	case <-b.updates:
	default:
	}
}

// Stats 统计快照
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	lastPut, lastSeq := b.lastPut, b.lastSeq
	b.mu.Unlock()
	rs := b.rate.GetStats()
	return Stats{
		Delivered:        b.delivered.Load(),
		TotalDrops:       b.totalDrops.Load(),
		ConsecutiveDrops: b.consecutiveDrops.Load(),
		LastPutAt:        lastPut,
		LastTakenSeq:     lastSeq,
		FrameRate:        rs.Rate,
		ByteRate:         rs.Throughput,
	}
}
