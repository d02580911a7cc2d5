// pkg/websocket/metrics.go
package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ClientMetrics 客户端连接指标，按 slot 标签区分每路画面
// 所有方法对 nil 接收者安全，未开启指标时直接传 nil
type ClientMetrics struct {
	state             *prometheus.GaugeVec
	dialsTotal        *prometheus.CounterVec
	disconnectsTotal  *prometheus.CounterVec
	reconnectAttempts *prometheus.CounterVec
	framesReceived    *prometheus.CounterVec
	bytesReceived     *prometheus.CounterVec
	framesDropped     *prometheus.CounterVec
	errors            *prometheus.CounterVec
}

// NewClientMetrics 创建并注册客户端指标
func NewClientMetrics(registerer prometheus.Registerer, namespace string) *ClientMetrics {
	if namespace == "" {
		namespace = "websocket"
	}
	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: namespace, Subsystem: "client", Name: name, Help: help}
	}

	m := &ClientMetrics{
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "slot_state",
			Help:      "Current slot state (0=idle, 1=connecting, 2=streaming, 3=reconnecting, 4=failed, 5=closed)",
		}, []string{"slot"}),
		dialsTotal:        prometheus.NewCounterVec(opts("dials_total", "Total number of dial attempts"), []string{"slot", "result"}),
		disconnectsTotal:  prometheus.NewCounterVec(opts("disconnects_total", "Total number of disconnections"), []string{"slot", "reason"}),
		reconnectAttempts: prometheus.NewCounterVec(opts("reconnect_attempts_total", "Total number of scheduled reconnections"), []string{"slot"}),
		framesReceived:    prometheus.NewCounterVec(opts("frames_received_total", "Total number of frames received"), []string{"slot"}),
		bytesReceived:     prometheus.NewCounterVec(opts("bytes_received_total", "Total frame bytes received"), []string{"slot"}),
		framesDropped:     prometheus.NewCounterVec(opts("frames_dropped_total", "Frames overwritten before the renderer consumed them"), []string{"slot"}),
		errors:            prometheus.NewCounterVec(opts("errors_total", "Total number of errors by kind"), []string{"slot", "kind"}),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.state,
			m.dialsTotal,
			m.disconnectsTotal,
			m.reconnectAttempts,
			m.framesReceived,
			m.bytesReceived,
			m.framesDropped,
			m.errors,
		)
	}
	return m
}

// SetState 记录 slot 当前状态
func (m *ClientMetrics) SetState(slot string, state int) {
	if m == nil {
		return
	}
	m.state.WithLabelValues(slot).Set(float64(state))
}

// OnDial 一次拨号结束
func (m *ClientMetrics) OnDial(slot string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.dialsTotal.WithLabelValues(slot, result).Inc()
}

// OnDisconnected 连接断开
func (m *ClientMetrics) OnDisconnected(slot, reason string) {
	if m == nil {
		return
	}
	m.disconnectsTotal.WithLabelValues(slot, reason).Inc()
}

// OnReconnectAttempt 安排了一次重连
func (m *ClientMetrics) OnReconnectAttempt(slot string) {
	if m == nil {
		return
	}
	m.reconnectAttempts.WithLabelValues(slot).Inc()
}

// OnFrame 收到一帧
func (m *ClientMetrics) OnFrame(slot string, size int) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(slot).Inc()
	m.bytesReceived.WithLabelValues(slot).Add(float64(size))
}

// OnFrameDropped 旧帧未被消费即被覆盖
func (m *ClientMetrics) OnFrameDropped(slot string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(slot).Inc()
}

// OnError 按错误类别计数
func (m *ClientMetrics) OnError(slot, kind string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(slot, kind).Inc()
}
