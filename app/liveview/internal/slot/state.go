package slot

import (
	"time"
)

// State 连接位状态
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateReconnecting
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal Failed/Closed 只能由显式 Bind 离开
func (s State) Terminal() bool {
	return s == StateFailed || s == StateClosed
}

// Snapshot 某一时刻的连接位状态
type Snapshot struct {
	ID          int
	State       State
	CameraID    string
	RetryCount  int
	LastFrameAt time.Time
	LastError   error
	Generation  uint64

	version uint64
}

// Bound 是否绑定了摄像头
func (s Snapshot) Bound() bool { return s.CameraID != "" }
