package slot

import (
	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/faceview/app/liveview/internal/authz"
	"github.com/lk2023060901/faceview/app/liveview/internal/catalog"
)

var (
	ErrUnauthenticated   = authz.ErrUnauthenticated
	ErrForbidden         = authz.ErrForbidden
	ErrCameraUnavailable = catalog.ErrCameraUnavailable

	// ErrConnectionLost 可恢复的网络错误，进入 Reconnecting
	ErrConnectionLost = errors.New("slot: connection lost")
	// ErrRetriesExhausted 连续失败超过上限，进入 Failed
	ErrRetriesExhausted = errors.New("slot: retries exhausted")
	// ErrBindSuperseded Bind 等待目录期间连接位被解绑、拆除或重新绑定
	ErrBindSuperseded = errors.New("slot: bind superseded")
	ErrEmptyCameraID  = errors.New("slot: empty camera id")
)

// Kind 错误类别，用于指标标签与界面提示
type Kind string

const (
	KindNone              Kind = ""
	KindUnauthenticated   Kind = "unauthenticated"
	KindForbidden         Kind = "forbidden"
	KindCameraUnavailable Kind = "camera_unavailable"
	KindConnectionLost    Kind = "connection_lost"
	KindRetriesExhausted  Kind = "retries_exhausted"
	KindOther             Kind = "other"
)

// KindOf 错误归类
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrRetriesExhausted):
		return KindRetriesExhausted
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrCameraUnavailable):
		return KindCameraUnavailable
	case errors.Is(err, ErrConnectionLost):
		return KindConnectionLost
	default:
		return KindOther
	}
}
