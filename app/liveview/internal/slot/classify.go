package slot

import (
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/faceview/pkg/websocket"
)

// invalidCameraReason 后端对未知摄像头以 1011 关闭时的原因
const invalidCameraReason = "invalid camera id"

// outcome 一次连接失败的处理方式
type outcome struct {
	err    error
	fatal  bool
	revoke bool
	reason string
}

// classify 将拨号或读取错误映射为处理方式，纯函数
//   - 握手 401：会话失效，吊销
//   - 握手 403 / 关闭码 1008：权限不足，不重试
//   - 握手 404 / 1011 "Invalid camera ID"：摄像头不可用，不重试
//   - 非法地址：配置错误，不重试
//   - 其余：连接中断，按退避重试
func classify(err error) outcome {
	if he, ok := websocket.AsHandshakeError(err); ok {
		switch he.StatusCode {
		case http.StatusUnauthorized:
			return outcome{err: errors.Mark(err, ErrUnauthenticated), fatal: true, revoke: true, reason: "unauthorized"}
		case http.StatusForbidden:
			return outcome{err: errors.Mark(err, ErrForbidden), fatal: true, reason: "forbidden"}
		case http.StatusNotFound:
			return outcome{err: errors.Mark(err, ErrCameraUnavailable), fatal: true, reason: "not_found"}
		}
		return outcome{err: errors.Mark(err, ErrConnectionLost), reason: "handshake"}
	}

	if ce, ok := websocket.AsCloseError(err); ok {
		switch {
		case ce.Code == websocket.ClosePolicyViolation:
			return outcome{err: errors.Mark(err, ErrForbidden), fatal: true, reason: "policy_violation"}
		case ce.Code == websocket.CloseInternalError && strings.EqualFold(strings.TrimSpace(ce.Reason), invalidCameraReason):
			return outcome{err: errors.Mark(err, ErrCameraUnavailable), fatal: true, reason: "invalid_camera"}
		case ce.Code == websocket.CloseAbnormalClosure:
			return outcome{err: errors.Mark(err, ErrConnectionLost), reason: "abnormal"}
		case ce.Normal():
			// 推流不会主动结束，服务端正常关闭多为重启
			return outcome{err: errors.Mark(err, ErrConnectionLost), reason: "server_closed"}
		}
		return outcome{err: errors.Mark(err, ErrConnectionLost), reason: "closed"}
	}

	switch {
	case errors.Is(err, websocket.ErrInvalidURL):
		return outcome{err: err, fatal: true, reason: "invalid_url"}
	case errors.Is(err, websocket.ErrConnectTimeout):
		return outcome{err: errors.Mark(err, ErrConnectionLost), reason: "connect_timeout"}
	case errors.Is(err, websocket.ErrReadTimeout):
		return outcome{err: errors.Mark(err, ErrConnectionLost), reason: "read_timeout"}
	}
	return outcome{err: errors.Mark(err, ErrConnectionLost), reason: "error"}
}
