// pkg/websocket/errors.go
package websocket

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

var (
	ErrInvalidConfig     = errors.New("websocket: invalid config")
	ErrInvalidURL        = errors.New("websocket: invalid url")
	ErrConnectionClosed  = errors.New("websocket: connection closed")
	ErrConnectTimeout    = errors.New("websocket: connect timeout")
	ErrReadTimeout       = errors.New("websocket: read timeout")
	ErrTLSConfigInvalid  = errors.New("websocket: tls config invalid")
	ErrHandshakeRejected = errors.New("websocket: handshake rejected")
)

// HandshakeError 握手阶段服务端返回了非 101 响应
type HandshakeError struct {
	StatusCode int
	Status     string
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("websocket: handshake failed with status %d", e.StatusCode)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// Is 让 errors.Is(err, ErrHandshakeRejected) 成立
func (e *HandshakeError) Is(target error) bool { return target == ErrHandshakeRejected }

// Unauthorized 401，凭据失效
func (e *HandshakeError) Unauthorized() bool { return e.StatusCode == http.StatusUnauthorized }

// Forbidden 403，角色不足
func (e *HandshakeError) Forbidden() bool { return e.StatusCode == http.StatusForbidden }

// CloseError 对端发送了 close 帧
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("websocket: closed with code %d", e.Code)
	}
	return fmt.Sprintf("websocket: closed with code %d (%s)", e.Code, e.Reason)
}

// Normal 关闭码为 1000/1001
func (e *CloseError) Normal() bool {
	return e.Code == CloseNormalClosure || e.Code == CloseGoingAway
}

// AsCloseError 从错误链中取出 CloseError
func AsCloseError(err error) (*CloseError, bool) {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// AsHandshakeError 从错误链中取出 HandshakeError
func AsHandshakeError(err error) (*HandshakeError, bool) {
	var he *HandshakeError
	if errors.As(err, &he) {
		return he, true
	}
	return nil, false
}
