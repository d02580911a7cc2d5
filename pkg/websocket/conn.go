// pkg/websocket/conn.go
package websocket

import (
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
)

// closeWriteWait 发送 close 帧的最长等待时间
const closeWriteWait = time.Second

// Conn 只读的客户端连接，服务端推帧、客户端不发业务消息
type Conn interface {
	ID() string
	RemoteAddr() string
	// ReadMessage 阻塞读取下一条消息
	// 对端关闭返回 *CloseError，超过读超时返回 ErrReadTimeout，本端已关闭返回 ErrConnectionClosed
	ReadMessage() (*Message, error)
	// Close 以 1000 正常关闭，可重复调用
	Close() error
}

type wsConn struct {
	id          string
	ws          *websocket.Conn
	readTimeout time.Duration
	remoteAddr  string

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func newConn(ws *websocket.Conn, readTimeout time.Duration) *wsConn {
	return &wsConn{
		id:          uuid.New().String(),
		ws:          ws,
		readTimeout: readTimeout,
		remoteAddr:  ws.RemoteAddr().String(),
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) RemoteAddr() string { return c.remoteAddr }

func (c *wsConn) ReadMessage() (*Message, error) {
	if c.closed.Load() {
		return nil, ErrConnectionClosed
	}
	if c.readTimeout > 0 {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.readTimeout))
	}

	mt, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, c.translate(err)
	}
	return &Message{Type: MessageType(mt), Data: data, ReceivedAt: time.Now()}, nil
}

func (c *wsConn) translate(err error) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return &CloseError{Code: ce.Code, Reason: ce.Text}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return errors.Wrapf(ErrReadTimeout, "no frame within %s", c.readTimeout)
	}
	return &CloseError{Code: CloseAbnormalClosure, Reason: err.Error()}
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		msg := websocket.FormatCloseMessage(CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
