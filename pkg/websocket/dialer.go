// pkg/websocket/dialer.go
package websocket

import (
	"context"
	"net/http"
	"net/url"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"github.com/lk2023060901/faceview/pkg/logger"
)

// DialRequest 一次拨号请求
type DialRequest struct {
	URL    string
	Header http.Header
	// WithCookies 为 true 时握手附带 cookie jar 中的会话 cookie
	WithCookies bool
}

// Dialer 建立 WebSocket 连接
type Dialer interface {
	Dial(ctx context.Context, req DialRequest) (Conn, error)
}

// GorillaDialer 基于 gorilla/websocket 的 Dialer
type GorillaDialer struct {
	config *DialerConfig
	base   websocket.Dialer
	jar    http.CookieJar
	logger logger.Logger
}

// DialerOption 拨号器选项
type DialerOption func(*GorillaDialer)

// WithCookieJar 设置 cookie jar，仅对 WithCookies 请求生效
func WithCookieJar(jar http.CookieJar) DialerOption {
	return func(d *GorillaDialer) { d.jar = jar }
}

// WithDialerLogger 设置日志
func WithDialerLogger(l logger.Logger) DialerOption {
	return func(d *GorillaDialer) { d.logger = l }
}

// NewDialer 创建拨号器
func NewDialer(cfg *DialerConfig, opts ...DialerOption) (*GorillaDialer, error) {
	if cfg == nil {
		cfg = DefaultDialerConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &GorillaDialer{
		config: cfg,
		base: websocket.Dialer{
			Proxy:             http.ProxyFromEnvironment,
			HandshakeTimeout:  cfg.HandshakeTimeout,
			ReadBufferSize:    cfg.ReadBufferSize,
			WriteBufferSize:   cfg.WriteBufferSize,
			EnableCompression: cfg.EnableCompression,
		},
		logger: logger.NewNoop(),
	}

	tlsConfig, err := cfg.TLS.BuildTLSConfig()
	if err != nil {
		return nil, err
	}
	d.base.TLSClientConfig = tlsConfig

	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dial 建立连接
// 握手被拒绝时返回 *HandshakeError，ctx 超时返回 ErrConnectTimeout
func (d *GorillaDialer) Dial(ctx context.Context, req DialRequest) (Conn, error) {
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return nil, errors.Wrapf(ErrInvalidURL, "%q", req.URL)
	}

	header := make(http.Header, len(d.config.Headers)+len(req.Header))
	for k, v := range d.config.Headers {
		header.Set(k, v)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			header.Add(k, v)
		}
	}

	dialer := d.base
	if req.WithCookies {
		dialer.Jar = d.jar
	}

	ws, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, &HandshakeError{StatusCode: resp.StatusCode, Status: resp.Status, Err: err}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return nil, errors.Wrapf(ErrConnectTimeout, "dial %s", u.Redacted())
			}
			return nil, errors.Wrapf(ctxErr, "dial %s", u.Redacted())
		}
		return nil, errors.Wrapf(err, "dial %s", u.Redacted())
	}

	if d.config.MaxMessageSize > 0 {
		ws.SetReadLimit(d.config.MaxMessageSize)
	}

	c := newConn(ws, d.config.ReadTimeout)
	d.logger.Debug("websocket connected", "conn_id", c.ID(), "remote", c.RemoteAddr())
	return c, nil
}
