package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/faceview/app/liveview/internal/authz"
	"github.com/lk2023060901/faceview/pkg/config"
	"github.com/lk2023060901/faceview/pkg/logger"
)

// maxErrorBody 错误响应最多读取的字节数
const maxErrorBody = 4 << 10

// Request 单次调用描述
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Form 非空时以 application/x-www-form-urlencoded 提交
	Form url.Values
	// Out 非空时解码 JSON 响应
	Out interface{}
	// Anonymous 登录请求：401 表示密码错误而非会话失效，不触发吊销
	Anonymous bool
}

// Response 调用结果中调用方可能关心的部分
type Response struct {
	StatusCode int
	Header     http.Header
	Cookies    []*http.Cookie
}

// Client 后端 REST 客户端
// 所有请求经 authz.Context 附加凭据，401 统一吊销会话
type Client struct {
	config *Config
	base   *url.URL
	auth   *authz.Context
	logger logger.Logger

	// credentialed 带 cookie jar，plain 不带，二者共享 Transport
	credentialed *http.Client
	plain        *http.Client
	jar          http.CookieJar
}

// Option 客户端选项
type Option func(*Client)

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithCookieJar 设置 cookie jar，ambient-cookie 模式必须提供
func WithCookieJar(jar http.CookieJar) Option {
	return func(c *Client) { c.jar = jar }
}

// WithTransport 替换底层 RoundTripper
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.plain.Transport = rt }
}

// New 创建客户端
func New(cfg *Config, auth *authz.Context, opts ...Option) (*Client, error) {
	newCfg, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}
	if err := newCfg.Validate(); err != nil {
		return nil, err
	}
	base, err := url.Parse(strings.TrimRight(newCfg.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(ErrInvalidConfig, err.Error())
	}

	c := &Client{
		config: newCfg,
		base:   base,
		auth:   auth,
		logger: logger.NewNoop(),
		plain:  &http.Client{Timeout: newCfg.Timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.credentialed = &http.Client{
		Timeout:   newCfg.Timeout,
		Transport: c.plain.Transport,
		Jar:       c.jar,
	}
	return c, nil
}

// BaseURL 后端地址副本
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// Jar 共享的 cookie jar，WebSocket 拨号器复用
func (c *Client) Jar() http.CookieJar { return c.jar }

// Auth 授权上下文
func (c *Client) Auth() *authz.Context { return c.auth }

// Get GET 并解码 JSON
func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	_, err := c.Do(ctx, Request{Method: http.MethodGet, Path: path, Out: out})
	return err
}

// Post 无请求体 POST
func (c *Client) Post(ctx context.Context, path string, out interface{}) error {
	_, err := c.Do(ctx, Request{Method: http.MethodPost, Path: path, Out: out})
	return err
}

// Do 执行请求
func (c *Client) Do(ctx context.Context, r Request) (*Response, error) {
	u := c.base.JoinPath(r.Path)
	if len(r.Query) > 0 {
		u.RawQuery = r.Query.Encode()
	}

	header := make(http.Header)
	header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		header.Set("User-Agent", c.config.UserAgent)
	}

	out := c.auth.AttachCredential(authz.OutgoingRequest{Kind: authz.KindHTTP, URL: u, Header: header})

	var body io.Reader
	if r.Form != nil {
		body = strings.NewReader(r.Form.Encode())
		out.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, out.URL.String(), body)
	if err != nil {
		return nil, errors.Wrap(ErrRequestFailed, err.Error())
	}
	req.Header = out.Header

	hc := c.plain
	if out.Credentialed {
		hc = c.credentialed
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, errors.Wrapf(ErrRequestFailed, "%s %s: %v", r.Method, r.Path, err)
	}
	defer resp.Body.Close()

	result := &Response{StatusCode: resp.StatusCode, Header: resp.Header, Cookies: resp.Cookies()}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		detail := readDetail(resp.Body)
		if !r.Anonymous {
			c.logger.Warn("request unauthorized, revoking session", "method", r.Method, "path", r.Path, "detail", detail)
			c.auth.OnCredentialRevoked()
		}
		return result, errors.WithDetail(authz.ErrUnauthenticated, detail)
	case resp.StatusCode == http.StatusForbidden:
		detail := readDetail(resp.Body)
		return result, errors.WithDetail(authz.ErrForbidden, detail)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return result, &StatusError{
			Method:     r.Method,
			Path:       r.Path,
			StatusCode: resp.StatusCode,
			Detail:     readDetail(resp.Body),
		}
	}

	if r.Out != nil {
		if err := json.NewDecoder(resp.Body).Decode(r.Out); err != nil {
			return result, errors.Wrapf(ErrResponseInvalid, "%s %s: %v", r.Method, r.Path, err)
		}
	}
	return result, nil
}

// readDetail 读取 FastAPI 风格的 {"detail": "..."}，非 JSON 时返回原文
func readDetail(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && len(payload.Detail) > 0 {
		var s string
		if json.Unmarshal(payload.Detail, &s) == nil {
			return s
		}
		return string(payload.Detail)
	}
	return strings.TrimSpace(string(raw))
}
