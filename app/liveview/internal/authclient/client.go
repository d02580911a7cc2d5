package authclient

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/faceview/app/liveview/internal/authz"
	"github.com/lk2023060901/faceview/app/liveview/internal/rest"
	"github.com/lk2023060901/faceview/pkg/logger"
	"github.com/lk2023060901/faceview/pkg/security"
)

const (
	pathLogin  = "/auth/token"
	pathLogout = "/auth/logout"
	pathMe     = "/auth/me"
)

// Client 认证端点客户端
// 登录成功后替换 authz.Context 中的描述，登出与账号失效时吊销
type Client struct {
	rest   *rest.Client
	auth   *authz.Context
	tokens *security.JWTManager
	logger logger.Logger
	now    func() time.Time
}

// Option 选项
type Option func(*Client)

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithClock 替换时钟，测试使用
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New 创建认证客户端，tokens 用于解码 header-token 模式下的令牌
func New(rc *rest.Client, tokens *security.JWTManager, opts ...Option) *Client {
	c := &Client{
		rest:   rc,
		auth:   rc.Auth(),
		tokens: tokens,
		logger: logger.NewNoop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login 表单登录
func (c *Client) Login(ctx context.Context, username, password string) (authz.SessionDescriptor, error) {
	var body loginResponse
	resp, err := c.rest.Do(ctx, rest.Request{
		Method:    http.MethodPost,
		Path:      pathLogin,
		Form:      url.Values{"username": {username}, "password": {password}},
		Out:       &body,
		Anonymous: true,
	})
	if err != nil {
		if errors.Is(err, authz.ErrUnauthenticated) {
			return authz.SessionDescriptor{}, errors.Mark(err, ErrInvalidCredentials)
		}
		return authz.SessionDescriptor{}, errors.Wrap(err, "login")
	}

	desc := authz.SessionDescriptor{
		IssuedVia: c.auth.Transport(),
		Username:  username,
		IssuedAt:  c.now(),
	}

	if desc.IssuedVia == authz.TransportHeaderToken {
		token := body.AccessToken
		if token == "" {
			token = cookieValue(resp.Cookies, CookieName)
		}
		if token == "" {
			return authz.SessionDescriptor{}, ErrTokenUnavailable
		}
		id, err := c.tokens.Parse(token)
		if err != nil {
			return authz.SessionDescriptor{}, errors.Wrap(err, "decode access token")
		}
		if body.Role != "" && body.Role != id.Role {
			return authz.SessionDescriptor{}, errors.Wrapf(ErrRoleMismatch, "%s != %s", id.Role, body.Role)
		}
		body.Role = id.Role
		desc.Username = id.Subject
		desc.Token = token
	}

	role, err := authz.ParseRole(body.Role)
	if err != nil {
		return authz.SessionDescriptor{}, err
	}
	desc.Role = role

	if err := c.auth.Replace(desc); err != nil {
		return authz.SessionDescriptor{}, err
	}
	c.logger.Info("logged in", "username", desc.Username, "role", desc.Role, "transport", desc.IssuedVia)
	return desc, nil
}

// UseToken header-token 模式下直接使用已有令牌，不访问登录端点
func (c *Client) UseToken(token string) (authz.SessionDescriptor, error) {
	id, err := c.tokens.Parse(token)
	if err != nil {
		return authz.SessionDescriptor{}, err
	}
	role, err := authz.ParseRole(id.Role)
	if err != nil {
		return authz.SessionDescriptor{}, err
	}
	desc := authz.SessionDescriptor{
		Role:      role,
		IssuedVia: authz.TransportHeaderToken,
		Username:  id.Subject,
		Token:     token,
		IssuedAt:  c.now(),
	}
	if err := c.auth.Replace(desc); err != nil {
		return authz.SessionDescriptor{}, err
	}
	c.logger.Info("using preissued token", "username", desc.Username, "role", desc.Role, "expires_at", id.ExpiresAt)
	return desc, nil
}

// Logout 通知后端删除 cookie，本地无论成败都吊销
func (c *Client) Logout(ctx context.Context) error {
	defer c.auth.OnCredentialRevoked()
	if err := c.rest.Post(ctx, pathLogout, nil); err != nil {
		return errors.Wrap(err, "logout")
	}
	return nil
}

// Me 当前用户
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.rest.Get(ctx, pathMe, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Revalidate 向后端重新确认身份
// 角色变化时替换描述，账号停用时吊销；401 已在 rest 层吊销
func (c *Client) Revalidate(ctx context.Context) error {
	current, ok := c.auth.Descriptor()
	if !ok {
		return authz.ErrUnauthenticated
	}

	u, err := c.Me(ctx)
	if err != nil {
		return err
	}
	if !u.IsActive {
		c.logger.Warn("account inactive, revoking session", "username", u.Username)
		c.auth.OnCredentialRevoked()
		return ErrInactiveAccount
	}

	role, err := authz.ParseRole(u.Role)
	if err != nil {
		c.auth.OnCredentialRevoked()
		return err
	}
	if role == current.Role {
		return nil
	}

	next := current
	next.Role = role
	next.IssuedAt = c.now()
	return c.auth.Replace(next)
}

func cookieValue(cookies []*http.Cookie, name string) string {
	for _, ck := range cookies {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}
