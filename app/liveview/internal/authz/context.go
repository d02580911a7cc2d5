package authz

import (
	"sync"

	"github.com/lk2023060901/faceview/pkg/logger"
)

// Context 授权上下文，持有唯一的 SessionDescriptor
// 能力判断只依赖缓存的角色，与凭据如何传递无关
type Context struct {
	strategy CredentialStrategy
	logger   logger.Logger

	mu   sync.RWMutex
	desc *SessionDescriptor

	subsMu sync.Mutex
	subs   map[uint64]func()
	nextID uint64
}

// Option Context 选项
type Option func(*Context)

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(c *Context) { c.logger = l }
}

// NewContext 创建授权上下文
func NewContext(strategy CredentialStrategy, opts ...Option) *Context {
	c := &Context{
		strategy: strategy,
		logger:   logger.NewNoop(),
		subs:     make(map[uint64]func()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transport 当前策略的传递方式
func (c *Context) Transport() Transport {
	return c.strategy.Transport()
}

// Replace 登录成功后整体替换描述
func (c *Context) Replace(d SessionDescriptor) error {
	if err := d.validate(); err != nil {
		return err
	}
	if d.IssuedVia != c.strategy.Transport() {
		return ErrTransportMismatch
	}

	c.mu.Lock()
	prev := c.desc
	c.desc = &d
	c.mu.Unlock()

	if prev != nil && prev.Role != d.Role {
		c.logger.Info("role changed", "username", d.Username, "from", prev.Role, "to", d.Role)
	} else {
		c.logger.Debug("session descriptor replaced", "username", d.Username, "role", d.Role)
	}
	return nil
}

// Descriptor 当前描述的副本
func (c *Context) Descriptor() (SessionDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.desc == nil {
		return SessionDescriptor{}, false
	}
	return *c.desc, true
}

// GetRole 返回缓存角色，未登录返回 ErrUnauthenticated
func (c *Context) GetRole() (Role, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.desc == nil {
		return "", ErrUnauthenticated
	}
	return c.desc.Role, nil
}

// AtLeast 纯等级比较，不做 I/O，未登录返回 false
func (c *Context) AtLeast(required Role) bool {
	role, err := c.GetRole()
	if err != nil {
		return false
	}
	return Satisfies(role, required)
}

// Authorize 先要求已登录，再要求等级满足
func (c *Context) Authorize(required Role) error {
	if _, err := c.GetRole(); err != nil {
		return err
	}
	if !c.AtLeast(required) {
		return ErrForbidden
	}
	return nil
}

// AttachCredential 按策略为出站请求附加凭据
func (c *Context) AttachCredential(req OutgoingRequest) OutgoingRequest {
	c.mu.RLock()
	desc := c.desc
	c.mu.RUnlock()
	return c.strategy.Attach(req, desc)
}

// OnCredentialRevoked 清除描述并同步通知所有订阅者
// 登出或任一协作方收到 401 时调用，重复调用安全
func (c *Context) OnCredentialRevoked() {
	c.mu.Lock()
	prev := c.desc
	c.desc = nil
	c.mu.Unlock()

	if prev != nil {
		c.logger.Info("credential revoked", "username", prev.Username)
	}

	c.subsMu.Lock()
	listeners := make([]func(), 0, len(c.subs))
	for _, fn := range c.subs {
		listeners = append(listeners, fn)
	}
	c.subsMu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// Subscribe 订阅吊销事件，返回取消函数
func (c *Context) Subscribe(fn func()) (unsubscribe func()) {
	c.subsMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subsMu.Lock()
			delete(c.subs, id)
			c.subsMu.Unlock()
		})
	}
}
