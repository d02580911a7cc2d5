package catalog

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/faceview/app/liveview/internal/authz"
	"github.com/lk2023060901/faceview/app/liveview/internal/rest"
	"github.com/lk2023060901/faceview/pkg/config"
	"github.com/lk2023060901/faceview/pkg/logger"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const pathCameras = "/api/cameras"

type entry struct {
	cameras   []Camera
	fetchedAt time.Time
}

// Catalog 当前角色可见的摄像头目录
// 按角色缓存，并发刷新合并为一次请求，会话吊销时清空
type Catalog struct {
	config *Config
	rest   *rest.Client
	auth   *authz.Context
	wsBase *url.URL
	logger logger.Logger
	now    func() time.Time

	limiter *rate.Limiter
	group   singleflight.Group

	mu      sync.RWMutex
	entries map[authz.Role]entry

	unsubscribe func()
}

// Option 选项
type Option func(*Catalog)

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(c *Catalog) { c.logger = l }
}

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) { c.now = now }
}

// New 创建目录
func New(cfg *Config, rc *rest.Client, opts ...Option) (*Catalog, error) {
	newCfg, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}
	if err := newCfg.Validate(); err != nil {
		return nil, err
	}
	wsBase, err := newCfg.wsBase(rc.BaseURL())
	if err != nil {
		return nil, errors.Wrap(ErrInvalidConfig, err.Error())
	}

	c := &Catalog{
		config:  newCfg,
		rest:    rc,
		auth:    rc.Auth(),
		wsBase:  wsBase,
		logger:  logger.NewNoop(),
		now:     time.Now,
		limiter: rate.NewLimiter(rate.Limit(newCfg.RefreshRPS), newCfg.RefreshBurst),
		entries: make(map[authz.Role]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.unsubscribe = c.auth.Subscribe(c.Invalidate)
	return c, nil
}

// Close 取消吊销订阅
func (c *Catalog) Close() {
	c.unsubscribe()
}

// ListCameras 当前角色可见的摄像头
func (c *Catalog) ListCameras(ctx context.Context) ([]Camera, error) {
	role, err := c.auth.GetRole()
	if err != nil {
		return nil, err
	}
	if cams, ok := c.cached(role); ok {
		return cams, nil
	}
	return c.fetch(ctx, role)
}

// Refresh 忽略缓存重新拉取
func (c *Catalog) Refresh(ctx context.Context) ([]Camera, error) {
	role, err := c.auth.GetRole()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	delete(c.entries, role)
	c.mu.Unlock()
	return c.fetch(ctx, role)
}

// Invalidate 清空所有缓存
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[authz.Role]entry)
	c.mu.Unlock()
}

// Lookup 按 id 查找
func (c *Catalog) Lookup(ctx context.Context, cameraID string) (Camera, error) {
	cams, err := c.ListCameras(ctx)
	if err != nil {
		return Camera{}, err
	}
	if cam, ok := find(cams, cameraID); ok {
		return cam, nil
	}
	// 缓存可能早于摄像头上线，未命中时强制刷新一次
	cams, err = c.Refresh(ctx)
	if err != nil {
		return Camera{}, err
	}
	if cam, ok := find(cams, cameraID); ok {
		return cam, nil
	}
	return Camera{}, errors.Wrapf(ErrCameraUnavailable, "camera %s not found", cameraID)
}

// Resolve 查找摄像头并生成推流地址，不存在或已停用返回 ErrCameraUnavailable
func (c *Catalog) Resolve(ctx context.Context, cameraID string) (Endpoint, error) {
	cam, err := c.Lookup(ctx, cameraID)
	if err != nil {
		return Endpoint{}, err
	}
	if !cam.IsEnabled {
		return Endpoint{}, errors.Wrapf(ErrCameraUnavailable, "camera %s is disabled", cameraID)
	}
	return Endpoint{
		CameraID: cam.ID,
		URL:      feedURL(c.wsBase, c.config.VideoPath, cam.ID, c.config.ShowTripwires),
	}, nil
}

func (c *Catalog) cached(role authz.Role) ([]Camera, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[role]
	if !ok {
		return nil, false
	}
	if c.config.CacheTTL > 0 && c.now().Sub(e.fetchedAt) > c.config.CacheTTL {
		return nil, false
	}
	return append([]Camera(nil), e.cameras...), true
}

func (c *Catalog) fetch(ctx context.Context, role authz.Role) ([]Camera, error) {
	v, err, shared := c.group.Do(string(role), func() (interface{}, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "catalog refresh rate limited")
		}
		var cams []Camera
		if err := c.rest.Get(ctx, pathCameras, &cams); err != nil {
			return nil, err
		}
		// 吊销后返回的结果不再写入缓存
		if current, err := c.auth.GetRole(); err == nil && current == role {
			c.mu.Lock()
			c.entries[role] = entry{cameras: cams, fetchedAt: c.now()}
			c.mu.Unlock()
		}
		c.logger.Debug("camera list fetched", "role", role, "count", len(cams))
		return cams, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("camera list fetch shared", "role", role)
	}
	return v.([]Camera), nil
}

func find(cams []Camera, id string) (Camera, bool) {
	for _, cam := range cams {
		if cam.ID == id {
			return cam, true
		}
	}
	return Camera{}, false
}
