package session

import (
	"github.com/cockroachdb/errors"
)

// Config 会话配置
type Config struct {
	Layout Layout `mapstructure:"layout"`
	// PoolSize 拨号与读循环共享的协程池大小
	PoolSize int `mapstructure:"pool_size"`
	// Cameras 启动时按顺序分配到显示位的摄像头
	Cameras []string `mapstructure:"cameras"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Layout:   LayoutSingle,
		PoolSize: 16,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Layout.Capacity() == 0 {
		return errors.Wrapf(ErrInvalidLayout, "%q", c.Layout)
	}
	// 布局可随时切换到四分屏
	if c.PoolSize < LayoutQuad.Capacity() {
		return errors.Newf("session: pool_size must be at least %d, got %d", LayoutQuad.Capacity(), c.PoolSize)
	}
	if len(c.Cameras) > LayoutQuad.Capacity() {
		return errors.Newf("session: at most %d cameras, got %d", LayoutQuad.Capacity(), len(c.Cameras))
	}
	seen := make(map[string]struct{}, len(c.Cameras))
	for _, id := range c.Cameras {
		if _, dup := seen[id]; dup {
			return errors.Wrapf(ErrDuplicateBinding, "camera %s listed twice", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
