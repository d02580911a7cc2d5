package rest

import (
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
)

// Config REST 客户端配置
type Config struct {
	// BaseURL 后端地址，如 http://127.0.0.1:8000
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout"`
	// UserAgent 可选
	UserAgent string `mapstructure:"user_agent"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Timeout:   10 * time.Second,
		UserAgent: "faceview-liveview",
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.Wrap(ErrInvalidConfig, "base_url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return errors.Wrapf(ErrInvalidConfig, "base_url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Wrapf(ErrInvalidConfig, "base_url scheme %q", u.Scheme)
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return nil
}
