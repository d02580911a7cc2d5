package catalog

import (
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Config 摄像头目录配置
type Config struct {
	// WSBaseURL 推流服务地址，为空时由 REST 地址推导 (http→ws, https→wss)
	WSBaseURL     string `mapstructure:"ws_base_url"`
	VideoPath     string `mapstructure:"video_path"`
	ShowTripwires bool   `mapstructure:"show_tripwires"`

	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	// RefreshRPS 向后端拉取列表的速率上限
	RefreshRPS   float64 `mapstructure:"refresh_rps"`
	RefreshBurst int     `mapstructure:"refresh_burst"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		VideoPath:    "/ws/video_feed",
		CacheTTL:     30 * time.Second,
		RefreshRPS:   1,
		RefreshBurst: 2,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.WSBaseURL != "" {
		u, err := url.Parse(c.WSBaseURL)
		if err != nil {
			return errors.Wrapf(ErrInvalidConfig, "ws_base_url: %v", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return errors.Wrapf(ErrInvalidConfig, "ws_base_url scheme %q", u.Scheme)
		}
	}
	if !strings.HasPrefix(c.VideoPath, "/") {
		c.VideoPath = "/" + c.VideoPath
	}
	if c.CacheTTL < 0 {
		return errors.Wrap(ErrInvalidConfig, "cache_ttl must not be negative")
	}
	if c.RefreshRPS <= 0 {
		c.RefreshRPS = 1
	}
	if c.RefreshBurst <= 0 {
		c.RefreshBurst = 1
	}
	return nil
}

// wsBase 推流地址
func (c *Config) wsBase(restBase *url.URL) (*url.URL, error) {
	if c.WSBaseURL != "" {
		return url.Parse(strings.TrimRight(c.WSBaseURL, "/"))
	}
	u := *restBase
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return &u, nil
}
