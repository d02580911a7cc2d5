package prometheus

import (
	"time"

	"github.com/cockroachdb/errors"
)

// Config Prometheus 配置
type Config struct {
	// Namespace 指标前缀
	Namespace string `mapstructure:"namespace" json:"namespace" yaml:"namespace"`

	HTTPServer HTTPServerConfig `mapstructure:"http_server" json:"http_server" yaml:"http_server"`

	EnableGoCollector      bool `mapstructure:"enable_go_collector" json:"enable_go_collector" yaml:"enable_go_collector"`
	EnableProcessCollector bool `mapstructure:"enable_process_collector" json:"enable_process_collector" yaml:"enable_process_collector"`
}

// HTTPServerConfig 指标 HTTP 服务配置
type HTTPServerConfig struct {
	Enabled bool          `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Addr    string        `mapstructure:"addr" json:"addr" yaml:"addr"`
	Path    string        `mapstructure:"path" json:"path" yaml:"path"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Namespace: "faceview",
		HTTPServer: HTTPServerConfig{
			Addr:    ":9090",
			Path:    "/metrics",
			Timeout: 10 * time.Second,
		},
		EnableGoCollector:      true,
		EnableProcessCollector: true,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Namespace == "" {
		return errors.Wrap(ErrInvalidConfig, "namespace is required")
	}
	if c.HTTPServer.Enabled && c.HTTPServer.Addr == "" {
		return errors.Wrap(ErrInvalidConfig, "http_server.addr is required")
	}
	if c.HTTPServer.Path == "" {
		c.HTTPServer.Path = "/metrics"
	}
	if c.HTTPServer.Timeout <= 0 {
		c.HTTPServer.Timeout = 10 * time.Second
	}
	return nil
}
