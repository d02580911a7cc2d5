package main

import (
	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/faceview/app/liveview/internal/authz"
	"github.com/lk2023060901/faceview/app/liveview/internal/catalog"
	"github.com/lk2023060901/faceview/app/liveview/internal/rest"
	"github.com/lk2023060901/faceview/app/liveview/internal/revalidate"
	"github.com/lk2023060901/faceview/app/liveview/internal/session"
	"github.com/lk2023060901/faceview/app/liveview/internal/slot"
	"github.com/lk2023060901/faceview/pkg/config"
	"github.com/lk2023060901/faceview/pkg/logger"
	"github.com/lk2023060901/faceview/pkg/prometheus"
	"github.com/lk2023060901/faceview/pkg/security"
	"github.com/lk2023060901/faceview/pkg/sentry"
	"github.com/lk2023060901/faceview/pkg/websocket"
)

// Config 实时画面客户端的完整配置
type Config struct {
	Log     logger.Config             `mapstructure:"log"`
	Loggers map[string]*logger.Config `mapstructure:"loggers"`

	// Server 仪表盘后端 REST 地址
	Server rest.Config `mapstructure:"server"`

	Auth AuthConfig `mapstructure:"auth"`

	Stream StreamConfig `mapstructure:"stream"`

	// Catalog 摄像头目录与推流地址
	Catalog catalog.Config `mapstructure:"catalog"`

	Session session.Config `mapstructure:"session"`

	Revalidate revalidate.Config `mapstructure:"revalidate"`

	Metrics prometheus.Config `mapstructure:"metrics"`

	Sentry sentry.Config `mapstructure:"sentry"`
}

// AuthConfig 登录配置
// Token 非空时跳过登录直接使用该令牌，仅适用于 header-token
type AuthConfig struct {
	Transport authz.Transport    `mapstructure:"transport"`
	Username  string             `mapstructure:"username"`
	Password  string             `mapstructure:"password"`
	Token     string             `mapstructure:"token"`
	JWT       security.JWTConfig `mapstructure:"jwt"`
}

// StreamConfig 推流连接配置
type StreamConfig struct {
	slot.Config `mapstructure:",squash"`
	WebSocket   websocket.DialerConfig `mapstructure:"websocket"`
}

// applyDefaults 合并各组件默认值，之后再做结构体校验
func (c *Config) applyDefaults() error {
	steps := []func() error{
		func() error { return mergeInto(logger.DefaultConfig(), &c.Log) },
		func() error { return mergeInto(rest.DefaultConfig(), &c.Server) },
		func() error { return mergeInto(slot.DefaultConfig(), &c.Stream.Config) },
		func() error { return mergeInto(websocket.DefaultDialerConfig(), &c.Stream.WebSocket) },
		func() error { return mergeInto(catalog.DefaultConfig(), &c.Catalog) },
		func() error { return mergeInto(session.DefaultConfig(), &c.Session) },
		func() error { return mergeInto(revalidate.DefaultConfig(), &c.Revalidate) },
		func() error { return mergeInto(prometheus.DefaultConfig(), &c.Metrics) },
		func() error { return mergeInto(sentry.DefaultConfig(), &c.Sentry) },
		func() error { return mergeInto(security.DefaultJWTConfig(), &c.Auth.JWT) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	if c.Auth.Transport == "" {
		c.Auth.Transport = authz.TransportAmbientCookie
	}
	return nil
}

// mergeInto 以 defaults 为底合并 target，结果写回 target
func mergeInto[T any](defaults, target *T) error {
	merged, err := config.MergeConfig(defaults, target)
	if err != nil {
		return err
	}
	*target = *merged
	return nil
}

// validate 组件自身的校验加上结构体 tag 校验
func (c *Config) validate() error {
	v, err := config.NewValidator()
	if err != nil {
		return err
	}
	if err := v.Validate(c); err != nil {
		return err
	}

	checks := []func() error{
		c.Log.Validate,
		c.Server.Validate,
		c.Stream.Config.Validate,
		c.Stream.WebSocket.Validate,
		c.Catalog.Validate,
		c.Session.Validate,
		c.Metrics.Validate,
		c.Sentry.Validate,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}

	if _, err := authz.ParseTransport(string(c.Auth.Transport)); err != nil {
		return err
	}
	if c.Auth.Token != "" {
		if c.Auth.Transport != authz.TransportHeaderToken {
			return errors.New("auth.token requires auth.transport=header-token")
		}
		return nil
	}
	if c.Auth.Username == "" || c.Auth.Password == "" {
		return errors.New("auth.username and auth.password are required without auth.token")
	}
	return nil
}
