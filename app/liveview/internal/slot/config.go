package slot

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/faceview/app/liveview/internal/authz"
	"github.com/lk2023060901/faceview/pkg/websocket"
)

// Config 连接位配置
type Config struct {
	// ConnectTimeout 单次拨号从发起到握手完成的上限
	ConnectTimeout time.Duration             `mapstructure:"connect_timeout"`
	Reconnect      websocket.ReconnectConfig `mapstructure:"reconnect"`
	// DecodeBase64 文本帧按 base64 解码后再写入帧缓冲
	DecodeBase64 bool `mapstructure:"decode_base64"`
	// RequiredRole 观看实时画面所需的最低角色
	RequiredRole authz.Role `mapstructure:"required_role"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		ConnectTimeout: 10 * time.Second,
		Reconnect:      websocket.DefaultReconnectConfig(),
		DecodeBase64:   true,
		RequiredRole:   authz.RoleAdmin,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.ConnectTimeout <= 0 {
		return errors.New("slot: connect_timeout must be positive")
	}
	if c.Reconnect.BackoffUnit <= 0 {
		return errors.New("slot: reconnect.backoff_unit must be positive")
	}
	if c.Reconnect.MaxBackoff < c.Reconnect.BackoffUnit {
		return errors.New("slot: reconnect.max_backoff must not be below backoff_unit")
	}
	if !c.RequiredRole.Valid() {
		return errors.Wrapf(authz.ErrUnknownRole, "required_role %q", c.RequiredRole)
	}
	return nil
}
