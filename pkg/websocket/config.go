// pkg/websocket/config.go
package websocket

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"time"

	"github.com/cockroachdb/errors"
)

// ================================
// TLS 配置
// ================================

// TLSConfig 客户端 TLS 配置，连接 wss:// 时使用
type TLSConfig struct {
	// CAFile 自签名部署时的根证书
	CAFile string `mapstructure:"ca_file" json:"ca_file,omitempty" yaml:"ca_file,omitempty"`
	// ServerName 覆盖 SNI
	ServerName string `mapstructure:"server_name" json:"server_name,omitempty" yaml:"server_name,omitempty"`
	// InsecureSkipVerify 是否跳过证书验证（仅用于测试）
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify" json:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	// MinVersion TLS 最低版本 ("1.2" 或 "1.3")
	MinVersion string `mapstructure:"min_version" json:"min_version" yaml:"min_version" validate:"omitempty,oneof=1.2 1.3"`
}

// BuildTLSConfig 构建 tls.Config，nil 配置返回 nil
func (c *TLSConfig) BuildTLSConfig() (*tls.Config, error) {
	if c == nil {
		return nil, nil
	}

	tlsConfig := &tls.Config{
		ServerName:         c.ServerName,
		InsecureSkipVerify: c.InsecureSkipVerify,
	}

	switch c.MinVersion {
	case "1.3":
		tlsConfig.MinVersion = tls.VersionTLS13
	case "1.2", "":
		tlsConfig.MinVersion = tls.VersionTLS12
	default:
		return nil, errors.Wrapf(ErrTLSConfigInvalid, "invalid min_version %s", c.MinVersion)
	}

	if c.CAFile != "" {
		pem, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, errors.Wrapf(ErrTLSConfigInvalid, "read ca_file: %v", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.Wrapf(ErrTLSConfigInvalid, "no certificates in %s", c.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}

// ================================
// 重连配置
// ================================

// ReconnectConfig 重连策略：线性退避并封顶
// 第 n 次重试前等待 min(n*BackoffUnit, MaxBackoff)
type ReconnectConfig struct {
	// MaxRetries 连续失败次数上限，超过即放弃；负数表示不限
	MaxRetries int `mapstructure:"max_retries" json:"max_retries" yaml:"max_retries" validate:"gte=-1"`
	// BackoffUnit 每次重试递增的等待时间
	BackoffUnit time.Duration `mapstructure:"backoff_unit" json:"backoff_unit" yaml:"backoff_unit" validate:"gt=0"`
	// MaxBackoff 等待时间上限
	MaxBackoff time.Duration `mapstructure:"max_backoff" json:"max_backoff" yaml:"max_backoff" validate:"gtefield=BackoffUnit"`
}

// DefaultReconnectConfig 返回默认重连配置
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxRetries:  5,
		BackoffUnit: 2 * time.Second,
		MaxBackoff:  10 * time.Second,
	}
}

// Delay 第 retry 次重试前的等待时间
func (c ReconnectConfig) Delay(retry int) time.Duration {
	if retry <= 0 || c.BackoffUnit <= 0 {
		return 0
	}
	// 先比较次数再相乘，避免 retry*unit 溢出
	if c.MaxBackoff > 0 && retry > int(c.MaxBackoff/c.BackoffUnit) {
		return c.MaxBackoff
	}
	return time.Duration(retry) * c.BackoffUnit
}

// Exhausted 连续失败 retry 次后是否应放弃
func (c ReconnectConfig) Exhausted(retry int) bool {
	return c.MaxRetries >= 0 && retry > c.MaxRetries
}

// ================================
// 拨号配置
// ================================

// DialerConfig 客户端拨号配置
type DialerConfig struct {
	// HandshakeTimeout 握手超时，作为单次连接的上限
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" json:"handshake_timeout" yaml:"handshake_timeout"`
	// ReadTimeout 两帧之间允许的最长间隔，超时视为连接中断；0 表示不检测
	ReadTimeout time.Duration `mapstructure:"read_timeout" json:"read_timeout" yaml:"read_timeout"`

	ReadBufferSize  int   `mapstructure:"read_buffer_size" json:"read_buffer_size" yaml:"read_buffer_size"`
	WriteBufferSize int   `mapstructure:"write_buffer_size" json:"write_buffer_size" yaml:"write_buffer_size"`
	MaxMessageSize  int64 `mapstructure:"max_message_size" json:"max_message_size" yaml:"max_message_size"`

	EnableCompression bool `mapstructure:"enable_compression" json:"enable_compression" yaml:"enable_compression"`

	TLS *TLSConfig `mapstructure:"tls" json:"tls,omitempty" yaml:"tls,omitempty"`

	// Headers 每次握手附带的固定请求头，如 Origin
	Headers map[string]string `mapstructure:"headers" json:"headers,omitempty" yaml:"headers,omitempty"`
}

// DefaultDialerConfig 返回默认拨号配置
func DefaultDialerConfig() *DialerConfig {
	return &DialerConfig{
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      15 * time.Second,
		ReadBufferSize:   64 * 1024,
		WriteBufferSize:  4096,
		MaxMessageSize:   4 * 1024 * 1024, // base64 JPEG 单帧
	}
}

// Validate 验证并补齐默认值
func (c *DialerConfig) Validate() error {
	if c == nil {
		return ErrInvalidConfig
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = 64 * 1024
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = 4096
	}
	if c.ReadTimeout < 0 || c.MaxMessageSize < 0 {
		return errors.Wrap(ErrInvalidConfig, "negative read_timeout or max_message_size")
	}
	return nil
}
