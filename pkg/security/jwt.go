package security

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-viper/mapstructure/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lk2023060901/faceview/pkg/config"
)

// JWTConfig 访问令牌配置
type JWTConfig struct {
	// SecretKey 为空时只解码不验签，客户端通常拿不到服务端密钥
	SecretKey string `mapstructure:"secret_key" json:"-"`

	// Algorithm 签名算法，仅支持 HMAC 系列（默认 HS256）
	Algorithm string `mapstructure:"algorithm" json:"algorithm" validate:"omitempty,oneof=HS256 HS384 HS512"`

	// ExpiresIn 签发时的默认有效期
	ExpiresIn time.Duration `mapstructure:"expires_in" json:"expires_in"`

	// Leeway 校验 exp/nbf 时允许的时钟偏差
	Leeway time.Duration `mapstructure:"leeway" json:"leeway"`

	// TokenPrefix Authorization 头前缀（默认 "Bearer "）
	TokenPrefix string `mapstructure:"token_prefix" json:"token_prefix"`
}

// DefaultJWTConfig 返回默认配置，与仪表盘后端一致：HS256、60 分钟
func DefaultJWTConfig() *JWTConfig {
	return &JWTConfig{
		Algorithm:   "HS256",
		ExpiresIn:   60 * time.Minute,
		Leeway:      30 * time.Second,
		TokenPrefix: "Bearer ",
	}
}

// Identity 令牌中的身份信息
type Identity struct {
	Subject   string    `mapstructure:"sub"`
	Role      string    `mapstructure:"role"`
	ExpiresAt time.Time `mapstructure:"-"`
}

// JWTManager 访问令牌的解码与签发
type JWTManager struct {
	config *JWTConfig
	now    func() time.Time
}

// NewJWTManager 创建 JWT 管理器
func NewJWTManager(cfg *JWTConfig) (*JWTManager, error) {
	merged, err := config.MergeConfig(DefaultJWTConfig(), cfg)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(strings.ToUpper(merged.Algorithm), "HS") {
		return nil, errors.Wrapf(ErrAlgorithmInvalid, "%s", merged.Algorithm)
	}
	return &JWTManager{config: merged, now: time.Now}, nil
}

// Parse 解析令牌并取出身份
// 配置了密钥时验签，否则只校验结构与有效期
func (m *JWTManager) Parse(tokenString string) (*Identity, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, m.config.TokenPrefix))
	if tokenString == "" {
		return nil, ErrTokenMissing
	}

	claims := jwt.MapClaims{}
	if m.config.SecretKey != "" {
		_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
			if t.Method.Alg() != m.config.Algorithm {
				return nil, ErrAlgorithmMismatch
			}
			return []byte(m.config.SecretKey), nil
		}, jwt.WithLeeway(m.config.Leeway), jwt.WithExpirationRequired(), jwt.WithTimeFunc(m.now))
		if err != nil {
			return nil, wrapJWTError(err)
		}
	} else {
		if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
			return nil, wrapJWTError(err)
		}
		if err := m.checkExpiry(claims); err != nil {
			return nil, err
		}
	}

	var id Identity
	if err := mapstructure.Decode(map[string]any(claims), &id); err != nil {
		return nil, errors.Wrap(ErrTokenMalformed, err.Error())
	}
	if id.Subject == "" || id.Role == "" {
		return nil, errors.Wrap(ErrTokenInvalid, "sub and role are required")
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}
	return &id, nil
}

// Sign 签发令牌，ttl<=0 时使用配置的有效期
func (m *JWTManager) Sign(id Identity, ttl time.Duration) (string, error) {
	if m.config.SecretKey == "" {
		return "", ErrSecretKeyEmpty
	}
	if ttl <= 0 {
		ttl = m.config.ExpiresIn
	}
	now := m.now()
	claims := jwt.MapClaims{
		"sub":  id.Subject,
		"role": id.Role,
		"iat":  jwt.NewNumericDate(now),
		"exp":  jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.GetSigningMethod(m.config.Algorithm), claims)
	return token.SignedString([]byte(m.config.SecretKey))
}

// checkExpiry 未验签时单独校验 exp
func (m *JWTManager) checkExpiry(claims jwt.MapClaims) error {
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return ErrTokenMalformed
	}
	if exp == nil {
		return errors.Wrap(ErrTokenInvalid, "exp is required")
	}
	if m.now().After(exp.Add(m.config.Leeway)) {
		return ErrTokenExpired
	}
	return nil
}

func wrapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrTokenNotValidYet
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, ErrAlgorithmMismatch):
		return ErrSignatureInvalid
	default:
		return errors.Wrap(ErrTokenInvalid, err.Error())
	}
}
