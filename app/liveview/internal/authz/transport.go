package authz

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Transport 凭据传递方式
type Transport string

const (
	// TransportHeaderToken 令牌由应用持有，HTTP 走 Authorization 头，WebSocket 走 token 查询参数
	TransportHeaderToken Transport = "header-token"
	// TransportAmbientCookie 令牌在 httpOnly cookie 中，应用代码不接触令牌
	TransportAmbientCookie Transport = "ambient-cookie"
)

// ParseTransport 解析传递方式
func ParseTransport(s string) (Transport, error) {
	switch t := Transport(strings.ToLower(strings.TrimSpace(s))); t {
	case TransportHeaderToken, TransportAmbientCookie:
		return t, nil
	default:
		return "", errors.Wrapf(ErrUnknownTransport, "%q", s)
	}
}

func (t *Transport) UnmarshalText(b []byte) error {
	parsed, err := ParseTransport(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Transport) String() string { return string(t) }
