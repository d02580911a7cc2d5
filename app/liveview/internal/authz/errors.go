package authz

import "github.com/cockroachdb/errors"

var (
	// ErrUnauthenticated 没有缓存的角色，调用方应跳转登录
	ErrUnauthenticated = errors.New("authz: unauthenticated")
	// ErrForbidden 角色等级不足，页面内提示即可
	ErrForbidden = errors.New("authz: forbidden")

	ErrUnknownRole        = errors.New("authz: unknown role")
	ErrUnknownTransport   = errors.New("authz: unknown credential transport")
	ErrTransportMismatch  = errors.New("authz: descriptor transport does not match strategy")
	ErrMissingBearerToken = errors.New("authz: header-token descriptor without token")
)
