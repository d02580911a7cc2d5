package authclient

import "github.com/cockroachdb/errors"

var (
	// ErrInvalidCredentials 用户名或密码错误
	ErrInvalidCredentials = errors.New("authclient: incorrect username or password")
	// ErrTokenUnavailable header-token 模式下登录响应中没有令牌
	ErrTokenUnavailable = errors.New("authclient: login response carries no token")
	// ErrInactiveAccount 账号已停用
	ErrInactiveAccount = errors.New("authclient: account is inactive")
	ErrRoleMismatch    = errors.New("authclient: token role differs from login response")
)
