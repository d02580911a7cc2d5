package authz

import "time"

// SessionDescriptor 一次登录得到的会话描述，创建后不再修改，登录/登出时整体替换
type SessionDescriptor struct {
	Role      Role      `json:"role"`
	IssuedVia Transport `json:"issued_via"`
	Username  string    `json:"username,omitempty"`
	// Token 仅 header-token 模式持有
	Token    string    `json:"-"`
	IssuedAt time.Time `json:"issued_at"`
}

func (d SessionDescriptor) validate() error {
	if !d.Role.Valid() {
		return ErrUnknownRole
	}
	if d.IssuedVia == TransportHeaderToken && d.Token == "" {
		return ErrMissingBearerToken
	}
	return nil
}
