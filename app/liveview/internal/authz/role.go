package authz

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Role 调用方角色
type Role string

const (
	RoleEmployee   Role = "employee"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Rank 角色等级，未知角色为 0
func (r Role) Rank() int {
	switch r {
	case RoleEmployee:
		return 1
	case RoleAdmin:
		return 2
	case RoleSuperAdmin:
		return 3
	default:
		return 0
	}
}

// Valid 是否为已知角色
func (r Role) Valid() bool { return r.Rank() > 0 }

func (r Role) String() string { return string(r) }

// ParseRole 解析后端返回的角色字符串，大小写不敏感
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", errors.Wrapf(ErrUnknownRole, "%q", s)
	}
	return r, nil
}

// UnmarshalText 供配置与 JSON 解码使用
func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Satisfies 纯等级比较，任一方未知都返回 false
func Satisfies(current, required Role) bool {
	if !current.Valid() || !required.Valid() {
		return false
	}
	return current.Rank() >= required.Rank()
}
