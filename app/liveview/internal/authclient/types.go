package authclient

// loginResponse /auth/token 响应
// 当前后端只返回 status/role，早期版本在 body 中返回 access_token
type loginResponse struct {
	Status      string `json:"status"`
	Role        string `json:"role"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// User /auth/me 响应
type User struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}

// CookieName 后端写入令牌的 cookie 名
const CookieName = "access_token"
