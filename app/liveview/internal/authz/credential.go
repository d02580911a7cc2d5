package authz

import (
	"net/http"
	"net/url"
)

// RequestKind 出站请求类型
type RequestKind int

const (
	KindHTTP RequestKind = iota
	KindSocket
)

// OutgoingRequest 附加凭据前后的出站请求
type OutgoingRequest struct {
	Kind   RequestKind
	URL    *url.URL
	Header http.Header
	// Credentialed 传输层需要携带 cookie jar
	Credentialed bool
}

// clone 深拷贝 URL 与 Header，AttachCredential 不修改调用方的值
func (r OutgoingRequest) clone() OutgoingRequest {
	out := r
	if r.URL != nil {
		u := *r.URL
		out.URL = &u
	}
	out.Header = r.Header.Clone()
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	return out
}

// CredentialStrategy 凭据附加策略，构造 Context 时选定
type CredentialStrategy interface {
	Transport() Transport
	// Attach desc 为 nil 表示未登录
	Attach(req OutgoingRequest, desc *SessionDescriptor) OutgoingRequest
}

// NewStrategy 按传递方式创建策略
func NewStrategy(t Transport) (CredentialStrategy, error) {
	switch t {
	case TransportHeaderToken:
		return HeaderTokenStrategy{}, nil
	case TransportAmbientCookie:
		return AmbientCookieStrategy{}, nil
	default:
		return nil, ErrUnknownTransport
	}
}

// HeaderTokenStrategy 早期方案：HTTP 加 Authorization 头，WebSocket 握手加 token 查询参数
type HeaderTokenStrategy struct{}

func (HeaderTokenStrategy) Transport() Transport { return TransportHeaderToken }

func (HeaderTokenStrategy) Attach(req OutgoingRequest, desc *SessionDescriptor) OutgoingRequest {
	out := req.clone()
	if desc == nil || desc.Token == "" {
		return out
	}
	switch out.Kind {
	case KindSocket:
		if out.URL != nil {
			q := out.URL.Query()
			q.Set("token", desc.Token)
			out.URL.RawQuery = q.Encode()
		}
	default:
		out.Header.Set("Authorization", "Bearer "+desc.Token)
	}
	return out
}

// AmbientCookieStrategy 当前方案：令牌在 httpOnly cookie 中，只需标记请求携带 cookie
type AmbientCookieStrategy struct{}

func (AmbientCookieStrategy) Transport() Transport { return TransportAmbientCookie }

func (AmbientCookieStrategy) Attach(req OutgoingRequest, _ *SessionDescriptor) OutgoingRequest {
	out := req.clone()
	out.Credentialed = true
	return out
}
