package rest

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/faceview/app/liveview/internal/authz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuth(t *testing.T, d authz.SessionDescriptor) *authz.Context {
	t.Helper()
	s, err := authz.NewStrategy(d.IssuedVia)
	require.NoError(t, err)
	c := authz.NewContext(s)
	require.NoError(t, c.Replace(d))
	return c
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"ok", Config{BaseURL: "http://127.0.0.1:8000"}, false},
		{"empty", Config{}, true},
		{"ws scheme", Config{BaseURL: "ws://host"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidConfig))
				return
			}
			require.NoError(t, err)
			assert.Positive(t, tt.cfg.Timeout)
		})
	}
}

func TestClientHeaderToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tkn", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/cameras", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1}]`))
	}))
	defer srv.Close()

	auth := newAuth(t, authz.SessionDescriptor{Role: authz.RoleAdmin, IssuedVia: authz.TransportHeaderToken, Token: "tkn"})
	c, err := New(&Config{BaseURL: srv.URL}, auth)
	require.NoError(t, err)

	var out []map[string]int
	require.NoError(t, c.Get(context.Background(), "/api/cameras", &out))
	assert.Equal(t, 1, out[0]["id"])
}

func TestClientAmbientCookie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("access_token")
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "cookie-token", ck.Value)
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"username":"alice"}`))
	}))
	defer srv.Close()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	u, _ := url.Parse(srv.URL)
	jar.SetCookies(u, []*http.Cookie{{Name: "access_token", Value: "cookie-token", Path: "/"}})

	auth := newAuth(t, authz.SessionDescriptor{Role: authz.RoleEmployee, IssuedVia: authz.TransportAmbientCookie})
	c, err := New(&Config{BaseURL: srv.URL}, auth, WithCookieJar(jar))
	require.NoError(t, err)

	var me struct {
		Username string `json:"username"`
	}
	require.NoError(t, c.Get(context.Background(), "/auth/me", &me))
	assert.Equal(t, "alice", me.Username)
}

func TestClientUnauthorizedRevokes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Could not validate credentials"}`))
	}))
	defer srv.Close()

	auth := newAuth(t, authz.SessionDescriptor{Role: authz.RoleAdmin, IssuedVia: authz.TransportHeaderToken, Token: "stale"})
	revoked := 0
	auth.Subscribe(func() { revoked++ })

	c, err := New(&Config{BaseURL: srv.URL}, auth)
	require.NoError(t, err)

	err = c.Get(context.Background(), "/api/cameras", nil)
	assert.True(t, errors.Is(err, authz.ErrUnauthenticated))
	assert.Equal(t, 1, revoked)
	_, err = auth.GetRole()
	assert.True(t, errors.Is(err, authz.ErrUnauthenticated))
}

func TestClientAnonymousUnauthorizedKeepsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	auth := newAuth(t, authz.SessionDescriptor{Role: authz.RoleAdmin, IssuedVia: authz.TransportAmbientCookie})
	c, err := New(&Config{BaseURL: srv.URL}, auth)
	require.NoError(t, err)

	_, err = c.Do(context.Background(), Request{
		Method:    http.MethodPost,
		Path:      "/auth/token",
		Form:      url.Values{"username": {"x"}, "password": {"y"}},
		Anonymous: true,
	})
	assert.True(t, errors.Is(err, authz.ErrUnauthenticated))
	assert.True(t, auth.AtLeast(authz.RoleAdmin))
}

func TestClientStatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "forbidden",
			status: http.StatusForbidden,
			body:   `{"detail":"Not enough permissions"}`,
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, authz.ErrForbidden))
			},
		},
		{
			name:   "not found",
			status: http.StatusNotFound,
			body:   `{"detail":"Camera not found"}`,
			check: func(t *testing.T, err error) {
				var se *StatusError
				require.True(t, errors.As(err, &se))
				assert.True(t, se.NotFound())
				assert.Equal(t, "Camera not found", se.Detail)
			},
		},
		{
			name:   "plain text",
			status: http.StatusInternalServerError,
			body:   "boom",
			check: func(t *testing.T, err error) {
				var se *StatusError
				require.True(t, errors.As(err, &se))
				assert.Equal(t, "boom", se.Detail)
			},
		},
		{
			name:   "bad json",
			status: http.StatusOK,
			body:   "{",
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, ErrResponseInvalid))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			auth := newAuth(t, authz.SessionDescriptor{Role: authz.RoleEmployee, IssuedVia: authz.TransportAmbientCookie})
			c, err := New(&Config{BaseURL: srv.URL}, auth)
			require.NoError(t, err)

			var out map[string]interface{}
			tt.check(t, c.Get(context.Background(), "/x", &out))
		})
	}
}
