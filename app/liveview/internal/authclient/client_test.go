package authclient

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/faceview/app/liveview/internal/authz"
	"github.com/lk2023060901/faceview/app/liveview/internal/feedtest"
	"github.com/lk2023060901/faceview/app/liveview/internal/rest"
	"github.com/lk2023060901/faceview/pkg/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, srv *feedtest.Server, transport authz.Transport) (*Client, *authz.Context) {
	t.Helper()
	strategy, err := authz.NewStrategy(transport)
	require.NoError(t, err)
	auth := authz.NewContext(strategy)

	jar, err := NewCookieJar()
	require.NoError(t, err)
	rc, err := rest.New(&rest.Config{BaseURL: srv.URL}, auth, rest.WithCookieJar(jar))
	require.NoError(t, err)

	tokens, err := security.NewJWTManager(nil)
	require.NoError(t, err)
	return New(rc, tokens), auth
}

func TestLoginAmbientCookie(t *testing.T) {
	srv := feedtest.New(t)
	srv.AddUser("alice", "pw", "admin")
	c, auth := newClient(t, srv, authz.TransportAmbientCookie)

	desc, err := c.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, authz.RoleAdmin, desc.Role)
	assert.Equal(t, authz.TransportAmbientCookie, desc.IssuedVia)
	assert.Empty(t, desc.Token)

	me, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", me.Username)
	assert.True(t, auth.AtLeast(authz.RoleAdmin))
}

func TestLoginHeaderToken(t *testing.T) {
	tests := []struct {
		name string
		opts []feedtest.Option
	}{
		{"token from cookie", nil},
		{"token from body", []feedtest.Option{feedtest.WithLegacyTokenBody()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := feedtest.New(t, tt.opts...)
			srv.AddUser("bob", "pw", "super_admin")
			c, auth := newClient(t, srv, authz.TransportHeaderToken)

			desc, err := c.Login(context.Background(), "bob", "pw")
			require.NoError(t, err)
			assert.Equal(t, authz.RoleSuperAdmin, desc.Role)
			assert.NotEmpty(t, desc.Token)
			assert.Equal(t, "bob", desc.Username)

			me, err := c.Me(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "super_admin", me.Role)
			assert.True(t, auth.AtLeast(authz.RoleSuperAdmin))
		})
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	srv := feedtest.New(t)
	srv.AddUser("alice", "pw", "admin")
	c, auth := newClient(t, srv, authz.TransportAmbientCookie)

	_, err := c.Login(context.Background(), "alice", "wrong")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
	assert.True(t, errors.Is(err, authz.ErrUnauthenticated))
	_, err = auth.GetRole()
	assert.True(t, errors.Is(err, authz.ErrUnauthenticated))
}

func TestUseToken(t *testing.T) {
	srv := feedtest.New(t)
	srv.AddUser("carol", "pw", "employee")
	c, auth := newClient(t, srv, authz.TransportHeaderToken)

	desc, err := c.UseToken(srv.Token("carol"))
	require.NoError(t, err)
	assert.Equal(t, authz.RoleEmployee, desc.Role)
	assert.False(t, auth.AtLeast(authz.RoleAdmin))

	_, err = c.UseToken("not-a-jwt")
	assert.Error(t, err)
}

func TestLogoutRevokes(t *testing.T) {
	srv := feedtest.New(t)
	srv.AddUser("alice", "pw", "admin")
	c, auth := newClient(t, srv, authz.TransportAmbientCookie)
	_, err := c.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)

	revoked := 0
	auth.Subscribe(func() { revoked++ })

	require.NoError(t, c.Logout(context.Background()))
	assert.Equal(t, 1, revoked)
	assert.False(t, auth.AtLeast(authz.RoleEmployee))

	_, err = c.Me(context.Background())
	assert.True(t, errors.Is(err, authz.ErrUnauthenticated))
}

func TestRevalidate(t *testing.T) {
	srv := feedtest.New(t)
	srv.AddUser("dave", "pw", "super_admin")
	c, auth := newClient(t, srv, authz.TransportAmbientCookie)
	_, err := c.Login(context.Background(), "dave", "pw")
	require.NoError(t, err)

	require.NoError(t, c.Revalidate(context.Background()))
	assert.True(t, auth.AtLeast(authz.RoleSuperAdmin))

	srv.SetRole("dave", "employee")
	require.NoError(t, c.Revalidate(context.Background()))
	role, err := auth.GetRole()
	require.NoError(t, err)
	assert.Equal(t, authz.RoleEmployee, role)

	srv.SetActive("dave", false)
	err = c.Revalidate(context.Background())
	assert.True(t, errors.Is(err, ErrInactiveAccount))
	_, err = auth.GetRole()
	assert.True(t, errors.Is(err, authz.ErrUnauthenticated))

	err = c.Revalidate(context.Background())
	assert.True(t, errors.Is(err, authz.ErrUnauthenticated))
}
