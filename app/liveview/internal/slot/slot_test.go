package slot

import (
	"context"
	"encoding/base64"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/faceview/app/liveview/internal/authz"
	"github.com/lk2023060901/faceview/pkg/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

type harness struct {
	slot   *Slot
	auth   *authz.Context
	dialer *fakeDialer
	sched  *fakeScheduler

	mu    sync.Mutex
	snaps []Snapshot
	fails []error
}

func newHarness(t *testing.T, role authz.Role, opts ...func(*Config)) *harness {
	t.Helper()
	return newHarnessWith(t, authz.TransportHeaderToken, role, opts...)
}

func newHarnessWith(t *testing.T, transport authz.Transport, role authz.Role, opts ...func(*Config)) *harness {
	t.Helper()
	h := &harness{
		auth:   newAuth(t, transport, role),
		dialer: &fakeDialer{},
		sched:  &fakeScheduler{},
	}
	cfg := &Config{
		ConnectTimeout: time.Second,
		Reconnect: websocket.ReconnectConfig{
			MaxRetries:  3,
			BackoffUnit: time.Second,
			MaxBackoff:  2 * time.Second,
		},
	}
	for _, o := range opts {
		o(cfg)
	}
	resolver := fakeResolver{cameras: map[string]bool{"cam-1": true, "cam-2": true, "cam-3": true, "off": false}}
	s, err := New(1, cfg, h.auth, resolver, h.dialer,
		WithScheduler(h.sched),
		WithObserver(func(snap Snapshot) {
			h.mu.Lock()
			h.snaps = append(h.snaps, snap)
			h.mu.Unlock()
		}),
		WithFailureReporter(func(err error, _ Snapshot) {
			h.mu.Lock()
			h.fails = append(h.fails, err)
			h.mu.Unlock()
		}),
	)
	require.NoError(t, err)
	h.slot = s
	t.Cleanup(s.Teardown)
	return h
}

func (h *harness) waitState(t *testing.T, want State) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool { return h.slot.State() == want }, waitFor, 5*time.Millisecond,
		"want %s, got %s", want, h.slot.State())
	return h.slot.Snapshot()
}

func (h *harness) stream(t *testing.T, cameraID string) *fakeConn {
	t.Helper()
	require.NoError(t, h.slot.Bind(context.Background(), cameraID))
	h.waitState(t, StateStreaming)
	c := h.dialer.lastConn()
	require.NotNil(t, c)
	return c
}

func TestBindDenied(t *testing.T) {
	tests := []struct {
		name string
		role authz.Role
		want error
	}{
		{"employee is forbidden", authz.RoleEmployee, ErrForbidden},
		{"no session", "", ErrUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.role)
			err := h.slot.Bind(context.Background(), "cam-3")
			assert.True(t, errors.Is(err, tt.want))
			assert.Equal(t, StateIdle, h.slot.State())
			assert.Empty(t, h.slot.CameraID())
			assert.Equal(t, 0, h.dialer.dials())
		})
	}
}

func TestBindCameraUnavailable(t *testing.T) {
	h := newHarness(t, authz.RoleAdmin)
	for _, id := range []string{"off", "missing"} {
		err := h.slot.Bind(context.Background(), id)
		assert.True(t, errors.Is(err, ErrCameraUnavailable))
		assert.Equal(t, KindCameraUnavailable, KindOf(err))
	}
	assert.Equal(t, StateIdle, h.slot.State())
	assert.Equal(t, 0, h.dialer.dials())

	assert.True(t, errors.Is(h.slot.Bind(context.Background(), ""), ErrEmptyCameraID))
}

func TestRejectedRebindReleasesCamera(t *testing.T) {
	tests := []struct {
		name   string
		camera string
		demote bool
		want   error
	}{
		{"demoted to employee", "cam-2", true, ErrForbidden},
		{"disabled camera", "off", false, ErrCameraUnavailable},
		{"unknown camera", "missing", false, ErrCameraUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, authz.RoleAdmin)
			first := h.stream(t, "cam-1")

			if tt.demote {
				require.NoError(t, h.auth.Replace(authz.SessionDescriptor{Role: authz.RoleEmployee, IssuedVia: authz.TransportHeaderToken, Token: "tkn"}))
			}
			err := h.slot.Bind(context.Background(), tt.camera)
			assert.True(t, errors.Is(err, tt.want), "%v", err)

			snap := h.slot.Snapshot()
			assert.Equal(t, StateIdle, snap.State)
			assert.Empty(t, snap.CameraID)
			assert.True(t, first.isClosed())
			assert.Equal(t, 1, h.dialer.dials())
		})
	}
}

func TestBindStreamsFrames(t *testing.T) {
	h := newHarness(t, authz.RoleAdmin)
	conn := h.stream(t, "cam-1")

	jpeg := []byte{0xff, 0xd8, 0x01, 0xff, 0xd9}
	conn.msgs <- &websocket.Message{Type: websocket.MessageTypeText, Data: []byte(base64.StdEncoding.EncodeToString(jpeg))}

	f, err := h.slot.Frames().Wait(contextWithTimeout(t))
	require.NoError(t, err)
	assert.Equal(t, jpeg, f.Data)
	assert.Equal(t, "cam-1", f.CameraID)

	snap := h.slot.Snapshot()
	assert.Equal(t, StateStreaming, snap.State)
	assert.Equal(t, "cam-1", snap.CameraID)
	assert.False(t, snap.LastFrameAt.IsZero())
	assert.Equal(t, 0, snap.RetryCount)
}

func TestUndecodableFrameSkipped(t *testing.T) {
	h := newHarness(t, authz.RoleAdmin)
	conn := h.stream(t, "cam-1")

	conn.msgs <- &websocket.Message{Type: websocket.MessageTypeText, Data: []byte("%%%")}
	conn.msgs <- &websocket.Message{Type: websocket.MessageTypeBinary, Data: []byte("raw")}

	f, err := h.slot.Frames().Wait(contextWithTimeout(t))
	require.NoError(t, err)
	assert.Equal(t, []byte("raw"), f.Data)
	assert.Equal(t, StateStreaming, h.slot.State())
}

func TestCredentialAttachedToDial(t *testing.T) {
	t.Run("header token", func(t *testing.T) {
		h := newHarness(t, authz.RoleAdmin)
		h.stream(t, "cam-1")
		req := h.dialer.lastRequest()
		assert.Contains(t, req.URL, "token=tkn")
		assert.Contains(t, req.URL, "show_tripwires=false")
		assert.False(t, req.WithCookies)
	})
	t.Run("ambient cookie", func(t *testing.T) {
		h := newHarnessWith(t, authz.TransportAmbientCookie, authz.RoleSuperAdmin)
		h.stream(t, "cam-1")
		req := h.dialer.lastRequest()
		assert.NotContains(t, req.URL, "token=")
		assert.True(t, req.WithCookies)
	})
}

func TestAbnormalCloseReconnects(t *testing.T) {
	h := newHarness(t, authz.RoleAdmin)
	conn := h.stream(t, "cam-2")

	conn.errs <- &websocket.CloseError{Code: websocket.CloseAbnormalClosure}
	snap := h.waitState(t, StateReconnecting)
	assert.Equal(t, 1, snap.RetryCount)
	assert.Equal(t, "cam-2", snap.CameraID)
	assert.Equal(t, KindConnectionLost, KindOf(snap.LastError))
	assert.Equal(t, []time.Duration{time.Second}, h.sched.delays())

	h.sched.fire(t)
	snap = h.waitState(t, StateStreaming)
	assert.Equal(t, 0, snap.RetryCount)
	assert.Equal(t, "cam-2", snap.CameraID)
	assert.Equal(t, 2, h.dialer.dials())
}

func TestRetryCapTransitionsToFailed(t *testing.T) {
	h := newHarness(t, authz.RoleAdmin)
	h.dialer.always = errors.New("connection refused")

	require.NoError(t, h.slot.Bind(context.Background(), "cam-1"))
	for i := 1; i <= 3; i++ {
		snap := h.waitState(t, StateReconnecting)
		require.Equal(t, i, snap.RetryCount)
		h.sched.fire(t)
	}

	snap := h.waitState(t, StateFailed)
	assert.Equal(t, 4, snap.RetryCount)
	assert.True(t, errors.Is(snap.LastError, ErrRetriesExhausted))
	assert.Equal(t, KindRetriesExhausted, KindOf(snap.LastError))
	assert.Equal(t, "cam-1", snap.CameraID)
	assert.Equal(t, 0, h.sched.pending())
	assert.Equal(t, 4, h.dialer.dials())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 2 * time.Second}, h.sched.delays())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 4, h.dialer.dials(), "no automatic retry after Failed")

	h.mu.Lock()
	require.Len(t, h.fails, 1)
	h.mu.Unlock()

	// 手动重试从 Connecting 重新开始
	h.dialer.mu.Lock()
	h.dialer.always = nil
	h.dialer.mu.Unlock()
	require.NoError(t, h.slot.Bind(context.Background(), "cam-1"))
	snap = h.waitState(t, StateStreaming)
	assert.Equal(t, 0, snap.RetryCount)
}

func TestUnlimitedRetries(t *testing.T) {
	h := newHarness(t, authz.RoleAdmin, func(c *Config) { c.Reconnect.MaxRetries = -1 })
	h.dialer.always = errors.New("connection refused")

	require.NoError(t, h.slot.Bind(context.Background(), "cam-1"))
	for i := 1; i <= 10; i++ {
		snap := h.waitState(t, StateReconnecting)
		require.Equal(t, i, snap.RetryCount)
		h.sched.fire(t)
	}
}

func TestStaleTimerIgnored(t *testing.T) {
	h := newHarness(t, authz.RoleAdmin)
	conn := h.stream(t, "cam-1")
	conn.errs <- errors.New("reset by peer")
	h.waitState(t, StateReconnecting)

	stale := h.sched.lastFn()
	h.slot.Unbind()
	assert.Equal(t, 0, h.sched.pending())

	stale()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateIdle, h.slot.State())
	assert.Empty(t, h.slot.CameraID())
	assert.Equal(t, 1, h.dialer.dials())

	h.slot.Teardown()
	stale()
	assert.Equal(t, StateClosed, h.slot.State())
}

func TestUnbindDuringConnect(t *testing.T) {
	h := newHarness(t, authz.RoleAdmin)
	h.dialer.block = true

	require.NoError(t, h.slot.Bind(context.Background(), "cam-1"))
	assert.Equal(t, StateConnecting, h.slot.State())
	require.Eventually(t, func() bool { return h.dialer.dials() == 1 }, waitFor, 5*time.Millisecond)

	h.slot.Unbind()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateIdle, h.slot.State())
	assert.Equal(t, 0, h.sched.pending())
}

func TestConnectTimeout(t *testing.T) {
	h := newHarness(t, authz.RoleAdmin, func(c *Config) { c.ConnectTimeout = 20 * time.Millisecond })
	h.dialer.block = true

	require.NoError(t, h.slot.Bind(context.Background(), "cam-1"))
	snap := h.waitState(t, StateReconnecting)
	assert.Equal(t, 1, snap.RetryCount)
	assert.True(t, errors.Is(snap.LastError, websocket.ErrConnectTimeout))
}

func TestUnbindClosesConnection(t *testing.T) {
	h := newHarness(t, authz.RoleAdmin)
	conn := h.stream(t, "cam-1")
	conn.msgs <- &websocket.Message{Type: websocket.MessageTypeBinary, Data: []byte("x")}

	h.slot.Unbind()
	assert.True(t, conn.isClosed())
	snap := h.slot.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.CameraID)
	assert.True(t, snap.LastFrameAt.IsZero())

	h.slot.Unbind()
	assert.Equal(t, StateIdle, h.slot.State())
	assert.Equal(t, 0, h.sched.pending())
}

func TestTeardownIdempotent(t *testing.T) {
	h := newHarness(t, authz.RoleAdmin)
	conn := h.stream(t, "cam-1")

	h.slot.Teardown()
	assert.True(t, conn.isClosed())
	first := h.slot.Snapshot()
	assert.Equal(t, StateClosed, first.State)

	h.slot.Teardown()
	second := h.slot.Snapshot()
	assert.Equal(t, first, second)
}

func TestRebindSwitchesCamera(t *testing.T) {
	h := newHarness(t, authz.RoleAdmin)
	first := h.stream(t, "cam-1")

	require.NoError(t, h.slot.Bind(context.Background(), "cam-2"))
	assert.True(t, first.isClosed())
	snap := h.waitState(t, StateStreaming)
	assert.Equal(t, "cam-2", snap.CameraID)
	assert.NotSame(t, first, h.dialer.lastConn())
}

func TestRetryReauthorizes(t *testing.T) {
	h := newHarness(t, authz.RoleSuperAdmin)
	conn := h.stream(t, "cam-1")

	// 会话中途被降级
	require.NoError(t, h.auth.Replace(authz.SessionDescriptor{Role: authz.RoleEmployee, IssuedVia: authz.TransportHeaderToken, Token: "tkn"}))
	conn.errs <- &websocket.CloseError{Code: websocket.CloseAbnormalClosure}
	h.waitState(t, StateReconnecting)

	h.sched.fire(t)
	snap := h.waitState(t, StateFailed)
	assert.True(t, errors.Is(snap.LastError, ErrForbidden))
	assert.Equal(t, 1, h.dialer.dials())
}

func TestFatalCloseCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"policy violation", &websocket.CloseError{Code: websocket.ClosePolicyViolation, Reason: "Insufficient permissions"}, ErrForbidden},
		{"invalid camera", &websocket.CloseError{Code: websocket.CloseInternalError, Reason: "Invalid camera ID"}, ErrCameraUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, authz.RoleAdmin)
			conn := h.stream(t, "cam-1")
			conn.errs <- tt.err

			snap := h.waitState(t, StateFailed)
			assert.True(t, errors.Is(snap.LastError, tt.want))
			assert.Equal(t, 0, h.sched.pending())
		})
	}
}

func TestHandshakeUnauthorizedRevokes(t *testing.T) {
	h := newHarness(t, authz.RoleAdmin)
	revoked := make(chan struct{}, 1)
	h.auth.Subscribe(func() { revoked <- struct{}{} })
	h.dialer.script = []error{&websocket.HandshakeError{StatusCode: http.StatusUnauthorized, Status: "401 Unauthorized"}}

	require.NoError(t, h.slot.Bind(context.Background(), "cam-1"))
	select {
	case <-revoked:
	case <-time.After(waitFor):
		t.Fatal("credential not revoked")
	}
	snap := h.slot.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.True(t, errors.Is(snap.LastError, ErrUnauthenticated))
	_, err := h.auth.GetRole()
	assert.True(t, errors.Is(err, authz.ErrUnauthenticated))
}

func TestObserverSeesTransitions(t *testing.T) {
	h := newHarness(t, authz.RoleAdmin)
	conn := h.stream(t, "cam-1")
	conn.errs <- &websocket.CloseError{Code: websocket.CloseGoingAway}
	h.waitState(t, StateReconnecting)
	h.slot.Teardown()

	h.mu.Lock()
	defer h.mu.Unlock()
	states := make([]State, 0, len(h.snaps))
	for _, s := range h.snaps {
		states = append(states, s.State)
	}
	assert.Equal(t, []State{StateConnecting, StateStreaming, StateReconnecting, StateClosed}, states)
}

func TestSetReconnect(t *testing.T) {
	h := newHarness(t, authz.RoleAdmin)
	h.slot.SetReconnect(websocket.ReconnectConfig{MaxRetries: 0, BackoffUnit: time.Second, MaxBackoff: time.Second})
	h.dialer.always = errors.New("refused")

	require.NoError(t, h.slot.Bind(context.Background(), "cam-1"))
	snap := h.waitState(t, StateFailed)
	assert.True(t, errors.Is(snap.LastError, ErrRetriesExhausted))
	assert.Equal(t, 1, h.dialer.dials())
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.RequiredRole = "root"
	assert.True(t, errors.Is(cfg.Validate(), authz.ErrUnknownRole))

	cfg = DefaultConfig()
	cfg.Reconnect.MaxBackoff = time.Millisecond
	assert.Error(t, cfg.Validate())
}

func contextWithTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	t.Cleanup(cancel)
	return ctx
}
