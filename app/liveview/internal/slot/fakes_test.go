package slot

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/faceview/app/liveview/internal/authz"
	"github.com/lk2023060901/faceview/app/liveview/internal/catalog"
	"github.com/lk2023060901/faceview/pkg/websocket"
	"github.com/stretchr/testify/require"
)

// fakeConn 由测试驱动的连接
type fakeConn struct {
	id     string
	msgs   chan *websocket.Message
	errs   chan error
	closed chan struct{}
	once   sync.Once
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{
		id:     id,
		msgs:   make(chan *websocket.Message, 16),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ID() string         { return c.id }
func (c *fakeConn) RemoteAddr() string { return "fake" }

func (c *fakeConn) ReadMessage() (*websocket.Message, error) {
	select {
	case m := <-c.msgs:
		return m, nil
	case err := <-c.errs:
		return nil, err
	case <-c.closed:
		return nil, websocket.ErrConnectionClosed
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// fakeDialer 按脚本返回错误，脚本用完后建立成功的连接
// block 为 true 时阻塞到 ctx 结束
type fakeDialer struct {
	mu       sync.Mutex
	script   []error
	always   error
	block    bool
	requests []websocket.DialRequest
	conns    []*fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, req websocket.DialRequest) (websocket.Conn, error) {
	d.mu.Lock()
	d.requests = append(d.requests, req)
	block := d.block
	var err error
	switch {
	case len(d.script) > 0:
		err, d.script = d.script[0], d.script[1:]
	case d.always != nil:
		err = d.always
	}
	d.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, errors.Wrap(websocket.ErrConnectTimeout, "fake")
	}
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	c := newFakeConn(strconv.Itoa(len(d.conns) + 1))
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

func (d *fakeDialer) lastConn() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) lastRequest() websocket.DialRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests[len(d.requests)-1]
}

// fakeScheduler 手动触发的定时器
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	sched   *fakeScheduler
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{sched: s, delay: d, fn: f}
	s.timers = append(s.timers, t)
	return t
}

// fire 触发最近一个未停止的定时器
func (s *fakeScheduler) fire(t *testing.T) {
	t.Helper()
	s.mu.Lock()
	var pending *fakeTimer
	for i := len(s.timers) - 1; i >= 0; i-- {
		if !s.timers[i].stopped && !s.timers[i].fired {
			pending = s.timers[i]
			break
		}
	}
	if pending != nil {
		pending.fired = true
	}
	s.mu.Unlock()
	require.NotNil(t, pending, "no pending timer")
	pending.fn()
}

func (s *fakeScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (s *fakeScheduler) delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, 0, len(s.timers))
	for _, t := range s.timers {
		out = append(out, t.delay)
	}
	return out
}

// lastFn 最近一次创建的定时器回调，包括已停止的
func (s *fakeScheduler) lastFn() func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers[len(s.timers)-1].fn
}

// fakeResolver 固定的摄像头表
type fakeResolver struct {
	cameras map[string]bool
}

func (r fakeResolver) Resolve(_ context.Context, id string) (catalog.Endpoint, error) {
	enabled, ok := r.cameras[id]
	if !ok || !enabled {
		return catalog.Endpoint{}, errors.Wrapf(catalog.ErrCameraUnavailable, "camera %s", id)
	}
	u, _ := url.Parse("ws://feeds.test/ws/video_feed/" + id + "?show_tripwires=false")
	return catalog.Endpoint{CameraID: id, URL: u}, nil
}

func newAuth(t *testing.T, transport authz.Transport, role authz.Role) *authz.Context {
	t.Helper()
	strategy, err := authz.NewStrategy(transport)
	require.NoError(t, err)
	c := authz.NewContext(strategy)
	if role != "" {
		require.NoError(t, c.Replace(authz.SessionDescriptor{Role: role, IssuedVia: transport, Token: "tkn"}))
	}
	return c
}
