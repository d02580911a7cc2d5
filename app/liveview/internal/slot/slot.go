package slot

import (
	"context"
	"encoding/base64"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/faceview/app/liveview/internal/authz"
	"github.com/lk2023060901/faceview/app/liveview/internal/catalog"
	"github.com/lk2023060901/faceview/app/liveview/internal/framebuf"
	"github.com/lk2023060901/faceview/pkg/config"
	"github.com/lk2023060901/faceview/pkg/logger"
	"github.com/lk2023060901/faceview/pkg/websocket"
)

// Authorizer 连接位依赖的授权能力，authz.Context 满足该接口
type Authorizer interface {
	Authorize(required authz.Role) error
	AttachCredential(req authz.OutgoingRequest) authz.OutgoingRequest
	OnCredentialRevoked()
}

// Resolver 摄像头地址解析，catalog.Catalog 满足该接口
type Resolver interface {
	Resolve(ctx context.Context, cameraID string) (catalog.Endpoint, error)
}

// Slot 一个显示位上的一路视频连接
//
// 所有异步回调（拨号结果、读循环事件、重试定时器）都带着发起时的 generation，
// 与当前值不一致即丢弃。Bind/Unbind/Teardown 以及每次重连都会递增 generation。
type Slot struct {
	id    int
	label string

	auth     Authorizer
	resolver Resolver
	dialer   websocket.Dialer
	exec     Executor
	sched    Scheduler
	metrics  *websocket.ClientMetrics
	logger   logger.Logger
	observer func(Snapshot)
	reporter func(error, Snapshot)
	now      func() time.Time
	frames   *framebuf.Buffer

	mu          sync.Mutex
	cfg         Config
	state       State
	cameraID    string
	endpoint    catalog.Endpoint
	retryCount  int
	lastFrameAt time.Time
	lastErr     error
	gen         uint64
	bindSeq     uint64
	version     uint64
	conn        websocket.Conn
	cancelDial  context.CancelFunc
	timer       Timer

	emitMu      sync.Mutex
	lastEmitted uint64
}

// New 创建连接位，初始为 Idle
func New(id int, cfg *Config, auth Authorizer, resolver Resolver, dialer websocket.Dialer, opts ...Option) (*Slot, error) {
	newCfg, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}
	if err := newCfg.Validate(); err != nil {
		return nil, err
	}

	s := &Slot{
		id:       id,
		label:    strconv.Itoa(id),
		auth:     auth,
		resolver: resolver,
		dialer:   dialer,
		exec:     goExecutor{},
		sched:    realScheduler{},
		logger:   logger.NewNoop(),
		now:      time.Now,
		frames:   framebuf.New(),
		cfg:      *newCfg,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithFields("slot", id)
	s.metrics.SetState(s.label, int(StateIdle))
	return s, nil
}

// ID 显示位编号，从 1 开始
func (s *Slot) ID() int { return s.id }

// Frames 该显示位的帧缓冲
func (s *Slot) Frames() *framebuf.Buffer { return s.frames }

// Snapshot 当前状态
func (s *Slot) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// State 当前状态
func (s *Slot) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CameraID 当前绑定的摄像头，未绑定为空
func (s *Slot) CameraID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cameraID
}

// SetReconnect 更新重连策略，从下一次失败开始生效
func (s *Slot) SetReconnect(rc websocket.ReconnectConfig) {
	s.mu.Lock()
	s.cfg.Reconnect = rc
	s.mu.Unlock()
}

// Bind 绑定摄像头并开始连接
//
// 授权不足或摄像头不可用时同步返回错误，并释放原有绑定回到 Idle，不发起任何连接。
// 连接本身异步进行，结果通过状态变化体现。
func (s *Slot) Bind(ctx context.Context, cameraID string) error {
	if cameraID == "" {
		return ErrEmptyCameraID
	}

	s.mu.Lock()
	s.bindSeq++
	ticket := s.bindSeq
	s.mu.Unlock()

	if err := s.auth.Authorize(s.requiredRole()); err != nil {
		s.metrics.OnError(s.label, string(KindOf(err)))
		s.logger.Warn("bind denied", "camera_id", cameraID, "error", err)
		s.reject(ticket)
		return err
	}

	ep, err := s.resolver.Resolve(ctx, cameraID)
	if err != nil {
		s.metrics.OnError(s.label, string(KindOf(err)))
		s.logger.Warn("camera resolve failed", "camera_id", cameraID, "error", err)
		s.reject(ticket)
		return err
	}

	s.mu.Lock()
	if s.bindSeq != ticket {
		s.mu.Unlock()
		return ErrBindSuperseded
	}
	old := s.resetLocked()
	s.cameraID = cameraID
	s.endpoint = ep
	task := s.connectLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	closeConn(old)
	s.logger.Info("camera bound", "camera_id", cameraID, "endpoint", ep.String())
	s.emit(snap)
	return s.submit(task)
}

// reject 被拒绝的绑定不能留下旧画面，ticket 已过期说明有更新的操作接管
func (s *Slot) reject(ticket uint64) {
	s.mu.Lock()
	if s.bindSeq != ticket || s.idleLocked() {
		s.mu.Unlock()
		return
	}
	prevCamera := s.cameraID
	old := s.resetLocked()
	s.setStateLocked(StateIdle)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	closeConn(old)
	s.logger.Info("previous camera released after rejected bind", "camera_id", prevCamera)
	s.emit(snap)
}

// Unbind 释放绑定回到 Idle，可重复调用
func (s *Slot) Unbind() {
	s.stop(StateIdle)
}

// Teardown 关闭连接进入 Closed，可重复调用
func (s *Slot) Teardown() {
	s.stop(StateClosed)
}

func (s *Slot) stop(target State) {
	s.mu.Lock()
	s.bindSeq++
	if s.state == target && s.releasedLocked() {
		s.mu.Unlock()
		return
	}
	prevCamera := s.cameraID
	old := s.resetLocked()
	s.setStateLocked(target)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	closeConn(old)
	s.logger.Info("slot stopped", "camera_id", prevCamera, "state", target)
	s.emit(snap)
}

func (s *Slot) releasedLocked() bool {
	return s.cameraID == "" && s.conn == nil && s.timer == nil && s.cancelDial == nil
}

func (s *Slot) idleLocked() bool {
	return s.state == StateIdle && s.releasedLocked()
}

// resetLocked 废弃当前 generation 的一切异步工作并清空绑定，返回需在锁外关闭的连接
func (s *Slot) resetLocked() websocket.Conn {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
	old := s.conn
	s.conn = nil
	s.cameraID = ""
	s.endpoint = catalog.Endpoint{}
	s.retryCount = 0
	s.lastErr = nil
	s.lastFrameAt = time.Time{}
	s.frames.Reset()
	return old
}

// connectLocked 进入 Connecting 并返回拨号任务，任务须在锁外提交
func (s *Slot) connectLocked() func() {
	s.gen++
	gen := s.gen
	ep := s.endpoint
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectTimeout)
	s.cancelDial = cancel
	s.setStateLocked(StateConnecting)

	return func() {
		defer cancel()
		req := s.auth.AttachCredential(authz.OutgoingRequest{
			Kind:   authz.KindSocket,
			URL:    ep.URL,
			Header: make(http.Header),
		})
		conn, err := s.dialer.Dial(ctx, websocket.DialRequest{
			URL:         req.URL.String(),
			Header:      req.Header,
			WithCookies: req.Credentialed,
		})
		s.metrics.OnDial(s.label, err)
		if s.onDialResult(gen, conn, err) {
			s.readLoop(gen, conn)
		}
	}
}

func (s *Slot) submit(task func()) error {
	if task == nil {
		return nil
	}
	if err := s.exec.Submit(task); err != nil {
		s.logger.Error("submit dial task failed", "error", err)
		s.mu.Lock()
		gen := s.gen
		s.mu.Unlock()
		s.onDialResult(gen, nil, errors.Wrap(err, "submit dial task"))
		return err
	}
	return nil
}

// onDialResult 返回 true 表示连接已接管，调用方继续读循环
func (s *Slot) onDialResult(gen uint64, conn websocket.Conn, err error) bool {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		closeConn(conn)
		return false
	}
	s.cancelDial = nil

	if err != nil {
		s.failLocked(err)
		return false
	}

	s.conn = conn
	s.retryCount = 0
	s.lastErr = nil
	s.setStateLocked(StateStreaming)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info("streaming", "camera_id", snap.CameraID, "conn_id", conn.ID())
	s.emit(snap)
	return true
}

func (s *Slot) readLoop(gen uint64, conn websocket.Conn) {
	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			closeConn(conn)
			s.onReadError(gen, err)
			return
		}

		data := msg.Data
		if s.cfg.DecodeBase64 && msg.Type == websocket.MessageTypeText {
			decoded, derr := base64.StdEncoding.DecodeString(string(data))
			if derr != nil {
				s.metrics.OnError(s.label, "decode")
				s.logger.Debug("drop undecodable frame", "size", len(data), "error", derr)
				continue
			}
			data = decoded
		}

		s.mu.Lock()
		if gen != s.gen {
			s.mu.Unlock()
			closeConn(conn)
			return
		}
		now := s.now()
		s.lastFrameAt = now
		dropped := s.frames.Put(s.cameraID, data, now)
		s.mu.Unlock()

		s.metrics.OnFrame(s.label, len(data))
		if dropped {
			s.metrics.OnFrameDropped(s.label)
		}
	}
}

func (s *Slot) onReadError(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.failLocked(err)
}

// failLocked 处理一次连接失败并释放锁
// 致命错误进入 Failed，其余进入 Reconnecting 或在超过上限后进入 Failed
func (s *Slot) failLocked(err error) {
	out := classify(err)
	s.metrics.OnDisconnected(s.label, out.reason)
	s.metrics.OnError(s.label, string(KindOf(out.err)))

	if out.fatal {
		s.lastErr = out.err
		s.setStateLocked(StateFailed)
		snap := s.snapshotLocked()
		s.mu.Unlock()

		s.logger.Warn("connection failed", "camera_id", snap.CameraID, "reason", out.reason, "error", out.err)
		s.emit(snap)
		s.report(out.err, snap)
		if out.revoke {
			s.auth.OnCredentialRevoked()
		}
		return
	}

	s.retryCount++
	if s.cfg.Reconnect.Exhausted(s.retryCount) {
		s.lastErr = errors.Mark(errors.Wrapf(out.err, "giving up after %d failures", s.retryCount), ErrRetriesExhausted)
		s.setStateLocked(StateFailed)
		snap := s.snapshotLocked()
		s.mu.Unlock()

		s.logger.Error("retries exhausted", "camera_id", snap.CameraID, "retry_count", snap.RetryCount, "error", out.err)
		s.emit(snap)
		s.report(snap.LastError, snap)
		return
	}

	s.lastErr = out.err
	delay := s.cfg.Reconnect.Delay(s.retryCount)
	gen := s.gen
	s.timer = s.sched.AfterFunc(delay, func() { s.retry(gen) })
	s.setStateLocked(StateReconnecting)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.metrics.OnReconnectAttempt(s.label)
	s.logger.Warn("connection lost, reconnecting",
		"camera_id", snap.CameraID,
		"reason", out.reason,
		"retry_count", snap.RetryCount,
		"delay", delay,
		"error", out.err,
	)
	s.emit(snap)
}

// retry 定时器到期，重新确认权限后再次拨号
func (s *Slot) retry(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.state != StateReconnecting {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	// 长时间打开的页面可能经历角色调整，每次重连都重新判断
	authErr := s.auth.Authorize(s.requiredRole())

	s.mu.Lock()
	if gen != s.gen || s.state != StateReconnecting {
		s.mu.Unlock()
		return
	}
	if authErr != nil {
		s.lastErr = authErr
		s.setStateLocked(StateFailed)
		snap := s.snapshotLocked()
		s.mu.Unlock()

		s.metrics.OnError(s.label, string(KindOf(authErr)))
		s.logger.Warn("reconnect denied", "camera_id", snap.CameraID, "error", authErr)
		s.emit(snap)
		s.report(authErr, snap)
		return
	}
	task := s.connectLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.emit(snap)
	_ = s.submit(task)
}

func (s *Slot) requiredRole() authz.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.RequiredRole
}

func (s *Slot) setStateLocked(st State) {
	s.state = st
	s.version++
	s.metrics.SetState(s.label, int(st))
}

func (s *Slot) snapshotLocked() Snapshot {
	return Snapshot{
		ID:          s.id,
		State:       s.state,
		CameraID:    s.cameraID,
		RetryCount:  s.retryCount,
		LastFrameAt: s.lastFrameAt,
		LastError:   s.lastErr,
		Generation:  s.gen,
		version:     s.version,
	}
}

func (s *Slot) emit(snap Snapshot) {
	if s.observer == nil {
		return
	}
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if snap.version <= s.lastEmitted {
		return
	}
	s.lastEmitted = snap.version
	s.observer(snap)
}

func (s *Slot) report(err error, snap Snapshot) {
	if s.reporter != nil {
		s.reporter(err, snap)
	}
}

func closeConn(c websocket.Conn) {
	if c != nil {
		_ = c.Close()
	}
}
