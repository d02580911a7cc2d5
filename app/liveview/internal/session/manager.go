package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/faceview/app/liveview/internal/slot"
	"github.com/lk2023060901/faceview/pkg/config"
	"github.com/lk2023060901/faceview/pkg/logger"
	"github.com/lk2023060901/faceview/pkg/websocket"
	"github.com/panjf2000/ants/v2"
)

// Authorizer 管理器依赖的授权能力，authz.Context 满足该接口
type Authorizer interface {
	slot.Authorizer
	Subscribe(fn func()) (unsubscribe func())
}

// entry 一个显示位及其串行化锁
// op 保证同一显示位上同时只有一个 AssignCamera 在进行
type entry struct {
	id   int
	slot *slot.Slot
	op   sync.Mutex
}

// Manager 实时画面会话：按布局持有 1/2/4 个显示位，并保证一个摄像头最多绑定一个显示位
type Manager struct {
	config   *Config
	slotCfg  *slot.Config
	auth     Authorizer
	resolver slot.Resolver
	dialer   websocket.Dialer
	pool     *ants.Pool
	sched    slot.Scheduler
	metrics  *websocket.ClientMetrics
	logger   logger.Logger
	reporter func(error, slot.Snapshot)

	mu       sync.Mutex
	layout   Layout
	entries  []*entry
	bindings map[string]int
	closed   bool

	unsubscribe func()

	subsMu sync.RWMutex
	subs   map[uint64]func(slot.Snapshot)
	nextID uint64
}

// New 创建管理器并按配置的布局分配显示位，同时订阅会话吊销
func New(cfg *Config, auth Authorizer, resolver slot.Resolver, dialer websocket.Dialer, opts ...Option) (*Manager, error) {
	newCfg, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}
	if err := newCfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		config:   newCfg,
		auth:     auth,
		resolver: resolver,
		dialer:   dialer,
		logger:   logger.NewNoop(),
		bindings: make(map[string]int),
		subs:     make(map[uint64]func(slot.Snapshot)),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.slotCfg, err = config.MergeConfig(slot.DefaultConfig(), m.slotCfg); err != nil {
		return nil, err
	}

	pool, err := ants.NewPool(newCfg.PoolSize,
		ants.WithLogger(poolLogger{m.logger}),
		ants.WithPanicHandler(func(p interface{}) {
			m.logger.Error("slot task panicked", "panic", p)
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create worker pool")
	}
	m.pool = pool

	if err := m.SetLayout(newCfg.Layout); err != nil {
		pool.Release()
		return nil, err
	}
	m.unsubscribe = auth.Subscribe(m.onRevoked)
	return m, nil
}

// Layout 当前布局
func (m *Manager) Layout() Layout {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.layout
}

// SetLayout 调整显示位数量
// 超出新容量的显示位先拆除再丢弃，新增的显示位为 Idle，保留下来的显示位维持各自的绑定
func (m *Manager) SetLayout(layout Layout) error {
	capacity := layout.Capacity()
	if capacity == 0 {
		return errors.Wrapf(ErrInvalidLayout, "%q", layout)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}

	var removed []*entry
	if capacity < len(m.entries) {
		removed = m.entries[capacity:]
		m.entries = m.entries[:capacity:capacity]
		for _, e := range removed {
			m.releaseBindingsLocked(e.id)
		}
	}
	for id := len(m.entries) + 1; id <= capacity; id++ {
		s, err := m.newSlot(id)
		if err != nil {
			m.mu.Unlock()
			return err
		}
		m.entries = append(m.entries, &entry{id: id, slot: s})
	}
	prev := m.layout
	m.layout = layout
	m.mu.Unlock()

	for _, e := range removed {
		e.slot.Teardown()
	}
	if prev != layout {
		m.logger.Info("layout changed", "from", prev, "to", layout, "discarded", len(removed))
	}
	return nil
}

func (m *Manager) newSlot(id int) (*slot.Slot, error) {
	opts := []slot.Option{
		slot.WithLogger(m.logger),
		slot.WithExecutor(m.pool),
		slot.WithMetrics(m.metrics),
		slot.WithObserver(m.dispatch),
	}
	if m.sched != nil {
		opts = append(opts, slot.WithScheduler(m.sched))
	}
	if m.reporter != nil {
		opts = append(opts, slot.WithFailureReporter(m.reporter))
	}
	cfg := *m.slotCfg
	s, err := slot.New(id, &cfg, m.auth, m.resolver, m.dialer, opts...)
	if err != nil {
		return nil, err
	}
	// 合并默认值会吞掉 max_retries=0，这里按原值覆盖
	s.SetReconnect(cfg.Reconnect)
	return s, nil
}

// AssignCamera 将摄像头分配到显示位
// 摄像头已绑定在其他显示位时返回 ErrDuplicateBinding 且不改变任何状态；
// 否则先释放该显示位当前的摄像头再绑定，绑定被拒绝时显示位回到 Idle
func (m *Manager) AssignCamera(ctx context.Context, slotID int, cameraID string) error {
	if cameraID == "" {
		return slot.ErrEmptyCameraID
	}

	m.mu.Lock()
	e, err := m.entryLocked(slotID)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	e.op.Lock()
	defer e.op.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if owner, ok := m.bindings[cameraID]; ok && owner != slotID {
		m.mu.Unlock()
		return errors.Wrapf(ErrDuplicateBinding, "camera %s is on slot %d", cameraID, owner)
	}
	// 先占位，绑定期间其他显示位不能再选这个摄像头
	m.bindings[cameraID] = slotID
	m.mu.Unlock()

	err = e.slot.Bind(ctx, cameraID)

	m.mu.Lock()
	m.reconcileLocked(e)
	m.mu.Unlock()

	if err != nil {
		return err
	}
	m.logger.Debug("camera assigned", "slot", slotID, "camera_id", cameraID)
	return nil
}

// AssignAll 按顺序把摄像头分配到显示位 1..n，超出布局容量的部分忽略
// 单个失败不影响其余显示位，返回合并后的错误
func (m *Manager) AssignAll(ctx context.Context, cameras []string) error {
	capacity := m.Layout().Capacity()
	var errs error
	for i, cam := range cameras {
		if i >= capacity {
			m.logger.Warn("camera ignored, layout is full", "camera_id", cam, "layout", m.Layout())
			continue
		}
		if err := m.AssignCamera(ctx, i+1, cam); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "slot %d", i+1))
		}
	}
	return errs
}

// ReleaseSlot 解绑一个显示位，其余显示位不受影响
func (m *Manager) ReleaseSlot(slotID int) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	e, err := m.entryLocked(slotID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.releaseBindingsLocked(slotID)
	m.mu.Unlock()

	e.slot.Unbind()
	return nil
}

// TeardownAll 拆除所有显示位，可重复调用
// 页面卸载、离开实时画面与会话吊销时调用；显示位数量不变，全部为 Closed
func (m *Manager) TeardownAll() {
	m.mu.Lock()
	entries := append([]*entry(nil), m.entries...)
	m.bindings = make(map[string]int)
	m.mu.Unlock()

	for _, e := range entries {
		e.slot.Teardown()
	}
}

func (m *Manager) onRevoked() {
	m.logger.Warn("credential revoked, tearing down all slots")
	m.TeardownAll()
}

// SetReconnectPolicy 更新重连策略，配置热更新时调用
func (m *Manager) SetReconnectPolicy(rc websocket.ReconnectConfig) {
	m.mu.Lock()
	cfg := *m.slotCfg
	cfg.Reconnect = rc
	m.slotCfg = &cfg
	entries := append([]*entry(nil), m.entries...)
	m.mu.Unlock()

	for _, e := range entries {
		e.slot.SetReconnect(rc)
	}
	m.logger.Info("reconnect policy updated", "max_retries", rc.MaxRetries, "backoff_unit", rc.BackoffUnit, "max_backoff", rc.MaxBackoff)
}

// Slot 按编号取显示位，编号从 1 开始
func (m *Manager) Slot(slotID int) (*slot.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.entryLocked(slotID)
	if err != nil {
		return nil, err
	}
	return e.slot, nil
}

// Slots 所有显示位的状态，按编号排序
func (m *Manager) Slots() []slot.Snapshot {
	m.mu.Lock()
	entries := append([]*entry(nil), m.entries...)
	m.mu.Unlock()

	out := make([]slot.Snapshot, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.slot.Snapshot())
	}
	return out
}

// Bindings 摄像头到显示位的映射副本
func (m *Manager) Bindings() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.bindings))
	for k, v := range m.bindings {
		out[k] = v
	}
	return out
}

// BoundCameras 已绑定的摄像头，按显示位排序
func (m *Manager) BoundCameras() []string {
	b := m.Bindings()
	cams := make([]string, 0, len(b))
	for cam := range b {
		cams = append(cams, cam)
	}
	sort.Slice(cams, func(i, j int) bool { return b[cams[i]] < b[cams[j]] })
	return cams
}

// Subscribe 订阅所有显示位的状态变化
func (m *Manager) Subscribe(fn func(slot.Snapshot)) (unsubscribe func()) {
	m.subsMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subsMu.Lock()
			delete(m.subs, id)
			m.subsMu.Unlock()
		})
	}
}

func (m *Manager) dispatch(snap slot.Snapshot) {
	m.subsMu.RLock()
	defer m.subsMu.RUnlock()
	for _, fn := range m.subs {
		fn(snap)
	}
}

// Close 拆除所有显示位、取消吊销订阅并释放协程池
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.unsubscribe()
	m.TeardownAll()
	m.pool.Release()
}

func (m *Manager) entryLocked(slotID int) (*entry, error) {
	if slotID < 1 || slotID > len(m.entries) {
		return nil, errors.Wrapf(ErrSlotNotFound, "slot %d, layout %s", slotID, m.layout)
	}
	return m.entries[slotID-1], nil
}

func (m *Manager) releaseBindingsLocked(slotID int) {
	for cam, id := range m.bindings {
		if id == slotID {
			delete(m.bindings, cam)
		}
	}
}

// reconcileLocked 以显示位实际绑定的摄像头为准修正映射
// 显示位已被布局调整丢弃时只清理映射
func (m *Manager) reconcileLocked(e *entry) {
	m.releaseBindingsLocked(e.id)
	if e.id > len(m.entries) || m.entries[e.id-1] != e {
		return
	}
	if cam := e.slot.CameraID(); cam != "" {
		m.bindings[cam] = e.id
	}
}

// poolLogger ants 日志适配
type poolLogger struct {
	l logger.Logger
}

func (p poolLogger) Printf(format string, args ...interface{}) {
	p.l.Debug("worker pool", "detail", fmt.Sprintf(format, args...))
}
