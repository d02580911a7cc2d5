package main

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/faceview/app/liveview/internal/authclient"
	"github.com/lk2023060901/faceview/app/liveview/internal/catalog"
	"github.com/lk2023060901/faceview/app/liveview/internal/revalidate"
	"github.com/lk2023060901/faceview/app/liveview/internal/session"
	"github.com/lk2023060901/faceview/app/liveview/internal/slot"
	"github.com/lk2023060901/faceview/pkg/app"
	"github.com/lk2023060901/faceview/pkg/logger"
)

// statsInterval 帧统计日志间隔
const statsInterval = 30 * time.Second

// liveView 登录后按配置铺设画面，实现 app.Server
type liveView struct {
	cfg     *Config
	client  *authclient.Client
	catalog *catalog.Catalog
	manager *session.Manager
	job     *revalidate.Job
	logger  logger.Logger

	mu          sync.Mutex
	loggedIn    bool
	unsubscribe func()
	stop        chan struct{}
	done        chan struct{}
}

func newLiveView(cfg *Config, client *authclient.Client, cat *catalog.Catalog, m *session.Manager, job *revalidate.Job, loggers *app.LoggerRegistry) *liveView {
	return &liveView{
		cfg:     cfg,
		client:  client,
		catalog: cat,
		manager: m,
		job:     job,
		logger:  loggers.For("liveview"),
	}
}

// Start 登录、设置布局并分配摄像头
// 单个摄像头分配失败只记录日志，登录失败则启动失败
func (v *liveView) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*v.cfg.Server.Timeout)
	defer cancel()

	v.logger.Info("live view starting", append([]interface{}{
		"server", v.cfg.Server.BaseURL,
		"transport", v.cfg.Auth.Transport,
		"layout", v.cfg.Session.Layout,
	}, app.GetInfo().Fields()...)...)

	if err := v.login(ctx); err != nil {
		return err
	}

	if cams, err := v.catalog.ListCameras(ctx); err != nil {
		v.logger.Warn("list cameras failed", "error", err)
	} else {
		v.logger.Info("cameras available", "count", len(cams))
	}

	v.mu.Lock()
	v.unsubscribe = v.manager.Subscribe(v.logTransition)
	v.stop = make(chan struct{})
	v.done = make(chan struct{})
	go v.reportStats(v.stop, v.done)
	v.mu.Unlock()

	if err := v.manager.SetLayout(v.cfg.Session.Layout); err != nil {
		return err
	}
	if err := v.manager.AssignAll(ctx, v.cfg.Session.Cameras); err != nil {
		v.logger.Warn("some cameras could not be assigned", "error", err)
	}

	v.job.Start()
	return nil
}

func (v *liveView) login(ctx context.Context) error {
	if v.cfg.Auth.Token != "" {
		desc, err := v.client.UseToken(v.cfg.Auth.Token)
		if err != nil {
			return errors.Wrap(err, "use configured token")
		}
		v.logger.Info("using configured token", "username", desc.Username, "role", desc.Role)
	} else {
		desc, err := v.client.Login(ctx, v.cfg.Auth.Username, v.cfg.Auth.Password)
		if err != nil {
			return errors.Wrap(err, "login")
		}
		v.logger.Info("logged in", "username", v.cfg.Auth.Username, "role", desc.Role, "transport", desc.IssuedVia)
	}
	v.mu.Lock()
	v.loggedIn = true
	v.mu.Unlock()
	return nil
}

// Stop 拆除全部画面并登出
func (v *liveView) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), v.cfg.Server.Timeout)
	defer cancel()

	if err := v.job.Stop(ctx); err != nil {
		v.logger.Warn("revalidation job did not stop in time", "error", err)
	}
	v.manager.TeardownAll()

	v.mu.Lock()
	loggedIn := v.loggedIn
	v.loggedIn = false
	unsubscribe := v.unsubscribe
	v.unsubscribe = nil
	stop, done := v.stop, v.done
	v.stop = nil
	v.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	// 令牌模式没有服务端会话，登出只清本地状态
	if loggedIn {
		if err := v.client.Logout(ctx); err != nil {
			v.logger.Warn("logout failed", "error", err)
		}
	}
	return nil
}

func (v *liveView) logTransition(snap slot.Snapshot) {
	kv := []interface{}{
		"slot", snap.ID,
		"state", snap.State,
		"camera_id", snap.CameraID,
		"retry_count", snap.RetryCount,
	}
	if snap.LastError != nil {
		kv = append(kv, "error", snap.LastError)
	}
	if snap.State == slot.StateFailed {
		v.logger.Warn("slot state changed", kv...)
		return
	}
	v.logger.Info("slot state changed", kv...)
}

// reportStats 定期输出每个画面的帧统计
func (v *liveView) reportStats(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for _, snap := range v.manager.Slots() {
				if !snap.Bound() {
					continue
				}
				s, err := v.manager.Slot(snap.ID)
				if err != nil {
					continue
				}
				st := s.Frames().Stats()
				v.logger.Debug("frame stats",
					"slot", snap.ID,
					"camera_id", snap.CameraID,
					"delivered", st.Delivered,
					"dropped", st.TotalDrops,
					"fps", st.FrameRate,
					"bytes_per_sec", st.ByteRate,
					"last_frame_at", snap.LastFrameAt,
				)
			}
		}
	}
}
