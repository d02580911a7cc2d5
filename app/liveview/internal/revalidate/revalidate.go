// Package revalidate 定期向后端确认会话仍然有效
package revalidate

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/faceview/app/liveview/internal/authclient"
	"github.com/lk2023060901/faceview/app/liveview/internal/authz"
	"github.com/lk2023060901/faceview/pkg/config"
	"github.com/lk2023060901/faceview/pkg/logger"
	"github.com/robfig/cron/v3"
	"go.uber.org/atomic"
)

// ErrInvalidSpec cron 表达式无法解析
var ErrInvalidSpec = errors.New("revalidate: invalid cron spec")

// Revalidator authclient.Client 满足该接口
type Revalidator interface {
	Revalidate(ctx context.Context) error
}

// Config 定时确认配置
type Config struct {
	// Spec 标准 cron 表达式或 @every 描述符
	Spec string `mapstructure:"spec"`
	// Timeout 单次确认的超时
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultConfig 默认每分钟确认一次
func DefaultConfig() *Config {
	return &Config{
		Spec:    "@every 1m",
		Timeout: 10 * time.Second,
	}
}

// Job 定时调用 Revalidate
// 401 已由 rest 层吊销会话，这里只负责记录
type Job struct {
	config *Config
	target Revalidator
	cron   *cron.Cron
	logger logger.Logger

	runs     *atomic.Uint64
	failures *atomic.Uint64
	started  *atomic.Bool
}

// Option 选项
type Option func(*Job)

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(j *Job) { j.logger = l }
}

// New 创建定时任务，Start 之前不会执行
func New(cfg *Config, target Revalidator, opts ...Option) (*Job, error) {
	newCfg, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}
	if _, err := cron.ParseStandard(newCfg.Spec); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "spec %q", newCfg.Spec), ErrInvalidSpec)
	}

	j := &Job{
		config:   newCfg,
		target:   target,
		logger:   logger.NewNoop(),
		runs:     atomic.NewUint64(0),
		failures: atomic.NewUint64(0),
		started:  atomic.NewBool(false),
	}
	for _, opt := range opts {
		opt(j)
	}

	cl := cronLogger{j.logger}
	j.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := j.cron.AddFunc(newCfg.Spec, func() { _ = j.RunOnce(context.Background()) }); err != nil {
		return nil, errors.Mark(err, ErrInvalidSpec)
	}
	return j, nil
}

// Start 开始调度，重复调用无效
func (j *Job) Start() {
	if !j.started.CAS(false, true) {
		return
	}
	j.cron.Start()
	j.logger.Info("session revalidation scheduled", "spec", j.config.Spec)
}

// Stop 停止调度并等待正在执行的确认结束，ctx 到期时提前返回
func (j *Job) Stop(ctx context.Context) error {
	if !j.started.CAS(true, false) {
		return nil
	}
	select {
	case <-j.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce 立即确认一次
func (j *Job) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	j.runs.Inc()
	err := j.target.Revalidate(ctx)
	switch {
	case err == nil:
		j.logger.Debug("session revalidated")
		return nil
	case errors.Is(err, authz.ErrUnauthenticated):
		// 未登录或已被吊销，没有会话可确认
		j.logger.Debug("no session to revalidate")
	case errors.Is(err, authclient.ErrInactiveAccount):
		j.logger.Warn("account deactivated, session revoked", "error", err)
	default:
		j.logger.Warn("session revalidation failed", "error", err)
	}
	j.failures.Inc()
	return err
}

// Runs 累计执行次数
func (j *Job) Runs() uint64 { return j.runs.Load() }

// Failures 累计失败次数
func (j *Job) Failures() uint64 { return j.failures.Load() }

// cronLogger cron 日志适配
type cronLogger struct {
	l logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
