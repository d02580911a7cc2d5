package app

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/faceview/pkg/logger"
)

// LoggerRegistry 按组件名分发日志对象
// 配置了 loggers.<component> 的组件使用独立的输出与级别，其余组件从主日志派生
type LoggerRegistry struct {
	base logger.Logger

	mu      sync.Mutex
	loggers map[string]logger.Logger
	owned   []string
}

// NewLoggerRegistry 根据 loggers 配置段创建各组件的独立日志
func NewLoggerRegistry(base logger.Logger, configs map[string]*logger.Config) (*LoggerRegistry, error) {
	if base == nil {
		base = logger.NewNoop()
	}
	r := &LoggerRegistry{
		base:    base,
		loggers: make(map[string]logger.Logger, len(configs)),
	}

	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		l, err := logger.New(configs[name])
		if err != nil {
			return nil, errors.Wrapf(err, "logger %q", name)
		}
		r.loggers[name] = l.Named(name)
		r.owned = append(r.owned, name)
	}
	return r, nil
}

// For 返回组件日志，首次访问未配置的组件时从主日志派生并缓存
func (r *LoggerRegistry) For(component string) logger.Logger {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.loggers[component]; ok {
		return l
	}
	l := r.base.Named(component)
	r.loggers[component] = l
	return l
}

// Configured 拥有独立配置的组件名，已排序
func (r *LoggerRegistry) Configured() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.owned...)
}

// SyncAll 刷新独立配置的日志，派生日志随主日志一起刷新
func (r *LoggerRegistry) SyncAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range r.owned {
		_ = r.loggers[name].Sync()
	}
}
