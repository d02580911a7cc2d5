package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const redacted = "***REDACTED***"

// Hook 日志钩子，在写入前回调
// 返回 false 则丢弃该条日志
type Hook interface {
	OnWrite(entry zapcore.Entry, fields []zapcore.Field) bool
}

// HookFunc 函数式 Hook
type HookFunc func(entry zapcore.Entry, fields []zapcore.Field) bool

func (f HookFunc) OnWrite(entry zapcore.Entry, fields []zapcore.Field) bool {
	return f(entry, fields)
}

// HookedCore 带钩子的 Core
type HookedCore struct {
	zapcore.Core
	hooks []Hook
}

// NewHookedCore 创建带钩子的 Core
func NewHookedCore(core zapcore.Core, hooks ...Hook) zapcore.Core {
	return &HookedCore{Core: core, hooks: hooks}
}

func (h *HookedCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if h.Enabled(entry.Level) {
		return ce.AddCore(entry, h)
	}
	return ce
}

func (h *HookedCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	for _, hook := range h.hooks {
		if !hook.OnWrite(entry, fields) {
			return nil
		}
	}
	return h.Core.Write(entry, fields)
}

// With 通过 WithFields 固定下来的字段同样经过钩子处理
func (h *HookedCore) With(fields []zapcore.Field) zapcore.Core {
	for _, hook := range h.hooks {
		hook.OnWrite(zapcore.Entry{}, fields)
	}
	return &HookedCore{Core: h.Core.With(fields), hooks: h.hooks}
}

// RedactHook 凭据脱敏，命中的字段值被替换为固定字符串
func RedactHook(keys ...string) Hook {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[strings.ToLower(k)] = struct{}{}
	}

	return HookFunc(func(_ zapcore.Entry, fields []zapcore.Field) bool {
		for i := range fields {
			if _, ok := set[strings.ToLower(fields[i].Key)]; ok {
				fields[i] = zap.String(fields[i].Key, redacted)
			}
		}
		return true
	})
}

// LevelFilterHook 丢弃低于 min 的日志，用于给单个子系统降噪
func LevelFilterHook(min Level) Hook {
	lvl := parseLevel(min)
	return HookFunc(func(entry zapcore.Entry, _ []zapcore.Field) bool {
		return entry.Level >= lvl
	})
}
