package sentry

import (
	"regexp"
	"sync"

	"github.com/getsentry/sentry-go"
)

// EventHook 事件上报后回调
type EventHook interface {
	OnCapture(event *sentry.Event)
}

// EventHookFunc 函数式钩子
type EventHookFunc func(event *sentry.Event)

// OnCapture 实现 EventHook
func (f EventHookFunc) OnCapture(event *sentry.Event) {
	f(event)
}

type hookManager struct {
	mu    sync.RWMutex
	hooks []EventHook
}

func (m *hookManager) register(hook EventHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook)
}

// trigger 同步调用，钩子 panic 不影响上报方
func (m *hookManager) trigger(event *sentry.Event) {
	m.mu.RLock()
	hooks := append([]EventHook(nil), m.hooks...)
	m.mu.RUnlock()

	for _, h := range hooks {
		func() {
			defer func() { _ = recover() }()
			h.OnCapture(event)
		}()
	}
}

// 推流地址里的 token 查询参数
var tokenParam = regexp.MustCompile(`((?:access_)?token=)[^&\s"']+`)

func scrub(s string) string {
	return tokenParam.ReplaceAllString(s, "${1}***REDACTED***")
}

// scrubEvent 上报前去掉消息、异常与附加字段里的令牌
func scrubEvent(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	event.Message = scrub(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = scrub(event.Exception[i].Value)
	}
	for k, v := range event.Extra {
		if s, ok := v.(string); ok {
			event.Extra[k] = scrub(s)
		}
	}
	for k, v := range event.Tags {
		event.Tags[k] = scrub(v)
	}
	return event
}
