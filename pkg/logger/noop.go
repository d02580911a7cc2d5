// pkg/logger/noop.go
package logger

import "context"

var _ Logger = (*NoopLogger)(nil)

// NoopLogger 丢弃所有输出，作为各组件未注入 logger 时的默认值
type NoopLogger struct{}

func NewNoop() *NoopLogger { return &NoopLogger{} }

func (l *NoopLogger) Debug(string, ...interface{}) {}
func (l *NoopLogger) Info(string, ...interface{})  {}
func (l *NoopLogger) Warn(string, ...interface{})  {}
func (l *NoopLogger) Error(string, ...interface{}) {}

func (l *NoopLogger) DebugContext(context.Context, string, ...interface{}) {}
func (l *NoopLogger) InfoContext(context.Context, string, ...interface{})  {}
func (l *NoopLogger) WarnContext(context.Context, string, ...interface{})  {}
func (l *NoopLogger) ErrorContext(context.Context, string, ...interface{}) {}

func (l *NoopLogger) Named(string) Logger               { return l }
func (l *NoopLogger) WithFields(...interface{}) Logger { return l }
func (l *NoopLogger) Sync() error                       { return nil }

// OrNoop nil 时返回 NoopLogger
func OrNoop(l Logger) Logger {
	if l == nil {
		return NewNoop()
	}
	return l
}
