package logger

import "io"

// Option 配置选项
type Option func(*BaseLogger)

// WithName 设置 logger 名称
func WithName(name string) Option {
	return func(l *BaseLogger) {
		l.name = name
	}
}

// WithGlobalFields 添加全局字段
func WithGlobalFields(keysAndValues ...interface{}) Option {
	return func(l *BaseLogger) {
		for i := 0; i+1 < len(keysAndValues); i += 2 {
			if key, ok := keysAndValues[i].(string); ok {
				l.globalFields[key] = keysAndValues[i+1]
			}
		}
	}
}

// WithHooks 添加钩子
func WithHooks(hooks ...Hook) Option {
	return func(l *BaseLogger) {
		l.hooks = append(l.hooks, hooks...)
	}
}

// WithWriter 额外输出目标，与控制台、文件并存
func WithWriter(w io.Writer) Option {
	return func(l *BaseLogger) {
		l.writers = append(l.writers, w)
	}
}

// WithContextExtractor 替换默认的 context 字段提取器
func WithContextExtractor(fn ContextFieldExtractor) Option {
	return func(l *BaseLogger) {
		if fn != nil {
			l.contextExtractor = fn
		}
	}
}
