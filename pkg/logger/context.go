package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxFieldsKey struct{}

// ContextFieldExtractor 从 context 提取字段
type ContextFieldExtractor func(ctx context.Context) []zap.Field

// ContextWithFields 把 key-value 挂到 context 上，*Context 日志方法会自动带出
// 常用于 slot_id、camera_id 这类贯穿一次绑定流程的字段
func ContextWithFields(ctx context.Context, keysAndValues ...interface{}) context.Context {
	fields := toZapFields(keysAndValues...)
	if len(fields) == 0 {
		return ctx
	}
	if prev, ok := ctx.Value(ctxFieldsKey{}).([]zap.Field); ok {
		merged := make([]zap.Field, 0, len(prev)+len(fields))
		merged = append(merged, prev...)
		fields = append(merged, fields...)
	}
	return context.WithValue(ctx, ctxFieldsKey{}, fields)
}

// DefaultContextExtractor 读取 ContextWithFields 写入的字段
func DefaultContextExtractor(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(ctxFieldsKey{}).([]zap.Field)
	out := make([]zap.Field, len(fields))
	copy(out, fields)
	return out
}
