package config

import "github.com/cockroachdb/errors"

// WatchKey 监听文件变化并重新解析 key 对应的配置段
// 解析失败时 fn 收到 nil 和错误，调用方保留旧值
func WatchKey[T any](m Manager, key string, fn func(*T, error)) error {
	if m == nil {
		return ErrNilConfig
	}
	return m.Watch(func() {
		var next T
		if err := m.UnmarshalKey(key, &next); err != nil {
			fn(nil, errors.Wrapf(err, "reload %s", key))
			return
		}
		fn(&next, nil)
	})
}
