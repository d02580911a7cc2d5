package config

import (
	"reflect"

	"github.com/cockroachdb/errors"
)

// MergeConfig 深度合并配置，src 中的非零值覆盖 dst
//   - dst、src 都为 nil 返回 ErrNilConfig
//   - 任一为 nil 时返回另一个
//   - 切片整体覆盖，map 按 key 合并，bool 的 false 视为未设置
//
// 合并结果写回 dst 并返回 dst
func MergeConfig[T any](dst, src *T) (*T, error) {
	switch {
	case dst == nil && src == nil:
		return nil, ErrNilConfig
	case dst == nil:
		return src, nil
	case src == nil:
		return dst, nil
	}

	if err := merge(reflect.ValueOf(dst).Elem(), reflect.ValueOf(src).Elem(), ""); err != nil {
		return nil, errors.Mark(err, ErrMergeFailed)
	}
	return dst, nil
}

func merge(dst, src reflect.Value, path string) error {
	if !src.IsValid() || src.IsZero() {
		return nil
	}
	if dst.Kind() != src.Kind() {
		return errors.Newf("kind mismatch at %q: %s vs %s", path, dst.Kind(), src.Kind())
	}

	switch dst.Kind() {
	case reflect.Struct:
		t := src.Type()
		for i := 0; i < src.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			df := dst.FieldByName(f.Name)
			if !df.IsValid() || !df.CanSet() {
				continue
			}
			if err := merge(df, src.Field(i), join(path, f.Name)); err != nil {
				return err
			}
		}

	case reflect.Map:
		if dst.IsNil() {
			dst.Set(reflect.MakeMapWithSize(dst.Type(), src.Len()))
		}
		iter := src.MapRange()
		for iter.Next() {
			existing := dst.MapIndex(iter.Key())
			if !existing.IsValid() {
				dst.SetMapIndex(iter.Key(), iter.Value())
				continue
			}
			// map 元素不可寻址，复制一份再合并
			slot := reflect.New(dst.Type().Elem()).Elem()
			slot.Set(existing)
			if err := merge(slot, iter.Value(), join(path, "[key]")); err != nil {
				return err
			}
			dst.SetMapIndex(iter.Key(), slot)
		}

	case reflect.Ptr:
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return merge(dst.Elem(), src.Elem(), path)

	default:
		// 切片与标量直接覆盖
		if dst.CanSet() {
			dst.Set(src)
		}
	}
	return nil
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
