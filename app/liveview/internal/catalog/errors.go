package catalog

import "github.com/cockroachdb/errors"

var (
	// ErrCameraUnavailable 摄像头不存在或已停用
	ErrCameraUnavailable = errors.New("catalog: camera unavailable")
	ErrInvalidConfig     = errors.New("catalog: invalid config")
)
