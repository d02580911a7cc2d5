package rest

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	ErrInvalidConfig   = errors.New("rest: invalid config")
	ErrRequestFailed   = errors.New("rest: http request failed")
	ErrResponseInvalid = errors.New("rest: invalid response")
)

// StatusError 非 2xx 且不属于 401/403 的响应
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	// Detail 后端 {"detail": ...} 字段
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("rest: %s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("rest: %s %s: %d", e.Method, e.Path, e.StatusCode)
}

// NotFound 404
func (e *StatusError) NotFound() bool { return e.StatusCode == 404 }
