package session

import "github.com/cockroachdb/errors"

var (
	// ErrDuplicateBinding 摄像头已绑定在其他显示位
	ErrDuplicateBinding = errors.New("session: camera already bound to another slot")
	ErrSlotNotFound     = errors.New("session: slot not found")
	ErrInvalidLayout    = errors.New("session: invalid layout")
	ErrManagerClosed    = errors.New("session: manager closed")
)
