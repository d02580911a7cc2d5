package session

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Layout 画面布局
type Layout string

const (
	LayoutSingle Layout = "single"
	LayoutSplit  Layout = "split"
	LayoutQuad   Layout = "quad"
)

// Capacity 布局对应的显示位数量，未知布局为 0
func (l Layout) Capacity() int {
	switch l {
	case LayoutSingle:
		return 1
	case LayoutSplit:
		return 2
	case LayoutQuad:
		return 4
	default:
		return 0
	}
}

func (l Layout) String() string { return string(l) }

// ParseLayout 解析布局，同时接受 1/2/4
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single", "1":
		return LayoutSingle, nil
	case "split", "2":
		return LayoutSplit, nil
	case "quad", "4":
		return LayoutQuad, nil
	}
	return "", errors.Wrapf(ErrInvalidLayout, "%q", s)
}

func (l *Layout) UnmarshalText(b []byte) error {
	parsed, err := ParseLayout(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
