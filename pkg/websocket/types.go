// pkg/websocket/types.go
package websocket

import "github.com/gorilla/websocket"

// MessageType 消息类型
type MessageType int

const (
	MessageTypeText   MessageType = websocket.TextMessage
	MessageTypeBinary MessageType = websocket.BinaryMessage
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeText:
		return "text"
	case MessageTypeBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// 关闭码，与 RFC 6455 一致
const (
	CloseNormalClosure   = websocket.CloseNormalClosure   // 1000
	CloseGoingAway       = websocket.CloseGoingAway       // 1001
	CloseAbnormalClosure = websocket.CloseAbnormalClosure // 1006
	ClosePolicyViolation = websocket.ClosePolicyViolation // 1008
	CloseInternalError   = websocket.CloseInternalServerErr
)
