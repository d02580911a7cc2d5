// pkg/websocket/message.go
package websocket

import "time"

// Message 收到的一条 WebSocket 消息
type Message struct {
	Type       MessageType
	Data       []byte
	ReceivedAt time.Time
}

// Len 返回消息数据长度
func (m *Message) Len() int {
	return len(m.Data)
}

// String 返回消息数据的字符串表示
func (m *Message) String() string {
	return string(m.Data)
}
