package irisfast

import "strings"

// Message is an inbound chat event pushed by the Iris bridge.
type Message struct {
	Msg    string       `json:"msg"`
	Room   string       `json:"room"`
	Sender *string      `json:"sender,omitempty"`
	JSON   *MessageJSON `json:"json,omitempty"`
}

// MessageJSON is the raw KakaoTalk chat log attached to a message.
type MessageJSON struct {
	UserID   string `json:"user_id"`
	ChatID   string `json:"chat_id,omitempty"`
	ThreadID string `json:"thread_id,omitempty"`
}

// UserName is the display name, falling back to the user id.
func (m *Message) UserName() string {
	if m.Sender != nil && strings.TrimSpace(*m.Sender) != "" {
		return strings.TrimSpace(*m.Sender)
	}
	if m.JSON != nil {
		return strings.TrimSpace(m.JSON.UserID)
	}
	return ""
}

// Thread is the reply thread the message belongs to, if any.
func (m *Message) Thread() string {
	if m.JSON == nil {
		return ""
	}
	return strings.TrimSpace(m.JSON.ThreadID)
}

// ReplyRequest is the body of POST /reply and of outbound websocket frames.
type ReplyRequest struct {
	Type     string `json:"type"`
	Room     string `json:"room"`
	Data     string `json:"data"`
	ThreadID string `json:"threadId,omitempty"`
}

type WebSocketState int

const (
	WSStateDisconnected WebSocketState = iota
	WSStateConnecting
	WSStateConnected
	WSStateReconnecting
	WSStateFailed
)

func (s WebSocketState) String() string {
	switch s {
	case WSStateDisconnected:
		return "disconnected"
	case WSStateConnecting:
		return "connecting"
	case WSStateConnected:
		return "connected"
	case WSStateReconnecting:
		return "reconnecting"
	case WSStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
