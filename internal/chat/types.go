package chat

import "strings"

// Message is one inbound chat line pushed by the relay websocket.
type Message struct {
	Msg    string       `json:"msg"`
	Room   string       `json:"room"`
	Sender *string      `json:"sender,omitempty"`
	JSON   *MessageMeta `json:"json,omitempty"`
}

// MessageMeta carries relay-side identifiers for the message author.
type MessageMeta struct {
	UserID  string `json:"user_id,omitempty"`
	ChatID  string `json:"chat_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// SenderName returns the display sender, falling back to the relay user id.
func (m *Message) SenderName() string {
	if m == nil {
		return ""
	}
	if m.Sender != nil {
		if s := strings.TrimSpace(*m.Sender); s != "" {
			return s
		}
	}
	if m.JSON != nil {
		return strings.TrimSpace(m.JSON.UserID)
	}
	return ""
}

// RelayConfig is what GET /config reports.
type RelayConfig struct {
	BotName           string `json:"bot_name,omitempty"`
	Port              int    `json:"bot_http_port"`
	PollingSpeed      int    `json:"db_polling_rate"`
	MessageRate       int    `json:"message_send_rate"`
	WebserverEndpoint string `json:"web_server_endpoint"`
}

// ReplyRequest is the body of POST /reply and the websocket send frame.
type ReplyRequest struct {
	Type string `json:"type"`
	Room string `json:"room"`
	Data string `json:"data"`
}

type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
	StateFailed       ConnState = "failed"
)

type MessageCallback func(msg *Message)

type StateCallback func(state ConnState)

// HeaderProvider supplies identity headers for each request and handshake.
type HeaderProvider func() map[string]string

// StaticHeaders returns a HeaderProvider for a fixed header set.
func StaticHeaders(h map[string]string) HeaderProvider {
	return func() map[string]string { return h }
}
