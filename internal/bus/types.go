package bus

// ChannelSystem is the reserved channel for internally-originated turns
// (subagent completions, cron fires, heartbeats). ChannelCLI is the
// direct stdin/stdout channel.
const (
	ChannelSystem = "system"
	ChannelCLI    = "cli"
)

// InboundMessage represents a message received from a channel (Telegram, Discord, etc.)
type InboundMessage struct {
	Channel   string            `json:"channel"`
	SenderID  string            `json:"sender_id"`
	ChatID    string            `json:"chat_id"`
	Content   string            `json:"content"`
	Timestamp int64             `json:"timestamp,omitempty"` // unix ms
	Media     []string          `json:"media,omitempty"`     // local file paths
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// SessionKey derives the conversation identity for this message.
func (m InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

// OutboundMessage represents a message to be sent to a channel.
type OutboundMessage struct {
	Channel  string            `json:"channel"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	ReplyTo  string            `json:"reply_to,omitempty"`
	Media    []string          `json:"media,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
