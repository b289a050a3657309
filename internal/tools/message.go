package tools

import (
	"context"
	"sync"

	"github.com/perchbot/perch/internal/bus"
)

// SendMessageTool lets the model push an extra message to the
// originating transport mid-turn. Routing follows the current turn
// context unless overridden by arguments.
type SendMessageTool struct {
	publish func(bus.OutboundMessage)

	mu      sync.Mutex
	channel string
	chatID  string
}

func NewSendMessageTool(publish func(bus.OutboundMessage)) *SendMessageTool {
	return &SendMessageTool{publish: publish}
}

// SetContext rebinds the tool to the current turn's routing coordinates.
func (t *SendMessageTool) SetContext(channel, chatID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.channel = channel
	t.chatID = chatID
}

func (t *SendMessageTool) Name() string { return "message" }
func (t *SendMessageTool) Description() string {
	return "Send a message to the user immediately, before the turn completes"
}
func (t *SendMessageTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{
				"type":        "string",
				"description": "The message text to send",
			},
			"channel": map[string]any{
				"type":        "string",
				"description": "Optional channel override (defaults to the current conversation)",
			},
			"chat_id": map[string]any{
				"type":        "string",
				"description": "Optional chat ID override (defaults to the current conversation)",
			},
		},
		"required": []string{"content"},
	}
}

func (t *SendMessageTool) Execute(ctx context.Context, args map[string]any) *Result {
	content, _ := args["content"].(string)
	if content == "" {
		return ErrorResult("content is required")
	}

	t.mu.Lock()
	channel, chatID := t.channel, t.chatID
	t.mu.Unlock()

	if v, _ := args["channel"].(string); v != "" {
		channel = v
	}
	if v, _ := args["chat_id"].(string); v != "" {
		chatID = v
	}
	if channel == "" || chatID == "" {
		return ErrorResult("no conversation context available to route the message")
	}

	t.publish(bus.OutboundMessage{
		Channel: channel,
		ChatID:  chatID,
		Content: content,
	})

	return SilentResult("Message sent.")
}
