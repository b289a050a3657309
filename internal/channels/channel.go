// Package channels provides the transport abstraction layer. Channels
// connect external platforms (Telegram, Discord, WhatsApp, Feishu, the
// local CLI) to the agent runtime via the message bus.
package channels

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/perchbot/perch/internal/bus"
)

// Channel defines the interface all transport implementations satisfy.
type Channel interface {
	// Name returns the channel identifier (e.g. "telegram", "discord").
	Name() string

	// Start begins listening for messages. Non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// Send delivers an outbound message on the transport.
	Send(ctx context.Context, msg bus.OutboundMessage) error

	// IsRunning reports whether the channel is actively processing.
	IsRunning() bool
}

// BaseChannel provides the shared behavior transports embed: identity,
// bus access, allow-list enforcement, and inbound publication.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	running   bool
	allowList []string
}

func NewBaseChannel(name string, msgBus *bus.MessageBus, allowList []string) *BaseChannel {
	return &BaseChannel{name: name, bus: msgBus, allowList: allowList}
}

// Name returns the channel name.
func (c *BaseChannel) Name() string { return c.name }

// IsRunning reports whether the channel is running.
func (c *BaseChannel) IsRunning() bool { return c.running }

// SetRunning updates the running state.
func (c *BaseChannel) SetRunning(running bool) { c.running = running }

// Bus returns the message bus reference.
func (c *BaseChannel) Bus() *bus.MessageBus { return c.bus }

// IsAllowed checks the sender against the allow-list. An empty list
// admits everyone. Both sides may use the compound "id|username" form;
// any component matching any component of an allowed entry passes.
// A leading "@" on allowed usernames is ignored.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}

	senderParts := strings.Split(senderID, "|")
	for _, allowed := range c.allowList {
		allowed = strings.TrimPrefix(allowed, "@")
		for _, allowedPart := range strings.Split(allowed, "|") {
			if allowedPart == "" {
				continue
			}
			if senderID == allowedPart {
				return true
			}
			for _, part := range senderParts {
				if part == allowedPart {
					return true
				}
			}
		}
	}
	return false
}

// HandleMessage applies the allow-list and publishes an InboundMessage.
// Denied events are logged and dropped.
func (c *BaseChannel) HandleMessage(senderID, chatID, content string, media []string, metadata map[string]string) {
	if !c.IsAllowed(senderID) {
		slog.Warn("message rejected by allow-list", "channel", c.name, "sender", senderID)
		return
	}

	c.bus.PublishInbound(bus.InboundMessage{
		Channel:   c.name,
		SenderID:  senderID,
		ChatID:    chatID,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
		Media:     media,
		Metadata:  metadata,
	})
}

// Truncate shortens a string to maxLen, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
