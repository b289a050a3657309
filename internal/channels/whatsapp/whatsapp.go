// Package whatsapp connects to a WhatsApp bridge over WebSocket. The
// bridge handles the WhatsApp protocol; this channel exchanges JSON
// frames with it.
package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/perchbot/perch/internal/bus"
	"github.com/perchbot/perch/internal/channels"
	"github.com/perchbot/perch/internal/config"
)

const reconnectDelay = 5 * time.Second

type Channel struct {
	*channels.BaseChannel
	cfg    config.WhatsAppConfig
	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
}

// bridgeFrame is the JSON message format spoken with the bridge.
type bridgeFrame struct {
	Type     string   `json:"type"`
	From     string   `json:"from,omitempty"`
	FromName string   `json:"from_name,omitempty"`
	Chat     string   `json:"chat,omitempty"`
	To       string   `json:"to,omitempty"`
	Content  string   `json:"content,omitempty"`
	ID       string   `json:"id,omitempty"`
	Media    []string `json:"media,omitempty"`
}

func New(cfg config.WhatsAppConfig, msgBus *bus.MessageBus) (*Channel, error) {
	if cfg.BridgeURL == "" {
		return nil, fmt.Errorf("whatsapp bridgeUrl is required")
	}
	return &Channel{
		BaseChannel: channels.NewBaseChannel("whatsapp", msgBus, cfg.AllowFrom),
		cfg:         cfg,
	}, nil
}

// Start connects to the bridge and launches the read loop. A failed
// initial connection is retried by the loop rather than failing the
// gateway.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting whatsapp channel", "bridge_url", c.cfg.BridgeURL)

	ctx, c.cancel = context.WithCancel(ctx)
	if err := c.connect(); err != nil {
		slog.Warn("initial whatsapp bridge connection failed, will retry", "error", err)
	}

	go c.listenLoop(ctx)
	c.SetRunning(true)
	return nil
}

func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping whatsapp channel")
	if c.cancel != nil {
		c.cancel()
	}
	c.closeConn()
	c.SetRunning(false)
	return nil
}

// Send writes an outbound frame to the bridge.
func (c *Channel) Send(_ context.Context, msg bus.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("whatsapp bridge not connected")
	}

	data, err := json.Marshal(bridgeFrame{
		Type:    "message",
		To:      msg.ChatID,
		Content: msg.Content,
	})
	if err != nil {
		return fmt.Errorf("marshal whatsapp message: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send whatsapp message: %w", err)
	}
	return nil
}

func (c *Channel) connect() error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(c.cfg.BridgeURL, nil)
	if err != nil {
		return fmt.Errorf("dial whatsapp bridge %s: %w", c.cfg.BridgeURL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	slog.Info("whatsapp bridge connected", "url", c.cfg.BridgeURL)
	return nil
}

func (c *Channel) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// listenLoop reads bridge frames, reconnecting on failure with a fixed
// delay.
func (c *Channel) listenLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
			if err := c.connect(); err != nil {
				slog.Warn("whatsapp bridge reconnect failed", "error", err)
			}
			continue
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("whatsapp read error, will reconnect", "error", err)
			c.closeConn()
			continue
		}

		var frame bridgeFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Warn("invalid whatsapp bridge frame", "error", err)
			continue
		}
		if frame.Type == "message" {
			c.handleFrame(frame)
		}
	}
}

func (c *Channel) handleFrame(frame bridgeFrame) {
	if frame.From == "" {
		return
	}
	chatID := frame.Chat
	if chatID == "" {
		chatID = frame.From
	}
	content := frame.Content
	if content == "" && len(frame.Media) == 0 {
		return
	}

	metadata := map[string]string{}
	if frame.ID != "" {
		metadata["message_id"] = frame.ID
	}
	if frame.FromName != "" {
		metadata["user_name"] = frame.FromName
	}

	slog.Debug("whatsapp message received",
		"sender_id", frame.From,
		"chat_id", chatID,
		"preview", channels.Truncate(content, 60),
	)

	c.HandleMessage(frame.From, chatID, content, frame.Media, metadata)
}
