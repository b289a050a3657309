// Package feishu connects to a Feishu bridge over WebSocket, the same
// frame protocol as the WhatsApp bridge plus app credentials in the
// handshake.
package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
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
	cfg    config.FeishuConfig
	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
}

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

func New(cfg config.FeishuConfig, msgBus *bus.MessageBus) (*Channel, error) {
	if cfg.BridgeURL == "" {
		return nil, fmt.Errorf("feishu bridgeUrl is required")
	}
	return &Channel{
		BaseChannel: channels.NewBaseChannel("feishu", msgBus, cfg.AllowFrom),
		cfg:         cfg,
	}, nil
}

func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting feishu channel", "bridge_url", c.cfg.BridgeURL)

	ctx, c.cancel = context.WithCancel(ctx)
	if err := c.connect(); err != nil {
		slog.Warn("initial feishu bridge connection failed, will retry", "error", err)
	}

	go c.listenLoop(ctx)
	c.SetRunning(true)
	return nil
}

func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping feishu channel")
	if c.cancel != nil {
		c.cancel()
	}
	c.closeConn()
	c.SetRunning(false)
	return nil
}

func (c *Channel) Send(_ context.Context, msg bus.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("feishu bridge not connected")
	}

	data, err := json.Marshal(bridgeFrame{
		Type:    "message",
		To:      msg.ChatID,
		Content: msg.Content,
	})
	if err != nil {
		return fmt.Errorf("marshal feishu message: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send feishu message: %w", err)
	}
	return nil
}

// connect dials the bridge with the app credentials in the handshake
// headers so the bridge can authenticate against the Feishu API.
func (c *Channel) connect() error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	header := http.Header{}
	if c.cfg.AppID != "" {
		header.Set("X-App-ID", c.cfg.AppID)
		header.Set("X-App-Secret", c.cfg.AppSecret)
	}

	conn, _, err := dialer.Dial(c.cfg.BridgeURL, header)
	if err != nil {
		return fmt.Errorf("dial feishu bridge %s: %w", c.cfg.BridgeURL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	slog.Info("feishu bridge connected", "url", c.cfg.BridgeURL)
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
				slog.Warn("feishu bridge reconnect failed", "error", err)
			}
			continue
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("feishu read error, will reconnect", "error", err)
			c.closeConn()
			continue
		}

		var frame bridgeFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Warn("invalid feishu bridge frame", "error", err)
			continue
		}
		if frame.Type == "message" {
			c.handleFrame(frame)
		}
	}
}

func (c *Channel) handleFrame(frame bridgeFrame) {
	if frame.From == "" || frame.Content == "" {
		return
	}
	chatID := frame.Chat
	if chatID == "" {
		chatID = frame.From
	}

	metadata := map[string]string{}
	if frame.ID != "" {
		metadata["message_id"] = frame.ID
	}
	if frame.FromName != "" {
		metadata["user_name"] = frame.FromName
	}

	slog.Debug("feishu message received",
		"sender_id", frame.From,
		"chat_id", chatID,
		"preview", channels.Truncate(frame.Content, 60),
	)

	c.HandleMessage(frame.From, chatID, frame.Content, frame.Media, metadata)
}
