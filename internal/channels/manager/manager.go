// Package manager owns the enabled channels, constructing them from
// config and wiring them to the bus. It lives outside package channels
// so that importing the transport subpackages (which all depend on
// channels for BaseChannel) does not form an import cycle.
package manager

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/perchbot/perch/internal/bus"
	"github.com/perchbot/perch/internal/channels"
	"github.com/perchbot/perch/internal/channels/discord"
	"github.com/perchbot/perch/internal/channels/feishu"
	"github.com/perchbot/perch/internal/channels/telegram"
	"github.com/perchbot/perch/internal/channels/whatsapp"
	"github.com/perchbot/perch/internal/config"
)

// Manager owns the enabled channels: it constructs them from config,
// starts and stops them together, and binds each one's Send to the
// bus's outbound queue for its tag.
type Manager struct {
	bus      *bus.MessageBus
	channels []channels.Channel
}

func NewManager(cfg *config.Config, msgBus *bus.MessageBus) (*Manager, error) {
	m := &Manager{bus: msgBus}

	if cfg.Channels.Telegram.Enabled {
		ch, err := telegram.New(cfg.Channels.Telegram, msgBus)
		if err != nil {
			return nil, fmt.Errorf("telegram channel: %w", err)
		}
		m.channels = append(m.channels, ch)
	}
	if cfg.Channels.Discord.Enabled {
		ch, err := discord.New(cfg.Channels.Discord, msgBus)
		if err != nil {
			return nil, fmt.Errorf("discord channel: %w", err)
		}
		m.channels = append(m.channels, ch)
	}
	if cfg.Channels.WhatsApp.Enabled {
		ch, err := whatsapp.New(cfg.Channels.WhatsApp, msgBus)
		if err != nil {
			return nil, fmt.Errorf("whatsapp channel: %w", err)
		}
		m.channels = append(m.channels, ch)
	}
	if cfg.Channels.Feishu.Enabled {
		ch, err := feishu.New(cfg.Channels.Feishu, msgBus)
		if err != nil {
			return nil, fmt.Errorf("feishu channel: %w", err)
		}
		m.channels = append(m.channels, ch)
	}

	return m, nil
}

// Register adds a channel built outside the config path (e.g. the CLI).
func (m *Manager) Register(ch channels.Channel) {
	m.channels = append(m.channels, ch)
}

// Names returns the names of all managed channels.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.channels))
	for _, ch := range m.channels {
		names = append(names, ch.Name())
	}
	return names
}

// StartAll starts every channel and subscribes it to its outbound tag.
// A channel that fails to start is logged and skipped; the rest of the
// gateway keeps running.
func (m *Manager) StartAll(ctx context.Context) {
	for _, ch := range m.channels {
		if err := ch.Start(ctx); err != nil {
			slog.Error("channel start failed", "channel", ch.Name(), "error", err)
			continue
		}

		ch := ch
		m.bus.SubscribeOutbound(ch.Name(), func(ctx context.Context, msg bus.OutboundMessage) error {
			return ch.Send(ctx, msg)
		})
		slog.Info("channel started", "channel", ch.Name())
	}
}

// StopAll stops every running channel.
func (m *Manager) StopAll(ctx context.Context) {
	for _, ch := range m.channels {
		if !ch.IsRunning() {
			continue
		}
		if err := ch.Stop(ctx); err != nil {
			slog.Error("channel stop failed", "channel", ch.Name(), "error", err)
		}
	}
}
