package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/perchbot/perch/internal/bus"
	"github.com/perchbot/perch/internal/config"
	"github.com/perchbot/perch/internal/cron"
	"github.com/perchbot/perch/internal/providers"
	"github.com/perchbot/perch/internal/sessions"
	"github.com/perchbot/perch/internal/tools"
)

const (
	noResponseFallback = "I've completed processing but have no response to give."
	backgroundFallback = "Background task completed."
)

// Loop is the message-processing engine: it consumes inbound messages,
// drives the LLM+tool iteration, publishes replies, and persists
// session history.
type Loop struct {
	bus           *bus.MessageBus
	provider      providers.Provider
	model         string
	maxIterations int
	workspace     string

	context   *ContextBuilder
	sessions  *sessions.Manager
	registry  *tools.Registry
	subagents *SubagentManager
}

func NewLoop(cfg *config.Config, msgBus *bus.MessageBus, provider providers.Provider, cronStore *cron.Store) (*Loop, error) {
	model := cfg.Agent.Model
	if model == "" {
		model = provider.DefaultModel()
	}
	maxIterations := cfg.Agent.MaxToolIterations
	if maxIterations <= 0 {
		maxIterations = 20
	}

	workspace := cfg.WorkspacePath()
	sessionManager, err := sessions.NewManager(cfg.SessionsPath())
	if err != nil {
		return nil, err
	}

	restrict := cfg.RestrictToWorkspace()
	execTimeout := time.Duration(cfg.Tools.Exec.TimeoutSec) * time.Second

	l := &Loop{
		bus:           msgBus,
		provider:      provider,
		model:         model,
		maxIterations: maxIterations,
		workspace:     workspace,
		context:       NewContextBuilder(cfg.Agent.Name, workspace, cfg.Agent.BuiltinSkillsDir),
		sessions:      sessionManager,
	}
	l.subagents = NewSubagentManager(provider, model, workspace, msgBus, cfg.Tools.Web.Brave.APIKey, execTimeout, restrict)
	l.registry = l.buildRegistry(cfg, execTimeout, restrict, cronStore)
	return l, nil
}

// Context exposes the context builder (used by CLI subcommands).
func (l *Loop) Context() *ContextBuilder { return l.context }

// Sessions exposes the session manager.
func (l *Loop) Sessions() *sessions.Manager { return l.sessions }

func (l *Loop) buildRegistry(cfg *config.Config, execTimeout time.Duration, restrict bool, cronStore *cron.Store) *tools.Registry {
	registry := tools.NewRegistry()

	registry.Register(tools.NewReadFileTool(l.workspace, restrict))
	registry.Register(tools.NewWriteFileTool(l.workspace, restrict))
	registry.Register(tools.NewEditFileTool(l.workspace, restrict))
	registry.Register(tools.NewListDirTool(l.workspace, restrict))
	registry.Register(tools.NewExecTool(l.workspace, restrict, execTimeout))

	if cfg.Tools.Web.Brave.APIKey != "" {
		registry.Register(tools.NewWebSearchTool(cfg.Tools.Web.Brave.APIKey, cfg.Tools.Web.Brave.MaxResults))
	}
	registry.Register(tools.NewWebFetchTool(0))

	registry.Register(tools.NewSendMessageTool(l.bus.PublishOutbound))
	registry.Register(tools.NewSpawnTool(l.subagents))
	if cronStore != nil {
		registry.Register(tools.NewCronTool(cronStore))
	}
	return registry
}

// Run consumes inbound messages until ctx is cancelled. A failure in
// one message produces an apology reply and never stops the loop.
func (l *Loop) Run(ctx context.Context) {
	slog.Info("agent loop started", "model", l.model, "tools", l.registry.Names())

	for {
		msg, ok := l.bus.ConsumeInbound(ctx)
		if !ok {
			slog.Info("agent loop stopped")
			return
		}

		reply, err := l.processMessage(ctx, msg)
		if err != nil {
			slog.Error("message processing failed", "channel", msg.Channel, "error", err)
			l.bus.PublishOutbound(bus.OutboundMessage{
				Channel: msg.Channel,
				ChatID:  msg.ChatID,
				Content: "Sorry, I encountered an error: " + err.Error(),
			})
			continue
		}
		if reply != nil {
			l.bus.PublishOutbound(*reply)
		}
	}
}

func (l *Loop) processMessage(ctx context.Context, msg bus.InboundMessage) (*bus.OutboundMessage, error) {
	if msg.Channel == bus.ChannelSystem {
		return l.processSystemMessage(ctx, msg)
	}

	slog.Info("processing message", "channel", msg.Channel, "sender", msg.SenderID)

	session := l.sessions.GetOrCreate(msg.SessionKey())
	l.registry.SetContext(msg.Channel, msg.ChatID)

	messages := l.context.BuildMessages(session.History(50), msg.Content, msg.Media, msg.Channel, msg.ChatID)

	final, err := l.iterate(ctx, messages)
	if err != nil {
		return nil, err
	}
	if final == "" {
		final = noResponseFallback
	}

	session.AddMessage("user", msg.Content, nil)
	session.AddMessage("assistant", final, nil)
	if err := l.sessions.Save(session); err != nil {
		slog.Error("session save failed", "key", session.Key, "error", err)
	}

	return &bus.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID, Content: final}, nil
}

// processSystemMessage handles internal events (subagent results, cron
// agent turns). The origin conversation is encoded in chat_id as
// "channel:chat_id"; unparseable values fall back to the CLI so the
// message is never lost.
func (l *Loop) processSystemMessage(ctx context.Context, msg bus.InboundMessage) (*bus.OutboundMessage, error) {
	slog.Info("processing system message", "sender", msg.SenderID)

	originChannel, originChatID, ok := strings.Cut(msg.ChatID, ":")
	if !ok {
		originChannel = bus.ChannelCLI
		originChatID = msg.ChatID
	}

	sessionKey := originChannel + ":" + originChatID
	session := l.sessions.GetOrCreate(sessionKey)
	l.registry.SetContext(originChannel, originChatID)

	messages := l.context.BuildMessages(session.History(50), msg.Content, nil, originChannel, originChatID)

	final, err := l.iterate(ctx, messages)
	if err != nil {
		return nil, err
	}
	if final == "" {
		final = backgroundFallback
	}

	// Mark the system origin in history so replies triggered by
	// background tasks stay traceable.
	session.AddMessage("user", fmt.Sprintf("[System: %s] %s", msg.SenderID, msg.Content), nil)
	session.AddMessage("assistant", final, nil)
	if err := l.sessions.Save(session); err != nil {
		slog.Error("session save failed", "key", session.Key, "error", err)
	}

	return &bus.OutboundMessage{Channel: originChannel, ChatID: originChatID, Content: final}, nil
}

// iterate runs the LLM+tool loop until the model answers in plain text
// or the iteration budget runs out.
func (l *Loop) iterate(ctx context.Context, messages []providers.Message) (string, error) {
	for iteration := 0; iteration < l.maxIterations; iteration++ {
		resp, err := l.provider.Chat(ctx, providers.ChatRequest{
			Messages: messages,
			Tools:    l.registry.Definitions(),
			Model:    l.model,
		})
		if err != nil {
			resp = providers.ErrorResponse(err)
		}

		// A provider failure is a terminal response: its descriptive
		// content goes to the user and into history like any reply.
		if resp.FinishReason == "error" || len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		messages = AppendAssistant(messages, resp.Content, resp.ToolCalls)
		for _, tc := range resp.ToolCalls {
			slog.Debug("executing tool", "tool", tc.Name)
			result := l.registry.Execute(ctx, tc.Name, tc.Arguments)
			messages = AppendToolResult(messages, tc.ID, tc.Name, result)
		}
	}
	return "", nil
}

// ProcessDirect feeds one message through the loop synchronously and
// returns the reply. Used by the CLI, heartbeat, and cron runner. The
// session key is derived from channel:chat_id as usual.
func (l *Loop) ProcessDirect(ctx context.Context, content, channel, chatID string) (string, error) {
	if channel == "" {
		channel = bus.ChannelCLI
	}
	if chatID == "" {
		chatID = "direct"
	}

	reply, err := l.processMessage(ctx, bus.InboundMessage{
		Channel:   channel,
		SenderID:  "user",
		ChatID:    chatID,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return "", err
	}
	if reply == nil {
		return "", nil
	}
	return reply.Content, nil
}
