package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/perchbot/perch/internal/bus"
	"github.com/perchbot/perch/internal/providers"
	"github.com/perchbot/perch/internal/tools"
)

const subagentMaxIterations = 15

// SubagentManager runs background tasks in isolated goroutines. Each
// subagent gets its own registry without the message, spawn, or cron
// tools, so it cannot contact users or recurse.
type SubagentManager struct {
	provider  providers.Provider
	model     string
	workspace string
	bus       *bus.MessageBus

	braveAPIKey string
	execTimeout time.Duration
	restrict    bool

	mu      sync.Mutex
	running map[string]string // id -> label
}

func NewSubagentManager(provider providers.Provider, model, workspace string, msgBus *bus.MessageBus, braveAPIKey string, execTimeout time.Duration, restrict bool) *SubagentManager {
	if model == "" {
		model = provider.DefaultModel()
	}
	return &SubagentManager{
		provider:    provider,
		model:       model,
		workspace:   workspace,
		bus:         msgBus,
		braveAPIKey: braveAPIKey,
		execTimeout: execTimeout,
		restrict:    restrict,
		running:     make(map[string]string),
	}
}

// Spawn starts a background task and returns the acknowledgement the
// model relays to the user. The result arrives later as a system
// message routed back to the origin conversation.
func (m *SubagentManager) Spawn(ctx context.Context, task, label, originChannel, originChatID string) string {
	id := uuid.NewString()[:8]
	if label == "" {
		label = task
		// Rune-based so a multibyte task title is not cut mid-character.
		if runes := []rune(label); len(runes) > 30 {
			label = string(runes[:30]) + "..."
		}
	}

	m.mu.Lock()
	m.running[id] = label
	m.mu.Unlock()

	go m.run(ctx, id, task, label, originChannel, originChatID)

	slog.Info("subagent spawned", "id", id, "label", label)
	return fmt.Sprintf("Subagent [%s] started (id: %s). I'll notify you when it completes.", label, id)
}

// RunningCount returns the number of in-flight subagents.
func (m *SubagentManager) RunningCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}

func (m *SubagentManager) run(ctx context.Context, id, task, label, originChannel, originChatID string) {
	defer func() {
		m.mu.Lock()
		delete(m.running, id)
		m.mu.Unlock()
	}()

	slog.Info("subagent starting", "id", id, "label", label)

	result, err := m.execute(ctx, task)
	status := "ok"
	if err != nil {
		status = "error"
		result = "Error: " + err.Error()
		slog.Error("subagent failed", "id", id, "error", err)
	} else {
		slog.Info("subagent completed", "id", id)
	}

	m.announce(id, task, label, result, status, originChannel, originChatID)
}

func (m *SubagentManager) execute(ctx context.Context, task string) (string, error) {
	registry := m.buildRegistry()

	messages := []providers.Message{
		{Role: "system", Content: m.subagentPrompt(task)},
		{Role: "user", Content: task},
	}

	for iteration := 0; iteration < subagentMaxIterations; iteration++ {
		resp, err := m.provider.Chat(ctx, providers.ChatRequest{
			Messages: messages,
			Tools:    registry.Definitions(),
			Model:    m.model,
		})
		if err != nil {
			return "", err
		}

		if len(resp.ToolCalls) == 0 {
			if resp.FinishReason == "error" {
				return "", fmt.Errorf("%s", resp.Content)
			}
			return resp.Content, nil
		}

		messages = AppendAssistant(messages, resp.Content, resp.ToolCalls)
		for _, tc := range resp.ToolCalls {
			result := registry.Execute(ctx, tc.Name, tc.Arguments)
			messages = AppendToolResult(messages, tc.ID, tc.Name, result)
		}
	}

	return "Task completed but no final response was generated.", nil
}

// buildRegistry assembles the restricted subagent tool set.
func (m *SubagentManager) buildRegistry() *tools.Registry {
	registry := tools.NewRegistry()
	registry.Register(tools.NewReadFileTool(m.workspace, m.restrict))
	registry.Register(tools.NewWriteFileTool(m.workspace, m.restrict))
	registry.Register(tools.NewListDirTool(m.workspace, m.restrict))
	registry.Register(tools.NewExecTool(m.workspace, m.restrict, m.execTimeout))
	if m.braveAPIKey != "" {
		registry.Register(tools.NewWebSearchTool(m.braveAPIKey, 0))
	}
	registry.Register(tools.NewWebFetchTool(0))
	return registry
}

// announce routes the result back through the bus as a system message;
// the main loop summarizes it for the origin conversation.
func (m *SubagentManager) announce(id, task, label, result, status, originChannel, originChatID string) {
	statusText := "completed successfully"
	if status != "ok" {
		statusText = "failed"
	}

	content := fmt.Sprintf(`[Subagent '%s' %s]

Task: %s

Result:
%s

Summarize this naturally for the user. Keep it brief (1-2 sentences). Do not mention technical details like "subagent" or task IDs.`,
		label, statusText, task, result)

	m.bus.PublishInbound(bus.InboundMessage{
		Channel:   bus.ChannelSystem,
		SenderID:  "subagent",
		ChatID:    originChannel + ":" + originChatID,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	})
	slog.Debug("subagent result announced", "id", id, "origin", originChannel+":"+originChatID)
}

func (m *SubagentManager) subagentPrompt(task string) string {
	return fmt.Sprintf(`# Subagent

You are a subagent spawned by the main agent to complete a specific task.

## Your Task
%s

## Rules
1. Stay focused - complete only the assigned task, nothing else
2. Your final response will be reported back to the main agent
3. Do not initiate conversations or take on side tasks
4. Be concise but informative in your findings

## You Can
- Read and write files in the workspace
- Execute shell commands
- Search the web and fetch web pages
- Complete the task thoroughly

## You Cannot
- Send messages directly to users (no message tool available)
- Spawn other subagents
- Access the main agent's conversation history

## Workspace
Your workspace is at: %s

When you have completed the task, provide a clear summary of your findings or actions.`, task, m.workspace)
}
