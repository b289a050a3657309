package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/perchbot/perch/internal/bus"
	"github.com/perchbot/perch/internal/config"
	"github.com/perchbot/perch/internal/providers"
)

// scriptedProvider returns canned responses in order and records every
// request it saw.
type scriptedProvider struct {
	responses []*providers.ChatResponse
	errs      []error
	requests  []providers.ChatRequest
	calls     int
}

func (p *scriptedProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	p.requests = append(p.requests, req)
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i < len(p.responses) {
		return p.responses[i], nil
	}
	return &providers.ChatResponse{Content: "default", FinishReason: "stop"}, nil
}

func (p *scriptedProvider) DefaultModel() string { return "test-model" }
func (p *scriptedProvider) Name() string         { return "scripted" }

func testLoop(t *testing.T, provider providers.Provider) *Loop {
	t.Helper()
	cfg := config.Default()
	cfg.Agent.Name = "perch"
	cfg.Agent.Workspace = t.TempDir()
	cfg.Sessions.Storage = t.TempDir()

	l, err := NewLoop(cfg, bus.New(), provider, nil)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

// TestPlainReply verifies the simple path: one LLM call, one outbound
// reply, session persisted.
func TestPlainReply(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{
		{Content: "hello there", FinishReason: "stop"},
	}}
	l := testLoop(t, p)

	reply, err := l.processMessage(context.Background(), bus.InboundMessage{
		Channel: "telegram", SenderID: "7", ChatID: "42", Content: "hi",
	})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Channel != "telegram" || reply.ChatID != "42" || reply.Content != "hello there" {
		t.Errorf("reply = %+v", reply)
	}

	session := l.sessions.GetOrCreate("telegram:42")
	if len(session.Messages) != 2 || session.Messages[0].Content != "hi" || session.Messages[1].Content != "hello there" {
		t.Errorf("session = %+v", session.Messages)
	}
}

// TestToolRoundTrip verifies a tool call iteration: the tool output is
// fed back and the second response becomes the reply.
func TestToolRoundTrip(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{
		{
			FinishReason: "tool_calls",
			ToolCalls: []providers.ToolCall{{
				ID:   "call1",
				Name: "write_file",
				Arguments: map[string]any{
					"path":    "out.txt",
					"content": "data",
				},
			}},
		},
		{Content: "file written", FinishReason: "stop"},
	}}
	l := testLoop(t, p)

	reply, err := l.processMessage(context.Background(), bus.InboundMessage{
		Channel: "cli", SenderID: "user", ChatID: "direct", Content: "write a file",
	})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Content != "file written" {
		t.Errorf("reply = %q", reply.Content)
	}

	// Second request must carry the assistant tool-call turn and the
	// tool result.
	if len(p.requests) != 2 {
		t.Fatalf("provider calls = %d, want 2", len(p.requests))
	}
	msgs := p.requests[1].Messages
	last, prev := msgs[len(msgs)-1], msgs[len(msgs)-2]
	if prev.Role != "assistant" || len(prev.ToolCalls) != 1 {
		t.Errorf("assistant turn = %+v", prev)
	}
	if last.Role != "tool" || last.ToolCallID != "call1" || !strings.Contains(last.Content, "Wrote") {
		t.Errorf("tool turn = %+v", last)
	}
}

// TestIterationBudgetFallback verifies the fixed fallback text when the
// model never stops calling tools.
func TestIterationBudgetFallback(t *testing.T) {
	toolResp := &providers.ChatResponse{
		FinishReason: "tool_calls",
		ToolCalls: []providers.ToolCall{{
			ID: "c", Name: "list_dir", Arguments: map[string]any{},
		}},
	}
	p := &scriptedProvider{}
	for i := 0; i < 30; i++ {
		p.responses = append(p.responses, toolResp)
	}
	l := testLoop(t, p)
	l.maxIterations = 3

	reply, err := l.processMessage(context.Background(), bus.InboundMessage{
		Channel: "cli", SenderID: "user", ChatID: "direct", Content: "loop forever",
	})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Content != "I've completed processing but have no response to give." {
		t.Errorf("reply = %q", reply.Content)
	}
	if p.calls != 3 {
		t.Errorf("provider calls = %d, want 3", p.calls)
	}
}

// TestProviderErrorBecomesReply verifies a provider failure surfaces as
// a terminal reply, persisted like any other assistant turn.
func TestProviderErrorBecomesReply(t *testing.T) {
	p := &scriptedProvider{errs: []error{errors.New("upstream 500")}}
	l := testLoop(t, p)

	reply, err := l.processMessage(context.Background(), bus.InboundMessage{
		Channel: "telegram", SenderID: "7", ChatID: "42", Content: "hi",
	})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Content != "LLM call failed: upstream 500" {
		t.Errorf("reply = %q", reply.Content)
	}

	session := l.sessions.GetOrCreate("telegram:42")
	if len(session.Messages) != 2 {
		t.Fatalf("session = %+v", session.Messages)
	}
	if session.Messages[1].Content != "LLM call failed: upstream 500" {
		t.Errorf("assistant turn = %q", session.Messages[1].Content)
	}
}

// TestSystemMessageRouting verifies the origin-encoded chat_id protocol
// and the persisted [System: ...] prefix.
func TestSystemMessageRouting(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{
		{Content: "the report is ready", FinishReason: "stop"},
	}}
	l := testLoop(t, p)

	reply, err := l.processMessage(context.Background(), bus.InboundMessage{
		Channel:  "system",
		SenderID: "subagent",
		ChatID:   "discord:chan9",
		Content:  "[Subagent 'report' completed successfully] ...",
	})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Channel != "discord" || reply.ChatID != "chan9" {
		t.Errorf("reply routed to %s:%s, want discord:chan9", reply.Channel, reply.ChatID)
	}

	session := l.sessions.GetOrCreate("discord:chan9")
	if len(session.Messages) != 2 {
		t.Fatalf("session = %+v", session.Messages)
	}
	if !strings.HasPrefix(session.Messages[0].Content, "[System: subagent] ") {
		t.Errorf("persisted turn = %q", session.Messages[0].Content)
	}
}

// TestSystemMessageFallbacks covers the unparseable chat_id fallback
// and the background-task fallback content.
func TestSystemMessageFallbacks(t *testing.T) {
	t.Run("unparseable chat_id routes to cli", func(t *testing.T) {
		p := &scriptedProvider{responses: []*providers.ChatResponse{
			{Content: "ok", FinishReason: "stop"},
		}}
		l := testLoop(t, p)

		reply, err := l.processMessage(context.Background(), bus.InboundMessage{
			Channel: "system", SenderID: "cron:tick", ChatID: "orphan", Content: "do it",
		})
		if err != nil {
			t.Fatal(err)
		}
		if reply.Channel != "cli" || reply.ChatID != "orphan" {
			t.Errorf("reply routed to %s:%s, want cli:orphan", reply.Channel, reply.ChatID)
		}
	})

	t.Run("empty final content", func(t *testing.T) {
		p := &scriptedProvider{responses: []*providers.ChatResponse{
			{Content: "", FinishReason: "stop"},
		}}
		l := testLoop(t, p)

		reply, err := l.processMessage(context.Background(), bus.InboundMessage{
			Channel: "system", SenderID: "subagent", ChatID: "cli:direct", Content: "done",
		})
		if err != nil {
			t.Fatal(err)
		}
		if reply.Content != "Background task completed." {
			t.Errorf("reply = %q", reply.Content)
		}
	})
}

// TestToolContextRebinding verifies routing-aware tools follow the
// conversation of the message being processed.
func TestToolContextRebinding(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{
		{Content: "a", FinishReason: "stop"},
		{Content: "b", FinishReason: "stop"},
	}}
	l := testLoop(t, p)

	l.processMessage(context.Background(), bus.InboundMessage{
		Channel: "telegram", SenderID: "7", ChatID: "42", Content: "hi",
	})

	// Sending without overrides must target the last bound conversation.
	out := make(chan bus.OutboundMessage, 1)
	l.bus.SubscribeOutbound("telegram", func(ctx context.Context, msg bus.OutboundMessage) error {
		out <- msg
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.bus.DispatchOutbound(ctx)

	result := l.registry.Execute(context.Background(), "message", map[string]any{"content": "ping"})
	if result != "Message sent." {
		t.Fatalf("message tool = %q", result)
	}
	select {
	case msg := <-out:
		if msg.Channel != "telegram" || msg.ChatID != "42" {
			t.Errorf("routed to %s:%s, want telegram:42", msg.Channel, msg.ChatID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no outbound message")
	}
}

// TestProcessDirect verifies the synchronous entry point used by the
// CLI and heartbeat.
func TestProcessDirect(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{
		{Content: "direct answer", FinishReason: "stop"},
	}}
	l := testLoop(t, p)

	got, err := l.ProcessDirect(context.Background(), "question", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if got != "direct answer" {
		t.Errorf("ProcessDirect = %q", got)
	}

	session := l.sessions.GetOrCreate("cli:direct")
	if len(session.Messages) != 2 {
		t.Errorf("session = %+v", session.Messages)
	}
}
