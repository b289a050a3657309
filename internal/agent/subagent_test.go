package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/perchbot/perch/internal/bus"
	"github.com/perchbot/perch/internal/providers"
)

// TestSpawnAck verifies the acknowledgement format and label
// truncation.
func TestSpawnAck(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{
		{Content: "done", FinishReason: "stop"},
	}}
	m := NewSubagentManager(p, "", t.TempDir(), bus.New(), "", time.Minute, true)

	ack := m.Spawn(context.Background(), "research the topic", "research", "cli", "direct")
	if !strings.HasPrefix(ack, "Subagent [research] started (id: ") {
		t.Errorf("ack = %q", ack)
	}
	if !strings.HasSuffix(ack, "). I'll notify you when it completes.") {
		t.Errorf("ack = %q", ack)
	}
}

// TestSpawnLabelDerivedFromTask verifies the default label is the task
// truncated to 30 characters.
func TestSpawnLabelDerivedFromTask(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{
		{Content: "done", FinishReason: "stop"},
	}}
	m := NewSubagentManager(p, "", t.TempDir(), bus.New(), "", time.Minute, true)

	long := "analyze the quarterly revenue figures and compile a summary"
	ack := m.Spawn(context.Background(), long, "", "cli", "direct")
	if !strings.Contains(ack, "["+long[:30]+"...]") {
		t.Errorf("ack = %q", ack)
	}

	// Truncation counts characters, not bytes.
	multibyte := "总结每个季度的收入数据并整理成一份简短的报告发给财务团队负责人审阅"
	ack = m.Spawn(context.Background(), multibyte, "", "cli", "direct")
	want := "[" + string([]rune(multibyte)[:30]) + "...]"
	if !strings.Contains(ack, want) {
		t.Errorf("ack = %q, want label %q", ack, want)
	}
}

// TestSubagentAnnouncesResult verifies the completion announcement
// arrives as a system message routed back to the origin.
func TestSubagentAnnouncesResult(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{
		{Content: "findings: all good", FinishReason: "stop"},
	}}
	b := bus.New()
	m := NewSubagentManager(p, "", t.TempDir(), b, "", time.Minute, true)

	m.Spawn(context.Background(), "check the logs", "logcheck", "telegram", "42")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, ok := b.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("no announcement published")
	}

	if msg.Channel != "system" || msg.SenderID != "subagent" {
		t.Errorf("announcement from %s/%s", msg.Channel, msg.SenderID)
	}
	if msg.ChatID != "telegram:42" {
		t.Errorf("chat_id = %q, want telegram:42", msg.ChatID)
	}
	for _, want := range []string{
		"[Subagent 'logcheck' completed successfully]",
		"Task: check the logs",
		"findings: all good",
		"Summarize this naturally",
	} {
		if !strings.Contains(msg.Content, want) {
			t.Errorf("announcement missing %q: %q", want, msg.Content)
		}
	}
}

// TestSubagentFailureAnnounced verifies provider failures become
// failed announcements instead of silent drops.
func TestSubagentFailureAnnounced(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{
		{Content: "LLM call failed: boom", FinishReason: "error"},
	}}
	b := bus.New()
	m := NewSubagentManager(p, "", t.TempDir(), b, "", time.Minute, true)

	m.Spawn(context.Background(), "risky task", "risky", "cli", "direct")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, ok := b.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("no announcement published")
	}
	if !strings.Contains(msg.Content, "[Subagent 'risky' failed]") {
		t.Errorf("announcement = %q", msg.Content)
	}
	if !strings.Contains(msg.Content, "Error: ") {
		t.Errorf("announcement should carry the error: %q", msg.Content)
	}
}

// TestSubagentRegistryIsRestricted verifies the background registry
// has no conversational tools.
func TestSubagentRegistryIsRestricted(t *testing.T) {
	p := &scriptedProvider{}
	m := NewSubagentManager(p, "", t.TempDir(), bus.New(), "", time.Minute, true)

	registry := m.buildRegistry()
	for _, denied := range []string{"message", "spawn", "cron"} {
		if registry.Has(denied) {
			t.Errorf("subagent registry should not expose %q", denied)
		}
	}
	for _, allowed := range []string{"read_file", "write_file", "exec", "web_fetch"} {
		if !registry.Has(allowed) {
			t.Errorf("subagent registry missing %q", allowed)
		}
	}
}

// TestRunningCount verifies the running map empties after completion.
func TestRunningCount(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{
		{Content: "done", FinishReason: "stop"},
	}}
	b := bus.New()
	m := NewSubagentManager(p, "", t.TempDir(), b, "", time.Minute, true)

	m.Spawn(context.Background(), "quick", "quick", "cli", "direct")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b.ConsumeInbound(ctx) // announcement implies the goroutine finished its work

	deadline := time.Now().Add(2 * time.Second)
	for m.RunningCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := m.RunningCount(); got != 0 {
		t.Errorf("running = %d, want 0", got)
	}
}
