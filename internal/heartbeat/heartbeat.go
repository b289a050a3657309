// Package heartbeat wakes the agent periodically to work through the
// standing tasks in the workspace HEARTBEAT.md file.
package heartbeat

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultInterval between ticks.
	DefaultInterval = 30 * time.Minute

	// Prompt sent through the agent on each productive tick.
	Prompt = `Read HEARTBEAT.md in your workspace (if it exists).
Follow any instructions or tasks listed there.
If nothing needs attention, reply with just: HEARTBEAT_OK`

	okToken = "HEARTBEAT_OK"
)

// Runner is the agent entry point the heartbeat drives.
type Runner func(ctx context.Context, prompt string) (string, error)

// Service ticks on a fixed interval and runs one agent turn when
// HEARTBEAT.md has actionable content.
type Service struct {
	workspace string
	run       Runner
	interval  time.Duration
}

func NewService(workspace string, run Runner, interval time.Duration) *Service {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Service{workspace: workspace, run: run, interval: interval}
}

// Run ticks until ctx is cancelled. There is no immediate tick on
// start.
func (s *Service) Run(ctx context.Context) {
	slog.Info("heartbeat started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("heartbeat stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	data, err := os.ReadFile(filepath.Join(s.workspace, "HEARTBEAT.md"))
	if err != nil || isEmptyOfTasks(string(data)) {
		slog.Debug("heartbeat: no tasks")
		return
	}

	slog.Info("heartbeat: checking for tasks")
	response, err := s.run(ctx, Prompt)
	if err != nil {
		slog.Error("heartbeat turn failed", "error", err)
		return
	}

	if ContainsOK(response) {
		slog.Info("heartbeat: OK (no action needed)")
	} else {
		slog.Info("heartbeat: completed task")
	}
}

// TriggerNow runs one heartbeat turn immediately, regardless of
// HEARTBEAT.md content. Used by the CLI.
func (s *Service) TriggerNow(ctx context.Context) (string, error) {
	return s.run(ctx, Prompt)
}

// isEmptyOfTasks reports whether the file holds nothing actionable:
// only blank lines, headings, comments, and empty or checked checklist
// items.
func isEmptyOfTasks(content string) bool {
	skip := map[string]bool{
		"- [ ]": true,
		"* [ ]": true,
		"- [x]": true,
		"* [x]": true,
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "<!--") || skip[line] {
			continue
		}
		return false
	}
	return true
}

// ContainsOK reports whether a response signals "no action", matching
// the token case-insensitively and ignoring underscores.
func ContainsOK(response string) bool {
	norm := strings.ReplaceAll(strings.ToUpper(response), "_", "")
	return strings.Contains(norm, strings.ReplaceAll(okToken, "_", ""))
}
