package tools

import (
	"context"
	"sync"
)

// Spawner starts a detached background reasoning task and returns an
// acknowledgement string for the model.
type Spawner interface {
	Spawn(ctx context.Context, task, label, originChannel, originChatID string) string
}

// SpawnTool hands a task to the subagent manager. The result re-enters
// the conversation later via the bus, so the ack returns immediately.
type SpawnTool struct {
	spawner Spawner

	mu      sync.Mutex
	channel string
	chatID  string
}

func NewSpawnTool(spawner Spawner) *SpawnTool {
	return &SpawnTool{spawner: spawner}
}

// SetContext rebinds the tool to the current turn's routing coordinates.
func (t *SpawnTool) SetContext(channel, chatID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.channel = channel
	t.chatID = chatID
}

func (t *SpawnTool) Name() string { return "spawn" }
func (t *SpawnTool) Description() string {
	return "Spawn a background subagent to work on a task; you will be notified when it completes"
}
func (t *SpawnTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task": map[string]any{
				"type":        "string",
				"description": "Full description of the task for the subagent",
			},
			"label": map[string]any{
				"type":        "string",
				"description": "Optional short label for the task",
			},
		},
		"required": []string{"task"},
	}
}

func (t *SpawnTool) Execute(ctx context.Context, args map[string]any) *Result {
	task, _ := args["task"].(string)
	if task == "" {
		return ErrorResult("task is required")
	}
	label, _ := args["label"].(string)

	t.mu.Lock()
	channel, chatID := t.channel, t.chatID
	t.mu.Unlock()

	ack := t.spawner.Spawn(ctx, task, label, channel, chatID)
	return AsyncResult(ack)
}
