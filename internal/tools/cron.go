package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/perchbot/perch/internal/cron"
)

// CronTool lets the model manage scheduled jobs. New jobs default their
// delivery target to the current conversation.
type CronTool struct {
	store *cron.Store

	mu      sync.Mutex
	channel string
	chatID  string
}

func NewCronTool(store *cron.Store) *CronTool {
	return &CronTool{store: store}
}

// SetContext rebinds the tool to the current turn's routing coordinates.
func (t *CronTool) SetContext(channel, chatID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.channel = channel
	t.chatID = chatID
}

func (t *CronTool) Name() string { return "cron" }
func (t *CronTool) Description() string {
	return "Manage scheduled jobs: add a reminder or recurring task, list jobs, or remove one"
}
func (t *CronTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"description": "The operation to perform",
				"enum":        []any{"add", "list", "remove"},
			},
			"name": map[string]any{
				"type":        "string",
				"description": "Job name (for add)",
			},
			"message": map[string]any{
				"type":        "string",
				"description": "The prompt injected when the job fires (for add)",
			},
			"every_seconds": map[string]any{
				"type":        "integer",
				"description": "Interval in seconds for recurring jobs",
				"minimum":     1,
			},
			"at": map[string]any{
				"type":        "string",
				"description": "RFC3339 time for one-shot jobs",
			},
			"cron_expr": map[string]any{
				"type":        "string",
				"description": "5-field cron expression (alternative to every_seconds/at)",
			},
			"tz": map[string]any{
				"type":        "string",
				"description": "IANA timezone for cron_expr (defaults to local)",
			},
			"job_id": map[string]any{
				"type":        "string",
				"description": "Job ID (for remove)",
			},
			"delete_after_run": map[string]any{
				"type":        "boolean",
				"description": "Remove the job after its first successful run",
			},
		},
		"required": []string{"action"},
	}
}

func (t *CronTool) Execute(ctx context.Context, args map[string]any) *Result {
	action, _ := args["action"].(string)
	switch action {
	case "add":
		return t.add(args)
	case "list":
		return t.list()
	case "remove":
		return t.remove(args)
	default:
		return ErrorResult(fmt.Sprintf("unknown action %q", action))
	}
}

func (t *CronTool) add(args map[string]any) *Result {
	message, _ := args["message"].(string)
	if message == "" {
		return ErrorResult("message is required for add")
	}
	name, _ := args["name"].(string)
	if name == "" {
		name = firstWords(message, 4)
	}

	sched, err := parseSchedule(args)
	if err != nil {
		return ErrorResult(err.Error())
	}

	t.mu.Lock()
	channel, chatID := t.channel, t.chatID
	t.mu.Unlock()

	now := time.Now()
	job := &cron.Job{
		ID:       uuid.NewString()[:8],
		Name:     name,
		Enabled:  true,
		Schedule: sched,
		Payload: cron.Payload{
			Kind:    cron.PayloadAgentTurn,
			Message: message,
			Deliver: channel != "" && chatID != "",
			Channel: channel,
			To:      chatID,
		},
		CreatedAtMS: now.UnixMilli(),
		UpdatedAtMS: now.UnixMilli(),
	}

	next, err := cron.NextRun(sched, now)
	if err != nil {
		return ErrorResult(err.Error())
	}
	job.State.NextRunAtMS = next.UnixMilli()

	if v, ok := args["delete_after_run"].(bool); ok {
		job.DeleteAfterRun = v
	}

	if err := t.store.Add(job); err != nil {
		return ErrorResult(fmt.Sprintf("failed to save job: %v", err))
	}

	return SilentResult(fmt.Sprintf("Scheduled job %q (id: %s), next run %s", name, job.ID, next.Format(time.RFC3339)))
}

func (t *CronTool) list() *Result {
	jobs := t.store.List()
	if len(jobs) == 0 {
		return SilentResult("No scheduled jobs.")
	}

	var sb strings.Builder
	for _, job := range jobs {
		status := "enabled"
		if !job.Enabled {
			status = "disabled"
		}
		fmt.Fprintf(&sb, "- %s (id: %s, %s, %s)", job.Name, job.ID, describeSchedule(job.Schedule), status)
		if job.State.NextRunAtMS > 0 {
			fmt.Fprintf(&sb, " next: %s", time.UnixMilli(job.State.NextRunAtMS).Format(time.RFC3339))
		}
		sb.WriteString("\n")
	}
	return SilentResult(strings.TrimRight(sb.String(), "\n"))
}

func (t *CronTool) remove(args map[string]any) *Result {
	jobID, _ := args["job_id"].(string)
	if jobID == "" {
		return ErrorResult("job_id is required for remove")
	}
	ok, err := t.store.Remove(jobID)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to remove job: %v", err))
	}
	if !ok {
		return ErrorResult(fmt.Sprintf("no job with id %q", jobID))
	}
	return SilentResult(fmt.Sprintf("Removed job %s", jobID))
}

func parseSchedule(args map[string]any) (cron.Schedule, error) {
	if expr, _ := args["cron_expr"].(string); expr != "" {
		tz, _ := args["tz"].(string)
		return cron.Schedule{Kind: cron.ScheduleCron, Expr: expr, TZ: tz}, nil
	}
	if secs, ok := args["every_seconds"].(float64); ok && secs > 0 {
		return cron.Schedule{Kind: cron.ScheduleEvery, EveryMS: int64(secs * 1000)}, nil
	}
	if at, _ := args["at"].(string); at != "" {
		ts, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return cron.Schedule{}, fmt.Errorf("invalid at time %q: %v", at, err)
		}
		return cron.Schedule{Kind: cron.ScheduleAt, AtMS: ts.UnixMilli()}, nil
	}
	return cron.Schedule{}, fmt.Errorf("one of cron_expr, every_seconds, or at is required")
}

func describeSchedule(s cron.Schedule) string {
	switch s.Kind {
	case cron.ScheduleAt:
		return "at " + time.UnixMilli(s.AtMS).Format(time.RFC3339)
	case cron.ScheduleEvery:
		return fmt.Sprintf("every %s", time.Duration(s.EveryMS)*time.Millisecond)
	case cron.ScheduleCron:
		if s.TZ != "" {
			return fmt.Sprintf("cron %q %s", s.Expr, s.TZ)
		}
		return fmt.Sprintf("cron %q", s.Expr)
	}
	return s.Kind
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
