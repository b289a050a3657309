package cron

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/perchbot/perch/internal/bus"
)

// TestStoreRoundTrip verifies jobs survive a save/load cycle with the
// versioned file format.
func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")

	s1, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	job := &Job{
		ID:      "j1",
		Name:    "morning briefing",
		Enabled: true,
		Schedule: Schedule{
			Kind: ScheduleCron,
			Expr: "0 8 * * *",
			TZ:   "UTC",
		},
		Payload: Payload{
			Kind:    PayloadAgentTurn,
			Message: "Summarize the news",
			Deliver: true,
			Channel: "telegram",
			To:      "42",
		},
		CreatedAtMS: time.Now().UnixMilli(),
	}
	if err := s1.Add(job); err != nil {
		t.Fatalf("Add: %v", err)
	}

	s2, err := NewStore(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got, ok := s2.Get("j1")
	if !ok {
		t.Fatal("job not found after reload")
	}
	if got.Name != "morning briefing" || got.Schedule.Expr != "0 8 * * *" {
		t.Errorf("reloaded job = %+v", got)
	}
	if got.Payload.Channel != "telegram" || !got.Payload.Deliver {
		t.Errorf("reloaded payload = %+v", got.Payload)
	}
}

// TestStoreRemove verifies Remove reports presence correctly.
func TestStoreRemove(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "jobs.json"))
	if err != nil {
		t.Fatal(err)
	}
	s.Add(&Job{ID: "x"})

	if ok, _ := s.Remove("x"); !ok {
		t.Error("Remove existing job should report true")
	}
	if ok, _ := s.Remove("x"); ok {
		t.Error("Remove missing job should report false")
	}
}

// TestNextRun verifies next-fire computation for all schedule kinds.
func TestNextRun(t *testing.T) {
	ref := time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)

	t.Run("at", func(t *testing.T) {
		at := ref.Add(time.Hour).UnixMilli()
		next, err := NextRun(Schedule{Kind: ScheduleAt, AtMS: at}, ref)
		if err != nil {
			t.Fatal(err)
		}
		if next.UnixMilli() != at {
			t.Errorf("next = %v", next)
		}
	})

	t.Run("every", func(t *testing.T) {
		next, err := NextRun(Schedule{Kind: ScheduleEvery, EveryMS: 60000}, ref)
		if err != nil {
			t.Fatal(err)
		}
		if got := next.Sub(ref); got != time.Minute {
			t.Errorf("interval = %v, want 1m", got)
		}
	})

	t.Run("every requires positive interval", func(t *testing.T) {
		if _, err := NextRun(Schedule{Kind: ScheduleEvery}, ref); err == nil {
			t.Error("expected error for zero interval")
		}
	})

	t.Run("cron", func(t *testing.T) {
		next, err := NextRun(Schedule{Kind: ScheduleCron, Expr: "0 8 * * *", TZ: "UTC"}, ref)
		if err != nil {
			t.Fatal(err)
		}
		// 12:30 is past 08:00, so the next fire is tomorrow morning.
		want := time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC)
		if !next.Equal(want) {
			t.Errorf("next = %v, want %v", next, want)
		}
	})

	t.Run("invalid cron expr", func(t *testing.T) {
		if _, err := NextRun(Schedule{Kind: ScheduleCron, Expr: "not a cron"}, ref); err == nil {
			t.Error("expected error for invalid expression")
		}
	})
}

// TestFireAgentTurn verifies an agent_turn payload is injected as a
// synthetic system message carrying the origin routing in chat_id.
func TestFireAgentTurn(t *testing.T) {
	b := bus.New()
	store, _ := NewStore(filepath.Join(t.TempDir(), "jobs.json"))
	svc := NewService(store, b)

	job := &Job{
		ID:      "j1",
		Name:    "reminder",
		Enabled: true,
		Schedule: Schedule{Kind: ScheduleAt, AtMS: time.Now().UnixMilli()},
		Payload: Payload{
			Kind:    PayloadAgentTurn,
			Message: "Check the build",
			Deliver: true,
			Channel: "discord",
			To:      "chan9",
		},
	}
	store.Add(job)

	svc.fire(context.Background(), job, time.Now())

	msg, ok := b.ConsumeInbound(context.Background())
	if !ok {
		t.Fatal("no inbound message published")
	}
	if msg.Channel != "system" {
		t.Errorf("channel = %q, want system", msg.Channel)
	}
	if msg.ChatID != "discord:chan9" {
		t.Errorf("chat_id = %q, want discord:chan9", msg.ChatID)
	}
	if msg.SenderID != "cron:reminder" {
		t.Errorf("sender_id = %q", msg.SenderID)
	}

	// One-shot "at" schedules retire after firing.
	got, _ := store.Get("j1")
	if got.Enabled {
		t.Error("at job should be disabled after firing")
	}
	if got.State.LastStatus != "ok" {
		t.Errorf("last_status = %q", got.State.LastStatus)
	}
}

// TestFireDeleteAfterRun verifies delete_after_run jobs are removed on
// first successful fire.
func TestFireDeleteAfterRun(t *testing.T) {
	b := bus.New()
	store, _ := NewStore(filepath.Join(t.TempDir(), "jobs.json"))
	svc := NewService(store, b)

	job := &Job{
		ID:             "once",
		Name:           "one shot",
		Enabled:        true,
		Schedule:       Schedule{Kind: ScheduleAt, AtMS: time.Now().UnixMilli()},
		Payload:        Payload{Kind: PayloadSystemEvent, Message: "ping", Channel: "cli", To: "local"},
		DeleteAfterRun: true,
	}
	store.Add(job)

	svc.fire(context.Background(), job, time.Now())

	if _, ok := store.Get("once"); ok {
		t.Error("delete_after_run job should be removed after success")
	}
}
