package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/perchbot/perch/internal/bus"
)

// Default poll interval when no job is due sooner.
const maxWait = time.Minute

// Service fires due jobs. agent_turn payloads are injected as synthetic
// system messages through the bus; system_event payloads go straight to
// the outbound queue.
type Service struct {
	store *Store
	bus   *bus.MessageBus
}

func NewService(store *Store, msgBus *bus.MessageBus) *Service {
	return &Service{store: store, bus: msgBus}
}

// Store exposes the underlying job store (used by the cron tool and CLI).
func (s *Service) Store() *Store { return s.store }

// Run fires due jobs until ctx is cancelled. The wake-up time is the
// earliest next_run_at across enabled jobs, capped at maxWait.
func (s *Service) Run(ctx context.Context) {
	s.recomputeAll()
	slog.Info("cron scheduler started", "jobs", len(s.store.List()))

	for {
		wait := s.nextWake()
		select {
		case <-ctx.Done():
			slog.Info("cron scheduler stopped")
			return
		case <-time.After(wait):
		}
		s.fireDue(ctx)
	}
}

// recomputeAll fills in missing next_run_at values on startup.
func (s *Service) recomputeAll() {
	now := time.Now()
	for _, job := range s.store.List() {
		if !job.Enabled || job.State.NextRunAtMS != 0 {
			continue
		}
		next, err := NextRun(job.Schedule, now)
		if err != nil {
			slog.Warn("cron job has invalid schedule", "job", job.Name, "error", err)
			continue
		}
		job.State.NextRunAtMS = next.UnixMilli()
		if err := s.store.Update(job); err != nil {
			slog.Error("cron store update failed", "job", job.Name, "error", err)
		}
	}
}

func (s *Service) nextWake() time.Duration {
	now := time.Now().UnixMilli()
	wait := maxWait
	for _, job := range s.store.List() {
		if !job.Enabled || job.State.NextRunAtMS == 0 {
			continue
		}
		until := time.Duration(job.State.NextRunAtMS-now) * time.Millisecond
		if until < 0 {
			until = 0
		}
		if until < wait {
			wait = until
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

func (s *Service) fireDue(ctx context.Context) {
	now := time.Now()
	for _, job := range s.store.List() {
		if !job.Enabled || job.State.NextRunAtMS == 0 || job.State.NextRunAtMS > now.UnixMilli() {
			continue
		}
		s.fire(ctx, job, now)
	}
}

func (s *Service) fire(ctx context.Context, job *Job, now time.Time) {
	slog.Info("cron job firing", "job", job.Name, "kind", job.Payload.Kind)

	err := s.execute(job)

	job.State.LastRunAtMS = now.UnixMilli()
	if err != nil {
		job.State.LastStatus = "error"
		job.State.LastError = err.Error()
		slog.Error("cron job failed", "job", job.Name, "error", err)
	} else {
		job.State.LastStatus = "ok"
		job.State.LastError = ""
	}

	if err == nil && job.DeleteAfterRun {
		if _, rmErr := s.store.Remove(job.ID); rmErr != nil {
			slog.Error("cron job cleanup failed", "job", job.Name, "error", rmErr)
		}
		return
	}

	// Advance or retire the schedule.
	switch job.Schedule.Kind {
	case ScheduleAt:
		job.State.NextRunAtMS = 0
		job.Enabled = false
	default:
		next, nextErr := NextRun(job.Schedule, now)
		if nextErr != nil {
			slog.Error("cron next run computation failed", "job", job.Name, "error", nextErr)
			job.State.NextRunAtMS = 0
			job.Enabled = false
		} else {
			job.State.NextRunAtMS = next.UnixMilli()
		}
	}

	if err := s.store.Update(job); err != nil {
		slog.Error("cron store update failed", "job", job.Name, "error", err)
	}
}

func (s *Service) execute(job *Job) error {
	switch job.Payload.Kind {
	case PayloadSystemEvent:
		if job.Payload.Channel == "" || job.Payload.To == "" {
			return fmt.Errorf("system_event payload requires channel and to")
		}
		s.bus.PublishOutbound(bus.OutboundMessage{
			Channel: job.Payload.Channel,
			ChatID:  job.Payload.To,
			Content: job.Payload.Message,
		})
		return nil

	case PayloadAgentTurn:
		// The agent loop's system-message protocol parses the origin
		// coordinates back out of the chat_id.
		origin := bus.ChannelCLI + ":cron"
		if job.Payload.Deliver && job.Payload.Channel != "" && job.Payload.To != "" {
			origin = job.Payload.Channel + ":" + job.Payload.To
		}
		s.bus.PublishInbound(bus.InboundMessage{
			Channel:   bus.ChannelSystem,
			SenderID:  "cron:" + job.Name,
			ChatID:    origin,
			Content:   job.Payload.Message,
			Timestamp: time.Now().UnixMilli(),
		})
		return nil

	default:
		return fmt.Errorf("unknown payload kind %q", job.Payload.Kind)
	}
}

// NextRun computes the next fire time for a schedule after ref.
func NextRun(sched Schedule, ref time.Time) (time.Time, error) {
	switch sched.Kind {
	case ScheduleAt:
		return time.UnixMilli(sched.AtMS), nil

	case ScheduleEvery:
		if sched.EveryMS <= 0 {
			return time.Time{}, fmt.Errorf("every schedule requires a positive interval")
		}
		return ref.Add(time.Duration(sched.EveryMS) * time.Millisecond), nil

	case ScheduleCron:
		if !gronx.New().IsValid(sched.Expr) {
			return time.Time{}, fmt.Errorf("invalid cron expression %q", sched.Expr)
		}
		at := ref
		if sched.TZ != "" {
			loc, err := time.LoadLocation(sched.TZ)
			if err != nil {
				return time.Time{}, fmt.Errorf("invalid timezone %q: %w", sched.TZ, err)
			}
			at = ref.In(loc)
		}
		return gronx.NextTickAfter(sched.Expr, at, false)

	default:
		return time.Time{}, fmt.Errorf("unknown schedule kind %q", sched.Kind)
	}
}
