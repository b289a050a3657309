// Package cron provides the persistent job store and scheduler for
// timed agent turns and raw channel deliveries.
package cron

// Job is one scheduled task.
type Job struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Enabled        bool     `json:"enabled"`
	Schedule       Schedule `json:"schedule"`
	Payload        Payload  `json:"payload"`
	State          State    `json:"state"`
	DeleteAfterRun bool     `json:"delete_after_run,omitempty"`
	CreatedAtMS    int64    `json:"created_at_ms,omitempty"`
	UpdatedAtMS    int64    `json:"updated_at_ms,omitempty"`
}

// Schedule kinds.
const (
	ScheduleAt    = "at"    // fire once at an absolute time
	ScheduleEvery = "every" // fire on a fixed interval
	ScheduleCron  = "cron"  // fire per a 5-field cron expression
)

type Schedule struct {
	Kind    string `json:"kind"`
	AtMS    int64  `json:"at_ms,omitempty"`
	EveryMS int64  `json:"every_ms,omitempty"`
	Expr    string `json:"expr,omitempty"`
	TZ      string `json:"tz,omitempty"`
}

// Payload kinds.
const (
	PayloadAgentTurn   = "agent_turn"   // inject a synthetic turn through the agent loop
	PayloadSystemEvent = "system_event" // deliver a raw message to a channel
)

type Payload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Deliver bool   `json:"deliver,omitempty"`
	Channel string `json:"channel,omitempty"`
	To      string `json:"to,omitempty"`
}

type State struct {
	NextRunAtMS int64  `json:"next_run_at_ms,omitempty"`
	LastRunAtMS int64  `json:"last_run_at_ms,omitempty"`
	LastStatus  string `json:"last_status,omitempty"` // "ok" or "error"
	LastError   string `json:"last_error,omitempty"`
}

// storeFile is the on-disk shape: {version: 1, jobs: [...]}.
type storeFile struct {
	Version int    `json:"version"`
	Jobs    []*Job `json:"jobs"`
}
