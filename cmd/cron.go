package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/perchbot/perch/internal/agent"
	"github.com/perchbot/perch/internal/bus"
	"github.com/perchbot/perch/internal/cron"
)

func cronCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Manage scheduled jobs",
	}
	cmd.AddCommand(cronListCmd())
	cmd.AddCommand(cronAddCmd())
	cmd.AddCommand(cronRemoveCmd())
	cmd.AddCommand(cronRunCmd())
	return cmd
}

func openCronStore() *cron.Store {
	cfg := loadConfig()
	store, err := cron.NewStore(cfg.CronStorePath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening cron store: %v\n", err)
		os.Exit(1)
	}
	return store
}

func cronListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		Run: func(cmd *cobra.Command, args []string) {
			jobs := openCronStore().List()
			if len(jobs) == 0 {
				fmt.Println("No scheduled jobs.")
				return
			}
			for _, job := range jobs {
				state := "enabled"
				if !job.Enabled {
					state = "disabled"
				}
				line := fmt.Sprintf("- %s (id: %s, %s, %s)", job.Name, job.ID, describeSchedule(job.Schedule), state)
				if job.State.NextRunAtMS > 0 {
					line += " next: " + time.UnixMilli(job.State.NextRunAtMS).Format(time.RFC3339)
				}
				if job.State.LastStatus == "error" {
					line += " last error: " + job.State.LastError
				}
				fmt.Println(line)
			}
		},
	}
}

func cronAddCmd() *cobra.Command {
	var (
		name           string
		message        string
		cronExpr       string
		tz             string
		everySec       int
		at             string
		channel        string
		to             string
		deleteAfterRun bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a scheduled job",
		Long: `Add a scheduled agent turn. Exactly one of --cron, --every, or --at
selects the schedule. With --channel and --to, the result is delivered
to that chat.

Examples:
  perch cron add -m "Summarize my inbox" --cron "0 9 * * 1-5"
  perch cron add -m "Stretch break" --every 3600
  perch cron add -m "Wish Sam a happy birthday" --at 2026-09-01T09:00:00Z --delete-after-run`,
		Run: func(cmd *cobra.Command, args []string) {
			schedule, err := buildSchedule(cronExpr, tz, everySec, at)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if message == "" {
				fmt.Fprintln(os.Stderr, "Error: --message is required")
				os.Exit(1)
			}
			if name == "" {
				name = message
				if len(name) > 40 {
					name = name[:40] + "..."
				}
			}

			job := &cron.Job{
				ID:       uuid.NewString()[:8],
				Name:     name,
				Enabled:  true,
				Schedule: *schedule,
				Payload: cron.Payload{
					Kind:    cron.PayloadAgentTurn,
					Message: message,
					Deliver: channel != "" && to != "",
					Channel: channel,
					To:      to,
				},
				DeleteAfterRun: deleteAfterRun,
				CreatedAtMS:    time.Now().UnixMilli(),
			}

			next, err := cron.NextRun(job.Schedule, time.Now())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: invalid schedule: %v\n", err)
				os.Exit(1)
			}
			job.State.NextRunAtMS = next.UnixMilli()

			if err := openCronStore().Add(job); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Added job %q (id: %s), next run %s\n", job.Name, job.ID, next.Format(time.RFC3339))
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "job name (default: derived from message)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "agent prompt to run")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "5-field cron expression")
	cmd.Flags().StringVar(&tz, "tz", "", "IANA timezone for --cron (default: local)")
	cmd.Flags().IntVar(&everySec, "every", 0, "interval in seconds")
	cmd.Flags().StringVar(&at, "at", "", "one-shot time (RFC3339)")
	cmd.Flags().StringVar(&channel, "channel", "", "deliver result to this channel")
	cmd.Flags().StringVar(&to, "to", "", "deliver result to this chat ID")
	cmd.Flags().BoolVar(&deleteAfterRun, "delete-after-run", false, "remove the job after a successful run")
	return cmd
}

func cronRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a scheduled job",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			removed, err := openCronStore().Remove(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if !removed {
				fmt.Fprintf(os.Stderr, "No job with id %q\n", args[0])
				os.Exit(1)
			}
			fmt.Printf("Removed job %s\n", args[0])
		},
	}
}

// cronRunCmd fires a job's agent turn immediately in standalone mode,
// without touching its schedule state.
func cronRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <id>",
		Short: "Run a job's agent turn now",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			setupLogging()
			cfg := loadConfig()

			job, ok := openCronStore().Get(args[0])
			if !ok {
				fmt.Fprintf(os.Stderr, "No job with id %q\n", args[0])
				os.Exit(1)
			}

			provider, err := buildProvider(cfg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			loop, err := agent.NewLoop(cfg, bus.New(), provider, nil)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			reply, err := loop.ProcessDirect(context.Background(), job.Payload.Message, "cli", "cron:"+job.ID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(reply)
		},
	}
}

func buildSchedule(cronExpr, tz string, everySec int, at string) (*cron.Schedule, error) {
	set := 0
	for _, on := range []bool{cronExpr != "", everySec > 0, at != ""} {
		if on {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("exactly one of --cron, --every, or --at is required")
	}

	switch {
	case cronExpr != "":
		return &cron.Schedule{Kind: cron.ScheduleCron, Expr: cronExpr, TZ: tz}, nil
	case everySec > 0:
		return &cron.Schedule{Kind: cron.ScheduleEvery, EveryMS: int64(everySec) * 1000}, nil
	default:
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return nil, fmt.Errorf("invalid --at time %q: %w", at, err)
		}
		return &cron.Schedule{Kind: cron.ScheduleAt, AtMS: t.UnixMilli()}, nil
	}
}

func describeSchedule(s cron.Schedule) string {
	switch s.Kind {
	case cron.ScheduleCron:
		if s.TZ != "" {
			return fmt.Sprintf("cron %q %s", s.Expr, s.TZ)
		}
		return fmt.Sprintf("cron %q", s.Expr)
	case cron.ScheduleEvery:
		return "every " + (time.Duration(s.EveryMS) * time.Millisecond).String()
	case cron.ScheduleAt:
		return "at " + time.UnixMilli(s.AtMS).Format(time.RFC3339)
	default:
		return s.Kind
	}
}
