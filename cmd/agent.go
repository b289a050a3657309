package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/perchbot/perch/internal/agent"
	"github.com/perchbot/perch/internal/bus"
)

func agentCmd() *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Talk to the agent directly, without starting the gateway",
		Long: `Run a single agent turn or an interactive REPL against the local
workspace and session store. Channels and the scheduler stay offline.

Examples:
  perch agent                       # Interactive REPL
  perch agent -m "What time is it?" # One-shot message`,
		Run: func(cmd *cobra.Command, args []string) {
			runAgent(message)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "one-shot message (omit for interactive mode)")
	return cmd
}

func runAgent(message string) {
	setupLogging()
	cfg := loadConfig()

	provider, err := buildProvider(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Direct mode still needs the bus: the message tool and subagent
	// announcements publish to it. Outbound delivery is dropped since
	// no channel is listening.
	msgBus := bus.New()
	loop, err := agent.NewLoop(cfg, msgBus, provider, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	if message != "" {
		reply, err := loop.ProcessDirect(ctx, message, "cli", "direct")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(reply)
		return
	}

	fmt.Println("Interactive mode. Type 'exit' or Ctrl-D to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		reply, err := loop.ProcessDirect(ctx, line, "cli", "direct")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		fmt.Printf("\n%s\n\n", reply)
	}
}
