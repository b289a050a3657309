package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/perchbot/perch/internal/config"
)

// Workspace files seeded on first run. Existing files are never
// overwritten.
var workspaceTemplates = map[string]string{
	"AGENTS.md": `# Agent Instructions

Keep replies short and conversational; you are chatting, not writing
documentation. Ask before taking actions with side effects outside the
workspace.
`,
	"SOUL.md": `# Personality

Friendly, direct, a little dry. No corporate filler.
`,
	"USER.md": `# About the User

(Tell the agent about yourself here: name, timezone, preferences.)
`,
	"HEARTBEAT.md": `# Heartbeat Tasks

<!-- Tasks listed here run on the heartbeat schedule. -->
- [ ]
`,
}

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Write a default config and seed the workspace",
		Run: func(cmd *cobra.Command, args []string) {
			cfgPath := resolveConfigPath()

			if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
				if err := config.Save(cfgPath, config.Default()); err != nil {
					fmt.Fprintf(os.Stderr, "Error writing config: %v\n", err)
					os.Exit(1)
				}
				fmt.Printf("Wrote default config to %s\n", cfgPath)
			} else {
				fmt.Printf("Config already exists at %s, leaving it alone\n", cfgPath)
			}

			cfg, err := config.Load(cfgPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
				os.Exit(1)
			}

			workspace := cfg.WorkspacePath()
			if err := os.MkdirAll(filepath.Join(workspace, "memory"), 0755); err != nil {
				fmt.Fprintf(os.Stderr, "Error creating workspace: %v\n", err)
				os.Exit(1)
			}
			if err := os.MkdirAll(filepath.Join(workspace, "skills"), 0755); err != nil {
				fmt.Fprintf(os.Stderr, "Error creating workspace: %v\n", err)
				os.Exit(1)
			}

			for name, content := range workspaceTemplates {
				path := filepath.Join(workspace, name)
				if _, err := os.Stat(path); err == nil {
					continue
				}
				if err := os.WriteFile(path, []byte(content), 0644); err != nil {
					fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", name, err)
					os.Exit(1)
				}
				fmt.Printf("Seeded %s\n", path)
			}

			fmt.Println()
			fmt.Println("Next steps:")
			fmt.Println("  1. export PERCH_OPENAI_API_KEY=sk-...   (or edit the config)")
			fmt.Println("  2. perch agent -m \"hello\"               (test a turn)")
			fmt.Println("  3. perch                                (start the gateway)")
		},
	}
}
