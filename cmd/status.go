package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/perchbot/perch/internal/cron"
	"github.com/perchbot/perch/internal/sessions"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and workspace state",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			providerName, pc := cfg.ActiveProvider()

			fmt.Printf("perch %s\n\n", Version)
			fmt.Printf("Config:    %s\n", resolveConfigPath())
			fmt.Printf("Provider:  %s (key %s)\n", providerName, presence(pc.APIKey))
			model := pc.Model
			if model == "" {
				model = cfg.Agent.Model
			}
			fmt.Printf("Model:     %s\n", model)
			fmt.Printf("Workspace: %s (%s)\n", cfg.WorkspacePath(), existence(cfg.WorkspacePath()))

			if mgr, err := sessions.NewManager(cfg.SessionsPath()); err == nil {
				keys, _ := mgr.List()
				fmt.Printf("Sessions:  %d\n", len(keys))
			}
			if store, err := cron.NewStore(cfg.CronStorePath()); err == nil {
				fmt.Printf("Cron jobs: %d\n", len(store.List()))
			}

			fmt.Println("\nChannels:")
			fmt.Printf("  telegram: %s\n", enabled(cfg.Channels.Telegram.Enabled))
			fmt.Printf("  discord:  %s\n", enabled(cfg.Channels.Discord.Enabled))
			fmt.Printf("  whatsapp: %s\n", enabled(cfg.Channels.WhatsApp.Enabled))
			fmt.Printf("  feishu:   %s\n", enabled(cfg.Channels.Feishu.Enabled))

			fmt.Println()
			fmt.Printf("Heartbeat: %s (every %d min)\n", enabled(cfg.Heartbeat.Enabled), cfg.Heartbeat.IntervalMinutes)
			fmt.Printf("Web search: key %s\n", presence(cfg.Tools.Web.Brave.APIKey))
		},
	}
}

func presence(secret string) string {
	if secret == "" {
		return "missing"
	}
	return "set"
}

func existence(path string) string {
	if _, err := os.Stat(path); err != nil {
		return "missing"
	}
	return "exists"
}

func enabled(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}
