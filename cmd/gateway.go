package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/perchbot/perch/internal/agent"
	"github.com/perchbot/perch/internal/bus"
	"github.com/perchbot/perch/internal/channels"
	chmanager "github.com/perchbot/perch/internal/channels/manager"
	"github.com/perchbot/perch/internal/config"
	"github.com/perchbot/perch/internal/cron"
	"github.com/perchbot/perch/internal/heartbeat"
	"github.com/perchbot/perch/internal/providers"
)

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start the gateway (channels, agent loop, scheduler)",
		Run: func(cmd *cobra.Command, args []string) {
			runGateway()
		},
	}
}

func runGateway() {
	setupLogging()
	cfg := loadConfig()

	provider, err := buildProvider(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	msgBus := bus.New()

	cronStore, err := cron.NewStore(cfg.CronStorePath())
	if err != nil {
		slog.Error("failed to open cron store", "error", err)
		os.Exit(1)
	}
	cronSvc := cron.NewService(cronStore, msgBus)

	loop, err := agent.NewLoop(cfg, msgBus, provider, cronStore)
	if err != nil {
		slog.Error("failed to build agent", "error", err)
		os.Exit(1)
	}

	manager, err := chmanager.NewManager(cfg, msgBus)
	if err != nil {
		slog.Error("failed to build channels", "error", err)
		os.Exit(1)
	}
	manager.Register(channels.NewCLIChannel(msgBus))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager.StartAll(ctx)
	defer manager.StopAll(context.Background())

	slog.Info("perch gateway started",
		"version", Version,
		"provider", provider.Name(),
		"channels", manager.Names(),
		"workspace", cfg.WorkspacePath(),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		loop.Run(ctx)
		return nil
	})
	g.Go(func() error {
		msgBus.DispatchOutbound(ctx)
		return nil
	})
	g.Go(func() error {
		cronSvc.Run(ctx)
		return nil
	})
	if cfg.Heartbeat.Enabled {
		hb := heartbeat.NewService(cfg.WorkspacePath(), func(ctx context.Context, prompt string) (string, error) {
			return loop.ProcessDirect(ctx, prompt, "cli", "heartbeat")
		}, time.Duration(cfg.Heartbeat.IntervalMinutes)*time.Minute)
		g.Go(func() error {
			hb.Run(ctx)
			return nil
		})
	}

	g.Wait()
	slog.Info("perch gateway stopped")
}

// buildProvider constructs the configured LLM backend. All supported
// backends speak the OpenAI chat completions protocol.
func buildProvider(cfg *config.Config) (providers.Provider, error) {
	name, pc := cfg.ActiveProvider()
	if pc.APIKey == "" {
		return nil, fmt.Errorf("no API key for provider %q: set PERCH_%s_API_KEY or run `perch onboard`",
			name, envSuffix(name))
	}

	apiBase := pc.APIBase
	if apiBase == "" {
		switch name {
		case "openrouter":
			apiBase = "https://openrouter.ai/api/v1"
		case "groq":
			apiBase = "https://api.groq.com/openai/v1"
		case "deepseek":
			apiBase = "https://api.deepseek.com/v1"
		}
	}

	model := pc.Model
	if model == "" {
		model = cfg.Agent.Model
	}
	return providers.NewOpenAIProvider(name, pc.APIKey, apiBase, model), nil
}

func envSuffix(provider string) string {
	switch provider {
	case "openrouter":
		return "OPENROUTER"
	case "groq":
		return "GROQ"
	case "deepseek":
		return "DEEPSEEK"
	default:
		return "OPENAI"
	}
}
