package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Name:              "perch",
			Workspace:         "~/.perch/workspace",
			Provider:          "openai",
			Model:             "gpt-4o",
			MaxTokens:         8192,
			Temperature:       0.7,
			MaxToolIterations: 20,
		},
		Tools: ToolsConfig{
			Exec: ExecConfig{TimeoutSec: 60},
			Web: WebToolsConfig{
				Brave: BraveConfig{MaxResults: 5},
			},
		},
		Sessions: SessionsConfig{
			Storage: "~/.perch/sessions",
		},
		Heartbeat: HeartbeatConfig{
			IntervalMinutes: 30,
		},
		Cron: CronConfig{
			Store: "~/.perch/cron/jobs.json",
		},
	}
}

// Load reads config from a JSON5 file, migrates legacy fields, then
// overlays env vars. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.migrateLegacy()
	cfg.applyEnvOverrides()
	return cfg, nil
}

// migrateLegacy moves tools.exec.restrictToWorkspace up to
// tools.restrictToWorkspace when it is only set in the legacy location.
func (c *Config) migrateLegacy() {
	if c.Tools.RestrictToWorkspace == nil && c.Tools.Exec.RestrictToWorkspace != nil {
		c.Tools.RestrictToWorkspace = c.Tools.Exec.RestrictToWorkspace
	}
	c.Tools.Exec.RestrictToWorkspace = nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("PERCH_OPENAI_API_KEY", &c.Providers.OpenAI.APIKey)
	envStr("PERCH_OPENROUTER_API_KEY", &c.Providers.OpenRouter.APIKey)
	envStr("PERCH_GROQ_API_KEY", &c.Providers.Groq.APIKey)
	envStr("PERCH_DEEPSEEK_API_KEY", &c.Providers.DeepSeek.APIKey)
	envStr("PERCH_TELEGRAM_TOKEN", &c.Channels.Telegram.Token)
	envStr("PERCH_DISCORD_TOKEN", &c.Channels.Discord.Token)
	envStr("PERCH_WHATSAPP_BRIDGE_URL", &c.Channels.WhatsApp.BridgeURL)
	envStr("PERCH_FEISHU_BRIDGE_URL", &c.Channels.Feishu.BridgeURL)
	envStr("PERCH_FEISHU_APP_ID", &c.Channels.Feishu.AppID)
	envStr("PERCH_FEISHU_APP_SECRET", &c.Channels.Feishu.AppSecret)
	envStr("PERCH_BRAVE_API_KEY", &c.Tools.Web.Brave.APIKey)

	// Auto-enable channels when credentials come from env.
	if c.Channels.Telegram.Token != "" {
		c.Channels.Telegram.Enabled = true
	}
	if c.Channels.Discord.Token != "" {
		c.Channels.Discord.Enabled = true
	}
	if c.Channels.WhatsApp.BridgeURL != "" {
		c.Channels.WhatsApp.Enabled = true
	}

	envStr("PERCH_PROVIDER", &c.Agent.Provider)
	envStr("PERCH_MODEL", &c.Agent.Model)
	envStr("PERCH_WORKSPACE", &c.Agent.Workspace)
	envStr("PERCH_SESSIONS_STORAGE", &c.Sessions.Storage)

	if v := os.Getenv("PERCH_MAX_TOOL_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Agent.MaxToolIterations = n
		}
	}
	if v := os.Getenv("PERCH_HEARTBEAT_ENABLED"); v != "" {
		c.Heartbeat.Enabled = v == "true" || v == "1"
	}
}

// Save writes the config to a JSON file.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}
