// Package config defines the perch configuration schema and loading.
// Field names on disk are camelCase (JSON5); env vars use the PERCH_ prefix.
package config

import (
	"os"
	"path/filepath"
)

// Config is the root configuration.
type Config struct {
	Agent     AgentConfig     `json:"agent"`
	Providers ProvidersConfig `json:"providers"`
	Channels  ChannelsConfig  `json:"channels"`
	Tools     ToolsConfig     `json:"tools"`
	Sessions  SessionsConfig  `json:"sessions"`
	Heartbeat HeartbeatConfig `json:"heartbeat"`
	Cron      CronConfig      `json:"cron"`
}

// AgentConfig controls the reasoning loop.
type AgentConfig struct {
	Name              string  `json:"name"`
	Workspace         string  `json:"workspace"`
	BuiltinSkillsDir  string  `json:"builtinSkillsDir"`
	Provider          string  `json:"provider"` // key into Providers
	Model             string  `json:"model"`
	MaxTokens         int     `json:"maxTokens"`
	Temperature       float64 `json:"temperature"`
	MaxToolIterations int     `json:"maxToolIterations"`
}

// ProvidersConfig holds credentials per LLM backend. All backends speak
// the OpenAI-compatible chat completions protocol.
type ProvidersConfig struct {
	OpenAI     ProviderConfig `json:"openai"`
	OpenRouter ProviderConfig `json:"openrouter"`
	Groq       ProviderConfig `json:"groq"`
	DeepSeek   ProviderConfig `json:"deepseek"`
}

type ProviderConfig struct {
	APIKey  string `json:"apiKey"`
	APIBase string `json:"apiBase"`
	Model   string `json:"model"`
}

// ChannelsConfig holds per-transport settings.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Feishu   FeishuConfig   `json:"feishu"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	Proxy     string   `json:"proxy"`
	AllowFrom []string `json:"allowFrom"`
}

type DiscordConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
}

type WhatsAppConfig struct {
	Enabled   bool     `json:"enabled"`
	BridgeURL string   `json:"bridgeUrl"`
	AllowFrom []string `json:"allowFrom"`
}

type FeishuConfig struct {
	Enabled   bool     `json:"enabled"`
	BridgeURL string   `json:"bridgeUrl"`
	AppID     string   `json:"appId"`
	AppSecret string   `json:"appSecret"`
	AllowFrom []string `json:"allowFrom"`
}

// ToolsConfig controls the built-in tool set.
type ToolsConfig struct {
	RestrictToWorkspace *bool          `json:"restrictToWorkspace"`
	Exec                ExecConfig     `json:"exec"`
	Web                 WebToolsConfig `json:"web"`
}

type ExecConfig struct {
	TimeoutSec int `json:"timeoutSec"`

	// Legacy location; migrated up to Tools.RestrictToWorkspace on load.
	RestrictToWorkspace *bool `json:"restrictToWorkspace"`
}

type WebToolsConfig struct {
	Brave BraveConfig `json:"brave"`
}

type BraveConfig struct {
	APIKey     string `json:"apiKey"`
	MaxResults int    `json:"maxResults"`
}

type SessionsConfig struct {
	Storage string `json:"storage"`
}

type HeartbeatConfig struct {
	Enabled         bool `json:"enabled"`
	IntervalMinutes int  `json:"intervalMinutes"`
}

type CronConfig struct {
	Store string `json:"store"`
}

// WorkspacePath returns the expanded workspace path.
func (c *Config) WorkspacePath() string {
	return ExpandHome(c.Agent.Workspace)
}

// SessionsPath returns the expanded session storage path.
func (c *Config) SessionsPath() string {
	return ExpandHome(c.Sessions.Storage)
}

// CronStorePath returns the expanded cron store file path.
func (c *Config) CronStorePath() string {
	return ExpandHome(c.Cron.Store)
}

// RestrictToWorkspace reports whether file and exec tools are sandboxed
// to the workspace. Defaults to true when unset.
func (c *Config) RestrictToWorkspace() bool {
	if c.Tools.RestrictToWorkspace == nil {
		return true
	}
	return *c.Tools.RestrictToWorkspace
}

// ActiveProvider returns the configured provider's name and credentials.
func (c *Config) ActiveProvider() (name string, pc ProviderConfig) {
	name = c.Agent.Provider
	switch name {
	case "openrouter":
		pc = c.Providers.OpenRouter
	case "groq":
		pc = c.Providers.Groq
	case "deepseek":
		pc = c.Providers.DeepSeek
	default:
		name = "openai"
		pc = c.Providers.OpenAI
	}
	return name, pc
}

// DefaultPath returns the default config file location (~/.perch/config.json).
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".perch", "config.json")
}

// ExpandHome replaces a leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
