// Package agent contains the message-processing core: context
// assembly, the iterative tool loop, background subagents, skills and
// memory.
package agent

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/perchbot/perch/internal/providers"
)

// Workspace files injected verbatim into the system prompt, in order.
var bootstrapFiles = []string{"AGENTS.md", "SOUL.md", "USER.md", "TOOLS.md", "IDENTITY.md"}

// ContextBuilder assembles the message list for each LLM call:
// system prompt (identity, bootstrap files, memory, skills), recent
// history, and the current user turn.
type ContextBuilder struct {
	agentName string
	workspace string
	memory    *MemoryStore
	skills    *SkillsLoader
}

func NewContextBuilder(agentName, workspace, builtinSkillsDir string) *ContextBuilder {
	return &ContextBuilder{
		agentName: agentName,
		workspace: workspace,
		memory:    NewMemoryStore(workspace),
		skills:    NewSkillsLoader(workspace, builtinSkillsDir),
	}
}

// Memory exposes the memory store (used by CLI subcommands).
func (c *ContextBuilder) Memory() *MemoryStore { return c.memory }

// Skills exposes the skills loader.
func (c *ContextBuilder) Skills() *SkillsLoader { return c.skills }

// BuildSystemPrompt joins the prompt sections with a "---" separator.
// Order matters: identity and rules first, dynamic capability
// information after.
func (c *ContextBuilder) BuildSystemPrompt() string {
	parts := []string{c.identity()}

	if bootstrap := c.loadBootstrapFiles(); bootstrap != "" {
		parts = append(parts, bootstrap)
	}
	if memory := c.memory.MemoryContext(); memory != "" {
		parts = append(parts, "# Memory\n\n"+memory)
	}
	if always := c.skills.AlwaysSkills(); always != "" {
		parts = append(parts, "# Active Skills\n\n"+always)
	}
	if manifest := c.skills.Manifest(); manifest != "" {
		parts = append(parts, fmt.Sprintf(`# Skills

The following skills extend your capabilities. To use a skill, read its SKILL.md file using the read_file tool.
Skills with available="false" need dependencies installed first - you can try installing them with apt/brew.

%s`, manifest))
	}

	return strings.Join(parts, "\n\n---\n\n")
}

func (c *ContextBuilder) identity() string {
	now := time.Now().Format("2006-01-02 15:04 (Monday)")
	return fmt.Sprintf(`# %s

You are %s, a helpful AI assistant. You have access to tools that allow you to:
- Read, write, and edit files
- Execute shell commands
- Search the web and fetch web pages
- Send messages to users on chat channels
- Spawn subagents for complex background tasks

## Current Time
%s

## Runtime
%s/%s

## Workspace
Your workspace is at: %s
- Memory files: %s/memory/MEMORY.md
- Daily notes: %s/memory/YYYY-MM-DD.md
- Custom skills: %s/skills/{skill-name}/SKILL.md

IMPORTANT: When responding to direct questions or conversations, reply directly with your text response.
Only use the 'message' tool when you need to send a message to a specific chat channel.
For normal conversation, just respond with text - do not call the message tool.

Always be helpful, accurate, and concise. When using tools, explain what you're doing.
When remembering something, write to %s/memory/MEMORY.md`,
		c.agentName, c.agentName, now, runtime.GOOS, runtime.GOARCH,
		c.workspace, c.workspace, c.workspace, c.workspace, c.workspace)
}

func (c *ContextBuilder) loadBootstrapFiles() string {
	var parts []string
	for _, name := range bootstrapFiles {
		data, err := os.ReadFile(filepath.Join(c.workspace, name))
		if err != nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("## %s\n\n%s", name, string(data)))
	}
	return strings.Join(parts, "\n\n")
}

// BuildMessages assembles the full request: system prompt, history
// (already projected to role/content), and the current user turn with
// any image attachments.
func (c *ContextBuilder) BuildMessages(history []map[string]string, currentText string, media []string, channel, chatID string) []providers.Message {
	systemPrompt := c.BuildSystemPrompt()
	if channel != "" && chatID != "" {
		systemPrompt += fmt.Sprintf("\n\n## Current Session\nChannel: %s\nChat ID: %s", channel, chatID)
	}

	messages := make([]providers.Message, 0, len(history)+2)
	messages = append(messages, providers.Message{Role: "system", Content: systemPrompt})

	for _, h := range history {
		messages = append(messages, providers.Message{Role: h["role"], Content: h["content"]})
	}

	messages = append(messages, providers.Message{
		Role:    "user",
		Content: currentText,
		Images:  encodeImages(media),
	})
	return messages
}

// encodeImages reads image attachments into base64. Non-image or
// unreadable paths are silently dropped.
func encodeImages(media []string) []providers.ImageContent {
	var images []providers.ImageContent
	for _, path := range media {
		mimeType := mime.TypeByExtension(filepath.Ext(path))
		if !strings.HasPrefix(mimeType, "image/") {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		images = append(images, providers.ImageContent{
			MimeType: mimeType,
			Data:     base64.StdEncoding.EncodeToString(data),
		})
	}
	return images
}

// AppendAssistant appends the assistant turn, with tool calls when the
// model requested any.
func AppendAssistant(messages []providers.Message, content string, toolCalls []providers.ToolCall) []providers.Message {
	return append(messages, providers.Message{
		Role:      "assistant",
		Content:   content,
		ToolCalls: toolCalls,
	})
}

// AppendToolResult appends a role=tool message carrying one tool's
// output.
func AppendToolResult(messages []providers.Message, toolCallID, name, content string) []providers.Message {
	return append(messages, providers.Message{
		Role:       "tool",
		ToolCallID: toolCallID,
		Name:       name,
		Content:    content,
	})
}
