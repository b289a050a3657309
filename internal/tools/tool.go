// Package tools provides the tool-plugin contract, the registry that
// validates and executes tool calls, and the built-in tool set.
package tools

import "context"

// Tool is the interface all tools must implement.
type Tool interface {
	Name() string
	Description() string

	// Parameters returns a JSON-Schema object describing the arguments.
	Parameters() map[string]any

	// Execute runs the tool. Failures are reported through the Result,
	// not panics.
	Execute(ctx context.Context, args map[string]any) *Result
}

// ContextAware is implemented by routing-aware tools (message, spawn,
// cron) that need to know which channel/chat the current turn belongs
// to. The agent loop rebinds the context before every turn.
type ContextAware interface {
	SetContext(channel, chatID string)
}

// Result is the unified return type from tool execution.
type Result struct {
	ForLLM  string `json:"for_llm"`           // content sent to the LLM
	ForUser string `json:"for_user,omitempty"` // content shown to the user
	Silent  bool   `json:"silent"`             // suppress user message
	IsError bool   `json:"is_error"`           // marks error
	Async   bool   `json:"async"`              // running asynchronously
}

func NewResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM}
}

func SilentResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM, Silent: true}
}

func ErrorResult(message string) *Result {
	return &Result{ForLLM: message, IsError: true}
}

func AsyncResult(message string) *Result {
	return &Result{ForLLM: message, Async: true}
}
