package tools

import (
	"context"
	"strings"
	"testing"
)

// fakeTool is a scriptable tool for registry tests.
type fakeTool struct {
	name    string
	params  map[string]any
	execute func(ctx context.Context, args map[string]any) *Result

	channel string
	chatID  string
}

func (f *fakeTool) Name() string               { return f.name }
func (f *fakeTool) Description() string        { return "test tool" }
func (f *fakeTool) Parameters() map[string]any { return f.params }
func (f *fakeTool) Execute(ctx context.Context, args map[string]any) *Result {
	return f.execute(ctx, args)
}
func (f *fakeTool) SetContext(channel, chatID string) {
	f.channel = channel
	f.chatID = chatID
}

// TestExecuteUnknownTool verifies the not-found contract string.
func TestExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	got := r.Execute(context.Background(), "nope", nil)
	want := "Error: Tool 'nope' not found"
	if got != want {
		t.Errorf("Execute = %q, want %q", got, want)
	}
}

// TestExecuteInvalidParams verifies validation failures are joined with
// "; " under the invalid-parameters prefix.
func TestExecuteInvalidParams(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{
		name: "echo",
		params: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
			"required": []string{"text"},
		},
		execute: func(ctx context.Context, args map[string]any) *Result {
			t.Fatal("execute should not run on invalid params")
			return nil
		},
	})

	got := r.Execute(context.Background(), "echo", map[string]any{})
	if !strings.HasPrefix(got, "Error: Invalid parameters for tool 'echo': ") {
		t.Errorf("Execute = %q", got)
	}
	if !strings.Contains(got, "missing required field 'text'") {
		t.Errorf("Execute = %q, missing validation detail", got)
	}
}

// TestExecuteErrorResult verifies error results are wrapped in the
// executing-error prefix, but only when not already an error string.
func TestExecuteErrorResult(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{
		name: "boom",
		execute: func(ctx context.Context, args map[string]any) *Result {
			return ErrorResult("disk is full")
		},
	})

	got := r.Execute(context.Background(), "boom", nil)
	want := "Error executing boom: disk is full"
	if got != want {
		t.Errorf("Execute = %q, want %q", got, want)
	}
}

// TestExecuteRecoversPanic verifies a panicking tool surfaces as an
// error string instead of crashing the loop.
func TestExecuteRecoversPanic(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{
		name: "crash",
		execute: func(ctx context.Context, args map[string]any) *Result {
			panic("nil map write")
		},
	})

	got := r.Execute(context.Background(), "crash", nil)
	want := "Error executing crash: nil map write"
	if got != want {
		t.Errorf("Execute = %q, want %q", got, want)
	}
}

// TestExecuteSuccess verifies a plain result passes through untouched.
func TestExecuteSuccess(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{
		name: "ok",
		execute: func(ctx context.Context, args map[string]any) *Result {
			return NewResult("all good")
		},
	})

	if got := r.Execute(context.Background(), "ok", nil); got != "all good" {
		t.Errorf("Execute = %q", got)
	}
}

// TestSetContextBroadcast verifies context-aware tools receive the
// current routing coordinates and plain tools are skipped.
func TestSetContextBroadcast(t *testing.T) {
	r := NewRegistry()
	aware := &fakeTool{name: "aware", execute: func(ctx context.Context, args map[string]any) *Result {
		return NewResult("")
	}}
	r.Register(aware)

	r.SetContext("telegram", "42")

	if aware.channel != "telegram" || aware.chatID != "42" {
		t.Errorf("context = %q/%q, want telegram/42", aware.channel, aware.chatID)
	}
}

// TestNamesAndDefinitions verifies deterministic ordering.
func TestNamesAndDefinitions(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		n := name
		r.Register(&fakeTool{name: n, execute: func(ctx context.Context, args map[string]any) *Result {
			return NewResult("")
		}})
	}

	names := r.Names()
	if len(names) != 3 || names[0] != "alpha" || names[2] != "zeta" {
		t.Errorf("Names = %v", names)
	}

	defs := r.Definitions()
	if len(defs) != 3 || defs[0].Function.Name != "alpha" || defs[0].Type != "function" {
		t.Errorf("Definitions = %+v", defs)
	}
}

// TestUnregister verifies removal.
func TestUnregister(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "gone", execute: func(ctx context.Context, args map[string]any) *Result {
		return NewResult("")
	}})
	r.Unregister("gone")
	if r.Has("gone") {
		t.Error("tool should be unregistered")
	}
}
