package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestReadWriteRoundTrip verifies write then read through the tools.
func TestReadWriteRoundTrip(t *testing.T) {
	ws := t.TempDir()
	write := NewWriteFileTool(ws, true)
	read := NewReadFileTool(ws, true)

	res := write.Execute(context.Background(), map[string]any{
		"path":    "notes/today.md",
		"content": "hello world",
	})
	if res.IsError {
		t.Fatalf("write failed: %s", res.ForLLM)
	}

	res = read.Execute(context.Background(), map[string]any{"path": "notes/today.md"})
	if res.IsError || res.ForLLM != "hello world" {
		t.Errorf("read = %+v", res)
	}
}

// TestWorkspaceEscapeRejected verifies the restrict boundary blocks
// relative traversal and absolute paths outside the workspace.
func TestWorkspaceEscapeRejected(t *testing.T) {
	ws := t.TempDir()
	outside := filepath.Join(t.TempDir(), "secret.txt")
	if err := os.WriteFile(outside, []byte("secret"), 0644); err != nil {
		t.Fatal(err)
	}
	read := NewReadFileTool(ws, true)

	for _, path := range []string{"../secret.txt", outside, "../../etc/passwd"} {
		res := read.Execute(context.Background(), map[string]any{"path": path})
		if !res.IsError || !strings.Contains(res.ForLLM, "access denied") {
			t.Errorf("path %q: result = %+v, want access denied", path, res)
		}
	}
}

// TestSymlinkEscapeRejected verifies a symlink pointing outside the
// workspace is caught after canonicalization.
func TestSymlinkEscapeRejected(t *testing.T) {
	ws := t.TempDir()
	outside := filepath.Join(t.TempDir(), "target.txt")
	if err := os.WriteFile(outside, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(ws, "link.txt")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	read := NewReadFileTool(ws, true)
	res := read.Execute(context.Background(), map[string]any{"path": "link.txt"})
	if !res.IsError || !strings.Contains(res.ForLLM, "access denied") {
		t.Errorf("result = %+v, want access denied", res)
	}
}

// TestUnrestrictedAllowsOutside verifies restrict=false disables the
// boundary check.
func TestUnrestrictedAllowsOutside(t *testing.T) {
	ws := t.TempDir()
	outside := filepath.Join(t.TempDir(), "open.txt")
	if err := os.WriteFile(outside, []byte("visible"), 0644); err != nil {
		t.Fatal(err)
	}

	read := NewReadFileTool(ws, false)
	res := read.Execute(context.Background(), map[string]any{"path": outside})
	if res.IsError || res.ForLLM != "visible" {
		t.Errorf("result = %+v", res)
	}
}

// TestEditFile covers the exact-substring replace contract.
func TestEditFile(t *testing.T) {
	ws := t.TempDir()
	path := filepath.Join(ws, "file.txt")
	edit := NewEditFileTool(ws, true)

	t.Run("unique match replaced once", func(t *testing.T) {
		os.WriteFile(path, []byte("alpha beta gamma"), 0644)
		res := edit.Execute(context.Background(), map[string]any{
			"path":     "file.txt",
			"old_text": "beta",
			"new_text": "delta",
		})
		if res.IsError {
			t.Fatalf("edit failed: %s", res.ForLLM)
		}
		data, _ := os.ReadFile(path)
		if string(data) != "alpha delta gamma" {
			t.Errorf("content = %q", data)
		}
	})

	t.Run("missing text reported", func(t *testing.T) {
		os.WriteFile(path, []byte("alpha"), 0644)
		res := edit.Execute(context.Background(), map[string]any{
			"path":     "file.txt",
			"old_text": "zeta",
			"new_text": "x",
		})
		if !res.IsError || !strings.Contains(res.ForLLM, "not found") {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("ambiguous match rejected", func(t *testing.T) {
		os.WriteFile(path, []byte("dup dup"), 0644)
		res := edit.Execute(context.Background(), map[string]any{
			"path":     "file.txt",
			"old_text": "dup",
			"new_text": "x",
		})
		if !res.IsError || !strings.Contains(res.ForLLM, "2 locations") {
			t.Errorf("result = %+v", res)
		}
	})
}

// TestListDir verifies directory listing with trailing slash on dirs.
func TestListDir(t *testing.T) {
	ws := t.TempDir()
	os.Mkdir(filepath.Join(ws, "sub"), 0755)
	os.WriteFile(filepath.Join(ws, "b.txt"), nil, 0644)
	os.WriteFile(filepath.Join(ws, "a.txt"), nil, 0644)

	list := NewListDirTool(ws, true)
	res := list.Execute(context.Background(), map[string]any{})
	if res.IsError {
		t.Fatalf("list failed: %s", res.ForLLM)
	}
	want := "a.txt\nb.txt\nsub/"
	if res.ForLLM != want {
		t.Errorf("listing = %q, want %q", res.ForLLM, want)
	}
}
