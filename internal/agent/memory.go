package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MemoryStore manages the agent's persistent notes under
// <workspace>/memory: MEMORY.md for long-term facts and one dated file
// per day for working notes.
type MemoryStore struct {
	dir string
}

func NewMemoryStore(workspace string) *MemoryStore {
	dir := filepath.Join(workspace, "memory")
	os.MkdirAll(dir, 0755)
	return &MemoryStore{dir: dir}
}

func (m *MemoryStore) longTermPath() string {
	return filepath.Join(m.dir, "MEMORY.md")
}

func (m *MemoryStore) todayPath() string {
	return filepath.Join(m.dir, time.Now().Format("2006-01-02")+".md")
}

// ReadLongTerm returns MEMORY.md, or "" when absent.
func (m *MemoryStore) ReadLongTerm() string {
	data, err := os.ReadFile(m.longTermPath())
	if err != nil {
		return ""
	}
	return string(data)
}

// WriteLongTerm replaces MEMORY.md.
func (m *MemoryStore) WriteLongTerm(content string) error {
	return os.WriteFile(m.longTermPath(), []byte(content), 0644)
}

// ReadToday returns today's note file, or "" when absent.
func (m *MemoryStore) ReadToday() string {
	data, err := os.ReadFile(m.todayPath())
	if err != nil {
		return ""
	}
	return string(data)
}

// AppendToday appends to today's notes, writing the date header on the
// first entry of the day.
func (m *MemoryStore) AppendToday(content string) error {
	path := m.todayPath()
	existing, err := os.ReadFile(path)
	if err == nil {
		content = string(existing) + "\n" + content
	} else {
		content = fmt.Sprintf("# %s\n\n%s", time.Now().Format("2006-01-02"), content)
	}
	return os.WriteFile(path, []byte(content), 0644)
}

// MemoryContext renders the non-empty memory sections for the system
// prompt.
func (m *MemoryStore) MemoryContext() string {
	var parts []string
	if lt := m.ReadLongTerm(); lt != "" {
		parts = append(parts, "## Long-term Memory\n"+lt)
	}
	if today := m.ReadToday(); today != "" {
		parts = append(parts, "## Today's Notes\n"+today)
	}
	return strings.Join(parts, "\n\n")
}
