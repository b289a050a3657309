package agent

import (
	"strings"
	"testing"
	"time"
)

// TestMemoryContext verifies section assembly from the memory files.
func TestMemoryContext(t *testing.T) {
	m := NewMemoryStore(t.TempDir())

	if got := m.MemoryContext(); got != "" {
		t.Errorf("empty store context = %q", got)
	}

	if err := m.WriteLongTerm("User prefers metric units."); err != nil {
		t.Fatal(err)
	}
	got := m.MemoryContext()
	if !strings.Contains(got, "## Long-term Memory\nUser prefers metric units.") {
		t.Errorf("context = %q", got)
	}
	if strings.Contains(got, "Today's Notes") {
		t.Errorf("context should omit empty today section: %q", got)
	}

	if err := m.AppendToday("met with the team"); err != nil {
		t.Fatal(err)
	}
	got = m.MemoryContext()
	if !strings.Contains(got, "## Today's Notes") || !strings.Contains(got, "met with the team") {
		t.Errorf("context = %q", got)
	}
}

// TestAppendTodayHeader verifies the date header appears once.
func TestAppendTodayHeader(t *testing.T) {
	m := NewMemoryStore(t.TempDir())

	m.AppendToday("first")
	m.AppendToday("second")

	got := m.ReadToday()
	header := "# " + time.Now().Format("2006-01-02")
	if !strings.HasPrefix(got, header+"\n\n") {
		t.Errorf("today = %q, want %q prefix", got, header)
	}
	if strings.Count(got, header) != 1 {
		t.Errorf("header repeated: %q", got)
	}
	if !strings.Contains(got, "first") || !strings.Contains(got, "second") {
		t.Errorf("entries missing: %q", got)
	}
}
