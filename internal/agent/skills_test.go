package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSkill(t *testing.T, root, name, content string) {
	t.Helper()
	dir := filepath.Join(root, "skills", name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// TestSkillDiscoveryAndShadowing verifies workspace skills win over
// builtin skills of the same name.
func TestSkillDiscoveryAndShadowing(t *testing.T) {
	ws := t.TempDir()
	builtin := t.TempDir()
	writeSkill(t, ws, "notes", "---\ndescription: workspace notes\n---\nworkspace body")
	writeSkill(t, builtin, "notes", "---\ndescription: builtin notes\n---\nbuiltin body")
	writeSkill(t, builtin, "search", "search body without frontmatter")

	l := NewSkillsLoader(ws, filepath.Join(builtin, "skills"))
	skills := l.List()
	if len(skills) != 2 {
		t.Fatalf("skills = %d, want 2", len(skills))
	}
	if skills[0].Name != "notes" || skills[0].Source != "workspace" {
		t.Errorf("skill[0] = %+v, want workspace notes", skills[0])
	}

	body, ok := l.Load("notes")
	if !ok || body != "workspace body" {
		t.Errorf("Load(notes) = %q, %v", body, ok)
	}
	body, ok = l.Load("search")
	if !ok || body != "search body without frontmatter" {
		t.Errorf("Load(search) = %q, %v", body, ok)
	}
}

// TestFrontmatterParsing covers quoting and the structured metadata
// block.
func TestFrontmatterParsing(t *testing.T) {
	ws := t.TempDir()
	writeSkill(t, ws, "weather", `---
description: "Fetch the weather"
metadata: {"nanobot": {"always": true, "requires": {"bins": ["curl"], "env": ["WEATHER_KEY"]}}}
---
Use curl to fetch the forecast.`)

	l := NewSkillsLoader(ws, "")
	skills := l.List()
	if len(skills) != 1 {
		t.Fatalf("skills = %d", len(skills))
	}
	s := skills[0]
	if s.Frontmatter["description"] != "Fetch the weather" {
		t.Errorf("description = %q", s.Frontmatter["description"])
	}
	if !s.Meta.Always {
		t.Error("always flag not parsed")
	}
	if len(s.Meta.Requires.Bins) != 1 || s.Meta.Requires.Bins[0] != "curl" {
		t.Errorf("bins = %v", s.Meta.Requires.Bins)
	}
	if len(s.Meta.Requires.Env) != 1 || s.Meta.Requires.Env[0] != "WEATHER_KEY" {
		t.Errorf("env = %v", s.Meta.Requires.Env)
	}
}

// TestAvailability verifies bin and env requirement checks.
func TestAvailability(t *testing.T) {
	ws := t.TempDir()
	writeSkill(t, ws, "present", `---
metadata: {"nanobot": {"requires": {"bins": ["sh"]}}}
---
body`)
	writeSkill(t, ws, "missing-bin", `---
metadata: {"nanobot": {"requires": {"bins": ["definitely-not-a-real-binary-9x"]}}}
---
body`)
	writeSkill(t, ws, "env-gated", `---
metadata: {"nanobot": {"requires": {"env": ["SKILL_TEST_TOKEN"]}}}
---
body`)

	l := NewSkillsLoader(ws, "")
	byName := make(map[string]Skill)
	for _, s := range l.List() {
		byName[s.Name] = s
	}

	if !l.Available(byName["present"]) {
		t.Error("skill with sh requirement should be available")
	}
	if l.Available(byName["missing-bin"]) {
		t.Error("skill with missing binary should be unavailable")
	}
	if l.Available(byName["env-gated"]) {
		t.Error("skill with unset env should be unavailable")
	}
	t.Setenv("SKILL_TEST_TOKEN", "x")
	if !l.Available(byName["env-gated"]) {
		t.Error("skill should become available once env is set")
	}
}

// TestManifest verifies the XML-like index including escaping and
// missing-requirement hints.
func TestManifest(t *testing.T) {
	ws := t.TempDir()
	writeSkill(t, ws, "tagger", `---
description: Tags <important> & urgent items
metadata: {"nanobot": {"requires": {"bins": ["definitely-not-a-real-binary-9x"]}}}
---
body`)

	l := NewSkillsLoader(ws, "")
	manifest := l.Manifest()

	if !strings.Contains(manifest, `<skill available="false">`) {
		t.Errorf("manifest = %q", manifest)
	}
	if !strings.Contains(manifest, "Tags &lt;important&gt; &amp; urgent items") {
		t.Errorf("description not escaped: %q", manifest)
	}
	if !strings.Contains(manifest, "<requires>CLI: definitely-not-a-real-binary-9x</requires>") {
		t.Errorf("missing requirements hint: %q", manifest)
	}
}

// TestAlwaysSkills verifies only available always-on skills load fully.
func TestAlwaysSkills(t *testing.T) {
	ws := t.TempDir()
	writeSkill(t, ws, "core", `---
metadata: {"nanobot": {"always": true}}
---
Core skill instructions.`)
	writeSkill(t, ws, "optional", `---
description: not always
---
Optional body.`)
	writeSkill(t, ws, "broken", `---
metadata: {"nanobot": {"always": true, "requires": {"bins": ["definitely-not-a-real-binary-9x"]}}}
---
Should not load.`)

	l := NewSkillsLoader(ws, "")
	got := l.AlwaysSkills()
	if !strings.Contains(got, "### Skill: core") || !strings.Contains(got, "Core skill instructions.") {
		t.Errorf("AlwaysSkills = %q", got)
	}
	if strings.Contains(got, "optional") || strings.Contains(got, "Should not load") {
		t.Errorf("AlwaysSkills included wrong skills: %q", got)
	}
}
