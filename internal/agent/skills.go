package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Skill is one SKILL.md package discovered in the workspace or the
// builtin skills directory.
type Skill struct {
	Name        string
	Source      string // "workspace" or "builtin"
	Path        string
	Frontmatter map[string]string
	Meta        SkillMeta
}

// SkillMeta is the structured half of the frontmatter: the JSON value
// of the "metadata" key, under its agent-specific object.
type SkillMeta struct {
	Always   bool     `json:"always"`
	Requires Requires `json:"requires"`
}

type Requires struct {
	Bins []string `json:"bins"`
	Env  []string `json:"env"`
}

// SkillsLoader scans skill directories. Workspace skills shadow
// builtin skills of the same name.
type SkillsLoader struct {
	workspaceDir string
	builtinDir   string
}

func NewSkillsLoader(workspace, builtinDir string) *SkillsLoader {
	return &SkillsLoader{
		workspaceDir: filepath.Join(workspace, "skills"),
		builtinDir:   builtinDir,
	}
}

// List returns all discovered skills sorted by name.
func (l *SkillsLoader) List() []Skill {
	byName := make(map[string]Skill)
	l.scanDir(l.builtinDir, "builtin", byName)
	l.scanDir(l.workspaceDir, "workspace", byName) // shadows builtin

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	skills := make([]Skill, 0, len(names))
	for _, name := range names {
		skills = append(skills, byName[name])
	}
	return skills
}

func (l *SkillsLoader) scanDir(dir, source string, out map[string]Skill) {
	if dir == "" {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name(), "SKILL.md")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		fm := parseFrontmatter(string(data))
		out[e.Name()] = Skill{
			Name:        e.Name(),
			Source:      source,
			Path:        path,
			Frontmatter: fm,
			Meta:        parseSkillMeta(fm["metadata"]),
		}
	}
}

// Load returns the body of a skill with frontmatter stripped.
func (l *SkillsLoader) Load(name string) (string, bool) {
	for _, dir := range []string{l.workspaceDir, l.builtinDir} {
		if dir == "" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name, "SKILL.md"))
		if err != nil {
			continue
		}
		return stripFrontmatter(string(data)), true
	}
	return "", false
}

// Available reports whether a skill's binary and env requirements are
// satisfied.
func (l *SkillsLoader) Available(s Skill) bool {
	for _, bin := range s.Meta.Requires.Bins {
		if _, err := exec.LookPath(bin); err != nil {
			return false
		}
	}
	for _, env := range s.Meta.Requires.Env {
		if os.Getenv(env) == "" {
			return false
		}
	}
	return true
}

// AlwaysSkills renders the full bodies of always-on available skills.
func (l *SkillsLoader) AlwaysSkills() string {
	var parts []string
	for _, s := range l.List() {
		if !s.Meta.Always || !l.Available(s) {
			continue
		}
		body, ok := l.Load(s.Name)
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("### Skill: %s\n\n%s", s.Name, body))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// Manifest renders the XML-like skill index for the system prompt.
// Unavailable skills list what they are missing.
func (l *SkillsLoader) Manifest() string {
	skills := l.List()
	if len(skills) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("<skills>\n")
	for _, s := range skills {
		available := l.Available(s)
		desc := s.Frontmatter["description"]
		if desc == "" {
			desc = s.Name
		}
		fmt.Fprintf(&sb, "  <skill available=\"%t\">\n", available)
		fmt.Fprintf(&sb, "    <name>%s</name>\n", escapeXML(s.Name))
		fmt.Fprintf(&sb, "    <description>%s</description>\n", escapeXML(desc))
		fmt.Fprintf(&sb, "    <location>%s</location>\n", s.Path)
		if !available {
			if missing := l.missingRequirements(s); missing != "" {
				fmt.Fprintf(&sb, "    <requires>%s</requires>\n", escapeXML(missing))
			}
		}
		sb.WriteString("  </skill>\n")
	}
	sb.WriteString("</skills>")
	return sb.String()
}

func (l *SkillsLoader) missingRequirements(s Skill) string {
	var missing []string
	for _, bin := range s.Meta.Requires.Bins {
		if _, err := exec.LookPath(bin); err != nil {
			missing = append(missing, "CLI: "+bin)
		}
	}
	for _, env := range s.Meta.Requires.Env {
		if os.Getenv(env) == "" {
			missing = append(missing, "ENV: "+env)
		}
	}
	return strings.Join(missing, ", ")
}

// parseFrontmatter extracts key: value pairs between the leading ---
// fences. Values keep everything after the first colon, with
// surrounding quotes stripped.
func parseFrontmatter(content string) map[string]string {
	fm := make(map[string]string)
	if !strings.HasPrefix(content, "---") {
		return fm
	}
	rest := content[3:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return fm
	}
	for _, line := range strings.Split(rest[:end], "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		fm[strings.TrimSpace(key)] = value
	}
	return fm
}

func stripFrontmatter(content string) string {
	if !strings.HasPrefix(content, "---") {
		return content
	}
	rest := content[3:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return content
	}
	body := rest[end+4:]
	return strings.TrimSpace(strings.TrimPrefix(body, "\n"))
}

// parseSkillMeta decodes the frontmatter "metadata" JSON and pulls out
// the agent-specific object.
func parseSkillMeta(raw string) SkillMeta {
	if raw == "" {
		return SkillMeta{}
	}
	var outer map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &outer); err != nil {
		return SkillMeta{}
	}
	var meta SkillMeta
	if inner, ok := outer["nanobot"]; ok {
		json.Unmarshal(inner, &meta)
	}
	return meta
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
