// Package sessions persists conversation history as JSONL files, one
// per channel:chat_id key, with a write-through in-memory cache.
package sessions

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Message is one conversation entry.
type Message struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// Session is the full history for one conversation key.
type Session struct {
	Key       string         `json:"key"`
	Messages  []Message      `json:"messages"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AddMessage appends an entry and bumps the update time.
func (s *Session) AddMessage(role, content string, extra map[string]any) {
	now := time.Now()
	s.Messages = append(s.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: now,
		Extra:     extra,
	})
	s.UpdatedAt = now
}

// History returns up to max recent messages projected to the
// {role, content} shape providers expect. max <= 0 means everything.
func (s *Session) History(max int) []map[string]string {
	msgs := s.Messages
	if max > 0 && len(msgs) > max {
		msgs = msgs[len(msgs)-max:]
	}
	out := make([]map[string]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, map[string]string{"role": m.Role, "content": m.Content})
	}
	return out
}

// metadataLine is the first line of every session file.
type metadataLine struct {
	Type      string         `json:"_type"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
	Metadata  map[string]any `json:"metadata"`
}

// Manager loads and saves sessions under a directory.
type Manager struct {
	dir   string
	mu    sync.Mutex
	cache map[string]*Session
}

func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	return &Manager{dir: dir, cache: make(map[string]*Session)}, nil
}

// GetOrCreate returns the cached session for key, loading it from disk
// on first access or creating a fresh one.
func (m *Manager) GetOrCreate(key string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.cache[key]; ok {
		return s
	}

	s, err := m.loadLocked(key)
	if err != nil {
		now := time.Now()
		s = &Session{Key: key, CreatedAt: now, UpdatedAt: now}
	}
	m.cache[key] = s
	return s
}

func (m *Manager) loadLocked(key string) (*Session, error) {
	f, err := os.Open(m.path(key))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s := &Session{Key: key}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if first {
			first = false
			var meta metadataLine
			if err := json.Unmarshal([]byte(line), &meta); err == nil && meta.Type == "metadata" {
				s.CreatedAt, _ = time.Parse(time.RFC3339, meta.CreatedAt)
				s.UpdatedAt, _ = time.Parse(time.RFC3339, meta.UpdatedAt)
				s.Metadata = meta.Metadata
				continue
			}
		}

		var msg Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			// Skip corrupt lines rather than losing the whole session.
			continue
		}
		s.Messages = append(s.Messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}
	return s, nil
}

// Save writes the session to disk atomically and refreshes the cache.
func (m *Manager) Save(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sb strings.Builder
	meta := metadataLine{
		Type:      "metadata",
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
		UpdatedAt: s.UpdatedAt.Format(time.RFC3339),
		Metadata:  s.Metadata,
	}
	if meta.Metadata == nil {
		meta.Metadata = map[string]any{}
	}
	line, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	sb.Write(line)
	sb.WriteByte('\n')

	for _, msg := range s.Messages {
		line, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		sb.Write(line)
		sb.WriteByte('\n')
	}

	path := m.path(s.Key)
	tmp, err := os.CreateTemp(m.dir, "session-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(sb.String()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}

	m.cache[s.Key] = s
	return nil
}

// Delete removes a session from disk and cache.
func (m *Manager) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.cache, key)
	if err := os.Remove(m.path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List returns the keys of all sessions on disk, sorted.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".jsonl"))
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Manager) path(key string) string {
	return filepath.Join(m.dir, sanitizeFilename(key)+".jsonl")
}

// sanitizeFilename maps a session key to a safe file name: ':' becomes
// '_' and characters unsafe on common filesystems are stripped.
func sanitizeFilename(key string) string {
	key = strings.ReplaceAll(key, ":", "_")
	return strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			return -1
		}
		return r
	}, key)
}
