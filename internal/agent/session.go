package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"finagent/internal/llm"
)

// sessionFile is the on-disk shape of a saved conversation.
type sessionFile struct {
	SavedAt  time.Time     `json:"saved_at"`
	Model    string        `json:"model"`
	Messages []llm.Message `json:"messages"`
}

// SaveSession writes the conversation to dir under the given name (a
// timestamp is used when empty) and returns the file path.
func (a *Agent) SaveSession(dir, name string) (string, error) {
	if name == "" {
		name = time.Now().Format("20060102-150405")
	}
	if !strings.HasSuffix(name, ".json") {
		name += ".json"
	}
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(sessionFile{
		SavedAt:  time.Now().UTC(),
		Model:    a.Model(),
		Messages: a.history,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create sessions dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write session: %w", err)
	}
	return path, nil
}

// LoadSession replaces the conversation history with a saved one. The
// system slot is re-established; its content is rebuilt on the next
// turn anyway.
func (a *Agent) LoadSession(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read session: %w", err)
	}
	var sf sessionFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return fmt.Errorf("parse session: %w", err)
	}

	history := []llm.Message{{Role: "system"}}
	for _, m := range sf.Messages {
		if m.Role == "system" {
			continue
		}
		history = append(history, m)
	}
	a.history = history
	return nil
}

// ListSessions returns saved session file names in dir, newest last.
func ListSessions(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
