package alerts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists alert tasks as a JSON object keyed by task id. The
// file is shared between the interactive process and the worker, so
// every read goes through a mtime check: the file is re-parsed only
// when its mtime is strictly newer than the last one seen. Writes
// record the resulting mtime so a process never re-reads its own save.
type Store struct {
	mu     sync.Mutex
	path   string
	tasks  map[string]*Task
	seen   time.Time
	loaded bool
}

// NewStore creates a task store backed by path. The file is read
// lazily on first access.
func NewStore(path string) *Store {
	return &Store{path: path, tasks: make(map[string]*Task)}
}

// refresh reloads the file if it changed since the last read or write.
func (s *Store) refresh() error {
	info, err := os.Stat(s.path)
	if os.IsNotExist(err) {
		if !s.loaded {
			s.tasks = make(map[string]*Task)
			s.loaded = true
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat alert tasks: %w", err)
	}
	if s.loaded && !info.ModTime().After(s.seen) {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read alert tasks: %w", err)
	}
	tasks := make(map[string]*Task)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &tasks); err != nil {
			return fmt.Errorf("parse alert tasks: %w", err)
		}
	}
	s.tasks = tasks
	s.seen = info.ModTime()
	s.loaded = true
	return nil
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal alert tasks: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create alert tasks dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write alert tasks: %w", err)
	}
	if info, err := os.Stat(s.path); err == nil {
		s.seen = info.ModTime()
	}
	return nil
}

// Add validates the task, assigns an id and creation time, enables it
// and persists the result. The stored task is returned.
func (s *Store) Add(t Task) (Task, error) {
	if err := t.Validate(); err != nil {
		return Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refresh(); err != nil {
		return Task{}, err
	}

	t.ID = uuid.NewString()
	t.Enabled = true
	t.CreatedAt = time.Now().UTC()
	s.tasks[t.ID] = &t
	if err := s.save(); err != nil {
		return Task{}, err
	}
	return t, nil
}

// Get returns the task with the given id.
func (s *Store) Get(id string) (Task, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refresh(); err != nil {
		return Task{}, false, err
	}
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, false, nil
	}
	return *t, true, nil
}

// List returns all tasks ordered by creation time.
func (s *Store) List() ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refresh(); err != nil {
		return nil, err
	}

	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Update applies fn to the task with the given id, re-enables it and
// persists. Re-enabling on update is what lets a fired alert be armed
// again by changing its threshold.
func (s *Store) Update(id string, fn func(*Task)) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refresh(); err != nil {
		return Task{}, err
	}

	t, ok := s.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("alert task %s not found", id)
	}
	fn(t)
	t.Enabled = true
	if err := t.Validate(); err != nil {
		return Task{}, err
	}
	if err := s.save(); err != nil {
		return Task{}, err
	}
	return *t, nil
}

// Disable flips the task off without touching other fields. Used by
// the scheduler after an alert fires.
func (s *Store) Disable(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refresh(); err != nil {
		return err
	}
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("alert task %s not found", id)
	}
	if !t.Enabled {
		return nil
	}
	t.Enabled = false
	return s.save()
}

// Remove deletes the task with the given id.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refresh(); err != nil {
		return err
	}
	if _, ok := s.tasks[id]; !ok {
		return fmt.Errorf("alert task %s not found", id)
	}
	delete(s.tasks, id)
	return s.save()
}
