package alerts

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alerts.json")
	return NewStore(path), path
}

func TestComparatorEval(t *testing.T) {
	tests := []struct {
		cmp       Comparator
		value     float64
		threshold float64
		want      bool
	}{
		{CompGT, 101, 100, true},
		{CompGT, 100, 100, false},
		{CompGE, 100, 100, true},
		{CompLT, 99, 100, true},
		{CompLT, 100, 100, false},
		{CompLE, 100, 100, true},
		{Comparator("=="), 100, 100, false},
	}
	for _, tt := range tests {
		if got := tt.cmp.Eval(tt.value, tt.threshold); got != tt.want {
			t.Errorf("%v.Eval(%v, %v) = %v, want %v", tt.cmp, tt.value, tt.threshold, got, tt.want)
		}
	}
}

func TestAddListRemove(t *testing.T) {
	s, _ := newTestStore(t)

	a, err := s.Add(Task{Symbol: "600519.SH", Comparator: CompLT, Threshold: 1500})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if a.ID == "" || !a.Enabled || a.CreatedAt.IsZero() {
		t.Errorf("Add did not initialize task: %+v", a)
	}

	b, err := s.Add(Task{Symbol: "000001.SZ", Comparator: CompGT, Threshold: 13})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	tasks, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("List = %d tasks, want 2", len(tasks))
	}

	if err := s.Remove(a.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	tasks, _ = s.List()
	if len(tasks) != 1 || tasks[0].ID != b.ID {
		t.Errorf("after remove: %+v", tasks)
	}

	if err := s.Remove("missing"); err == nil {
		t.Error("Remove of unknown id should fail")
	}
}

func TestAddValidation(t *testing.T) {
	s, _ := newTestStore(t)

	cases := []Task{
		{Symbol: "", Comparator: CompLT, Threshold: 100},
		{Symbol: "600519.SH", Comparator: "between", Threshold: 100},
		{Symbol: "600519.SH", Comparator: CompLT, Threshold: 0},
		{Symbol: "600519.SH", Comparator: CompLT, Threshold: -5},
	}
	for i, c := range cases {
		if _, err := s.Add(c); err == nil {
			t.Errorf("case %d: expected validation error for %+v", i, c)
		}
	}
}

func TestUpdateReEnables(t *testing.T) {
	s, _ := newTestStore(t)

	task, err := s.Add(Task{Symbol: "600519.SH", Comparator: CompLT, Threshold: 1500})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Disable(task.ID); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	got, _, _ := s.Get(task.ID)
	if got.Enabled {
		t.Fatal("task should be disabled")
	}

	updated, err := s.Update(task.ID, func(t *Task) { t.Threshold = 1400 })
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !updated.Enabled {
		t.Error("Update should re-enable the task")
	}
	if updated.Threshold != 1400 {
		t.Errorf("threshold = %v, want 1400", updated.Threshold)
	}
}

func TestReloadOnNewerMtime(t *testing.T) {
	s, path := newTestStore(t)

	task, err := s.Add(Task{Symbol: "600519.SH", Comparator: CompLT, Threshold: 1500})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	// Simulate another process editing the file: rewrite the task with
	// a changed threshold and bump the mtime past the last-seen value.
	external := NewStore(path)
	if _, err := external.Update(task.ID, func(t *Task) { t.Threshold = 999 }); err != nil {
		t.Fatalf("external update: %v", err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	got, ok, err := s.Get(task.ID)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.Threshold != 999 {
		t.Errorf("threshold = %v, want 999 after external change", got.Threshold)
	}
}

func TestNoReloadWhenMtimeNotNewer(t *testing.T) {
	s, path := newTestStore(t)

	task, err := s.Add(Task{Symbol: "600519.SH", Comparator: CompLT, Threshold: 1500})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.List(); err != nil {
		t.Fatalf("List: %v", err)
	}

	// Rewrite the file but pin the mtime in the past. The change must
	// be invisible: only a strictly newer mtime triggers a reload.
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	past := time.Now().Add(-time.Minute)
	if err := os.Chtimes(path, past, past); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	got, ok, err := s.Get(task.ID)
	if err != nil || !ok {
		t.Fatalf("Get after stale rewrite: ok=%v err=%v (cached copy should win)", ok, err)
	}
	if got.Threshold != 1500 {
		t.Errorf("threshold = %v, want cached 1500", got.Threshold)
	}
}
