package cleanup

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func touch(t *testing.T, path string, age time.Duration) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	mod := time.Now().Add(-age)
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatal(err)
	}
}

func TestSweep(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "sessions", "a", "video.mp4")
	fresh := filepath.Join(dir, "upload.mp4")
	touch(t, old, 3*time.Hour)
	touch(t, fresh, time.Minute)

	var hookAge time.Duration
	s := NewScheduler(dir, time.Hour, 2*time.Hour, nil, func(maxAge time.Duration) { hookAge = maxAge })

	if n := s.Sweep(); n != 1 {
		t.Errorf("Sweep removed %d files, want 1", n)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("old file survived")
	}
	if _, err := os.Stat(filepath.Join(dir, "sessions")); !os.IsNotExist(err) {
		t.Error("emptied directories should be removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh file removed: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("root removed: %v", err)
	}
	if hookAge != 2*time.Hour {
		t.Errorf("hook got %v", hookAge)
	}
}

func TestStartStop(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "old.txt"), time.Hour)

	s := NewScheduler(dir, time.Millisecond, time.Minute, nil)
	s.Start()
	s.Stop()
	s.Stop()

	if _, err := os.Stat(filepath.Join(dir, "old.txt")); !os.IsNotExist(err) {
		t.Error("initial sweep did not run")
	}
}

func TestMissingDir(t *testing.T) {
	s := NewScheduler(filepath.Join(t.TempDir(), "absent"), 0, time.Minute, nil)
	if n := s.Sweep(); n != 0 {
		t.Errorf("Sweep = %d", n)
	}
	s.Start()
	s.Stop()
}

func TestSweepKeepsLivePaths(t *testing.T) {
	dir := t.TempDir()
	live := filepath.Join(dir, "sessions", "live", "video.mp4")
	dead := filepath.Join(dir, "sessions", "dead", "video.mp4")
	touch(t, live, 7*time.Hour)
	touch(t, dead, 7*time.Hour)

	alive := map[string]bool{"live": true, "dead": true}
	var order []string
	s := NewScheduler(dir, time.Hour, 6*time.Hour, nil, func(time.Duration) {
		order = append(order, "hook")
		delete(alive, "dead")
	})
	s.Keep = func(path string) bool {
		if filepath.Dir(path) != filepath.Join(dir, "sessions") {
			return false
		}
		order = append(order, "keep")
		return alive[filepath.Base(path)]
	}

	if n := s.Sweep(); n != 1 {
		t.Errorf("Sweep removed %d files, want 1", n)
	}
	if _, err := os.Stat(live); err != nil {
		t.Errorf("live file removed: %v", err)
	}
	if _, err := os.Stat(dead); !os.IsNotExist(err) {
		t.Error("file of an expired owner survived")
	}
	if len(order) == 0 || order[0] != "hook" {
		t.Errorf("hooks should run before the file walk, got %v", order)
	}
}
