package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/The-Promised-Neverland/hostwatch/internal/models"
)

// Result describes how a snapshot compares with the stored baseline.
type Result struct {
	Changed bool
	// First is true when no baseline existed at all.
	First    bool
	Previous string
}

// Tracker keeps the last reported service snapshot in a flat file. A changed
// snapshot is written before Diff returns, so callers notify only after the
// new baseline is stored.
type Tracker struct {
	path string

	mu    sync.Mutex
	last  string
	have  bool
	dirty bool // last write failed; the in-memory copy is authoritative
}

func NewTracker(path string) *Tracker {
	return &Tracker{path: path}
}

// Diff compares current against the baseline and stores it when it differs.
// A non-nil error means the new baseline could not be persisted; Result is
// still valid and the in-memory baseline has been updated.
func (t *Tracker) Diff(current models.Snapshot) (Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	serialized := current.String()
	previous, ok := t.baseline()
	if ok && previous == serialized {
		return Result{Previous: previous}, nil
	}

	res := Result{Changed: true, First: !ok, Previous: previous}
	t.last, t.have = serialized, true
	if err := t.write(serialized); err != nil {
		t.dirty = true
		return res, fmt.Errorf("persist snapshot to %s: %w", t.path, err)
	}
	t.dirty = false
	return res, nil
}

func (t *Tracker) baseline() (string, bool) {
	if t.dirty {
		return t.last, true
	}
	data, err := os.ReadFile(t.path)
	if err == nil {
		return string(data), true
	}
	if t.have {
		return t.last, true
	}
	return "", false
}

// write replaces the state file atomically.
func (t *Tracker) write(serialized string) error {
	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".monitoring_status-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(serialized); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), t.path)
}
