package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// WorkDir lays out per-task scratch directories as <Root>/<task_id>.
type WorkDir struct {
	Root string
}

// Path returns the directory of a task.
func (w WorkDir) Path(taskID int64) string {
	return filepath.Join(w.Root, strconv.FormatInt(taskID, 10))
}

// Ensure creates the directory of a task.
func (w WorkDir) Ensure(taskID int64) (string, error) {
	dir := w.Path(taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	return dir, nil
}

// Remove deletes the directory of a task. A missing directory is not an error.
func (w WorkDir) Remove(taskID int64) error {
	return os.RemoveAll(w.Path(taskID))
}

// Stale lists task directories last modified before cutoff.
func (w WorkDir) Stale(cutoff time.Time) ([]string, error) {
	entries, err := os.ReadDir(w.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var stale []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := strconv.ParseInt(e.Name(), 10, 64); err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			stale = append(stale, filepath.Join(w.Root, e.Name()))
		}
	}
	return stale, nil
}
