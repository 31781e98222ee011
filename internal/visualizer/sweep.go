// internal/visualizer/sweep.go
package visualizer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SweepWorkDirs removes scratch directories under the work dir that are
// older than maxAge. They are left behind only if the process died mid-render.
func (v *Visualizer) SweepWorkDirs(maxAge time.Duration) (int, error) {
	return SweepWorkDirs(v.opts.WorkDir, maxAge, time.Now())
}

// SweepWorkDirs removes WorkDirPrefix directories in dir last modified
// before now-maxAge and returns how many were removed.
func SweepWorkDirs(dir string, maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading work dir: %w", err)
	}

	removed := 0
	cutoff := now.Add(-maxAge)
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), WorkDirPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return removed, fmt.Errorf("removing %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}
