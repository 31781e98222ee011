// internal/logging/rotating.go
package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// DefaultBackups is the number of rotated generations kept by Setup.
const DefaultBackups = 5

// RotatingWriter implements io.Writer with size-based rotation. Rotated
// generations are gzipped as path.1.gz (newest) through path.N.gz.
type RotatingWriter struct {
	path    string
	maxSize int64
	backups int

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewRotatingWriter opens path for appending, creating its directory.
func NewRotatingWriter(path string, maxSize int64, backups int) (*RotatingWriter, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("log max size must be positive")
	}
	if backups <= 0 {
		backups = DefaultBackups
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	w := &RotatingWriter{path: path, maxSize: maxSize, backups: backups}
	if err := w.open(os.O_APPEND); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) open(flag int) error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|flag, 0644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.file, w.size = f, info.Size()
	return nil
}

// Write implements io.Writer. A single write larger than maxSize still goes
// to one file; rotation happens before it when the file is non-empty.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.size > 0 && w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("rotating log: %w", err)
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the current file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingWriter) generation(i int) string {
	return fmt.Sprintf("%s.%d.gz", w.path, i)
}

func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}
	w.file = nil

	os.Remove(w.generation(w.backups))
	for i := w.backups - 1; i >= 1; i-- {
		if _, err := os.Stat(w.generation(i)); err == nil {
			os.Rename(w.generation(i), w.generation(i+1))
		}
	}

	if err := compressFile(w.path, w.generation(1)); err != nil {
		// keep the data uncompressed rather than lose it
		os.Rename(w.path, w.path+".1")
	} else {
		os.Remove(w.path)
	}

	return w.open(os.O_TRUNC)
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		gz.Close()
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := gz.Close(); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
