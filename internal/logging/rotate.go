package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	// DefaultMaxLogSize is the maximum size of a single log file (10MB)
	DefaultMaxLogSize = 10 * 1024 * 1024

	// DefaultMaxLogFiles is the maximum number of log files to keep
	DefaultMaxLogFiles = 10
)

// RotatingWriter is a zapcore.WriteSyncer that starts a new file once the
// current one reaches maxSize and keeps at most maxFiles files in dir.
type RotatingWriter struct {
	mu       sync.Mutex
	dir      string
	prefix   string
	maxSize  int64
	maxFiles int
	current  *os.File
	written  int64
}

// NewRotatingWriter creates the log directory and opens the first file.
// Zero limits fall back to the defaults.
func NewRotatingWriter(dir, prefix string, maxSize int64, maxFiles int) (*RotatingWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxLogSize
	}
	if maxFiles <= 0 {
		maxFiles = DefaultMaxLogFiles
	}
	if prefix == "" {
		prefix = "devmend"
	}

	w := &RotatingWriter{
		dir:      dir,
		prefix:   prefix,
		maxSize:  maxSize,
		maxFiles: maxFiles,
	}
	if err := w.createNewFile(); err != nil {
		return nil, err
	}
	w.cleanup()
	return w, nil
}

// Write implements io.Writer
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current == nil {
		if err := w.createNewFile(); err != nil {
			return 0, err
		}
	}

	n, err := w.current.Write(p)
	w.written += int64(n)
	if err != nil {
		return n, err
	}

	if w.written >= w.maxSize {
		if err := w.rotate(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Sync flushes the current file.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return nil
	}
	return w.current.Sync()
}

// Rotate closes the current log file and creates a new one
func (w *RotatingWriter) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rotate()
}

func (w *RotatingWriter) rotate() error {
	if w.current != nil {
		if err := w.current.Close(); err != nil {
			return fmt.Errorf("failed to close current log file: %w", err)
		}
		w.current = nil
	}
	if err := w.createNewFile(); err != nil {
		return err
	}
	w.cleanup()
	return nil
}

// Close closes the writer
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current != nil {
		err := w.current.Close()
		w.current = nil
		return err
	}
	return nil
}

// FilePath returns the current log file path
func (w *RotatingWriter) FilePath() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current != nil {
		return w.current.Name()
	}
	return ""
}

func (w *RotatingWriter) createNewFile() error {
	timestamp := time.Now().Format("20060102-150405.000000")
	path := filepath.Join(w.dir, fmt.Sprintf("%s-%s.log", w.prefix, timestamp))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	w.current = file
	w.written = 0
	return nil
}

// cleanup removes the oldest log files beyond maxFiles. File names embed
// their creation time, so lexical order is age order.
func (w *RotatingWriter) cleanup() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}

	var logFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".log" {
			logFiles = append(logFiles, filepath.Join(w.dir, entry.Name()))
		}
	}
	sort.Strings(logFiles)

	for len(logFiles) > w.maxFiles {
		os.Remove(logFiles[0])
		logFiles = logFiles[1:]
	}
}
