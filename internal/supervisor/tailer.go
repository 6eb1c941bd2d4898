package supervisor

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LogLine is a line read from a watched log file.
type LogLine struct {
	Source string // base name of the file
	Text   string
}

// LogTailer follows a log file from its end and sends complete lines.
type LogTailer struct {
	path         string
	source       string
	output       chan<- LogLine
	pollInterval time.Duration
}

// NewLogTailer creates a new LogTailer
func NewLogTailer(path string, output chan<- LogLine, pollInterval time.Duration) *LogTailer {
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	return &LogTailer{
		path:         path,
		source:       filepath.Base(path),
		output:       output,
		pollInterval: pollInterval,
	}
}

// Run tails until ctx is done. A missing file is waited for; content that
// existed before the file was first opened is skipped, and a truncated file
// is reread from the start.
func (t *LogTailer) Run(ctx context.Context) error {
	var file *os.File
	for {
		f, err := os.Open(t.path)
		if err == nil {
			file = f
			break
		}
		if !t.sleep(ctx) {
			return nil
		}
	}
	defer file.Close()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return nil
	}

	var lastSize int64
	if info, err := file.Stat(); err == nil {
		lastSize = info.Size()
	}

	reader := bufio.NewReader(file)
	var partial strings.Builder

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				return nil
			}
			partial.WriteString(line)

			if info, err := file.Stat(); err == nil {
				if info.Size() < lastSize {
					file.Seek(0, io.SeekStart)
					reader.Reset(file)
					partial.Reset()
					lastSize = 0
					continue
				}
				lastSize = info.Size()
			}

			if !t.sleep(ctx) {
				return nil
			}
			continue
		}

		partial.WriteString(line)
		text := strings.TrimRight(partial.String(), "\r\n")
		partial.Reset()

		if info, err := file.Stat(); err == nil {
			lastSize = info.Size()
		}

		select {
		case t.output <- LogLine{Source: t.source, Text: text}:
		case <-ctx.Done():
			return nil
		}
	}
}

func (t *LogTailer) sleep(ctx context.Context) bool {
	timer := time.NewTimer(t.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
