package supervisor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrLockHeld is returned when another live monitor owns the lock.
var ErrLockHeld = errors.New("another monitor is running")

// LockInfo contains information about the lock holder
type LockInfo struct {
	PID       int       `json:"pid"`
	StartTime time.Time `json:"start_time"`
	Hostname  string    `json:"hostname"`
	Command   string    `json:"command,omitempty"`
}

// LockManager ensures a single monitor per project via a lock file
type LockManager struct {
	lockFile string
	command  string
	acquired bool
}

// LockPath returns the lock file location for a project root.
func LockPath(root string) string {
	return filepath.Join(root, ".devmend", "state", "monitor.lock")
}

// NewLockManager creates a new LockManager for the given lock file path.
// command is recorded in the lock for diagnostics.
func NewLockManager(lockFile, command string) *LockManager {
	return &LockManager{
		lockFile: lockFile,
		command:  command,
	}
}

// Acquire creates the lock file with O_EXCL. A lock left by a dead
// process is taken over once.
func (l *LockManager) Acquire() error {
	dir := filepath.Dir(l.lockFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	err := l.create()
	if err == nil || !os.IsExist(err) {
		return err
	}

	info, readErr := l.readLockInfo()
	if readErr == nil && processAlive(info.PID) {
		return heldError(info)
	}

	// Stale or unreadable: remove and retry once.
	os.Remove(l.lockFile)
	if err := l.create(); err != nil {
		if os.IsExist(err) {
			if info, _ := l.readLockInfo(); info != nil && processAlive(info.PID) {
				return heldError(info)
			}
			return fmt.Errorf("lock file exists and could not be acquired")
		}
		return err
	}
	return nil
}

func heldError(info *LockInfo) error {
	return fmt.Errorf("%w (PID: %d, started: %s)", ErrLockHeld, info.PID, info.StartTime.Format(time.RFC3339))
}

func (l *LockManager) create() error {
	f, err := os.OpenFile(l.lockFile, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return err
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	if err := l.writeLockInfoTo(f); err != nil {
		f.Close()
		os.Remove(l.lockFile)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(l.lockFile)
		return fmt.Errorf("failed to close lock file: %w", err)
	}

	l.acquired = true
	return nil
}

// Release removes the lock file
func (l *LockManager) Release() error {
	if !l.acquired {
		return nil
	}

	if err := os.Remove(l.lockFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	l.acquired = false
	return nil
}

// Holder returns the current lock holder, if any.
func (l *LockManager) Holder() (*LockInfo, bool) {
	info, err := l.readLockInfo()
	if err != nil {
		return nil, false
	}
	return info, processAlive(info.PID)
}

// IsStale checks if the lock file is stale (process no longer running)
func (l *LockManager) IsStale() bool {
	info, err := l.readLockInfo()
	if err != nil {
		return false
	}
	return !processAlive(info.PID)
}

func (l *LockManager) readLockInfo() (*LockInfo, error) {
	data, err := os.ReadFile(l.lockFile)
	if err != nil {
		return nil, err
	}

	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (l *LockManager) writeLockInfoTo(f *os.File) error {
	hostname, _ := os.Hostname()
	info := LockInfo{
		PID:       os.Getpid(),
		StartTime: time.Now(),
		Hostname:  hostname,
		Command:   l.command,
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lock info: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write lock info: %w", err)
	}
	return nil
}
