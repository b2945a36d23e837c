// Package semaphore provides an exclusive, process-wide lease backed by a
// lock file. A lease is held until released or until the owning process
// exits, so a crashed holder never blocks the next one.
package semaphore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// ErrNotHeld is returned when releasing a lease that is not held
var ErrNotHeld = errors.New("lease not held")

// ErrHeld is returned when another holder owns the lease
type ErrHeld struct {
	Holder Holder
}

func (e *ErrHeld) Error() string {
	if e.Holder.ID == "" {
		return "lease is held by another process"
	}
	return fmt.Sprintf("lease is held by %s (pid %d) since %s",
		e.Holder.ID, e.Holder.PID, e.Holder.AcquiredAt.Format(time.RFC3339))
}

// Holder describes who owns a lease
type Holder struct {
	ID         string    `json:"id"`
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Lease is an exclusive lock on path. The holder record is written next to
// the lock file so other processes can report who owns it.
type Lease struct {
	path   string
	lock   *flock.Flock
	mu     sync.Mutex
	holder *Holder
}

// New creates a lease for path. Nothing is locked until TryAcquire.
func New(path string) *Lease {
	return &Lease{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Path returns the holder record path
func (l *Lease) Path() string {
	return l.path
}

// TryAcquire takes the lease for holderID without blocking. If another
// holder owns it, the returned error is an *ErrHeld.
func (l *Lease) TryAcquire(holderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.holder != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	locked, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		held := &ErrHeld{}
		if h, err := ReadHolder(l.path); err == nil {
			held.Holder = *h
		}
		return held
	}

	h := Holder{ID: holderID, PID: os.Getpid(), AcquiredAt: time.Now()}
	if err := writeHolder(l.path, h); err != nil {
		_ = l.lock.Unlock()
		return err
	}
	l.holder = &h
	return nil
}

// Release drops the lease and removes the holder record
func (l *Lease) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.holder == nil {
		return ErrNotHeld
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove holder file: %w", err)
	}
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	l.holder = nil
	return nil
}

// Held reports whether this Lease currently owns the lock
func (l *Lease) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder != nil
}

// Locked reports whether any process holds the lease
func Locked(path string) (bool, error) {
	if _, err := os.Stat(path + ".lock"); os.IsNotExist(err) {
		return false, nil
	}

	probe := flock.New(path + ".lock")
	locked, err := probe.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to probe lock: %w", err)
	}
	if locked {
		_ = probe.Unlock()
		return false, nil
	}
	return true, nil
}

// ReadHolder reads the holder record at path
func ReadHolder(path string) (*Holder, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var h Holder
	if err := json.Unmarshal(content, &h); err != nil {
		return nil, fmt.Errorf("failed to parse holder file: %w", err)
	}
	return &h, nil
}

func writeHolder(path string, h Holder) error {
	content, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal holder: %w", err)
	}

	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, content, 0o644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tempFile, path); err != nil {
		_ = os.Remove(tempFile)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}
