// Package filemanager provides process-safe reads and compare-and-swap
// writes of structured files, guarded by flock.
package filemanager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrConcurrentModification is returned when a file has been modified since it was read
var ErrConcurrentModification = errors.New("file was modified concurrently")

// ErrLockTimeout is returned when acquiring a file lock times out
var ErrLockTimeout = errors.New("timeout acquiring file lock")

const lockRetryDelay = 50 * time.Millisecond

// FileInfo is the snapshot a CAS write compares against
type FileInfo struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// UpdateFunc modifies data in place
type UpdateFunc[T any] func(data *T) error

// Manager reads and writes values of type T through a Codec
type Manager[T any] struct {
	codec       Codec
	lockTimeout time.Duration
	newValue    func() *T
}

// Option configures a Manager
type Option func(*options)

type options struct {
	lockTimeout time.Duration
}

// WithLockTimeout overrides the default five second lock timeout
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) {
		o.lockTimeout = d
	}
}

// NewManager creates a file manager using codec
func NewManager[T any](codec Codec, opts ...Option) *Manager[T] {
	o := options{lockTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	if codec == nil {
		codec = YAML
	}
	return &Manager[T]{
		codec:       codec,
		lockTimeout: o.lockTimeout,
		newValue:    func() *T { return new(T) },
	}
}

// WithInitial sets the value files are decoded on top of, so fields absent
// from the file keep the defaults fn returns.
func (m *Manager[T]) WithInitial(fn func() *T) *Manager[T] {
	m.newValue = fn
	return m
}

// Read reads and decodes path under a shared lock
func (m *Manager[T]) Read(ctx context.Context, path string) (*T, *FileInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil, err
	}

	lock := createLock(path)
	lockCtx, cancel := context.WithTimeout(ctx, m.lockTimeout)
	defer cancel()

	locked, err := lock.TryRLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, ErrLockTimeout
		}
		return nil, nil, fmt.Errorf("failed to acquire read lock: %w", err)
	}
	if !locked {
		return nil, nil, ErrLockTimeout
	}
	defer func() { _ = lock.Unlock() }()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	stat, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stat file: %w", err)
	}

	result := m.newValue()
	if err := m.codec.Unmarshal(raw, result); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal %s: %w", m.codec.Name(), err)
	}

	return result, &FileInfo{Path: path, ModTime: stat.ModTime(), Size: stat.Size()}, nil
}

// Write encodes data and replaces path atomically, without a CAS check
func (m *Manager[T]) Write(ctx context.Context, path string, data *T) error {
	return m.WriteWithCAS(ctx, path, data, nil)
}

// WriteWithCAS writes path only if it still matches expected. A nil expected
// skips the check.
func (m *Manager[T]) WriteWithCAS(ctx context.Context, path string, data *T, expected *FileInfo) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	lock := createLock(path)
	lockCtx, cancel := context.WithTimeout(ctx, m.lockTimeout)
	defer cancel()

	locked, err := lock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrLockTimeout
		}
		return fmt.Errorf("failed to acquire write lock: %w", err)
	}
	if !locked {
		return ErrLockTimeout
	}
	defer func() { _ = lock.Unlock() }()

	if expected != nil {
		stat, err := os.Stat(path)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat file: %w", err)
		}
		if err == nil && (!stat.ModTime().Equal(expected.ModTime) || stat.Size() != expected.Size) {
			return ErrConcurrentModification
		}
	}

	encoded, err := m.codec.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", m.codec.Name(), err)
	}

	return atomicWrite(path, encoded)
}

// Update reads path, applies fn and writes the result back with CAS,
// retrying on concurrent modification. A missing file starts from the zero
// initial value.
func (m *Manager[T]) Update(ctx context.Context, path string, fn UpdateFunc[T]) error {
	const maxRetries = 10

	for i := 0; i < maxRetries; i++ {
		data, info, err := m.Read(ctx, path)
		if err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("failed to read file: %w", err)
			}
			data, info = m.newValue(), nil
		}

		if err := fn(data); err != nil {
			return fmt.Errorf("update function failed: %w", err)
		}

		err = m.WriteWithCAS(ctx, path, data, info)
		if errors.Is(err, ErrConcurrentModification) {
			continue
		}
		return err
	}

	return fmt.Errorf("failed after %d retries: %w", maxRetries, ErrConcurrentModification)
}

// Delete removes path under an exclusive lock. Missing files are not an error.
func (m *Manager[T]) Delete(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat file: %w", err)
	}

	lock := createLock(path)
	lockCtx, cancel := context.WithTimeout(ctx, m.lockTimeout)
	defer cancel()

	locked, err := lock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrLockTimeout
		}
		return fmt.Errorf("failed to acquire write lock: %w", err)
	}
	if !locked {
		return ErrLockTimeout
	}
	defer func() { _ = lock.Unlock() }()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}
