package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrLocked is returned when a live runner already owns execution.
	ErrLocked = errors.New("another ralph run is in progress")
	// ErrNotOwner is returned when releasing a lock held by someone else.
	ErrNotOwner = errors.New("lock is owned by another runner")
)

// processAlive reports whether a process with the given pid exists.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

func (s *Store) alive(pid int) bool {
	if s.aliveFn != nil {
		return s.aliveFn(pid)
	}
	return processAlive(pid)
}

// LoadLock reads lock.json. Returns nil, nil if no lock is held.
func (s *Store) LoadLock() (*Lock, error) {
	var l Lock
	found, err := s.readJSON(LockPath, &l)
	if err != nil || !found {
		return nil, err
	}
	return &l, nil
}

// AcquireLock takes ownership of execution for unit. The lock file is created
// exclusively; an existing lock whose process has exited is treated as stale
// and replaced. When a live owner holds it, the returned error wraps ErrLocked.
func (s *Store) AcquireLock(unit string) (*Lock, error) {
	lock := &Lock{
		Owner:      uuid.NewString(),
		PID:        os.Getpid(),
		Unit:       unit,
		AcquiredAt: time.Now().UTC(),
	}
	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	path := s.Path(LockPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		err := createExclusive(path, append(data, '\n'))
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("failed to create lock: %w", err)
		}

		held, _ := s.LoadLock()
		if held != nil && s.alive(held.PID) {
			return nil, fmt.Errorf("%w (pid %d, unit %q, since %s)",
				ErrLocked, held.PID, held.Unit, held.AcquiredAt.Format(time.RFC3339))
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
	}

	return nil, ErrLocked
}

func createExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// ReleaseLock removes the lock if owner holds it. Releasing an absent lock is
// not an error.
func (s *Store) ReleaseLock(owner string) error {
	held, err := s.LoadLock()
	if err != nil {
		return err
	}
	if held == nil {
		return nil
	}
	if held.Owner != owner {
		return ErrNotOwner
	}
	if err := os.Remove(s.Path(LockPath)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock: %w", err)
	}
	return nil
}

// Running reports whether a live runner holds the lock, returning the lock
// record when it does.
func (s *Store) Running() (bool, *Lock) {
	held, err := s.LoadLock()
	if err != nil || held == nil {
		return false, nil
	}
	if !s.alive(held.PID) {
		return false, held
	}
	return true, held
}
