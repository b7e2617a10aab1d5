package jobs

import (
	"fmt"
	"os"
)

// Mutex is the per-job claim mutex: a filesystem exclusive-create
// lock file co-located with the job record. It is safe across
// multiple processes sharing the data directory, not just goroutines
// within one process. Holding it is expected to last milliseconds —
// one read, one write, one event append.
//
// Stale lock files left by a process that crashes mid-hold are a
// known limitation (see spec design notes); operators clear them
// manually.
type Mutex struct {
	path string
}

func newMutex(store *Store, id string) *Mutex {
	return &Mutex{path: store.lockPath(id)}
}

// TryLock attempts to acquire the lock. It returns ErrLocked if
// another holder already owns it.
func (m *Mutex) TryLock() error {
	f, err := os.OpenFile(m.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return ErrLocked
		}
		return fmt.Errorf("acquire lock %s: %w", m.path, err)
	}
	return f.Close()
}

// Unlock releases the lock by removing the lock file. It is called
// on every exit path (success, precondition failure, or panic
// recovery) by withLock.
func (m *Mutex) Unlock() {
	_ = os.Remove(m.path)
}

// withLock acquires the per-job mutex, runs fn, and releases the
// mutex on every return path including a panic.
func withLock(store *Store, id string, fn func() error) error {
	m := newMutex(store, id)
	if err := m.TryLock(); err != nil {
		return err
	}
	defer m.Unlock()
	return fn()
}
