package runner

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"

	"crucible/internal/state"
)

// ErrLocked reports that another process holds the experiment lock.
var ErrLocked = errors.New("experiment directory is locked by another run")

// WithLock runs fn while holding the experiment directory lock.
func WithLock(store *state.Store, fn func() error) error {
	lock := flock.New(store.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w (%s)", ErrLocked, store.LockPath())
	}
	defer func() { _ = lock.Unlock() }()
	return fn()
}
