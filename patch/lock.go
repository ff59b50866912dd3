package patch

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

var errLocked = errors.New("output is being written by another process")

// lockFile takes an exclusive lock on name.lock without waiting.
func lockFile(name string) (*flock.Flock, error) {
	lock := flock.New(name + ".lock")

	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("could not lock %q: %w", lock.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %q", errLocked, lock.Path())
	}
	return lock, nil
}
