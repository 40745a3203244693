package index

import (
	"fmt"

	"github.com/gofrs/flock"
)

// AcquireLock takes an advisory file lock serializing sync runs against one
// database. It returns a release function, or an error when another process
// holds the lock.
func AcquireLock(path string) (func(), error) {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire index lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("index %s is locked by another process", path)
	}
	return func() { _ = lock.Unlock() }, nil
}
