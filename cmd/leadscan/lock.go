package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// lockFileName sits next to the database in the data directory.
const lockFileName = "leadscan.lock"

// ErrRunInProgress is returned when another run holds the data directory.
var ErrRunInProgress = errors.New("another leadscan run is using this data directory")

// acquireRunLock takes an exclusive, non-blocking lock on dir. The returned
// function releases it.
func acquireRunLock(dir string) (func(), error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	path := filepath.Join(dir, lockFileName)
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w (%s)", ErrRunInProgress, path)
	}
	return func() { _ = fl.Unlock() }, nil //nolint:errcheck // released on exit anyway
}
