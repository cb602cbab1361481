package main

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// singleInstanceLock holds an advisory flock for the life of the process,
// preventing a second rwchcd instance from running against the same plant.
type singleInstanceLock struct {
	f *os.File
}

// acquireLock opens (creating if needed) path and takes a non-blocking
// exclusive flock on it; the lock is released automatically when the
// process exits, or explicitly via release.
func acquireLock(path string) (*singleInstanceLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("another rwchcd instance is already running (%s locked): %w", path, err)
	}
	return &singleInstanceLock{f: f}, nil
}

func (l *singleInstanceLock) release() {
	unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	l.f.Close()
}
