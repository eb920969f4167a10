// Package lock keeps a single daemon per profile with an flock'd file that
// records its owner.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// FileName is the lock file inside a profile directory.
const FileName = "LOCK"

// Owner identifies the process holding a lock.
type Owner struct {
	PID   int
	Since time.Time
}

func (o Owner) String() string {
	if o.Since.IsZero() {
		return "PID " + strconv.Itoa(o.PID)
	}
	return fmt.Sprintf("PID %d since %s", o.PID, o.Since.Format(time.RFC3339))
}

func (o Owner) encode() string {
	return fmt.Sprintf("pid=%d\nsince=%s\n", o.PID, o.Since.UTC().Format(time.RFC3339))
}

// parseOwner reads key=value lines. Unknown keys and bad values are
// ignored, so a torn file yields a partial owner.
func parseOwner(content string) Owner {
	var o Owner
	for line := range strings.SplitSeq(content, "\n") {
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			o.PID, _ = strconv.Atoi(val)
		case "since":
			o.Since, _ = time.Parse(time.RFC3339, val)
		}
	}
	return o
}

// ReadOwner returns the owner recorded in dir's lock file. It does not
// check whether the lock is still held.
func ReadOwner(dir string) (Owner, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return Owner{}, err
	}
	return parseOwner(string(data)), nil
}

// HeldError is returned when another process holds the profile lock.
type HeldError struct {
	Owner
	Path string
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("profile lock held by %s (%s)", e.Owner, e.Path)
}

// Lock is an acquired profile lock.
type Lock struct {
	file  *os.File
	path  string
	owner Owner
}

// Acquire takes an exclusive lock on dir, creating it if needed, and
// records this process as the owner. It returns *HeldError when another
// process holds the lock.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}
	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if !errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, fmt.Errorf("flock %s: %w", path, err)
		}
		owner, _ := ReadOwner(dir)
		return nil, &HeldError{Owner: owner, Path: path}
	}

	owner := Owner{PID: os.Getpid(), Since: time.Now().UTC().Truncate(time.Second)}
	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := f.WriteAt([]byte(owner.encode()), 0); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Lock{file: f, path: path, owner: owner}, nil
}

// Owner returns the owner this lock recorded.
func (l *Lock) Owner() Owner {
	return l.owner
}

// Release removes the lock file and unlocks. It is safe on a nil or
// released lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}
