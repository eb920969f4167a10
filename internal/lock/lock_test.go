package lock

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAcquireAndRelease(t *testing.T) {
	tmpDir := t.TempDir()

	l, err := Acquire(tmpDir)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	// Verify lock file exists and contains PID.
	data, err := os.ReadFile(filepath.Join(tmpDir, FileName))
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	if len(data) == 0 {
		t.Error("lock file is empty")
	}

	if err := l.Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}
}

func TestDoubleAcquireFails(t *testing.T) {
	tmpDir := t.TempDir()

	l1, err := Acquire(tmpDir)
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer func() { _ = l1.Release() }()

	_, err = Acquire(tmpDir)
	if err == nil {
		t.Fatal("second Acquire() should fail")
	}

	var lockErr *HeldError
	if !errors.As(err, &lockErr) {
		t.Errorf("expected HeldError, got %T: %v", err, err)
	}
}

func TestReleaseNil(t *testing.T) {
	var l *Lock
	if err := l.Release(); err != nil {
		t.Errorf("nil Release() error = %v", err)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	tmpDir := t.TempDir()

	l, err := Acquire(tmpDir)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if err := l.Release(); err != nil {
		t.Errorf("first Release() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
}

func TestHeldErrorReportsOwner(t *testing.T) {
	tmpDir := t.TempDir()

	l, err := Acquire(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = l.Release() }()

	_, err = Acquire(tmpDir)
	var held *HeldError
	if !errors.As(err, &held) {
		t.Fatalf("expected HeldError, got %v", err)
	}
	if held.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", held.PID, os.Getpid())
	}
	if !held.Since.Equal(l.Owner().Since) {
		t.Errorf("Since = %v, want %v", held.Since, l.Owner().Since)
	}
	if !strings.Contains(err.Error(), "since ") {
		t.Errorf("error %q does not mention the lock time", err)
	}
}

func TestReadOwner(t *testing.T) {
	tmpDir := t.TempDir()

	l, err := Acquire(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ReadOwner(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	if want := l.Owner(); got.PID != want.PID || !got.Since.Equal(want.Since) {
		t.Errorf("ReadOwner() = %+v, want %+v", got, want)
	}

	if err := l.Release(); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadOwner(tmpDir); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("ReadOwner() after release error = %v, want ErrNotExist", err)
	}
}

func TestParseOwner(t *testing.T) {
	since := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		content string
		want    Owner
	}{
		{"full", "pid=42\nsince=2026-10-01T12:00:00Z\n", Owner{PID: 42, Since: since}},
		{"pid only", "pid=7\n", Owner{PID: 7}},
		{"bad time", "pid=7\nsince=yesterday\n", Owner{PID: 7}},
		{"unknown keys", "host=x\npid=9\n", Owner{PID: 9}},
		{"empty", "", Owner{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseOwner(tt.content); got.PID != tt.want.PID || !got.Since.Equal(tt.want.Since) {
				t.Errorf("parseOwner(%q) = %+v, want %+v", tt.content, got, tt.want)
			}
		})
	}
}

func TestOwnerString(t *testing.T) {
	if got := (Owner{PID: 3}).String(); got != "PID 3" {
		t.Errorf("String() = %q", got)
	}
	o := Owner{PID: 3, Since: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)}
	if got := o.String(); got != "PID 3 since 2026-10-01T12:00:00Z" {
		t.Errorf("String() = %q", got)
	}
}
