// Package profile locates the per-profile data directory. A profile is one
// independent store instance with its own database files, socket and lock.
package profile

import (
	"os"
	"path/filepath"

	"github.com/matheus3301/imstore/internal/lock"
)

// BaseDir returns $IMSTORE_HOME, or ~/.imstore when it is unset.
func BaseDir() string {
	if dir := os.Getenv("IMSTORE_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".imstore")
}

// Dir returns the profile-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "profiles", name)
}

// SocketPath returns the UDS socket path for a profile.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "imstored.sock")
}

// LockPath returns the lock file path for a profile.
func LockPath(name string) string {
	return filepath.Join(Dir(name), lock.FileName)
}

// DBPath returns the durable im.db path.
func DBPath(name string) string {
	return filepath.Join(Dir(name), "im.db")
}

// VolatileDBPath returns the path of the volatile store, emptied on every
// open.
func VolatileDBPath(name string) string {
	return filepath.Join(Dir(name), "im.volatile.db")
}

// LogDir returns the log directory for a profile.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "imstored.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the profile directory tree with proper permissions.
func EnsureDir(name string) error {
	dirs := []string{
		Dir(name),
		LogDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
