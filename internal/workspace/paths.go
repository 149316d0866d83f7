package workspace

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.wacrm.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wacrm")
}

// Dir returns the workspace-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "workspaces", name)
}

// LockPath returns the lock file path for a workspace.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// DeviceDBPath returns the whatsmeow device session.db path.
func DeviceDBPath(name string) string {
	return filepath.Join(Dir(name), "device.db")
}

// AppDBPath returns the app-owned crm.db path.
func AppDBPath(name string) string {
	return filepath.Join(Dir(name), "crm.db")
}

// LogDir returns the log directory for a workspace.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "wacrmd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the workspace directory tree with proper permissions.
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
