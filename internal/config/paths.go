package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// Application directory name used across all platforms.
const appName = "retroarch-sync"

// File names inside the config and data directories.
const (
	configFileName  = "config.toml"
	journalFileName = "journal.db"
	pidFileName     = "retroarch-sync.pid"
)

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/retroarch-sync).
// On macOS, uses ~/Library/Application Support/retroarch-sync.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_CONFIG_HOME", home, ".config")
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultDataDir returns the platform-specific directory for the run journal
// and the pid file. On Linux, respects XDG_DATA_HOME.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_DATA_HOME", home, ".local", "share")
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

func xdgDir(env, home string, fallback ...string) string {
	if xdg := os.Getenv(env); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(append(append([]string{home}, fallback...), appName)...)
}

// DefaultConfigPath returns the full path to the default config file.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// JournalPath returns the path of the run journal database.
func JournalPath() string {
	return filepath.Join(DefaultDataDir(), journalFileName)
}

// PIDPath returns the path of the single-instance lock file.
func PIDPath() string {
	return filepath.Join(DefaultDataDir(), pidFileName)
}

// ScratchRoot returns the configured scratch root, or a directory under the
// system temp dir.
func (t ToolsConfig) ScratchRoot() string {
	if t.ScratchDir != "" {
		return t.ScratchDir
	}

	return filepath.Join(os.TempDir(), appName)
}
