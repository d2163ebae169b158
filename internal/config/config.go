package config

import (
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	SocketPath     string
	DBPath         string
	Backend        string
	BadgerDir      string
	LogFile        string
	SnapshotEvery  int64
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
}

const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

func DefaultConfig() Config {
	return Config{
		SocketPath:     defaultSocketPath(),
		DBPath:         defaultDBPath(),
		Backend:        BackendSQLite,
		BadgerDir:      defaultBadgerDir(),
		SnapshotEvery:  50,
		ConnectTimeout: 3 * time.Second,
		CommandTimeout: 5 * time.Second,
	}
}

func defaultSocketPath() string {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir != "" {
		return filepath.Join(runtimeDir, "boardd", "boardd.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".boardd.sock"
	}
	return filepath.Join(home, ".local", "state", "boardd", "boardd.sock")
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "events.db"
	}
	return filepath.Join(home, ".local", "state", "boardd", "events.db")
}

func defaultBadgerDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "badger"
	}
	return filepath.Join(home, ".local", "state", "boardd", "badger")
}
