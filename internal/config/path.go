package config

import (
	"os"
	"path/filepath"
	"strings"
)

// AppName names the config directory and database file.
const AppName = "onion"

// Dir returns the directory holding the config file and the classification database.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", AppName)
}

// DefaultDatabasePath is where classifications and column mappings persist.
func DefaultDatabasePath() string {
	return filepath.Join(Dir(), AppName+".db")
}

// ExpandPath expands a leading ~ and $VAR references in a path.
func ExpandPath(path string) string {
	if path == "" || path == ":memory:" {
		return path
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}

	return os.ExpandEnv(path)
}
