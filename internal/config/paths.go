// Package config provides configuration management for capledger.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths holds platform-specific directory paths for capledger.
type Paths struct {
	// ConfigDir is the directory for configuration files.
	// macOS: ~/Library/Application Support/capledger
	// Linux: ~/.config/capledger (or XDG_CONFIG_HOME)
	ConfigDir string

	// DataDir is the default directory for ledger records.
	// All platforms: ~/.capledger
	DataDir string
}

// GetPaths returns platform-aware paths for capledger.
func GetPaths() (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	p := &Paths{}
	p.DataDir = filepath.Join(home, ".capledger")

	switch runtime.GOOS {
	case "darwin":
		p.ConfigDir = filepath.Join(home, "Library", "Application Support", "capledger")
	default: // Linux and others
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			p.ConfigDir = filepath.Join(xdgConfig, "capledger")
		} else {
			p.ConfigDir = filepath.Join(home, ".config", "capledger")
		}
	}

	return p, nil
}
