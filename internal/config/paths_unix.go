//go:build linux || darwin

package config

import (
	"os"
	"path/filepath"
)

func configSearchPaths() []string {
	home, _ := os.UserHomeDir()
	return []string{
		"procmon.yaml",
		filepath.Join(home, ".config", "procmon", "config.yaml"),
		"/etc/procmon/config.yaml",
	}
}
