//go:build windows

package config

import (
	"os"
	"path/filepath"
)

func configSearchPaths() []string {
	return []string{
		"procmon.yaml",
		filepath.Join(os.Getenv("APPDATA"), "procmon", "config.yaml"),
	}
}
