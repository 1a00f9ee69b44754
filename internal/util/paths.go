package util

import (
	"os"
	"path/filepath"
	"strings"
)

// HomeEnv overrides the blocksync home directory.
const HomeEnv = "BLOCKSYNC_HOME"

// HomeDir returns the user's home directory
func HomeDir() string {
	home, _ := os.UserHomeDir()
	return home
}

// BlocksyncHome returns the directory holding blocksync state.
// BLOCKSYNC_HOME wins over the default ~/.blocksync.
func BlocksyncHome() string {
	if v := os.Getenv(HomeEnv); v != "" {
		return v
	}
	return filepath.Join(HomeDir(), ".blocksync")
}

// BlocksyncBackupsPath returns the default snapshot directory.
func BlocksyncBackupsPath() string {
	return filepath.Join(BlocksyncHome(), "backups")
}

// ExpandPath expands a leading ~ and resolves relative paths against baseDir.
// An empty path stays empty.
func ExpandPath(path, baseDir string) string {
	if path == "" {
		return ""
	}
	if path == "~" {
		return HomeDir()
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(HomeDir(), path[2:])
	}
	if filepath.IsAbs(path) || baseDir == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(baseDir, path)
}
