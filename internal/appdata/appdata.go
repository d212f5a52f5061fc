package appdata

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

const (
	EnvDataDir = "LAN_LOBBY_DATA_DIR"
	dirName    = ".lan-lobby"
)

var (
	once    sync.Once
	dataDir string
)

// Dir returns the directory where the lobby keeps its local state.
//
// Precedence:
//  1. LAN_LOBBY_DATA_DIR env var (absolute or relative)
//  2. If running via `go run` (temp go-build path), the current working directory
//  3. Directory of the executable
//  4. The per-user config directory
//
// The returned directory is created if it does not exist.
func Dir() string {
	once.Do(func() {
		exe, err := os.Executable()
		if err != nil {
			exe = ""
		}
		dataDir = Resolve(os.Getenv, exe, mustGetwd())
		_ = os.MkdirAll(dataDir, 0o700)
	})
	return dataDir
}

// Resolve applies Dir's precedence without touching the filesystem.
func Resolve(getenv func(string) string, exe, wd string) string {
	if v := strings.TrimSpace(getenv(EnvDataDir)); v != "" {
		return filepath.Clean(v)
	}
	if exe == "" {
		if dir, err := os.UserConfigDir(); err == nil && dir != "" {
			return filepath.Join(dir, "lan-lobby")
		}
		return filepath.Join(wd, dirName)
	}

	exe = filepath.Clean(exe)
	base := filepath.Dir(exe)
	if looksLikeGoRunTempBinary(exe) {
		base = wd
	}
	return filepath.Join(base, dirName)
}

// Path returns a path to a file inside dir (Dir() when empty), creating the
// parent directory.
func Path(dir, filename string) string {
	if dir == "" {
		dir = Dir()
	}
	p := filepath.Join(dir, filepath.Clean(filename))
	_ = os.MkdirAll(filepath.Dir(p), 0o700)
	return p
}

func mustGetwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func looksLikeGoRunTempBinary(exe string) bool {
	lower := strings.ToLower(exe)
	if strings.Contains(lower, string(filepath.Separator)+"go-build") {
		return true
	}
	if runtime.GOOS == "windows" {
		return strings.Contains(lower, "\\go-build")
	}
	return false
}
