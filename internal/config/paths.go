package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

type Paths struct {
	ConfigPath string
	CacheDir   string
	DBPath     string
	InboxDir   string
	OutputDir  string
}

// ResolvePaths places the config file under the XDG config home and the
// palette cache database under the XDG cache home, creating both parent
// directories. Watch folders default to the user's pictures directory and
// are not created here.
func ResolvePaths(appSlug string) (Paths, error) {
	configPath, err := xdg.ConfigFile(filepath.Join(appSlug, "config.yaml"))
	if err != nil {
		return Paths{}, fmt.Errorf("resolve config path: %w", err)
	}

	dbPath, err := xdg.CacheFile(filepath.Join(appSlug, "palette-cache.db"))
	if err != nil {
		return Paths{}, fmt.Errorf("resolve cache db path: %w", err)
	}

	cacheDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("create cache dir: %w", err)
	}

	pictures := xdg.UserDirs.Pictures
	if pictures == "" {
		pictures = xdg.Home
	}

	return Paths{
		ConfigPath: configPath,
		CacheDir:   cacheDir,
		DBPath:     dbPath,
		InboxDir:   filepath.Join(pictures, appSlug, "inbox"),
		OutputDir:  filepath.Join(pictures, appSlug, "mosaics"),
	}, nil
}
