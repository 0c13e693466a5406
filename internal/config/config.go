// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"cowork/internal/fsutil"
)

// Settings are the tunable engine options, read from backup.yaml when the
// file exists.
type Settings struct {
	// Archiver selects the snapshot archiver: "tar" shells out to the
	// system tar, "builtin" uses the in-process implementation.
	Archiver string `yaml:"archiver"`
	// TarBinary overrides the tar executable name.
	TarBinary string `yaml:"tarBinary"`
	// CompressionLevel applies to the builtin archiver (gzip levels 1-9).
	CompressionLevel int `yaml:"compressionLevel"`
	// WatchWorkspaces enables the filesystem dirty-hint tracker that lets
	// unchanged-workspace checkpoints skip a full rescan.
	WatchWorkspaces bool `yaml:"watchWorkspaces"`
	// StampGit records the workspace's git branch/commit on checkpoints.
	StampGit bool `yaml:"stampGit"`
}

// DefaultSettings returns the engine defaults.
func DefaultSettings() Settings {
	return Settings{
		Archiver:        "tar",
		WatchWorkspaces: true,
		StampGit:        true,
	}
}

// Config holds resolved paths and settings for the backup engine. The
// backup root lives inside the product's private data directory and is kept
// owner-only.
type Config struct {
	HomeDir      string
	CoworkDir    string
	BackupRoot   string
	IndexPath    string
	SettingsPath string
	Settings     Settings
}

// Load resolves paths under the user's home directory, ensures the backup
// root exists with owner-only permissions, and applies backup.yaml on top
// of the defaults when present.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return LoadAt(filepath.Join(home, ".cowork"))
}

// LoadAt is Load with an explicit data directory, for tests and embedders.
func LoadAt(coworkDir string) (*Config, error) {
	backupRoot := filepath.Join(coworkDir, "backups")
	if err := fsutil.EnsureSecureDir(backupRoot); err != nil {
		return nil, err
	}

	cfg := &Config{
		HomeDir:      filepath.Dir(coworkDir),
		CoworkDir:    coworkDir,
		BackupRoot:   backupRoot,
		IndexPath:    filepath.Join(backupRoot, "index.db"),
		SettingsPath: filepath.Join(coworkDir, "backup.yaml"),
		Settings:     DefaultSettings(),
	}

	data, err := os.ReadFile(cfg.SettingsPath)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings %s: %w", cfg.SettingsPath, err)
	}
	if err := yaml.Unmarshal(data, &cfg.Settings); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", cfg.SettingsPath, err)
	}

	return cfg, nil
}

// SessionDir returns the backup directory for one session.
func (c *Config) SessionDir(sessionID string) string {
	return filepath.Join(c.BackupRoot, sessionID)
}
