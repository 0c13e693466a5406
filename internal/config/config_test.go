// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAt(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), ".cowork")
		cfg, err := LoadAt(dir)
		if err != nil {
			t.Fatalf("LoadAt failed: %v", err)
		}

		if cfg.Settings.Archiver != "tar" || !cfg.Settings.WatchWorkspaces || !cfg.Settings.StampGit {
			t.Errorf("Unexpected defaults: %+v", cfg.Settings)
		}

		info, err := os.Stat(cfg.BackupRoot)
		if err != nil || !info.IsDir() {
			t.Fatalf("Expected backup root to exist: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0700 {
			t.Errorf("Expected backup root mode 0700, got %o", perm)
		}
	})

	t.Run("AppliesSettingsFile", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), ".cowork")
		if err := os.MkdirAll(dir, 0700); err != nil {
			t.Fatal(err)
		}
		settings := "archiver: builtin\ncompressionLevel: 6\nwatchWorkspaces: false\n"
		if err := os.WriteFile(filepath.Join(dir, "backup.yaml"), []byte(settings), 0600); err != nil {
			t.Fatal(err)
		}

		cfg, err := LoadAt(dir)
		if err != nil {
			t.Fatalf("LoadAt failed: %v", err)
		}
		if cfg.Settings.Archiver != "builtin" || cfg.Settings.CompressionLevel != 6 {
			t.Errorf("Expected settings applied, got %+v", cfg.Settings)
		}
		if cfg.Settings.WatchWorkspaces {
			t.Error("Expected watchWorkspaces disabled")
		}
		if !cfg.Settings.StampGit {
			t.Error("Expected unset stampGit to keep its default")
		}
	})

	t.Run("RejectsMalformedSettings", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), ".cowork")
		if err := os.MkdirAll(dir, 0700); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "backup.yaml"), []byte("archiver: [oops"), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadAt(dir); err == nil {
			t.Error("Expected error for malformed settings file")
		}
	})

	t.Run("SessionDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), ".cowork")
		cfg, err := LoadAt(dir)
		if err != nil {
			t.Fatal(err)
		}
		want := filepath.Join(cfg.BackupRoot, "session-1")
		if got := cfg.SessionDir("session-1"); got != want {
			t.Errorf("Expected %s, got %s", want, got)
		}
	})
}
