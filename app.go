// app.go
package main

import (
	"context"
	"fmt"
	"log"

	"cowork/internal/archive"
	"cowork/internal/backup"
	"cowork/internal/config"
	"cowork/internal/database"
	"cowork/internal/metadata"
	"cowork/internal/snapshot"
)

// App wires the configuration, the session index and the backup manager
// together behind one surface.
type App struct {
	ctx    context.Context
	config *config.Config

	dbManager     *database.Database
	backupManager *backup.Manager
}

// NewApp creates a new App struct
func NewApp() *App {
	return &App{}
}

// Startup loads configuration and initializes the managers.
func (a *App) Startup(ctx context.Context) error {
	a.ctx = ctx

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.config = cfg

	// The index is an optimization over the per-session metadata files, so
	// a failure to open it degrades to unindexed operation.
	db, err := database.Open(cfg.IndexPath)
	if err != nil {
		log.Printf("[app] Failed to open session index: %v", err)
	} else {
		a.dbManager = db
	}

	a.backupManager = backup.NewManager(backup.Options{
		BackupRoot:      cfg.BackupRoot,
		Strategy:        snapshot.NewStrategy(a.archiveBackend()),
		Index:           a.dbManager,
		WatchWorkspaces: cfg.Settings.WatchWorkspaces,
		StampGit:        cfg.Settings.StampGit,
	})

	return nil
}

// archiveBackend picks the archiver from settings. The system tar binary is
// the default; the builtin backend covers hosts without one.
func (a *App) archiveBackend() archive.Backend {
	if a.config.Settings.Archiver == "builtin" {
		return &archive.GzipBackend{Level: a.config.Settings.CompressionLevel}
	}
	return &archive.TarBackend{Binary: a.config.Settings.TarBinary}
}

// Shutdown stops the workspace trackers and closes the index.
func (a *App) Shutdown() {
	if a.backupManager != nil {
		a.backupManager.Shutdown()
	}
	if a.dbManager != nil {
		a.dbManager.Close()
	}
}

// OpenSession creates the backup for a session, capturing the original
// snapshot of workingDirectory before any turn runs.
func (a *App) OpenSession(sessionID, workingDirectory string) error {
	return a.backupManager.Open(a.ctx, sessionID, workingDirectory)
}

// Checkpoint records the workspace state after a turn.
func (a *App) Checkpoint(sessionID string, manual bool) (*metadata.Checkpoint, error) {
	trigger := metadata.TriggerAuto
	if manual {
		trigger = metadata.TriggerManual
	}
	return a.backupManager.Checkpoint(a.ctx, sessionID, trigger)
}

// CloseSession marks the session's backup closed. The backup stays readable
// and restorable.
func (a *App) CloseSession(sessionID string) error {
	return a.backupManager.CloseSession(a.ctx, sessionID)
}

// RestoreCheckpoint materializes a recorded snapshot into targetDir.
// checkpointID may be "original" or empty for the pre-session snapshot.
func (a *App) RestoreCheckpoint(sessionID, checkpointID, targetDir string) error {
	return a.backupManager.Restore(a.ctx, sessionID, checkpointID, targetDir)
}

// GetSession returns the session's full backup record.
func (a *App) GetSession(sessionID string) (*metadata.SessionBackup, error) {
	return a.backupManager.Get(sessionID)
}

// ListCheckpoints returns the session's checkpoint chain in order.
func (a *App) ListCheckpoints(sessionID string) ([]metadata.Checkpoint, error) {
	return a.backupManager.ListCheckpoints(sessionID)
}

// ListSessions returns the indexed sessions, most recently updated first.
// Without an index it returns an error rather than scanning the backup root.
func (a *App) ListSessions() ([]*database.SessionRow, error) {
	if a.dbManager == nil {
		return nil, fmt.Errorf("session index unavailable")
	}
	return a.dbManager.ListSessions()
}
