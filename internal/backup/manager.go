// internal/backup/manager.go
package backup

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"cowork/internal/database"
	"cowork/internal/fsutil"
	"cowork/internal/git"
	"cowork/internal/metadata"
	"cowork/internal/snapshot"
	"cowork/internal/watcher"
)

// OriginalID addresses the pre-session snapshot in Restore calls.
const OriginalID = "original"

// Options configures a Manager.
type Options struct {
	// BackupRoot is the owner-only directory holding one subdirectory per
	// session.
	BackupRoot string
	// Strategy captures and restores snapshots.
	Strategy *snapshot.Strategy
	// Index is the optional cross-session index database. Nil disables
	// indexing; index failures never fail an operation.
	Index *database.Database
	// WatchWorkspaces enables the fsnotify dirty-hint tracker per session.
	WatchWorkspaces bool
	// StampGit records the workspace git branch/commit on checkpoints.
	StampGit bool
}

// Manager owns the session backup lifecycle: open, checkpoint, close,
// restore. Calls for one session are serialized on that session's mutex —
// the metadata record is a single read-modify-write document with no
// concurrency token, so a lost update would corrupt the chain. Sessions are
// fully independent of each other.
type Manager struct {
	opts Options

	mu       sync.Mutex
	sessions map[string]*session
}

// session is the in-memory state for one open session backup.
type session struct {
	mu sync.Mutex

	id     string
	dir    string
	store  *metadata.Store
	record *metadata.SessionBackup

	// lastFingerprint is the fingerprint of the workspace as of the most
	// recent snapshot point (original or last checkpoint). Empty when
	// unknown, e.g. after resuming a session with an empty chain; unknown
	// disables dedup for the next checkpoint rather than guessing.
	lastFingerprint string

	tracker *watcher.Tracker
}

// NewManager creates a Manager.
func NewManager(opts Options) *Manager {
	return &Manager{
		opts:     opts,
		sessions: make(map[string]*session),
	}
}

// validateSessionID rejects ids that could traverse outside the backup
// root when joined into a path.
func validateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session id must not be empty")
	}
	if len(id) > 256 {
		return fmt.Errorf("session id is too long")
	}
	for _, c := range id {
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_' {
			continue
		}
		return fmt.Errorf("session id contains invalid characters (only alphanumeric, hyphens, underscores allowed)")
	}
	return nil
}

// Open creates the backup for a session: it captures the original snapshot
// of workingDirectory synchronously, before any turn runs, and writes the
// initial metadata record. Re-opening a session whose record already exists
// resumes from it and captures nothing.
func (m *Manager) Open(ctx context.Context, sessionID, workingDirectory string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	if !filepath.IsAbs(workingDirectory) {
		return fmt.Errorf("working directory must be an absolute path: %s", workingDirectory)
	}

	m.mu.Lock()
	if _, exists := m.sessions[sessionID]; exists {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	sessionDir := filepath.Join(m.opts.BackupRoot, sessionID)
	store := metadata.NewStore(filepath.Join(sessionDir, "metadata.json"))

	record, found, err := store.Load()
	if err != nil {
		return err
	}

	s := &session{
		id:    sessionID,
		dir:   sessionDir,
		store: store,
	}

	if found {
		s.record = record
	} else {
		info, err := os.Stat(workingDirectory)
		if err != nil {
			return fmt.Errorf("working directory: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("working directory is not a directory: %s", workingDirectory)
		}

		if err := fsutil.EnsureSecureDir(sessionDir); err != nil {
			return err
		}

		ref, err := m.opts.Strategy.CreateWithFallback(ctx, workingDirectory, sessionDir, "original.tar.gz", "original")
		if err != nil {
			return fmt.Errorf("capture original snapshot: %w", err)
		}

		s.record = &metadata.SessionBackup{
			Version:          metadata.SchemaVersion,
			SessionID:        sessionID,
			WorkingDirectory: workingDirectory,
			CreatedAt:        time.Now().UTC(),
			State:            metadata.StateActive,
			OriginalSnapshot: toMetadataRef(ref),
			Checkpoints:      []metadata.Checkpoint{},
		}
		if err := store.Save(s.record); err != nil {
			return err
		}
	}

	// Start the tracker before the baseline fingerprint so a write landing
	// between the two is seen as dirty rather than missed.
	if m.opts.WatchWorkspaces && s.record.State == metadata.StateActive {
		tracker, err := watcher.New(s.record.WorkingDirectory)
		if err != nil {
			log.Printf("[backup] Workspace watcher unavailable for %s: %v", sessionID, err)
		} else {
			s.tracker = tracker
		}
	}

	if !found {
		// Baseline before scanning: a write racing the fingerprint walk
		// re-dirties the tracker instead of being wiped by a later clean.
		if s.tracker != nil {
			s.tracker.MarkClean()
		}
		// The original's fingerprint is only held in memory; it exists so
		// the first checkpoint of an unchanged workspace dedups against
		// the original snapshot.
		fp, err := fingerprintDir(workingDirectory)
		if err != nil {
			log.Printf("[backup] Failed to fingerprint %s at open: %v", workingDirectory, err)
		} else {
			s.lastFingerprint = fp
		}
	}

	// Index before publishing: once the session is visible, the record may
	// only be touched under s.mu.
	m.updateIndex(s)

	m.mu.Lock()
	if _, exists := m.sessions[sessionID]; exists {
		// A concurrent operation materialized this session through lookup
		// while we were capturing; its state supersedes ours.
		m.mu.Unlock()
		if s.tracker != nil {
			s.tracker.Close()
		}
		return nil
	}
	m.sessions[sessionID] = s
	m.mu.Unlock()

	return nil
}

// lookup returns the in-memory session, loading its record from disk when
// the manager has not seen it yet (e.g. restore after a host restart).
func (m *Manager) lookup(sessionID string) (*session, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, exists := m.sessions[sessionID]; exists {
		return s, nil
	}

	sessionDir := filepath.Join(m.opts.BackupRoot, sessionID)
	store := metadata.NewStore(filepath.Join(sessionDir, "metadata.json"))
	record, found, err := store.Load()
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}

	s := &session{id: sessionID, dir: sessionDir, store: store, record: record}
	m.sessions[sessionID] = s
	return s, nil
}

// Checkpoint records the workspace state after a turn. An unchanged
// workspace (same content fingerprint as the previous snapshot point)
// appends a changed=false record that reuses the previous snapshot and
// writes no new storage. Rejected on closed sessions.
func (m *Manager) Checkpoint(ctx context.Context, sessionID string, trigger metadata.Trigger) (*metadata.Checkpoint, error) {
	if trigger != metadata.TriggerAuto && trigger != metadata.TriggerManual {
		return nil, fmt.Errorf("invalid checkpoint trigger: %s", trigger)
	}

	s, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.record.State == metadata.StateClosed {
		return nil, fmt.Errorf("%w: %s", ErrSessionClosed, sessionID)
	}

	prevFingerprint := s.lastFingerprint
	if last := s.record.LastCheckpoint(); last != nil {
		prevFingerprint = last.Fingerprint
	}

	current, err := s.currentFingerprint(prevFingerprint)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	cp := metadata.Checkpoint{
		ID:          uuid.New().String(),
		Index:       len(s.record.Checkpoints),
		CreatedAt:   now,
		Trigger:     trigger,
		Fingerprint: current,
	}

	if m.opts.StampGit {
		if pos, ok := git.Head(s.record.WorkingDirectory); ok {
			cp.GitBranch = pos.Branch
			cp.GitCommit = pos.Commit
		}
	}

	if prevFingerprint != "" && current == prevFingerprint {
		cp.Changed = false
		cp.PatchBytes = 0
		if last := s.record.LastCheckpoint(); last != nil {
			cp.Snapshot = last.Snapshot
		} else {
			cp.Snapshot = s.record.OriginalSnapshot
		}
	} else {
		base := fmt.Sprintf("checkpoint-%03d", cp.Index)
		ref, err := m.opts.Strategy.CreateWithFallback(ctx, s.record.WorkingDirectory, s.dir, base+".tar.gz", base)
		if err != nil {
			return nil, fmt.Errorf("capture checkpoint snapshot: %w", err)
		}

		size, err := m.opts.Strategy.Size(s.dir, ref)
		if err != nil {
			return nil, fmt.Errorf("measure checkpoint snapshot: %w", err)
		}

		cp.Changed = true
		cp.PatchBytes = size
		cp.Snapshot = toMetadataRef(ref)
	}

	s.record.Checkpoints = append(s.record.Checkpoints, cp)
	if err := s.store.Save(s.record); err != nil {
		// The snapshot file may remain on disk, but the chain stays
		// consistent: an unrecorded snapshot is garbage, not corruption.
		s.record.Checkpoints = s.record.Checkpoints[:len(s.record.Checkpoints)-1]
		return nil, err
	}

	s.lastFingerprint = current
	m.updateIndex(s)

	saved := s.record.Checkpoints[len(s.record.Checkpoints)-1]
	return &saved, nil
}

// currentFingerprint returns the workspace's content fingerprint. When the
// dirty tracker has been continuously healthy and reports no events since
// the previous fingerprint, the previous value is reused without rescanning.
func (s *session) currentFingerprint(prev string) (string, error) {
	if s.tracker != nil && prev != "" && s.tracker.Status() == watcher.StatusClean {
		return prev, nil
	}

	// Baseline first so a write racing the walk re-dirties the tracker.
	if s.tracker != nil {
		s.tracker.MarkClean()
	}
	fp, err := fingerprintDir(s.record.WorkingDirectory)
	if err != nil {
		return "", err
	}
	return fp, nil
}

// CloseSession transitions the session to its terminal closed state. The
// backup stays readable and restorable; only new checkpoints are rejected.
func (m *Manager) CloseSession(ctx context.Context, sessionID string) error {
	s, err := m.lookup(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.record.State == metadata.StateClosed {
		return nil
	}

	now := time.Now().UTC()
	s.record.State = metadata.StateClosed
	s.record.ClosedAt = &now
	if err := s.store.Save(s.record); err != nil {
		s.record.State = metadata.StateActive
		s.record.ClosedAt = nil
		return err
	}

	if s.tracker != nil {
		s.tracker.Close()
		s.tracker = nil
	}

	m.updateIndex(s)
	return nil
}

// Restore materializes a recorded snapshot into targetDir. checkpointID may
// be a checkpoint id, or "original"/empty for the pre-session snapshot. The
// restore is an overlay: files created after the restored point and still
// present in targetDir are kept unless the caller clears targetDir first.
// The chain is never mutated.
func (m *Manager) Restore(ctx context.Context, sessionID, checkpointID, targetDir string) error {
	s, err := m.lookup(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var ref metadata.SnapshotRef
	switch checkpointID {
	case "", OriginalID:
		ref = s.record.OriginalSnapshot
	default:
		found := false
		for i := range s.record.Checkpoints {
			if s.record.Checkpoints[i].ID == checkpointID {
				ref = s.record.Checkpoints[i].Snapshot
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrUnknownCheckpoint, checkpointID)
		}
	}

	// Containment check before any filesystem access: a stored path that
	// escapes the session directory signals tampering, never clamping.
	if !fsutil.IsPathWithin(s.dir, ref.Path) {
		return &PathEscapeError{SessionID: sessionID, Path: ref.Path}
	}

	if err := fsutil.EnsureWorkingDir(targetDir); err != nil {
		return err
	}

	if err := m.opts.Strategy.Restore(ctx, s.dir, targetDir, toSnapshotRef(ref)); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	return nil
}

// Get returns a copy of the session's backup record.
func (m *Manager) Get(sessionID string) (*metadata.SessionBackup, error) {
	s, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *s.record
	copied.Checkpoints = append([]metadata.Checkpoint(nil), s.record.Checkpoints...)
	return &copied, nil
}

// ListCheckpoints returns the session's checkpoint chain in order.
func (m *Manager) ListCheckpoints(sessionID string) ([]metadata.Checkpoint, error) {
	record, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return record.Checkpoints, nil
}

// Shutdown stops all workspace trackers. Backups on disk are untouched.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		s.mu.Lock()
		if s.tracker != nil {
			s.tracker.Close()
			s.tracker = nil
		}
		s.mu.Unlock()
	}
}

// updateIndex refreshes the cross-session index row. Best-effort: the
// metadata file is the source of truth, so an index failure only logs.
func (m *Manager) updateIndex(s *session) {
	if m.opts.Index == nil {
		return
	}

	var total int64
	if size, err := m.opts.Strategy.Size(s.dir, toSnapshotRef(s.record.OriginalSnapshot)); err == nil {
		total = size
	}
	for i := range s.record.Checkpoints {
		total += s.record.Checkpoints[i].PatchBytes
	}

	row := &database.SessionRow{
		SessionID:        s.record.SessionID,
		WorkingDirectory: s.record.WorkingDirectory,
		State:            string(s.record.State),
		CreatedAt:        s.record.CreatedAt,
		ClosedAt:         s.record.ClosedAt,
		CheckpointCount:  len(s.record.Checkpoints),
		TotalBytes:       total,
	}
	if err := m.opts.Index.UpsertSession(row); err != nil {
		log.Printf("[backup] Failed to update session index for %s: %v", s.id, err)
	}
}

func toMetadataRef(ref snapshot.Ref) metadata.SnapshotRef {
	return metadata.SnapshotRef{Kind: metadata.SnapshotKind(ref.Kind), Path: ref.Path}
}

func toSnapshotRef(ref metadata.SnapshotRef) snapshot.Ref {
	return snapshot.Ref{Kind: snapshot.Kind(ref.Kind), Path: ref.Path}
}
