// internal/snapshot/snapshot.go
package snapshot

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"cowork/internal/archive"
	"cowork/internal/fsutil"
)

// Kind identifies how a snapshot is stored on disk.
type Kind string

const (
	KindTarGz     Kind = "tar_gz"
	KindDirectory Kind = "directory"
)

// Ref points at a stored snapshot. Path is relative to the session's backup
// directory; callers must containment-check it before joining.
type Ref struct {
	Kind Kind   `json:"kind"`
	Path string `json:"path"`
}

// Strategy captures and restores directory snapshots through an archive
// backend, degrading to raw directory copies when archiving is unavailable.
type Strategy struct {
	backend archive.Backend
}

// NewStrategy creates a Strategy over the given backend.
func NewStrategy(backend archive.Backend) *Strategy {
	return &Strategy{backend: backend}
}

// CreateWithFallback snapshots sourceDir into the session directory. It
// first attempts a compressed archive at archiveRel; on any failure, missing
// tool included, it falls back to a raw directory copy at dirRel so the
// engine stays functional on hosts without an archiver.
func (s *Strategy) CreateWithFallback(ctx context.Context, sourceDir, sessionDir, archiveRel, dirRel string) (Ref, error) {
	archivePath := filepath.Join(sessionDir, archiveRel)

	if err := s.backend.Create(ctx, sourceDir, archivePath); err != nil {
		log.Printf("[snapshot] Archive of %s failed (%v), falling back to directory copy", sourceDir, err)

		dirPath := filepath.Join(sessionDir, dirRel)
		if copyErr := fsutil.CopyDirectory(sourceDir, dirPath); copyErr != nil {
			return Ref{}, fmt.Errorf("snapshot fallback copy: %w", copyErr)
		}
		return Ref{Kind: KindDirectory, Path: dirRel}, nil
	}

	return Ref{Kind: KindTarGz, Path: archiveRel}, nil
}

// Size returns the stored byte size of a snapshot: the archive file size for
// tar_gz, the recursive directory size for directory.
func (s *Strategy) Size(sessionDir string, ref Ref) (int64, error) {
	path := filepath.Join(sessionDir, ref.Path)

	switch ref.Kind {
	case KindTarGz:
		info, err := os.Stat(path)
		if err != nil {
			return 0, err
		}
		return info.Size(), nil
	case KindDirectory:
		return fsutil.DirectorySize(path)
	default:
		return 0, fmt.Errorf("unknown snapshot kind: %s", ref.Kind)
	}
}

// Restore materializes the snapshot into targetDir: extraction for tar_gz,
// an overlay copy for directory. Files already in targetDir but absent from
// the snapshot are left in place; callers wanting a byte-exact result clear
// targetDir first. The ref is trusted here — containment validation is the
// caller's job.
func (s *Strategy) Restore(ctx context.Context, sessionDir, targetDir string, ref Ref) error {
	path := filepath.Join(sessionDir, ref.Path)

	switch ref.Kind {
	case KindTarGz:
		return s.backend.Extract(ctx, path, targetDir)
	case KindDirectory:
		return fsutil.CopyDirectoryContents(path, targetDir)
	default:
		return fmt.Errorf("unknown snapshot kind: %s", ref.Kind)
	}
}
