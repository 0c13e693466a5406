// internal/archive/tar.go
package archive

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"cowork/internal/fsutil"
	"cowork/internal/process"
)

// TarBackend archives directories by invoking the system tar binary.
type TarBackend struct {
	// Binary overrides the tar executable name. Empty means "tar".
	Binary string
}

func (b *TarBackend) binary() string {
	if b.Binary != "" {
		return b.Binary
	}
	return "tar"
}

// Create produces a gzip-compressed tarball of sourceDir's contents. The
// archive is written to a temporary path and renamed into place so a failed
// run never leaves a corrupt file that could be mistaken for a snapshot.
func (b *TarBackend) Create(ctx context.Context, sourceDir, archivePath string) error {
	if err := fsutil.EnsureSecureDir(filepath.Dir(archivePath)); err != nil {
		return err
	}

	tmpPath := archivePath + ".partial"
	defer os.Remove(tmpPath)

	// -C keeps stored paths relative to sourceDir, so the archive extracts
	// anywhere.
	result := process.Run(ctx, b.binary(), []string{"-czf", tmpPath, "-C", sourceDir, "."}, "")
	if result.ExitCode != 0 {
		return &Error{Op: "create", ExitCode: result.ExitCode, Stdout: result.Stdout, Stderr: result.Stderr}
	}

	if err := os.Rename(tmpPath, archivePath); err != nil {
		return err
	}

	if err := os.Chmod(archivePath, 0600); err != nil {
		log.Printf("[archive] Failed to restrict permissions on %s: %v", archivePath, err)
	}

	return nil
}

// Extract unpacks the archive into targetDir.
func (b *TarBackend) Extract(ctx context.Context, archivePath, targetDir string) error {
	if err := fsutil.EnsureSecureDir(targetDir); err != nil {
		return err
	}

	result := process.Run(ctx, b.binary(), []string{"-xzf", archivePath, "-C", targetDir}, "")
	if result.ExitCode != 0 {
		return &Error{Op: "extract", ExitCode: result.ExitCode, Stdout: result.Stdout, Stderr: result.Stderr}
	}

	return nil
}
