// internal/archive/backend.go
package archive

import (
	"context"
	"fmt"
	"strings"
)

// Backend creates and extracts compressed archives of a directory. It is an
// injectable capability so tests can substitute deterministic fakes and the
// external tar invocation can be swapped for the built-in Go implementation.
type Backend interface {
	// Create archives the contents of sourceDir into archivePath. Paths are
	// stored relative to sourceDir so extraction is relocatable. A failed
	// attempt must not leave a partial file at archivePath.
	Create(ctx context.Context, sourceDir, archivePath string) error

	// Extract unpacks archivePath into targetDir. No cleanup is attempted on
	// failure; a failed extraction must be treated as not-yet-restored.
	Extract(ctx context.Context, archivePath, targetDir string) error
}

// Error is a failed archive operation with whatever output the archiver
// produced before exiting.
type Error struct {
	Op       string // "create" or "extract"
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("archive %s failed with exit code %d", e.Op, e.ExitCode)
	if detail := strings.TrimSpace(e.Stderr); detail != "" {
		return msg + ": " + detail
	}
	if detail := strings.TrimSpace(e.Stdout); detail != "" {
		return msg + ": " + detail
	}
	return msg
}
