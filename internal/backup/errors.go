// internal/backup/errors.go
package backup

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionClosed is returned when a checkpoint is requested on a
	// closed session. Closed sessions stay readable and restorable.
	ErrSessionClosed = errors.New("session backup is closed")

	// ErrUnknownSession is returned for operations on a session that was
	// never opened and has no backup record on disk.
	ErrUnknownSession = errors.New("unknown session")

	// ErrUnknownCheckpoint is returned when a restore names a checkpoint id
	// that is not in the session's chain.
	ErrUnknownCheckpoint = errors.New("unknown checkpoint")
)

// PathEscapeError means a stored snapshot path resolves outside its session
// backup directory. It is raised before any filesystem access: a record
// that points outside its own directory has been tampered with or corrupted
// and must never be followed.
type PathEscapeError struct {
	SessionID string
	Path      string
}

func (e *PathEscapeError) Error() string {
	return fmt.Sprintf("snapshot path %q escapes the backup directory of session %s", e.Path, e.SessionID)
}
