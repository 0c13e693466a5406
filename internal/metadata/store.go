// internal/metadata/store.go
package metadata

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
)

// CorruptError reports a metadata file that exists but cannot be trusted:
// unparseable JSON or a schema violation. The chain cannot be assumed intact
// past this point, so it is never silently recovered.
type CorruptError struct {
	Path  string
	Issue string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt backup metadata at %s: %s", e.Path, e.Issue)
}

var validate = validator.New()

// Store persists one SessionBackup record as a single JSON file.
type Store struct {
	path string
}

// NewStore creates a Store for the given metadata file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the metadata file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the record. A missing file is not an error: it returns
// (nil, false, nil) so callers can distinguish "not yet created" from
// "corrupted". A present but unparseable or schema-invalid file is a
// *CorruptError naming the file and the first violation.
func (s *Store) Load() (*SessionBackup, bool, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read metadata %s: %w", s.path, err)
	}

	var record SessionBackup
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, false, &CorruptError{Path: s.path, Issue: err.Error()}
	}

	if issue := checkSchema(&record); issue != "" {
		return nil, false, &CorruptError{Path: s.path, Issue: issue}
	}

	return &record, true, nil
}

// Save validates and writes the record with stable formatting and a trailing
// newline, via a temp file renamed into place. Owner-only permission is
// re-asserted after the write, best-effort.
func (s *Store) Save(record *SessionBackup) error {
	if issue := checkSchema(record); issue != "" {
		return fmt.Errorf("refusing to persist invalid metadata: %s", issue)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	data = append(data, '\n')

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write metadata %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace metadata %s: %w", s.path, err)
	}

	if err := os.Chmod(s.path, 0600); err != nil {
		log.Printf("[metadata] Failed to restrict permissions on %s: %v", s.path, err)
	}

	return nil
}

// checkSchema returns the first violation as a human-readable issue, or ""
// when the record is valid.
func checkSchema(record *SessionBackup) string {
	if err := validate.Struct(record); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok || len(errs) == 0 {
			return err.Error()
		}
		first := errs[0]
		return fmt.Sprintf("field %s failed the '%s' constraint (value %v)",
			first.Namespace(), first.Tag(), first.Value())
	}

	// Cross-field rules the tag language cannot express.
	for i, cp := range record.Checkpoints {
		if cp.Index != i {
			return fmt.Sprintf("checkpoints[%d] has index %d, expected gapless sequence from 0", i, cp.Index)
		}
	}
	if record.State == StateClosed && record.ClosedAt == nil {
		return "state is closed but closedAt is missing"
	}

	return ""
}
