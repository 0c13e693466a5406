// internal/backup/fingerprint.go
package backup

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/blake2b"
)

// fingerprintDir computes a content fingerprint of a directory tree:
// BLAKE2b-256 over each directory's relative path and each regular file's
// relative path, size, and bytes, in walk order (lexical, so deterministic).
// Directories are hashed by presence so adding or removing an empty one is
// a change. Byte-identical trees always produce the same fingerprint; this
// is the checkpoint dedup key. Symlinks and special files are excluded,
// matching what snapshots capture.
func fingerprintDir(root string) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}

	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&os.ModeSymlink != 0 {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(h, "%s/\x00", filepath.ToSlash(rel))
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		fmt.Fprintf(h, "%s\x00%d\x00", filepath.ToSlash(rel), info.Size())

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(h, f)
		f.Close()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", root, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
