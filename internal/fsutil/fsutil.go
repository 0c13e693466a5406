// internal/fsutil/fsutil.go
package fsutil

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// IsPathWithin reports whether candidate, normalized relative to parent,
// stays inside parent. Both a relative candidate and an absolute candidate
// under parent are accepted; anything that traverses above parent is not.
// Every snapshot path read from a metadata record must pass this check
// before being joined and accessed.
func IsPathWithin(parent, candidate string) bool {
	parent = filepath.Clean(parent)

	if filepath.IsAbs(candidate) {
		rel, err := filepath.Rel(parent, filepath.Clean(candidate))
		if err != nil {
			return false
		}
		return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
	}

	joined := filepath.Clean(filepath.Join(parent, candidate))
	rel, err := filepath.Rel(parent, joined)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// EnsureSecureDir creates path (and parents) with owner-only permissions.
// The mode is re-asserted after creation since MkdirAll honors umask and
// skips existing directories; a chmod failure is logged, not fatal, because
// some filesystems have no POSIX permission bits.
func EnsureSecureDir(path string) error {
	if err := os.MkdirAll(path, 0700); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	if err := os.Chmod(path, 0700); err != nil {
		log.Printf("[fsutil] Failed to restrict permissions on %s: %v", path, err)
	}
	return nil
}

// EnsureWorkingDir creates path if it is entirely absent and errors if the
// path exists but is not a directory.
func EnsureWorkingDir(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return os.MkdirAll(path, 0755)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists and is not a directory: %s", path)
	}
	return nil
}

// CopyDirectory copies src to dst with replace semantics: any existing dst
// is removed first. Symbolic links are never followed or copied.
func CopyDirectory(src, dst string) error {
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("clear destination %s: %w", dst, err)
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return fmt.Errorf("create destination %s: %w", dst, err)
	}
	return copyTree(src, dst)
}

// CopyDirectoryContents copies each entry of src into dst without clearing
// dst first (overlay semantics). Files already in dst but absent from src
// are left untouched; callers needing a byte-exact mirror must clear dst
// themselves. Symbolic links are skipped.
func CopyDirectoryContents(src, dst string) error {
	if err := os.MkdirAll(dst, 0755); err != nil {
		return fmt.Errorf("create destination %s: %w", dst, err)
	}
	return copyTree(src, dst)
}

func copyTree(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("read directory %s: %w", src, err)
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		if entry.Type()&os.ModeSymlink != 0 {
			continue
		}

		if entry.IsDir() {
			if err := os.MkdirAll(dstPath, 0755); err != nil {
				return fmt.Errorf("create directory %s: %w", dstPath, err)
			}
			if err := copyTree(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}

		if !entry.Type().IsRegular() {
			continue
		}

		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}

	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", dst, err)
	}
	return out.Close()
}

// DirectorySize returns the recursive sum of regular file sizes under path.
// Symlinks and special files are excluded.
func DirectorySize(path string) (int64, error) {
	var total int64
	err := filepath.WalkDir(path, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
