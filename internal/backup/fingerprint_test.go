// internal/backup/fingerprint_test.go
package backup

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFingerprintDir(t *testing.T) {
	t.Run("StableForIdenticalTrees", func(t *testing.T) {
		a := newWorkspace(t, map[string]string{"x.txt": "one\n", "sub/y.txt": "two\n"})
		b := newWorkspace(t, map[string]string{"x.txt": "one\n", "sub/y.txt": "two\n"})

		fpA, err := fingerprintDir(a)
		if err != nil {
			t.Fatal(err)
		}
		fpB, err := fingerprintDir(b)
		if err != nil {
			t.Fatal(err)
		}
		if fpA != fpB {
			t.Error("Expected identical trees to fingerprint identically")
		}
	})

	t.Run("ContentChangeChanges", func(t *testing.T) {
		dir := newWorkspace(t, map[string]string{"x.txt": "one\n"})
		before, err := fingerprintDir(dir)
		if err != nil {
			t.Fatal(err)
		}

		writeFile(t, dir, "x.txt", "two\n")
		after, err := fingerprintDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		if before == after {
			t.Error("Expected content change to change the fingerprint")
		}
	})

	t.Run("EmptyDirectoryChanges", func(t *testing.T) {
		dir := newWorkspace(t, map[string]string{"x.txt": "one\n"})
		before, err := fingerprintDir(dir)
		if err != nil {
			t.Fatal(err)
		}

		if err := os.Mkdir(filepath.Join(dir, "empty"), 0755); err != nil {
			t.Fatal(err)
		}
		withDir, err := fingerprintDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		if withDir == before {
			t.Error("Expected a new empty directory to change the fingerprint")
		}

		if err := os.Remove(filepath.Join(dir, "empty")); err != nil {
			t.Fatal(err)
		}
		after, err := fingerprintDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		if after != before {
			t.Error("Expected removal to restore the original fingerprint")
		}
	})

	t.Run("SymlinksExcluded", func(t *testing.T) {
		dir := newWorkspace(t, map[string]string{"x.txt": "one\n"})
		before, err := fingerprintDir(dir)
		if err != nil {
			t.Fatal(err)
		}

		if err := os.Symlink("/etc", filepath.Join(dir, "link")); err != nil {
			t.Fatal(err)
		}
		after, err := fingerprintDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		if before != after {
			t.Error("Expected symlinks to be excluded from the fingerprint")
		}
	})
}
