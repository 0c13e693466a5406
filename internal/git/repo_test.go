// internal/git/repo_test.go
package git

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func TestHead(t *testing.T) {
	t.Run("NonRepoIsNotOK", func(t *testing.T) {
		if _, ok := Head(t.TempDir()); ok {
			t.Error("Expected ok=false for a non-repository directory")
		}
	})

	t.Run("EmptyRepoIsNotOK", func(t *testing.T) {
		dir := t.TempDir()
		if _, err := gogit.PlainInit(dir, false); err != nil {
			t.Fatal(err)
		}
		if _, ok := Head(dir); ok {
			t.Error("Expected ok=false for a repository with no commits")
		}
	})

	t.Run("ReturnsBranchAndCommit", func(t *testing.T) {
		dir := t.TempDir()
		repo, err := gogit.PlainInit(dir, false)
		if err != nil {
			t.Fatal(err)
		}

		if err := os.WriteFile(filepath.Join(dir, "readme.md"), []byte("hi"), 0644); err != nil {
			t.Fatal(err)
		}
		wt, err := repo.Worktree()
		if err != nil {
			t.Fatal(err)
		}
		if _, err := wt.Add("readme.md"); err != nil {
			t.Fatal(err)
		}
		hash, err := wt.Commit("initial", &gogit.CommitOptions{
			Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
		})
		if err != nil {
			t.Fatal(err)
		}

		pos, ok := Head(dir)
		if !ok {
			t.Fatal("Expected ok=true for committed repository")
		}
		if pos.Commit != hash.String() {
			t.Errorf("Expected commit %s, got %s", hash, pos.Commit)
		}
		if pos.Branch == "" {
			t.Error("Expected a branch name")
		}
	})

	t.Run("DetectsFromSubdirectory", func(t *testing.T) {
		dir := t.TempDir()
		repo, err := gogit.PlainInit(dir, false)
		if err != nil {
			t.Fatal(err)
		}
		if err := os.MkdirAll(filepath.Join(dir, "sub"), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "f"), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		wt, _ := repo.Worktree()
		wt.Add("f")
		if _, err := wt.Commit("c", &gogit.CommitOptions{
			Author: &object.Signature{Name: "t", Email: "t@example.com", When: time.Now()},
		}); err != nil {
			t.Fatal(err)
		}

		if _, ok := Head(filepath.Join(dir, "sub")); !ok {
			t.Error("Expected repository detection to walk up from a subdirectory")
		}
	})
}
