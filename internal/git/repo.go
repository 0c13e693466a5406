// internal/git/repo.go
package git

import (
	gogit "github.com/go-git/go-git/v5"
)

// Position is the VCS position of a workspace at a point in time.
type Position struct {
	Branch string
	Commit string
}

// Head returns the current branch and commit of the repository containing
// path. Workspaces that are not git repositories (or have no commits yet)
// return ok=false; that is not an error, checkpoints simply go unstamped.
func Head(path string) (Position, bool) {
	repo, err := gogit.PlainOpenWithOptions(path, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return Position{}, false
	}

	head, err := repo.Head()
	if err != nil {
		return Position{}, false
	}

	pos := Position{Commit: head.Hash().String()}
	if head.Name().IsBranch() {
		pos.Branch = head.Name().Short()
	}
	return pos, true
}
