// Package git provides the repository operations Commander needs for
// worktree-backed sessions: worktree lifecycle, auto-commits, and the
// stop-time merge back to the default branch.
package git

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// WorktreesDir is the directory under the repo root that holds session worktrees.
const WorktreesDir = ".worktrees"

// BranchPrefix is the prefix for session branches.
const BranchPrefix = "session/"

// ErrNotGitRepo is returned when the directory is not a git repository.
var ErrNotGitRepo = errors.New("not a git repository")

func run(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// IsGitRepo checks if the given directory is inside a git repository.
func IsGitRepo(dir string) bool {
	cmd := exec.Command("git", "-C", dir, "rev-parse", "--git-dir")
	return cmd.Run() == nil
}

// RepoRoot returns the root directory of the repository containing dir.
func RepoRoot(dir string) (string, error) {
	out, err := run(dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", ErrNotGitRepo
	}
	return strings.TrimSpace(out), nil
}

// CurrentBranch returns the current branch name for the repository at dir.
func CurrentBranch(dir string) (string, error) {
	out, err := run(dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// DefaultBranch returns "main" if it exists, else "master", else an error.
func DefaultBranch(dir string) (string, error) {
	for _, name := range []string{"main", "master"} {
		if BranchExists(dir, name) {
			return name, nil
		}
	}
	return "", errors.New("no main or master branch")
}

// BranchExists checks if a local branch exists.
func BranchExists(dir, branch string) bool {
	cmd := exec.Command("git", "-C", dir, "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	return cmd.Run() == nil
}

// SessionBranch returns the branch name for a session alias.
func SessionBranch(alias string) string {
	return BranchPrefix + alias
}

// WorktreePath returns the worktree directory for a session alias.
func WorktreePath(repoRoot, alias string) string {
	return filepath.Join(repoRoot, WorktreesDir, alias)
}

// AddWorktree creates .worktrees/<alias> on a new session/<alias> branch.
// Returns the worktree path.
func AddWorktree(repoRoot, alias string) (string, error) {
	path := WorktreePath(repoRoot, alias)
	branch := SessionBranch(alias)
	if _, err := run(repoRoot, "worktree", "add", "-b", branch, path); err != nil {
		return "", err
	}
	return path, nil
}

// RemoveWorktree detaches and prunes a worktree. force removes even with
// uncommitted changes.
func RemoveWorktree(repoRoot, path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	_, err := run(repoRoot, args...)
	return err
}

// DeleteBranch removes a local branch.
func DeleteBranch(repoRoot, branch string) error {
	_, err := run(repoRoot, "branch", "-D", branch)
	return err
}

// HasChanges reports whether the working tree at dir has uncommitted changes.
func HasChanges(dir string) (bool, error) {
	out, err := run(dir, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// AutoCommit stages everything and commits with the given message. Returns
// false when there was nothing to commit.
func AutoCommit(dir, message string) (bool, error) {
	dirty, err := HasChanges(dir)
	if err != nil {
		return false, err
	}
	if !dirty {
		return false, nil
	}
	if _, err := run(dir, "add", "-A"); err != nil {
		return false, err
	}
	if _, err := run(dir, "commit", "-m", message); err != nil {
		return false, err
	}
	return true, nil
}

// Checkout switches the repository at dir to the given branch.
func Checkout(dir, branch string) error {
	_, err := run(dir, "checkout", branch)
	return err
}

// MergeNoFF merges a branch with an explicit merge commit.
func MergeNoFF(dir, branch, message string) error {
	_, err := run(dir, "merge", "--no-ff", branch, "-m", message)
	return err
}
