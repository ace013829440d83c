package git

import (
	"os/exec"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// Stats summarizes a diff for chat display.
type Stats struct {
	Files     int
	Additions int
	Deletions int
}

// Empty reports whether the stats describe a clean tree.
func (s Stats) Empty() bool {
	return s.Files == 0 && s.Additions == 0 && s.Deletions == 0
}

// FetchDiff returns the unified diff of uncommitted changes (staged and
// unstaged) against HEAD. Returns ("", nil) for a clean tree and
// ErrNotGitRepo when dir is not a repository.
func FetchDiff(dir string) (string, error) {
	if !IsGitRepo(dir) {
		return "", ErrNotGitRepo
	}
	cmd := exec.Command("git", "-C", dir, "diff", "HEAD")
	out, err := cmd.Output()
	if err != nil {
		// git diff exits 1 when differences are found.
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return string(out), nil
		}
		return "", err
	}
	return string(out), nil
}

// ParseStats computes file and line counts from a unified diff.
func ParseStats(unified string) (Stats, error) {
	var s Stats
	if strings.TrimSpace(unified) == "" {
		return s, nil
	}
	fds, err := diff.ParseMultiFileDiff([]byte(unified))
	if err != nil {
		return s, err
	}
	s.Files = len(fds)
	for _, fd := range fds {
		st := fd.Stat()
		s.Additions += int(st.Added + st.Changed)
		s.Deletions += int(st.Deleted + st.Changed)
	}
	return s, nil
}

// DiffStats returns diff stats for the uncommitted changes at dir.
func DiffStats(dir string) (Stats, error) {
	unified, err := FetchDiff(dir)
	if err != nil {
		return Stats{}, err
	}
	return ParseStats(unified)
}
