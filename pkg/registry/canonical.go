package registry

import (
	"os"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	"github.com/pkg/errors"
)

// ResolvedPath is the result of canonicalizing one raw project path.
type ResolvedPath struct {
	// Canonical is the stable registry key: the symlink-resolved absolute
	// path, promoted to the git worktree root when the path sits inside
	// one.
	Canonical string
	// Display is the cleaned absolute spelling the caller handed us.
	Display string
	// GitRoot is the detected worktree root, empty outside a repository.
	GitRoot string
	// Aliases are the non-canonical spellings encountered while resolving,
	// recorded so later lookups by the same spelling skip the filesystem.
	Aliases []string
}

// Canonicalize resolves a raw project path to its stable identity. It never
// requires the path to exist: a missing path canonicalizes to its cleaned
// absolute form so lookups for deleted projects still resolve.
func Canonicalize(path string) (*ResolvedPath, error) {
	if path == "" {
		return nil, errors.New("project path is empty")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve absolute path for %s", path)
	}

	resolved := abs
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		resolved = real
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "failed to resolve symlinks for %s", abs)
	}

	canonical := resolved
	gitRoot := worktreeRoot(resolved)
	if gitRoot != "" {
		canonical = gitRoot
	}

	rp := &ResolvedPath{
		Canonical: canonical,
		Display:   abs,
		GitRoot:   gitRoot,
	}
	seen := map[string]bool{canonical: true}
	for _, spelling := range []string{abs, resolved} {
		if !seen[spelling] {
			seen[spelling] = true
			rp.Aliases = append(rp.Aliases, spelling)
		}
	}
	return rp, nil
}

// worktreeRoot returns the git worktree root containing path, or "" when
// path is not inside a repository. DetectDotGit walks parent directories
// and follows .git files, so linked worktrees resolve to their own root
// rather than the shared repository.
func worktreeRoot(path string) string {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	wt, err := repo.Worktree()
	if err != nil {
		return ""
	}
	return wt.Filesystem.Root()
}
