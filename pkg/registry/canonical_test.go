package registry

import (
	"os"
	"path/filepath"
	"testing"

	git "github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeMissingPath(t *testing.T) {
	// A deleted project still canonicalizes to its cleaned absolute form.
	resolved, err := Canonicalize("/no/such/project")
	require.NoError(t, err)
	assert.Equal(t, "/no/such/project", resolved.Canonical)
	assert.Empty(t, resolved.GitRoot)

	_, err = Canonicalize("")
	assert.Error(t, err)
}

func TestCanonicalizeResolvesSymlinks(t *testing.T) {
	base := t.TempDir()
	real := filepath.Join(base, "real-project")
	require.NoError(t, os.MkdirAll(real, 0o755))

	link := filepath.Join(base, "linked-project")
	if err := os.Symlink(real, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	fromReal, err := Canonicalize(real)
	require.NoError(t, err)
	fromLink, err := Canonicalize(link)
	require.NoError(t, err)

	assert.Equal(t, fromReal.Canonical, fromLink.Canonical)
	assert.Contains(t, fromLink.Aliases, fromLink.Display)
}

func TestCanonicalizeDetectsWorktreeRoot(t *testing.T) {
	base := t.TempDir()
	repoDir := filepath.Join(base, "repo")
	require.NoError(t, os.MkdirAll(filepath.Join(repoDir, "pkg", "deep"), 0o755))

	_, err := git.PlainInit(repoDir, false)
	require.NoError(t, err)

	resolved, err := Canonicalize(filepath.Join(repoDir, "pkg", "deep"))
	require.NoError(t, err)

	// t.TempDir may itself sit behind a symlink, so compare resolved
	// spellings.
	wantRoot, err := filepath.EvalSymlinks(repoDir)
	require.NoError(t, err)
	assert.Equal(t, wantRoot, resolved.Canonical)
	assert.Equal(t, wantRoot, resolved.GitRoot)
}
