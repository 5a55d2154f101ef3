package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateDirectories(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
		want    []string
	}{
		{
			name:    "plain name has one candidate",
			encoded: "-home-user-project",
			want:    []string{"-home-user-project"},
		},
		{
			name:    "dotted segment gains hyphen variant",
			encoded: "-home-user-my.app",
			want:    []string{"-home-user-my.app", "-home-user-my-app", "-home.user.my.app", "-home_user_my.app"},
		},
		{
			name:    "underscore segment gains hyphen variant",
			encoded: "-home-user-my_tool",
			want:    []string{"-home-user-my_tool", "-home-user-my-tool"},
		},
		{
			name:    "leading separator is never rewritten",
			encoded: "-project",
			want:    []string{"-project"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CandidateDirectories(tt.encoded)
			// Order matters: the given spelling is most canonical.
			require.NotEmpty(t, got)
			assert.Equal(t, tt.encoded, got[0])
			for _, w := range tt.want {
				assert.Contains(t, got, w)
			}
		})
	}
}

func TestCandidateDirectoriesOnlyBetweenAlnum(t *testing.T) {
	// Hyphens adjacent to another separator stay untouched.
	got := CandidateDirectories("-a--b")
	for _, candidate := range got {
		assert.NotContains(t, candidate, "_-")
		assert.NotContains(t, candidate, "-_")
	}
}

func TestResolveReturnsEmptyWithoutError(t *testing.T) {
	base := t.TempDir()
	dirs := Resolve(base, CandidateDirectories("-no-such-project"))
	assert.Empty(t, dirs)
}

func TestResolveIgnoresDirsWithoutLogFiles(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "-home-user-app"), 0o755))

	dirs := Resolve(base, []string{"-home-user-app"})
	assert.Empty(t, dirs)

	require.NoError(t, os.WriteFile(
		filepath.Join(base, "-home-user-app", "session.jsonl"), []byte("{}\n"), 0o644))

	dirs = Resolve(base, []string{"-home-user-app"})
	require.Len(t, dirs, 1)
	assert.Equal(t, filepath.Join(base, "-home-user-app"), dirs[0])
}

func TestLogFilesDedupeKeepsCanonical(t *testing.T) {
	base := t.TempDir()
	canonical := filepath.Join(base, "-home-user-my.app")
	variant := filepath.Join(base, "-home-user-my-app")
	require.NoError(t, os.MkdirAll(canonical, 0o755))
	require.NoError(t, os.MkdirAll(variant, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(canonical, "shared.jsonl"), []byte("canonical\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(variant, "shared.jsonl"), []byte("variant\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(variant, "only.jsonl"), []byte("{}\n"), 0o644))

	dirs := Resolve(base, CandidateDirectories("-home-user-my.app"))
	require.Len(t, dirs, 2)

	files := LogFiles(dirs)
	require.Len(t, files, 2)

	// The duplicate name resolves to the canonical directory's copy.
	assert.Contains(t, files, filepath.Join(canonical, "shared.jsonl"))
	assert.Contains(t, files, filepath.Join(variant, "only.jsonl"))
	assert.NotContains(t, files, filepath.Join(variant, "shared.jsonl"))
}
