package registry

import (
	"os"
	"path/filepath"
	"strings"
)

// Upstream logging tools encode a project path into a directory name, but
// the encoding has drifted across versions: dots swapped for hyphens,
// hyphens for underscores inside multi-word segments, and back. The
// resolver generates every plausible spelling and checks which exist on
// disk.

const logFileExt = ".jsonl"

// CandidateDirectories returns plausible on-disk directory names for an
// encoded project name, the given spelling first. Substitutions apply only
// between two alphanumeric characters so path-separator hyphens survive.
func CandidateDirectories(encoded string) []string {
	variants := []string{
		encoded,
		substituteBetween(encoded, '.', '-'),
		substituteBetween(encoded, '-', '.'),
		substituteBetween(encoded, '-', '_'),
		substituteBetween(encoded, '_', '-'),
	}

	seen := make(map[string]bool, len(variants))
	var out []string
	for _, v := range variants {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// substituteBetween replaces old with repl wherever old sits between two
// alphanumeric characters.
func substituteBetween(s string, old, repl byte) string {
	if !strings.ContainsRune(s, rune(old)) {
		return s
	}

	b := []byte(s)
	for i := 1; i < len(b)-1; i++ {
		if b[i] == old && isAlnum(b[i-1]) && isAlnum(b[i+1]) {
			b[i] = repl
		}
	}
	return string(b)
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// Resolve checks each candidate under baseDir and returns the ones that
// exist and contain at least one recognized log file, in candidate order.
// Zero matches is not an error: the caller reports "no conversations
// found" instead of failing the run.
func Resolve(baseDir string, candidates []string) []string {
	var dirs []string
	for _, candidate := range candidates {
		dir := filepath.Join(baseDir, candidate)
		if hasLogFiles(dir) {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

func hasLogFiles(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), logFileExt) {
			return true
		}
	}
	return false
}

// LogFiles collects the log files under the resolved directories. When two
// variant directories contain a file of the same name, the file from the
// earlier (more canonical) directory wins and the duplicate is discarded.
func LogFiles(dirs []string) []string {
	seen := map[string]bool{}
	var files []string
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !strings.HasSuffix(name, logFileExt) {
				continue
			}
			if seen[name] {
				continue
			}
			seen[name] = true
			files = append(files, filepath.Join(dir, name))
		}
	}
	return files
}
