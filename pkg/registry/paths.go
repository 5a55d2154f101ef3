package registry

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/evanwhite/codetrace/pkg/logger"
)

// RegistryPathEnv overrides where the registry database lives. The hosting
// environment may run with a read-only or sandboxed home directory, so the
// default location cannot be assumed writable.
const RegistryPathEnv = "CODETRACE_REGISTRY_PATH"

const localFallback = ".codetrace/registry.db"

// ResolveDBPath picks a writable location for the registry database:
//
//  1. the RegistryPathEnv override, failing loudly if it is unwritable;
//  2. the default per-user location under the home directory;
//  3. an existing, already-writable project-local fallback file, used with
//     a warning and never silently created.
//
// If none work the error names every path tried and the override variable.
func ResolveDBPath(ctx context.Context) (string, error) {
	log := logger.G(ctx)

	if override := os.Getenv(RegistryPathEnv); override != "" {
		if err := ensureWritable(override); err != nil {
			return "", errors.Wrapf(err, "registry path override %s=%s is not writable", RegistryPathEnv, override)
		}
		return override, nil
	}

	var tried []string

	if home, err := os.UserHomeDir(); err == nil {
		def := filepath.Join(home, ".codetrace", "registry.db")
		if err := ensureWritable(def); err == nil {
			return def, nil
		}
		tried = append(tried, def)
	}

	if local, err := filepath.Abs(localFallback); err == nil {
		if isWritableFile(local) {
			log.WithField("path", local).Warn("using project-local registry database; home directory is not writable")
			return local, nil
		}
		tried = append(tried, local)
	}

	return "", errors.Errorf(
		"no writable registry database location (tried: %s); set %s to override",
		strings.Join(tried, ", "), RegistryPathEnv)
}

// ensureWritable verifies the file at path can be created or opened for
// writing, creating parent directories as needed. The probe leaves an empty
// file behind when it creates one, which the subsequent open reuses.
func ensureWritable(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", path)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s for writing", path)
	}
	return f.Close()
}

// isWritableFile reports whether path already exists as a writable regular
// file. It never creates the file.
func isWritableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return false
	}
	f.Close()
	return true
}
