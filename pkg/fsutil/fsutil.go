package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// OwnerConfig holds parsed UID/GID for file ownership.
type OwnerConfig struct {
	UID int
	GID int
}

// ParseOwner parses "UID:GID" string. Returns nil if empty.
func ParseOwner(owner string) (*OwnerConfig, error) {
	if owner == "" {
		return nil, nil
	}

	parts := strings.Split(owner, ":")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid format %q, expected UID:GID", owner)
	}

	uid, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid UID %q: %w", parts[0], err)
	}

	gid, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid GID %q: %w", parts[1], err)
	}

	return &OwnerConfig{UID: uid, GID: gid}, nil
}

// Chown sets ownership if owner is not nil. Best-effort, ignores errors.
func Chown(path string, owner *OwnerConfig) {
	if owner == nil {
		return
	}

	_ = os.Chown(path, owner.UID, owner.GID)
}

// MkdirAll creates directory and sets ownership.
func MkdirAll(path string, perm os.FileMode, owner *OwnerConfig) error {
	if err := os.MkdirAll(path, perm); err != nil {
		return err
	}

	Chown(path, owner)

	return nil
}

// WriteTemp creates a temporary file next to path, fills it with write,
// syncs it and returns its name. The caller publishes it with Replace or
// removes it.
func WriteTemp(path string, owner *OwnerConfig, write func(w io.Writer) error) (string, error) {
	dir := filepath.Dir(path)

	if err := MkdirAll(dir, 0o755, owner); err != nil {
		return "", fmt.Errorf("creating directory %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}

	tmp := f.Name()

	fail := func(err error) (string, error) {
		_ = f.Close()
		_ = os.Remove(tmp)

		return "", err
	}

	if err := write(f); err != nil {
		return fail(err)
	}

	if err := f.Sync(); err != nil {
		return fail(fmt.Errorf("syncing temp file: %w", err))
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)

		return "", fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tmp, 0o644); err != nil {
		_ = os.Remove(tmp)

		return "", fmt.Errorf("setting temp file mode: %w", err)
	}

	Chown(tmp, owner)

	return tmp, nil
}

// Replace renames tmp over path and syncs the parent directory so the rename
// survives a crash. Readers see either the old or the new file.
func Replace(tmp, path string) error {
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)

		return fmt.Errorf("renaming %s to %s: %w", tmp, path, err)
	}

	return syncDir(filepath.Dir(path))
}

// WriteFileAtomic writes path through a temporary file and Replace.
func WriteFileAtomic(path string, owner *OwnerConfig, write func(w io.Writer) error) error {
	tmp, err := WriteTemp(path, owner, write)
	if err != nil {
		return err
	}

	return Replace(tmp, path)
}

// Exists reports whether path exists.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}

	if os.IsNotExist(err) {
		return false, nil
	}

	return false, err
}

func syncDir(dir string) error {
	d, err := os.Open(dir) //nolint:gosec // directory of a path we just wrote
	if err != nil {
		return fmt.Errorf("opening directory %s: %w", dir, err)
	}
	defer func() { _ = d.Close() }()

	if err := d.Sync(); err != nil {
		return fmt.Errorf("syncing directory %s: %w", dir, err)
	}

	return nil
}
