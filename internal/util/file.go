package util

import (
	"os"
	"path/filepath"

	"github.com/hookworks/hookrun/internal/errors"
)

const ownerWritableDirPerms = os.FileMode(0755)

// FileExists returns true if the path exists and is a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// IsDir returns true if the path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// CanonicalPath converts the given path to an absolute, cleaned path. A
// relative path is resolved against basePath.
func CanonicalPath(path string, basePath string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(basePath, path)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", errors.New(err)
	}

	return filepath.Clean(absPath), nil
}

// EnsureDir creates the given directory, and any missing parents, if it does
// not already exist.
func EnsureDir(path string) error {
	if IsDir(path) {
		return nil
	}

	return errors.New(os.MkdirAll(path, ownerWritableDirPerms))
}

// WriteFileAtomic writes data to the given path through a temp file in the
// same directory followed by a rename, so a concurrent reader never observes
// a partially written file.
func WriteFileAtomic(path string, data []byte, perms os.FileMode) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.New(err)
	}

	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.New(err)
	}

	if err := tmp.Chmod(perms); err != nil {
		tmp.Close()
		return errors.New(err)
	}

	if err := tmp.Close(); err != nil {
		return errors.New(err)
	}

	return errors.New(os.Rename(tmpPath, path))
}
