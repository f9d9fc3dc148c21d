// Package fsscan walks project trees for the hook engine: it discovers
// directories by marker files, matches files against glob patterns while
// honoring nested .gitignore rules, and builds content-hash manifests.
package fsscan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/mattn/go-zglob"
	"golang.org/x/sync/errgroup"

	"github.com/hookworks/hookrun/internal/errors"
)

const hashWorkers = 8

// FindDirectoriesWithMarkers returns the absolute paths of every directory
// under root (root included) that directly contains at least one of the given
// marker files. Ignored subtrees are never descended into. Results are sorted.
func FindDirectoriesWithMarkers(root string, markers []string) ([]string, error) {
	if len(markers) == 0 {
		return nil, nil
	}

	found := map[string]struct{}{}

	err := walkWithIgnores(root, func(path string, entry fs.DirEntry) {
		if entry.IsDir() {
			return
		}

		for _, marker := range markers {
			if matched, _ := zglob.Match(marker, entry.Name()); matched {
				found[filepath.Dir(path)] = struct{}{}
				return
			}
		}
	})
	if err != nil {
		return nil, err
	}

	dirs := make([]string, 0, len(found))
	for dir := range found {
		dirs = append(dirs, dir)
	}

	slices.Sort(dirs)

	return dirs, nil
}

// FindFilesWithGlob returns the paths, relative to root, of every
// non-ignored file under root matching at least one of the given glob
// patterns. Patterns support ** via zglob. Results are sorted and
// de-duplicated.
func FindFilesWithGlob(root string, patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		return nil, nil
	}

	seen := map[string]struct{}{}

	var files []string

	err := walkWithIgnores(root, func(path string, entry fs.DirEntry) {
		if entry.IsDir() {
			return
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return
		}

		rel = filepath.ToSlash(rel)

		for _, pattern := range patterns {
			if matched, _ := zglob.Match(pattern, rel); matched {
				if _, ok := seen[rel]; !ok {
					seen[rel] = struct{}{}
					files = append(files, rel)
				}

				return
			}
		}
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(files)

	return files, nil
}

// ComputeFileHash returns the hex-encoded SHA-256 of the file's content.
func ComputeFileHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", errors.New(err)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", errors.New(err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// HashString returns the hex-encoded SHA-256 of the given string.
func HashString(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// BuildManifest hashes the given root-relative files concurrently and returns
// a map from relative path to content hash. Files that disappear between
// listing and hashing are left out rather than failing the manifest.
func BuildManifest(ctx context.Context, root string, relPaths []string) (map[string]string, error) {
	var mu sync.Mutex

	manifest := make(map[string]string, len(relPaths))

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(hashWorkers)

	for _, rel := range relPaths {
		rel := rel

		group.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			hash, err := ComputeFileHash(filepath.Join(root, rel))
			if err != nil {
				if os.IsNotExist(errors.Unwrap(err)) {
					return nil
				}

				return err
			}

			mu.Lock()
			manifest[rel] = hash
			mu.Unlock()

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return manifest, nil
}

// walkWithIgnores walks the tree under root depth-first, maintaining the
// stack of .gitignore rule sets, and calls visit for every non-ignored entry.
func walkWithIgnores(root string, visit func(path string, entry fs.DirEntry)) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return errors.New(err)
	}

	var walk func(dir string, ignores *ignoreSet) error

	walk = func(dir string, ignores *ignoreSet) error {
		ignores = ignores.loadIgnoreFile(dir)

		entries, err := os.ReadDir(dir)
		if err != nil {
			return errors.New(err)
		}

		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())

			if ignores.ignored(path, entry.IsDir()) {
				continue
			}

			visit(path, entry)

			if entry.IsDir() {
				if err := walk(path, ignores); err != nil {
					return err
				}
			}
		}

		return nil
	}

	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return errors.Errorf("scan root %s is not a directory", root)
	}

	return walk(root, &ignoreSet{})
}
