// Package hashcache persists content-hash manifests so hooks whose inputs
// are provably unchanged since their last successful run can be skipped.
//
// One manifest file exists per (plugin, hook, directory) key. Every failure
// mode fails open: a missing, unreadable, or unparseable manifest means the
// hook must run. A broken cache can slow things down but never hide a
// regression.
package hashcache

import (
	"context"
	"encoding/json"
	"maps"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/hookworks/hookrun/internal/errors"
	"github.com/hookworks/hookrun/internal/fsscan"
	"github.com/hookworks/hookrun/internal/util"
	"github.com/hookworks/hookrun/pkg/log"
)

const (
	manifestPerms = os.FileMode(0644)
	dirHashLen    = 8
)

// Manifest maps root-relative file paths to content hashes.
type Manifest struct {
	Files map[string]string `json:"files"`
}

// Store reads and writes manifests under a cache directory.
type Store struct {
	logger log.Logger
	locks  *xsync.MapOf[string, *flock.Flock]
	dir    string
}

// NewStore returns a Store rooted at the given cache directory.
func NewStore(logger log.Logger, dir string) *Store {
	return &Store{
		logger: logger,
		locks:  xsync.NewMapOf[string, *flock.Flock](),
		dir:    dir,
	}
}

// ShouldRun reports whether the hook must run: true when the pattern set is
// empty, the manifest is missing or unreadable, or any matched file is new,
// removed, or changed since the manifest was written.
func (s *Store) ShouldRun(ctx context.Context, pluginName, hookName, directory string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}

	stored, ok := s.readManifest(pluginName, hookName, directory)
	if !ok {
		return true
	}

	current, err := s.currentManifest(ctx, directory, patterns)
	if err != nil {
		s.logger.Warnf("Cannot compare hook inputs for %s/%s in %s, running it: %v", pluginName, hookName, directory, err)
		return true
	}

	return !maps.Equal(stored.Files, current.Files)
}

// RecordSuccess recomputes the manifest over the given pattern set and
// persists it, replacing any prior manifest for the key. Callers invoke this
// only after the hook instance finished successfully. Writes for the same
// key serialize on a file lock; a concurrent reader only ever observes a
// complete manifest.
func (s *Store) RecordSuccess(ctx context.Context, pluginName, hookName, directory string, patterns []string) error {
	if len(patterns) == 0 {
		return nil
	}

	manifest, err := s.currentManifest(ctx, directory, patterns)
	if err != nil {
		return err
	}

	content, err := json.Marshal(manifest)
	if err != nil {
		return errors.New(err)
	}

	path := s.manifestPath(pluginName, hookName, directory)

	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}

	lock, _ := s.locks.LoadOrCompute(path, func() *flock.Flock {
		return flock.New(path + ".lock")
	})

	if err := lock.Lock(); err != nil {
		return errors.New(err)
	}
	defer lock.Unlock()

	return util.WriteFileAtomic(path, content, manifestPerms)
}

// manifestPath derives the manifest file for a key. The directory component
// is collapsed to a short hash so deep project paths stay out of filenames.
func (s *Store) manifestPath(pluginName, hookName, directory string) string {
	dirHash := fsscan.HashString(directory)[:dirHashLen]
	return filepath.Join(s.dir, pluginName, hookName+"-"+dirHash+".json")
}

func (s *Store) readManifest(pluginName, hookName, directory string) (*Manifest, bool) {
	path := s.manifestPath(pluginName, hookName, directory)

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var manifest Manifest
	if err := json.Unmarshal(content, &manifest); err != nil {
		s.logger.Warnf("Discarding unparseable manifest %s: %v", path, err)
		return nil, false
	}

	return &manifest, true
}

func (s *Store) currentManifest(ctx context.Context, directory string, patterns []string) (*Manifest, error) {
	files, err := fsscan.FindFilesWithGlob(directory, patterns)
	if err != nil {
		return nil, err
	}

	hashes, err := fsscan.BuildManifest(ctx, directory, files)
	if err != nil {
		return nil, err
	}

	return &Manifest{Files: hashes}, nil
}
