// Package plugins locates installed plugins. The default registry scans the
// user and project plugin directories; the marketplace-backed resolver of
// the wider CLI satisfies the same interface.
package plugins

import (
	"os"
	"path/filepath"
	"slices"

	"github.com/mitchellh/go-homedir"

	"github.com/hookworks/hookrun/internal/errors"
	"github.com/hookworks/hookrun/internal/util"
)

// Plugin is one installed plugin: its name and its root directory.
type Plugin struct {
	Name string
	Root string
}

// Registry lists the plugins installed for a project.
type Registry interface {
	// List returns installed plugins sorted by name.
	List() ([]Plugin, error)
}

// FSRegistry discovers plugins on disk: every directory under
// ~/.hookrun/plugins and <projectRoot>/.hookrun/plugins. A project-scope
// plugin shadows a user-scope plugin of the same name.
type FSRegistry struct {
	projectRoot string
}

// NewFSRegistry returns a filesystem-backed registry for the given project.
func NewFSRegistry(projectRoot string) *FSRegistry {
	return &FSRegistry{projectRoot: projectRoot}
}

// List implements Registry.
func (r *FSRegistry) List() ([]Plugin, error) {
	byName := map[string]Plugin{}

	home, err := homedir.Dir()
	if err == nil {
		if err := scanPluginDir(filepath.Join(home, ".hookrun", "plugins"), byName); err != nil {
			return nil, err
		}
	}

	if err := scanPluginDir(filepath.Join(r.projectRoot, ".hookrun", "plugins"), byName); err != nil {
		return nil, err
	}

	installed := make([]Plugin, 0, len(byName))
	for _, name := range util.SortedKeys(byName) {
		installed = append(installed, byName[name])
	}

	return installed, nil
}

func scanPluginDir(dir string, byName map[string]Plugin) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return errors.New(err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		byName[entry.Name()] = Plugin{
			Name: entry.Name(),
			Root: filepath.Join(dir, entry.Name()),
		}
	}

	return nil
}

// StaticRegistry is a fixed plugin list. Used in tests and by callers that
// resolve plugins through the marketplace layer.
type StaticRegistry []Plugin

// List implements Registry.
func (r StaticRegistry) List() ([]Plugin, error) {
	installed := slices.Clone([]Plugin(r))
	slices.SortFunc(installed, func(a, b Plugin) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		default:
			return 0
		}
	})

	return installed, nil
}
