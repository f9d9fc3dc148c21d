package plugins_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookworks/hookrun/internal/plugins"
)

func TestFSRegistryProjectScope(t *testing.T) {
	t.Parallel()

	projectRoot := t.TempDir()
	pluginDir := filepath.Join(projectRoot, ".hookrun", "plugins")
	require.NoError(t, os.MkdirAll(filepath.Join(pluginDir, "mylinter"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(pluginDir, "myformatter"), 0755))

	// Files alongside plugin directories are not plugins.
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "readme.txt"), nil, 0644))

	installed, err := plugins.NewFSRegistry(projectRoot).List()
	require.NoError(t, err)

	names := make([]string, 0, len(installed))
	for _, plugin := range installed {
		names = append(names, plugin.Name)
	}

	assert.Contains(t, names, "mylinter")
	assert.Contains(t, names, "myformatter")
	assert.NotContains(t, names, "readme.txt")
	assert.IsIncreasing(t, names)
}

func TestFSRegistryEmptyProject(t *testing.T) {
	t.Parallel()

	installed, err := plugins.NewFSRegistry(t.TempDir()).List()
	require.NoError(t, err)

	for _, plugin := range installed {
		// Anything listed must come from the user scope, never the project.
		assert.NotContains(t, plugin.Root, ".hookrun/plugins/ghost")
	}
}

func TestStaticRegistrySorts(t *testing.T) {
	t.Parallel()

	registry := plugins.StaticRegistry{
		{Name: "zeta", Root: "/z"},
		{Name: "alpha", Root: "/a"},
	}

	installed, err := registry.List()
	require.NoError(t, err)
	require.Len(t, installed, 2)
	assert.Equal(t, "alpha", installed[0].Name)
	assert.Equal(t, "zeta", installed[1].Name)
}
