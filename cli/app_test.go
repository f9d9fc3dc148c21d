package cli_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookworks/hookrun/cli"
)

func TestNewAppCommands(t *testing.T) {
	t.Parallel()

	app := cli.NewApp()

	names := make([]string, 0, len(app.Commands))
	for _, command := range app.Commands {
		names = append(names, command.Name)
	}

	assert.Contains(t, names, "dispatch")
	assert.Contains(t, names, "hooks")
}

func TestRunAppDispatchRequiresEvent(t *testing.T) {
	assert.Equal(t, cli.ExitCodeConfigError, cli.RunApp([]string{"hookrun", "dispatch"}))
}

func TestRunAppDispatchEmptyProject(t *testing.T) {
	projectRoot := t.TempDir()

	code := cli.RunApp([]string{"hookrun", "--working-dir", projectRoot, "dispatch", "checkpoint"})

	assert.Equal(t, cli.ExitCodeSuccess, code)
}

func TestRunAppDispatchKillSwitch(t *testing.T) {
	t.Setenv("HOOKRUN_DISABLE", "1")

	projectRoot := t.TempDir()
	installHook(t, projectRoot, "quality", `{
		"hooks": {"lint": {"events": ["checkpoint"], "command": "exit 1"}}
	}`)

	code := cli.RunApp([]string{"hookrun", "--working-dir", projectRoot, "dispatch", "checkpoint"})

	assert.Equal(t, cli.ExitCodeSuccess, code)
}

func TestRunAppDispatchFailureExitCode(t *testing.T) {
	projectRoot := t.TempDir()
	installHook(t, projectRoot, "quality", `{
		"hooks": {"lint": {"events": ["checkpoint"], "command": "exit 7"}}
	}`)

	code := cli.RunApp([]string{"hookrun", "--working-dir", projectRoot, "dispatch", "checkpoint"})

	assert.Equal(t, cli.ExitCodeFailure, code)
}

func TestRunAppDispatchPassingHooks(t *testing.T) {
	projectRoot := t.TempDir()
	installHook(t, projectRoot, "quality", `{
		"hooks": {"lint": {"events": ["checkpoint"], "command": "true"}}
	}`)

	code := cli.RunApp([]string{"hookrun", "--working-dir", projectRoot, "dispatch", "checkpoint"})

	assert.Equal(t, cli.ExitCodeSuccess, code)
}

func TestRunAppHooksList(t *testing.T) {
	projectRoot := t.TempDir()
	installHook(t, projectRoot, "quality", `{
		"hooks": {"lint": {"events": ["checkpoint"], "command": "true"}}
	}`)

	code := cli.RunApp([]string{"hookrun", "--working-dir", projectRoot, "hooks", "list"})

	assert.Equal(t, cli.ExitCodeSuccess, code)
}

func installHook(t *testing.T, projectRoot, pluginName, hooksJSON string) {
	t.Helper()

	pluginRoot := filepath.Join(projectRoot, ".hookrun", "plugins", pluginName)
	require.NoError(t, os.MkdirAll(pluginRoot, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(pluginRoot, "hooks.json"), []byte(hooksJSON), 0644))
}
