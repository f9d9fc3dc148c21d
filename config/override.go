package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/hookworks/hookrun/internal/errors"
	"github.com/hookworks/hookrun/internal/util"
)

// OverrideFilename is the per-directory user override file.
const OverrideFilename = ".hookrun.json"

// UserHookOverride is a user's per-directory adjustment of one plugin hook.
// Fields left unset fall through to the plugin's declaration.
type UserHookOverride struct {
	// Enabled disables the hook in this directory when explicitly false.
	Enabled *bool

	// Command replaces the plugin's command verbatim when non-nil.
	Command *string

	// IfChanged patterns are unioned with the plugin's, never replacing them.
	IfChanged []string

	// Timeout replaces the plugin's overall timeout when non-nil.
	Timeout *time.Duration

	// IdleTimeout replaces the plugin's idle timeout when set; nil with
	// IdleTimeoutSet true means the user disabled idle-timeout checking.
	IdleTimeout    *time.Duration
	IdleTimeoutSet bool
}

type rawOverrideFile struct {
	Overrides map[string]map[string]rawOverride `mapstructure:"overrides"`
}

type rawOverride struct {
	Enabled     *bool    `mapstructure:"enabled"`
	Command     *string  `mapstructure:"command"`
	Timeout     any      `mapstructure:"timeout"`
	IdleTimeout any      `mapstructure:"idleTimeout"`
	IfChanged   []string `mapstructure:"ifChanged"`
}

// LoadUserOverride reads the override for the given plugin hook from the
// directory's override file. Returns nil if the directory has no override
// file or the file has no entry for this plugin hook. A file that exists but
// cannot be parsed returns a MalformedConfigError; callers are expected to
// report it and fall back to the plugin's defaults for the directory.
func LoadUserOverride(directory, pluginName, hookName string) (*UserHookOverride, error) {
	path := filepath.Join(directory, OverrideFilename)
	if !util.FileExists(path) {
		return nil, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &MalformedConfigError{Plugin: pluginName, Hook: hookName, Path: path, Err: errors.New(err)}
	}

	var untyped map[string]any
	if err := json.Unmarshal(content, &untyped); err != nil {
		return nil, &MalformedConfigError{Plugin: pluginName, Hook: hookName, Path: path, Err: errors.New(err)}
	}

	var raw rawOverrideFile
	if err := util.StrictDecode(untyped, &raw); err != nil {
		return nil, &MalformedConfigError{Plugin: pluginName, Hook: hookName, Path: path, Err: err}
	}

	rawEntry, ok := raw.Overrides[pluginName][hookName]
	if !ok {
		return nil, nil
	}

	timeout, err := parseTimeout(rawEntry.Timeout)
	if err != nil {
		return nil, &MalformedConfigError{Plugin: pluginName, Hook: hookName, Path: path, Err: err}
	}

	idleTimeout, idleSet, err := parseIdleTimeout(rawEntry.IdleTimeout)
	if err != nil {
		return nil, &MalformedConfigError{Plugin: pluginName, Hook: hookName, Path: path, Err: err}
	}

	return &UserHookOverride{
		Enabled:        rawEntry.Enabled,
		Command:        rawEntry.Command,
		IfChanged:      rawEntry.IfChanged,
		Timeout:        timeout,
		IdleTimeout:    idleTimeout,
		IdleTimeoutSet: idleSet,
	}, nil
}
