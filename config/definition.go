// Package config loads plugin hook declarations and per-directory user
// overrides and merges them into resolved hook configurations.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/hookworks/hookrun/internal/errors"
	"github.com/hookworks/hookrun/internal/util"
)

// Locations probed for a plugin's hook declaration file, relative to the
// plugin root. The first existing file wins.
var declarationFilenames = []string{
	"hooks.json",
	filepath.Join("hooks", "hooks.json"),
}

// DependencyRef names another hook instance that must finish first. A ref of
// {"*", "*"} depends on every other instance in the run.
type DependencyRef struct {
	Plugin   string `mapstructure:"plugin"`
	Hook     string `mapstructure:"hook"`
	Optional bool   `mapstructure:"optional"`
}

// IsWildcard reports whether this ref is the "after everything" dependency.
func (ref DependencyRef) IsWildcard() bool {
	return ref.Plugin == "*" && ref.Hook == "*"
}

// PluginHookDefinition is a plugin's declared default for one hook. Loaded
// once per resolution pass and never mutated.
type PluginHookDefinition struct {
	Name        string
	Events      []string
	DirsWith    []string
	DirTest     string
	Command     string
	IfChanged   []string
	Timeout     *time.Duration
	IdleTimeout *time.Duration
	DependsOn   []DependencyRef
	Description string
}

// PluginHooks is the parsed declaration file of one plugin.
type PluginHooks struct {
	PluginName string
	PluginRoot string
	Hooks      map[string]*PluginHookDefinition
}

// Definition returns the declaration for the given hook name, or nil if the
// plugin does not declare it.
func (p *PluginHooks) Definition(hookName string) *PluginHookDefinition {
	if p == nil {
		return nil
	}

	return p.Hooks[hookName]
}

// HookNames returns every declared hook name, sorted.
func (p *PluginHooks) HookNames() []string {
	if p == nil {
		return nil
	}

	return util.SortedKeys(p.Hooks)
}

// HooksForEvent returns the names of hooks declared for the given lifecycle
// event, sorted for deterministic dispatch.
func (p *PluginHooks) HooksForEvent(event string) []string {
	if p == nil {
		return nil
	}

	var names []string

	for _, name := range util.SortedKeys(p.Hooks) {
		if util.ListContainsElement(p.Hooks[name].Events, event) {
			names = append(names, name)
		}
	}

	return names
}

type rawPluginFile struct {
	Hooks map[string]rawHookDef `mapstructure:"hooks"`
}

type rawHookDef struct {
	Timeout     any             `mapstructure:"timeout"`
	IdleTimeout any             `mapstructure:"idleTimeout"`
	Command     string          `mapstructure:"command"`
	DirTest     string          `mapstructure:"dirTest"`
	Description string          `mapstructure:"description"`
	Events      []string        `mapstructure:"events"`
	DirsWith    []string        `mapstructure:"dirsWith"`
	IfChanged   []string        `mapstructure:"ifChanged"`
	DependsOn   []DependencyRef `mapstructure:"dependsOn"`
}

// LoadPluginHooks reads and validates the plugin's hook declaration file.
// A plugin with no declaration file yields an empty PluginHooks, not an
// error: hooks are opt-in per plugin. A declaration file that exists but is
// malformed returns a MalformedConfigError.
func LoadPluginHooks(pluginName, pluginRoot string) (*PluginHooks, error) {
	hooks := &PluginHooks{
		PluginName: pluginName,
		PluginRoot: pluginRoot,
		Hooks:      map[string]*PluginHookDefinition{},
	}

	var path string

	for _, filename := range declarationFilenames {
		candidate := filepath.Join(pluginRoot, filename)
		if util.FileExists(candidate) {
			path = candidate
			break
		}
	}

	if path == "" {
		return hooks, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &MalformedConfigError{Plugin: pluginName, Path: path, Err: errors.New(err)}
	}

	var untyped map[string]any
	if err := json.Unmarshal(content, &untyped); err != nil {
		return nil, &MalformedConfigError{Plugin: pluginName, Path: path, Err: errors.New(err)}
	}

	var raw rawPluginFile
	if err := util.StrictDecode(untyped, &raw); err != nil {
		return nil, &MalformedConfigError{Plugin: pluginName, Path: path, Err: err}
	}

	for name, rawDef := range raw.Hooks {
		def, err := rawDef.validate(name)
		if err != nil {
			return nil, &MalformedConfigError{Plugin: pluginName, Hook: name, Path: path, Err: err}
		}

		if def == nil {
			// Declaration without a command, e.g. a prompt-only hook owned
			// by another subsystem. Nothing for the engine to run.
			continue
		}

		hooks.Hooks[name] = def
	}

	return hooks, nil
}

func (raw rawHookDef) validate(name string) (*PluginHookDefinition, error) {
	if raw.Command == "" {
		return nil, nil
	}

	if len(raw.Events) == 0 {
		return nil, errors.Errorf("hook %q declares a command but no events", name)
	}

	timeout, err := parseTimeout(raw.Timeout)
	if err != nil {
		return nil, errors.WithPrefix(err, "hook %q", name)
	}

	idleTimeout, _, err := parseIdleTimeout(raw.IdleTimeout)
	if err != nil {
		return nil, errors.WithPrefix(err, "hook %q", name)
	}

	for _, ref := range raw.DependsOn {
		if (ref.Plugin == "*") != (ref.Hook == "*") {
			return nil, errors.Errorf("hook %q has a one-sided wildcard dependency on %s/%s", name, ref.Plugin, ref.Hook)
		}

		if ref.Plugin == "" || ref.Hook == "" {
			return nil, errors.Errorf("hook %q has a dependency with an empty plugin or hook name", name)
		}
	}

	return &PluginHookDefinition{
		Name:        name,
		Events:      raw.Events,
		DirsWith:    raw.DirsWith,
		DirTest:     raw.DirTest,
		Command:     raw.Command,
		IfChanged:   raw.IfChanged,
		Timeout:     timeout,
		IdleTimeout: idleTimeout,
		DependsOn:   raw.DependsOn,
		Description: raw.Description,
	}, nil
}

// parseTimeout normalizes the duck-typed overall timeout value: a positive
// number of milliseconds, or absent for the engine default.
func parseTimeout(raw any) (*time.Duration, error) {
	switch value := raw.(type) {
	case nil:
		return nil, nil
	case float64:
		if value <= 0 {
			return nil, errors.Errorf("timeout must be a positive number of milliseconds, got %v", value)
		}

		timeout := time.Duration(value) * time.Millisecond

		return &timeout, nil
	case int:
		return parseTimeout(float64(value))
	default:
		return nil, errors.Errorf("timeout must be a positive number of milliseconds, got %T", raw)
	}
}

// parseIdleTimeout normalizes the duck-typed idleTimeout value: a positive
// number is milliseconds, 0 and false mean "disabled" (nil), absent means
// unset. The second return reports whether the field was present at all.
func parseIdleTimeout(raw any) (*time.Duration, bool, error) {
	switch value := raw.(type) {
	case nil:
		return nil, false, nil
	case bool:
		if value {
			return nil, false, errors.Errorf("idleTimeout must be a number of milliseconds or false, got true")
		}

		return nil, true, nil
	case float64:
		if value < 0 {
			return nil, false, errors.Errorf("idleTimeout must not be negative, got %v", value)
		}

		if value == 0 {
			return nil, true, nil
		}

		timeout := time.Duration(value) * time.Millisecond

		return &timeout, true, nil
	case int:
		return parseIdleTimeout(float64(value))
	default:
		return nil, false, errors.Errorf("idleTimeout must be a number of milliseconds or false, got %T", raw)
	}
}
