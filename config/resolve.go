package config

import (
	"context"
	"os"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hookworks/hookrun/internal/errors"
	"github.com/hookworks/hookrun/internal/fsscan"
	"github.com/hookworks/hookrun/internal/util"
	"github.com/hookworks/hookrun/pkg/log"
)

const dirTestConcurrency = 8

// ResolvedHookConfig is the merge of a plugin's hook declaration with the
// user override of one target directory. One instance exists per
// (plugin, hook, directory) triple and is never mutated after creation.
type ResolvedHookConfig struct {
	// Timeout is the overall deadline, or nil for the engine default.
	Timeout *time.Duration

	// IdleTimeout kills the hook when no output arrives within the window.
	// Nil disables idle-timeout checking.
	IdleTimeout *time.Duration

	PluginName string
	PluginRoot string
	HookName   string

	// Directory is the absolute path the hook runs in.
	Directory string

	Command     string
	Description string

	// IfChanged is the de-duplicated, sorted union of plugin and user
	// patterns. Empty means no cache scoping: the hook always runs.
	IfChanged []string

	DependsOn []DependencyRef

	Enabled bool
}

// Resolver produces resolved hook configurations for (plugin, hook) pairs.
type Resolver struct {
	logger      log.Logger
	findDirs    func(root string, markers []string) ([]string, error)
	projectRoot string
}

// ResolverOption adjusts a Resolver. Used by tests to stub out discovery.
type ResolverOption func(*Resolver)

// WithDirectoryFinder replaces the marker-file directory discovery.
func WithDirectoryFinder(findDirs func(root string, markers []string) ([]string, error)) ResolverOption {
	return func(r *Resolver) {
		r.findDirs = findDirs
	}
}

// NewResolver returns a Resolver rooted at the given project directory.
func NewResolver(logger log.Logger, projectRoot string, opts ...ResolverOption) *Resolver {
	resolver := &Resolver{
		logger:      logger,
		projectRoot: projectRoot,
		findDirs:    fsscan.FindDirectoriesWithMarkers,
	}

	for _, opt := range opts {
		opt(resolver)
	}

	return resolver
}

// Resolve returns one ResolvedHookConfig per target directory for the given
// hook. A plugin that does not declare the hook yields an empty slice. A
// malformed override file in one directory is logged and skipped; the
// plugin's declaration applies unmodified there.
func (r *Resolver) Resolve(ctx context.Context, plugin *PluginHooks, hookName string) ([]*ResolvedHookConfig, error) {
	def := plugin.Definition(hookName)
	if def == nil {
		return nil, nil
	}

	directories, err := r.targetDirectories(ctx, plugin, def)
	if err != nil {
		return nil, err
	}

	resolved := make([]*ResolvedHookConfig, 0, len(directories))

	for _, directory := range directories {
		override, err := LoadUserOverride(directory, plugin.PluginName, hookName)
		if err != nil {
			// Partial or broken override files must not take the whole
			// directory down. Report and run with plugin defaults.
			r.logger.Warnf("Ignoring unusable override: %v", err)

			override = nil
		}

		resolved = append(resolved, mergeConfig(plugin, def, directory, override))
	}

	return resolved, nil
}

// targetDirectories determines where the hook runs: the project root when the
// declaration has no dirsWith markers, otherwise every discovered marker
// directory that passes the dirTest command.
func (r *Resolver) targetDirectories(ctx context.Context, plugin *PluginHooks, def *PluginHookDefinition) ([]string, error) {
	if len(def.DirsWith) == 0 {
		return []string{r.projectRoot}, nil
	}

	candidates, err := r.findDirs(r.projectRoot, def.DirsWith)
	if err != nil {
		return nil, errors.WithPrefix(err, "discovering directories for plugin %q hook %q", plugin.PluginName, def.Name)
	}

	if def.DirTest == "" {
		return candidates, nil
	}

	var (
		mu   sync.Mutex
		kept []string
	)

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(dirTestConcurrency)

	for _, candidate := range candidates {
		candidate := candidate

		group.Go(func() error {
			if r.runDirTest(ctx, plugin, def, candidate) {
				mu.Lock()
				kept = append(kept, candidate)
				mu.Unlock()
			}

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	// Re-sort: goroutine completion order is arbitrary.
	return util.UnionStrings(kept), nil
}

// runDirTest runs the declaration's dirTest command in the candidate
// directory with stdio fully suppressed. Exit code 0 keeps the directory.
func (r *Resolver) runDirTest(ctx context.Context, plugin *PluginHooks, def *PluginHookDefinition, directory string) bool {
	cmd := exec.CommandContext(ctx, "sh", "-c", def.DirTest)
	cmd.Dir = directory
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Env = append(os.Environ(), "HOOKRUN_PLUGIN_ROOT="+plugin.PluginRoot)

	if err := cmd.Run(); err != nil {
		r.logger.Debugf("Dropping %s for %s/%s: dirTest failed: %v", directory, plugin.PluginName, def.Name, err)
		return false
	}

	return true
}

func mergeConfig(plugin *PluginHooks, def *PluginHookDefinition, directory string, override *UserHookOverride) *ResolvedHookConfig {
	resolved := &ResolvedHookConfig{
		PluginName:  plugin.PluginName,
		PluginRoot:  plugin.PluginRoot,
		HookName:    def.Name,
		Directory:   directory,
		Enabled:     true,
		Command:     def.Command,
		Description: def.Description,
		IfChanged:   util.UnionStrings(def.IfChanged),
		Timeout:     def.Timeout,
		IdleTimeout: def.IdleTimeout,
		DependsOn:   def.DependsOn,
	}

	if override == nil {
		return resolved
	}

	if override.Enabled != nil {
		resolved.Enabled = *override.Enabled
	}

	if override.Command != nil {
		resolved.Command = *override.Command
	}

	resolved.IfChanged = util.UnionStrings(def.IfChanged, override.IfChanged)

	if override.Timeout != nil {
		resolved.Timeout = override.Timeout
	}

	if override.IdleTimeoutSet {
		resolved.IdleTimeout = override.IdleTimeout
	}

	return resolved
}
