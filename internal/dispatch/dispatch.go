// Package dispatch is the engine's root coordinator: it resolves every
// installed plugin's hooks for a lifecycle event, filters out work the
// change-detection cache proves unnecessary, plans phases, supervises
// execution, and aggregates the outcome into a RunReport.
package dispatch

import (
	"context"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/hookworks/hookrun/config"
	"github.com/hookworks/hookrun/internal/errors"
	"github.com/hookworks/hookrun/internal/hashcache"
	"github.com/hookworks/hookrun/internal/plugins"
	"github.com/hookworks/hookrun/internal/scheduler"
	"github.com/hookworks/hookrun/internal/supervisor"
	"github.com/hookworks/hookrun/options"
	"github.com/hookworks/hookrun/pkg/log"
)

// CacheStore is the change-detection contract the coordinator depends on.
type CacheStore interface {
	ShouldRun(ctx context.Context, pluginName, hookName, directory string, patterns []string) bool
	RecordSuccess(ctx context.Context, pluginName, hookName, directory string, patterns []string) error
}

// Runner executes one resolved hook instance to a terminal result.
type Runner interface {
	Run(ctx context.Context, instanceKey string, cfg *config.ResolvedHookConfig, event string) *supervisor.Result
}

// Coordinator drives the resolve, cache, plan, execute pipeline.
type Coordinator struct {
	logger   log.Logger
	opts     *options.RunOptions
	registry plugins.Registry
	resolver *config.Resolver
	cache    CacheStore
	runner   Runner
}

// Option replaces a Coordinator collaborator, mainly for tests.
type Option func(*Coordinator)

// WithRegistry replaces the plugin registry.
func WithRegistry(registry plugins.Registry) Option {
	return func(c *Coordinator) { c.registry = registry }
}

// WithResolver replaces the config resolver.
func WithResolver(resolver *config.Resolver) Option {
	return func(c *Coordinator) { c.resolver = resolver }
}

// WithCache replaces the change-detection cache.
func WithCache(cache CacheStore) Option {
	return func(c *Coordinator) { c.cache = cache }
}

// WithRunner replaces the execution supervisor.
func WithRunner(runner Runner) Option {
	return func(c *Coordinator) { c.runner = runner }
}

// NewCoordinator wires the default collaborators for the given options.
func NewCoordinator(opts *options.RunOptions, withOpts ...Option) *Coordinator {
	coordinator := &Coordinator{
		logger:   opts.Logger,
		opts:     opts,
		registry: plugins.NewFSRegistry(opts.ProjectRoot),
		resolver: config.NewResolver(opts.Logger, opts.ProjectRoot),
		cache:    hashcache.NewStore(opts.Logger, opts.CacheDir()),
	}

	var sink supervisor.Sink
	if opts.Verbose {
		sink = newLiveSink(opts.Writer)
	}

	coordinator.runner = supervisor.New(opts.Logger, opts, sink)

	for _, opt := range withOpts {
		opt(coordinator)
	}

	return coordinator
}

// DispatchEvent runs every applicable hook for the given lifecycle event and
// returns the aggregate report. Configuration errors that poison the whole
// run (dependency cycles, unsatisfiable dependencies) are returned as an
// error; per-source config errors skip that source and are reported in the
// RunReport instead.
func (c *Coordinator) DispatchEvent(ctx context.Context, event string) (*RunReport, error) {
	report := &RunReport{Event: event, Success: true}

	if c.opts.Disabled {
		c.logger.Debugf("Hook dispatch disabled via %s, skipping event %s", options.DisableEnvName, event)
		return report, nil
	}

	if c.opts.CheckpointType != "" && c.opts.CheckpointID == "" {
		c.opts.CheckpointID = uuid.NewString()
	}

	instances, err := c.resolveEvent(ctx, event, report)
	if err != nil {
		return nil, err
	}

	// The plan covers every enabled instance, cache state included:
	// dependency edges must resolve identically whether or not their target
	// ends up skipped as unchanged. The cache only decides, per instance at
	// execution time, whether the subprocess actually starts.
	phases, err := scheduler.Plan(instances)
	if err != nil {
		return nil, err
	}

	unchanged := c.unchangedInstances(ctx, instances)

	c.executePhases(ctx, event, phases, unchanged, report)

	for _, instance := range report.Instances {
		if instance.Status == StatusFailed || instance.Status == StatusCanceled {
			report.Success = false
		}
	}

	return report, nil
}

// resolveEvent resolves every installed plugin's hooks for the event and
// returns the enabled instances. A plugin whose declaration file is
// malformed is reported and skipped; other plugins still resolve.
func (c *Coordinator) resolveEvent(ctx context.Context, event string, report *RunReport) ([]*scheduler.Instance, error) {
	installed, err := c.registry.List()
	if err != nil {
		return nil, errors.WithPrefix(err, "listing installed plugins")
	}

	var instances []*scheduler.Instance

	for _, plugin := range installed {
		declared, err := config.LoadPluginHooks(plugin.Name, plugin.Root)
		if err != nil {
			c.logger.Errorf("Skipping plugin %s: %v", plugin.Name, err)
			report.ConfigErrors = append(report.ConfigErrors, err.Error())

			continue
		}

		for _, hookName := range declared.HooksForEvent(event) {
			resolved, err := c.resolver.Resolve(ctx, declared, hookName)
			if err != nil {
				c.logger.Errorf("Skipping hook %s/%s: %v", plugin.Name, hookName, err)
				report.ConfigErrors = append(report.ConfigErrors, err.Error())

				continue
			}

			for _, cfg := range resolved {
				if !cfg.Enabled {
					c.logger.Debugf("Hook %s/%s disabled in %s", cfg.PluginName, cfg.HookName, cfg.Directory)
					continue
				}

				instances = append(instances, scheduler.NewInstance(cfg))
			}
		}
	}

	return instances, nil
}

// unchangedInstances checks each instance against the cache and returns the
// keys of those whose inputs are provably unchanged. Those instances stay in
// the plan so dependency edges onto them keep resolving; they are reported
// as skipped instead of running, which satisfies dependents because their
// last recorded success is still current.
func (c *Coordinator) unchangedInstances(ctx context.Context, instances []*scheduler.Instance) map[string]bool {
	if c.opts.NoCache {
		return nil
	}

	unchanged := map[string]bool{}

	for _, instance := range instances {
		cfg := instance.Config
		if !c.cache.ShouldRun(ctx, cfg.PluginName, cfg.HookName, cfg.Directory, cfg.IfChanged) {
			c.logger.Debugf("Skipping %s: inputs unchanged", instance.Key())
			unchanged[instance.Key()] = true
		}
	}

	return unchanged
}

// executePhases runs the plan phase by phase. Instances within a phase run
// concurrently; a phase must be fully terminal before the next starts. In
// fail-fast mode a failed phase stops scheduling, but already-started
// siblings always finish. Instances flagged unchanged never start a
// subprocess and are reported as skipped.
func (c *Coordinator) executePhases(ctx context.Context, event string, phases []scheduler.Phase, unchanged map[string]bool, report *RunReport) {
	stopped := false

	for _, phase := range phases {
		if stopped || ctx.Err() != nil {
			for _, instance := range phase.Instances {
				status := StatusNotRun
				if unchanged[instance.Key()] {
					status = StatusSkipped
				}

				report.Instances = append(report.Instances, InstanceReport{
					PluginName: instance.Config.PluginName,
					HookName:   instance.Config.HookName,
					Directory:  instance.Config.Directory,
					Status:     status,
				})
			}

			continue
		}

		var runnable []*scheduler.Instance

		for _, instance := range phase.Instances {
			if unchanged[instance.Key()] {
				report.Instances = append(report.Instances, InstanceReport{
					PluginName: instance.Config.PluginName,
					HookName:   instance.Config.HookName,
					Directory:  instance.Config.Directory,
					Status:     StatusSkipped,
				})

				continue
			}

			runnable = append(runnable, instance)
		}

		results := c.executePhase(ctx, event, runnable)

		phaseFailed := false

		for _, instance := range runnable {
			result, _ := results.Load(instance.Key())
			status := statusOf(result)

			if status == StatusFailed || status == StatusCanceled {
				phaseFailed = true
			}

			if status == StatusSuccess {
				c.recordSuccess(ctx, instance)
			}

			report.Instances = append(report.Instances, InstanceReport{
				Result:     result,
				PluginName: instance.Config.PluginName,
				HookName:   instance.Config.HookName,
				Directory:  instance.Config.Directory,
				Status:     status,
			})
		}

		if phaseFailed && c.opts.FailFast {
			c.logger.Debugf("Stopping after failed phase (fail-fast)")

			stopped = true
		}
	}
}

func (c *Coordinator) executePhase(ctx context.Context, event string, instances []*scheduler.Instance) *xsync.MapOf[string, *supervisor.Result] {
	results := xsync.NewMapOf[string, *supervisor.Result]()

	done := make(chan struct{}, len(instances))

	for _, instance := range instances {
		instance := instance

		go func() {
			defer func() { done <- struct{}{} }()

			results.Store(instance.Key(), c.runner.Run(ctx, instance.Key(), instance.Config, event))
		}()
	}

	for range instances {
		<-done
	}

	return results
}

func (c *Coordinator) recordSuccess(ctx context.Context, instance *scheduler.Instance) {
	if c.opts.NoCache {
		return
	}

	cfg := instance.Config

	if err := c.cache.RecordSuccess(ctx, cfg.PluginName, cfg.HookName, cfg.Directory, cfg.IfChanged); err != nil {
		// Fail open: a broken cache only costs a re-run next time.
		c.logger.Warnf("Could not record cache manifest for %s: %v", instance.Key(), err)
	}
}

func statusOf(result *supervisor.Result) Status {
	switch {
	case result == nil:
		return StatusNotRun
	case result.Success:
		return StatusSuccess
	case result.Canceled:
		return StatusCanceled
	default:
		return StatusFailed
	}
}
