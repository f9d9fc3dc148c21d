// Package scheduler turns resolved hook configurations into an execution
// plan: ordered phases of instances that may run concurrently, respecting
// declared dependencies.
package scheduler

import (
	"fmt"
	"strings"

	"github.com/hookworks/hookrun/config"
)

// Phase indexes derived from hook-name convention. Any other name lands in
// the lint phase.
const (
	PhaseFormat = iota
	PhaseLint
	PhaseTypecheck
	PhaseTest
	PhaseAdvisory
)

var phasePrefixes = []struct {
	prefix string
	phase  int
}{
	{"format", PhaseFormat},
	{"lint", PhaseLint},
	{"typecheck", PhaseTypecheck},
	{"test", PhaseTest},
	{"advisory", PhaseAdvisory},
}

// NamePhase returns the phase a hook name maps to: the hook name must equal
// the phase name or start with it followed by an underscore, case-sensitive.
func NamePhase(hookName string) int {
	for _, entry := range phasePrefixes {
		if hookName == entry.prefix || strings.HasPrefix(hookName, entry.prefix+"_") {
			return entry.phase
		}
	}

	return PhaseLint
}

// Instance is one schedulable unit: a resolved hook configuration plus its
// place in the plan.
type Instance struct {
	Config *config.ResolvedHookConfig

	// dependsOn holds the instances this one's named dependsOn entries
	// resolved to. Populated while planning.
	dependsOn []*Instance
}

// NewInstance wraps a resolved configuration into a schedulable instance.
func NewInstance(cfg *config.ResolvedHookConfig) *Instance {
	return &Instance{Config: cfg}
}

// Key identifies the instance within a run.
func (i *Instance) Key() string {
	return fmt.Sprintf("%s/%s@%s", i.Config.PluginName, i.Config.HookName, i.Config.Directory)
}

// PairKey identifies the (plugin, hook) pair, the granularity dependsOn
// entries refer to.
func (i *Instance) PairKey() string {
	return i.Config.PluginName + "/" + i.Config.HookName
}

// Wildcard reports whether the instance declared the "after everything"
// dependency and therefore runs in the final stage.
func (i *Instance) Wildcard() bool {
	for _, ref := range i.Config.DependsOn {
		if ref.IsWildcard() {
			return true
		}
	}

	return false
}

func (i *Instance) String() string {
	return i.Key()
}
